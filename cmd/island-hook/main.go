// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// island-hook is the Claude Code hook handler that feeds the Claude
// Island observer. Claude Code spawns it once per lifecycle event with
// the event JSON on stdin; the hook classifies the event into a
// normalized session status and delivers it to the observer app's Unix
// socket, or over the NATS bus when the session runs on a remote host.
//
// For PermissionRequest events the hook waits for the observer's
// decision and prints the corresponding decision envelope on stdout;
// no decision means no output, which tells Claude Code to show its own
// permission prompt. The exit code is zero for every outcome except
// unparseable stdin: a missing observer must never break the agent.
//
// Configuration comes from flags, each overridable by environment (the
// settings.json installer cannot easily thread flags through):
//
//	ISLAND_SOCKET_PATH           observer socket (default /tmp/claude-island.sock)
//	ISLAND_BUS_ADDR              NATS address (default localhost:4222)
//	ISLAND_PERMISSION_TIMEOUT    decision wait in seconds (default 300)
//	ISLAND_DEBUG                 set to "1" for stderr debug logging
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/claude-island/island/lib/execx"
	"github.com/claude-island/island/lib/logging"
	"github.com/claude-island/island/lib/route"
	"github.com/claude-island/island/lib/tmux"
)

func main() {
	os.Exit(run())
}

func run() int {
	flagSet := pflag.NewFlagSet("island-hook", pflag.ContinueOnError)
	socketPath := flagSet.String("socket",
		envDefault("ISLAND_SOCKET_PATH", "/tmp/claude-island.sock"),
		"observer app's Unix socket")
	busAddr := flagSet.String("bus",
		envDefault("ISLAND_BUS_ADDR", "localhost:4222"),
		"NATS server address for remote sessions")
	permissionTimeout := flagSet.Duration("permission-timeout",
		envSeconds("ISLAND_PERMISSION_TIMEOUT", 300*time.Second),
		"how long to wait for a permission decision")
	debug := flagSet.Bool("debug",
		os.Getenv("ISLAND_DEBUG") == "1",
		"log transport diagnostics to stderr")
	flagSet.Usage = printUsage

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "island-hook: %v\n", err)
		return 1
	}

	// Silent by default: stderr may be surfaced in Claude Code's hook
	// diagnostics, and a hook that chatters on every event is noise.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *debug {
		logger = logging.New(slog.LevelDebug)
	}

	runner := execx.System{}
	h := &hook{
		router: &route.Router{
			SocketPath:        *socketPath,
			BusAddr:           *busAddr,
			SubjectState:      "claude.island.state",
			SubjectPermission: "claude.island.permission",
			Remote:            route.IsRemoteSession(),
			PublishTimeout:    5 * time.Second,
			DecisionTimeout:   *permissionTimeout,
			Logger:            logger,
		},
		runner:     runner,
		tmux:       tmux.NewServer(tmux.ResolveBin(""), runner, 2*time.Second),
		logger:     logger,
		stdout:     os.Stdout,
		ppid:       os.Getppid(),
		pid:        os.Getpid(),
		insideTmux: os.Getenv("TMUX") != "",
	}
	return h.run(context.Background(), os.Stdin)
}

func envDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envSeconds(name string, fallback time.Duration) time.Duration {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func printUsage() {
	fmt.Fprint(os.Stderr, `island-hook - Claude Code hook handler for Claude Island

USAGE
    island-hook [flags] < event.json

FLAGS
    --socket <path>                 Observer socket (default: /tmp/claude-island.sock)
    --bus <addr>                    NATS address (default: localhost:4222)
    --permission-timeout <duration> Decision wait (default: 5m0s)
    --debug                         Log transport diagnostics to stderr

Claude Code invokes this binary for each configured hook event, with
the event JSON on stdin. Register it with "island-bridge install".
`)
}
