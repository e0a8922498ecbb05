// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// island-bridge is the home-machine daemon that relays remote Claude
// Code sessions to the Claude Island observer app. It subscribes to
// the NATS subjects remote hooks publish on, mirrors conversations
// into local transcript files, maintains proxy tmux panes for remote
// sessions, and round-trips permission requests to the observer.
//
// Subcommands:
//
//	start     run the daemon in the foreground
//	stop      signal a running daemon to shut down
//	status    report whether a daemon is running
//	install   register island-hook in ~/.claude/settings.json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/claude-island/island/bridge"
	"github.com/claude-island/island/lib/config"
	"github.com/claude-island/island/lib/liveness"
	"github.com/claude-island/island/lib/logging"
	"github.com/claude-island/island/lib/pidfile"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "island-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}
	switch args[0] {
	case "start":
		return runStart(args[1:])
	case "stop":
		return runStop(args[1:])
	case "status":
		return runStatus(args[1:])
	case "install":
		return runInstall(args[1:])
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `island-bridge - Claude Island remote session bridge

USAGE
    island-bridge <subcommand> [flags]

SUBCOMMANDS
    start     Run the daemon in the foreground
    stop      Signal a running daemon to shut down
    status    Report whether a daemon is running
    install   Register island-hook in Claude Code's settings.json

FLAGS (start)
    --config <path>       Config file (default: ~/.config/claude-island/bridge.yaml)
    --socket <path>       Observer socket, overrides config
    --bus <addr>          NATS address, overrides config
    --log-level <level>   debug, info, warn, or error (default: info)

FLAGS (stop, status)
    --config <path>       Config file naming the pid file

FLAGS (install)
    --settings <path>     Claude Code settings file (default: ~/.claude/settings.json)
    --hook-bin <path>     Hook binary to register (default: island-hook next to this binary)

EXAMPLES
    # Run the daemon with defaults
    island-bridge start

    # Register the hook for all lifecycle events
    island-bridge install
`)
}

// loadConfig loads the effective configuration: an explicit --config
// path, or the default file layered over defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

func runStart(args []string) error {
	flagSet := pflag.NewFlagSet("island-bridge start", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "config file path")
	socketPath := flagSet.String("socket", "", "observer socket, overrides config")
	busAddr := flagSet.String("bus", "", "NATS address, overrides config")
	logLevel := flagSet.String("log-level", "info", "debug, info, warn, or error")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *busAddr != "" {
		cfg.BusAddr = *busAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", *logLevel)
	}
	logger := logging.New(level)

	// Failing to claim the pid file is the one fatal startup
	// condition: two daemons would fight over proxy panes and double
	// every forwarded event.
	if err := pidfile.Acquire(cfg.PidFile); err != nil {
		return err
	}
	defer pidfile.Remove(cfg.PidFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("island-bridge starting",
		"pid", os.Getpid(), "bus", cfg.BusAddr, "socket", cfg.SocketPath)
	b := &bridge.Bridge{Config: cfg, Logger: logger}
	return b.Run(ctx)
}

func runStop(args []string) error {
	flagSet := pflag.NewFlagSet("island-bridge stop", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "config file path")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	pid, err := pidfile.Read(cfg.PidFile)
	if err != nil {
		return fmt.Errorf("no running daemon: %w", err)
	}
	if !liveness.ProcessExists(pid) {
		pidfile.Remove(cfg.PidFile)
		return fmt.Errorf("no running daemon: stale pid file removed (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling pid %d: %w", pid, err)
	}
	fmt.Printf("sent SIGTERM to island-bridge (pid %d)\n", pid)
	return nil
}

func runStatus(args []string) error {
	flagSet := pflag.NewFlagSet("island-bridge status", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "config file path")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	pid, err := pidfile.Read(cfg.PidFile)
	if err == nil && liveness.ProcessExists(pid) {
		fmt.Printf("island-bridge running (pid %d)\n", pid)
		return nil
	}
	fmt.Println("island-bridge not running")
	return nil
}

func runInstall(args []string) error {
	flagSet := pflag.NewFlagSet("island-bridge install", pflag.ContinueOnError)
	settingsPath := flagSet.String("settings", defaultSettingsPath(),
		"Claude Code settings file")
	hookBin := flagSet.String("hook-bin", "", "hook binary to register")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	bin := *hookBin
	if bin == "" {
		bin = defaultHookBin()
	}
	if err := installHooks(*settingsPath, bin); err != nil {
		return err
	}
	fmt.Printf("registered %s for %d hook events in %s\n",
		bin, len(hookEventNames), *settingsPath)
	return nil
}

func defaultSettingsPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".claude", "settings.json")
}

// defaultHookBin prefers the island-hook binary installed next to this
// one, falling back to a bare name resolved from PATH at hook time.
func defaultHookBin() string {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "island-hook")
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	return "island-hook"
}
