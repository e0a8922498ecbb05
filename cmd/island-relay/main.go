// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// island-relay is the keystroke relay launched inside each proxy pane.
// The bridge daemon spawns it with the session id, the resolved ssh
// alias, and the remote tmux pane coordinate; from then on every line
// typed into (or sent to) the local pane is replayed into the remote
// pane over ssh.
//
// This binary is not invoked directly by users.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/claude-island/island/lib/execx"
	"github.com/claude-island/island/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "island-relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("island-relay", pflag.ContinueOnError)
	sshTimeout := flagSet.Duration("ssh-timeout", 30*time.Second,
		"bound on one keystroke round trip through ssh")
	flagSet.Usage = printUsage

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	args := flagSet.Args()
	if len(args) != 3 {
		printUsage()
		return fmt.Errorf("expected <session-id> <ssh-host> <remote-target>, got %d arguments", len(args))
	}

	r := &relay.Relay{
		SessionID:    args[0],
		SSHHost:      args[1],
		RemoteTarget: args[2],
		Runner:       execx.System{},
		SSHTimeout:   *sshTimeout,
		Output:       os.Stdout,
	}
	return r.Run(context.Background(), os.Stdin)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `island-relay - proxy pane keystroke relay

USAGE
    island-relay [flags] <session-id> <ssh-host> <remote-target>

FLAGS
    --ssh-timeout <duration>    Bound on one keystroke round trip (default: 30s)

This binary is launched by island-bridge inside each proxy tmux pane.
It reads lines from the pane and replays them into the remote session's
tmux pane via ssh. It is not intended for direct use.
`)
}
