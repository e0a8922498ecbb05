// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the keystroke relay that runs inside a
// proxy pane. The observer app types into the local pane with tmux
// send-keys; each line the relay reads from that pane's stdin becomes
// one ssh round trip that replays the keystrokes into the remote
// session's tmux pane.
//
// The pane's stdout is a terminal the user looks at (and types into),
// not a log stream, so all output here is plain prints.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/claude-island/island/lib/execx"
	"github.com/claude-island/island/lib/shellquote"
)

// sshOptions keep a relay round trip from hanging on interactive
// prompts: BatchMode refuses password authentication outright, and the
// connect timeout bounds the TCP handshake separately from the overall
// round-trip bound.
var sshOptions = []string{"-o", "BatchMode=yes", "-o", "ConnectTimeout=5"}

// Relay forwards stdin lines to a remote tmux pane over ssh.
type Relay struct {
	// SessionID identifies the shadowed session; only its prefix
	// appears in the pane banner.
	SessionID string

	// SSHHost is the resolved ssh alias for the remote machine.
	SSHHost string

	// RemoteTarget is the remote tmux pane coordinate
	// (session:window.pane).
	RemoteTarget string

	// Runner executes ssh. Tests substitute a fake.
	Runner execx.Runner

	// SSHTimeout bounds one complete keystroke round trip. Zero means
	// no bound.
	SSHTimeout time.Duration

	// Output is the pane's terminal.
	Output io.Writer
}

// maxLineLength caps what one ssh round trip will carry: the line has
// to fit inside a single remote command argument, which the remote
// shell would refuse well past this anyway.
const maxLineLength = 1 << 20

// Run reads input line by line until EOF, relaying each non-empty line
// to the remote pane. A failed round trip is reported on the pane and
// the loop continues: one bad line must not take down the session's
// ability to relay the next one. Lines over maxLineLength are reported
// and skipped the same way. The returned error is a read failure on
// input; EOF is a clean stop.
func (r *Relay) Run(ctx context.Context, input io.Reader) error {
	fmt.Fprintf(r.Output, "proxy-pane [%s] ssh=%s target=%s\n",
		shortID(r.SessionID), r.SSHHost, r.RemoteTarget)
	fmt.Fprintln(r.Output, "Waiting for input...")

	reader := bufio.NewReader(input)
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		switch {
		case len(trimmed) > maxLineLength:
			fmt.Fprintf(r.Output, "[error] line too long to relay (%d bytes)\n", len(trimmed))
		case trimmed != "":
			r.send(ctx, trimmed)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading pane input: %w", err)
		}
	}
}

// send performs one keystroke round trip. The remote command injects
// the line literally (-l), then a separate Enter keypress; both the
// target and the line pass through POSIX quoting because they cross
// the remote shell that ssh wraps around the command.
func (r *Relay) send(ctx context.Context, line string) {
	target := shellquote.Quote(r.RemoteTarget)
	remote := fmt.Sprintf("tmux send-keys -t %s -l %s && tmux send-keys -t %s Enter",
		target, shellquote.Quote(line), target)

	if r.SSHTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.SSHTimeout)
		defer cancel()
	}

	args := append(append([]string{}, sshOptions...), r.SSHHost, remote)
	result, err := r.Runner.Run(ctx, "ssh", args...)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(r.Output, "[timeout] failed to relay: %s\n", truncate(line, 50))
	case err != nil:
		fmt.Fprintf(r.Output, "[error] %v\n", err)
	case result.ExitCode != 0:
		fmt.Fprintf(r.Output, "[error] ssh exit %d: %s\n",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
}

func shortID(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
