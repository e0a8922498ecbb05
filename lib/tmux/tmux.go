// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux drives a tmux server through typed commands. Only the
// small command surface the bridge and the hook need is covered, and
// everything runs through lib/execx so tests assert on exact command
// lines without a real tmux server.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/claude-island/island/lib/execx"
)

// ResolveBin returns the tmux binary to use: the configured path when
// set, else tmux from PATH, else the Homebrew install location (the
// common case when the daemon runs outside a login shell's PATH).
func ResolveBin(configured string) string {
	if configured != "" {
		return configured
	}
	if path, err := exec.LookPath("tmux"); err == nil {
		return path
	}
	return "/opt/homebrew/bin/tmux"
}

// Server issues commands to one tmux server binary.
type Server struct {
	bin     string
	runner  execx.Runner
	timeout time.Duration
}

// NewServer returns a Server driving bin through runner. timeout
// bounds each individual tmux command; zero disables the bound.
func NewServer(bin string, runner execx.Runner, timeout time.Duration) *Server {
	return &Server{bin: bin, runner: runner, timeout: timeout}
}

func (s *Server) run(ctx context.Context, args ...string) (execx.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.runner.Run(ctx, s.bin, args...)
}

// HasSession reports whether a session with the given name exists. A
// tmux server that is not running counts as no session.
func (s *Server) HasSession(ctx context.Context, session string) (bool, error) {
	result, err := s.run(ctx, "has-session", "-t", session)
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}

// NewSession creates a detached session whose first window runs
// command through the default shell.
func (s *Server) NewSession(ctx context.Context, session, window, command string) error {
	result, err := s.run(ctx, "new-session", "-d", "-s", session, "-n", window, command)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("tmux new-session: %s", strings.TrimSpace(result.Stderr))
	}
	return nil
}

// NewWindow adds a detached window running command to an existing
// session.
func (s *Server) NewWindow(ctx context.Context, session, window, command string) error {
	result, err := s.run(ctx, "new-window", "-d", "-t", session, "-n", window, command)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("tmux new-window: %s", strings.TrimSpace(result.Stderr))
	}
	return nil
}

// ListPanes lists the panes of target rendered through format, one
// line per pane. A target that does not exist yields no panes and no
// error, so callers can use an empty result as a liveness probe.
func (s *Server) ListPanes(ctx context.Context, target, format string) ([]string, error) {
	result, err := s.run(ctx, "list-panes", "-t", target, "-F", format)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, nil
	}
	var panes []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			panes = append(panes, line)
		}
	}
	return panes, nil
}

// KillWindow kills a window. A window that is already gone is not an
// error.
func (s *Server) KillWindow(ctx context.Context, target string) error {
	_, err := s.run(ctx, "kill-window", "-t", target)
	return err
}

// KillSession kills an entire session. A session that is already gone
// is not an error.
func (s *Server) KillSession(ctx context.Context, session string) error {
	_, err := s.run(ctx, "kill-session", "-t", session)
	return err
}

// ShowEnvironment reads one variable from the tmux server's global
// environment. It reports false when the server is not running, the
// variable is unset, or it is marked for removal (the "-VAR" form).
func (s *Server) ShowEnvironment(ctx context.Context, name string) (string, bool) {
	result, err := s.run(ctx, "show-environment", name)
	if err != nil || result.ExitCode != 0 {
		return "", false
	}
	line := strings.TrimSpace(result.Stdout)
	if strings.HasPrefix(line, "-") {
		return "", false
	}
	_, value, found := strings.Cut(line, "=")
	if !found {
		return "", false
	}
	return value, true
}

// DisplayMessage expands a tmux format string in the calling client's
// pane context and returns the result. Only meaningful inside a tmux
// client (the hook checks $TMUX first).
func (s *Server) DisplayMessage(ctx context.Context, format string) (string, error) {
	result, err := s.run(ctx, "display-message", "-p", format)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("tmux display-message: %s", strings.TrimSpace(result.Stderr))
	}
	return strings.TrimSpace(result.Stdout), nil
}
