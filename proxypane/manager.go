// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxypane maintains local tmux windows that shadow remote
// Claude Code panes. Each remote session gets one window in a
// well-known proxy session, running the keystroke relay over ssh; the
// observer app then sees a local tty and pid it can probe and type
// into, exactly as it would for a local session.
package proxypane

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/claude-island/island/lib/shellquote"
	"github.com/claude-island/island/lib/tmux"
)

// Resolver maps a remote machine's hostname to an ssh alias the local
// ssh client can reach it by.
type Resolver interface {
	Resolve(remoteHostname string) (string, bool)
}

// Pane describes one live proxy window.
type Pane struct {
	SessionID    string
	RemoteTarget string
	SSHHost      string
	Window       string
	TTY          string
	PID          int
}

// Manager owns the proxy session and its per-Claude-session windows.
// All mutations run under one mutex: among other things this keeps the
// "exactly one destroy, one create" shape of a target change, with no
// concurrent creates for the same session.
type Manager struct {
	tmux         *tmux.Server
	resolver     Resolver
	session      string
	relayBin     string
	authSock     string
	relayTimeout time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	panes map[string]*Pane
}

// NewManager returns a Manager driving server. session names the tmux
// session that holds proxy windows; relayBin is the keystroke relay
// launched in each; authSock, when non-empty, is injected as
// SSH_AUTH_SOCK so the relay's ssh finds the user's agent.
// relayTimeout, when positive, is passed to the relay as its per-line
// ssh bound.
func NewManager(server *tmux.Server, resolver Resolver, session, relayBin, authSock string, relayTimeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		tmux:         server,
		resolver:     resolver,
		session:      session,
		relayBin:     relayBin,
		authSock:     authSock,
		relayTimeout: relayTimeout,
		logger:       logger,
		panes:        make(map[string]*Pane),
	}
}

// Ensure makes a live proxy pane exist for the session and returns it.
// A session already shadowed at the same remote target keeps its pane;
// a changed target or a dead window is torn down and recreated. No
// resolvable ssh alias (or no remote target at all) means no pane,
// which is not an error: the event still flows, the observer just gets
// nothing local to type into.
func (m *Manager) Ensure(ctx context.Context, sessionID, remoteTarget, remoteHostname string) (Pane, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if remoteTarget == "" {
		return Pane{}, false
	}
	if sessionID == "" {
		sessionID = "unknown"
	}

	alias, ok := m.resolver.Resolve(remoteHostname)
	if !ok {
		m.logger.Debug("no ssh alias for remote host",
			"session_id", sessionID, "remote_hostname", remoteHostname)
		return Pane{}, false
	}

	if pane, ok := m.panes[sessionID]; ok {
		if pane.RemoteTarget == remoteTarget && m.paneAlive(ctx, pane) {
			return *pane, true
		}
		m.destroyLocked(ctx, sessionID)
	}

	pane, err := m.createLocked(ctx, sessionID, alias, remoteTarget)
	if err != nil {
		m.logger.Warn("proxy pane creation failed",
			"session_id", sessionID, "ssh_host", alias, "error", err)
		return Pane{}, false
	}
	m.panes[sessionID] = pane
	m.logger.Info("proxy pane created",
		"session_id", sessionID, "window", pane.Window,
		"ssh_host", alias, "remote_target", remoteTarget,
		"tty", pane.TTY, "pid", pane.PID)
	return *pane, true
}

// Destroy tears down the session's proxy pane, if any.
func (m *Manager) Destroy(ctx context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyLocked(ctx, sessionID)
}

// DestroyAll tears down the entire proxy session and forgets every
// pane.
func (m *Manager) DestroyAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.panes = make(map[string]*Pane)
	if err := m.tmux.KillSession(ctx, m.session); err != nil {
		m.logger.Warn("killing proxy session", "session", m.session, "error", err)
	}
	m.logger.Info("destroyed all proxy panes", "session", m.session)
}

// CleanupStartup force-kills any proxy session left over from a
// previous daemon run.
func (m *Manager) CleanupStartup(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.panes = make(map[string]*Pane)
	if err := m.tmux.KillSession(ctx, m.session); err != nil {
		m.logger.Debug("startup proxy cleanup", "session", m.session, "error", err)
	}
}

// Sweep prunes registry entries whose windows have died, killing the
// window for anything it drops so a half-dead window cannot linger.
// It returns the number of panes dropped.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for sessionID, pane := range m.panes {
		if m.paneAlive(ctx, pane) {
			continue
		}
		delete(m.panes, sessionID)
		if err := m.tmux.KillWindow(ctx, m.session+":"+pane.Window); err != nil {
			m.logger.Warn("killing swept proxy window", "window", pane.Window, "error", err)
		}
		m.logger.Info("pruned dead proxy pane", "session_id", sessionID, "window", pane.Window)
		dropped++
	}
	return dropped
}

// Len returns the number of registered panes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.panes)
}

func (m *Manager) destroyLocked(ctx context.Context, sessionID string) {
	pane, ok := m.panes[sessionID]
	if !ok {
		return
	}
	delete(m.panes, sessionID)
	if err := m.tmux.KillWindow(ctx, m.session+":"+pane.Window); err != nil {
		m.logger.Warn("killing proxy window", "window", pane.Window, "error", err)
	}
	m.logger.Info("proxy pane destroyed", "session_id", sessionID, "window", pane.Window)
}

// paneAlive probes the window through list-panes. Non-empty output is
// the whole test; the pane pid is deliberately not re-verified, the
// window either renders panes or it does not.
func (m *Manager) paneAlive(ctx context.Context, pane *Pane) bool {
	panes, err := m.tmux.ListPanes(ctx, m.session+":"+pane.Window, "#{pane_pid}")
	return err == nil && len(panes) > 0
}

func (m *Manager) createLocked(ctx context.Context, sessionID, alias, remoteTarget string) (*Pane, error) {
	window := windowName(sessionID)

	argv := []string{m.relayBin}
	if m.relayTimeout > 0 {
		argv = append(argv, "--ssh-timeout", m.relayTimeout.String())
	}
	argv = append(argv, sessionID, alias, remoteTarget)
	command := shellquote.Join(argv)
	if m.authSock != "" {
		command = "SSH_AUTH_SOCK=" + shellquote.Quote(m.authSock) + " " + command
	}

	exists, err := m.tmux.HasSession(ctx, m.session)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := m.tmux.NewSession(ctx, m.session, window, command); err != nil {
			return nil, err
		}
	} else {
		if err := m.tmux.NewWindow(ctx, m.session, window, command); err != nil {
			return nil, err
		}
	}

	target := m.session + ":" + window
	panes, err := m.tmux.ListPanes(ctx, target, "#{pane_tty} #{pane_pid}")
	if err != nil {
		return nil, err
	}
	if len(panes) == 0 {
		return nil, fmt.Errorf("window %s has no panes", target)
	}
	fields := strings.Fields(panes[0])
	if len(fields) != 2 {
		return nil, fmt.Errorf("unexpected list-panes output %q", panes[0])
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("parsing pane pid %q: %w", fields[1], err)
	}

	return &Pane{
		SessionID:    sessionID,
		RemoteTarget: remoteTarget,
		SSHHost:      alias,
		Window:       window,
		TTY:          fields[0],
		PID:          pid,
	}, nil
}

// windowName is the session id truncated to tmux-friendly length.
func windowName(sessionID string) string {
	if len(sessionID) > 12 {
		return sessionID[:12]
	}
	return sessionID
}
