// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/claude-island/island/lib/clock"
	"github.com/claude-island/island/lib/config"
	"github.com/claude-island/island/lib/execx"
	"github.com/claude-island/island/lib/hookevent"
	"github.com/claude-island/island/lib/natswire"
	"github.com/claude-island/island/lib/netutil"
	"github.com/claude-island/island/lib/sshconfig"
	"github.com/claude-island/island/lib/tmux"
	"github.com/claude-island/island/lib/transcript"
	"github.com/claude-island/island/proxypane"
)

// Subscription ids for the two bus subjects. Fixed because the daemon
// never subscribes to anything else on this connection.
const (
	sidState      = 1
	sidPermission = 2
)

// askReply is the permission reply published when no decision could be
// obtained. The agent falls back to its own permission prompt.
var askReply = []byte(`{"decision":"ask"}`)

// Bridge is the relay daemon. Populate Config (and optionally Logger,
// Clock, and Runner for tests) and call Run.
type Bridge struct {
	// Config carries socket paths, bus subjects, and timeouts. Required.
	Config *config.Config

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Clock drives the pane sweep interval and reconnect backoff. If
	// nil, the real clock is used.
	Clock clock.Clock

	// Runner executes tmux commands. If nil, commands run on the host.
	Runner execx.Runner

	writer      *transcript.Writer
	panes       *proxypane.Manager
	permissions sync.WaitGroup
}

// logger returns the configured logger or the default.
func (b *Bridge) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Bridge) clock() clock.Clock {
	if b.Clock != nil {
		return b.Clock
	}
	return clock.Real()
}

func (b *Bridge) runner() execx.Runner {
	if b.Runner != nil {
		return b.Runner
	}
	return execx.System{}
}

// Run starts the daemon and blocks until ctx is cancelled. The bus
// being down is not an error: Run keeps retrying with capped backoff,
// and a dropped connection goes back through the same path. The only
// error Run returns is a nil Config.
func (b *Bridge) Run(ctx context.Context) error {
	if b.Config == nil {
		return errors.New("bridge: Config is required")
	}
	cfg := b.Config
	log := b.logger()

	aliases, err := sshconfig.Load(cfg.SSHConfigPath)
	if err != nil {
		log.Warn("ssh config unavailable, remote hosts will not resolve",
			"path", cfg.SSHConfigPath, "error", err)
		aliases = sshconfig.NewMap()
	} else if aliases.Len() > 0 {
		log.Info("ssh host aliases loaded", "path", cfg.SSHConfigPath, "count", aliases.Len())
	}

	server := tmux.NewServer(tmux.ResolveBin(cfg.TmuxBin), b.runner(), cfg.CommandTimeout.Std())

	// The relay running inside a proxy pane needs the user's ssh agent.
	// tmux's global environment is the one place that reliably has the
	// socket path when the daemon itself was started outside a session.
	authSock, ok := server.ShowEnvironment(ctx, "SSH_AUTH_SOCK")
	if ok {
		log.Info("ssh agent socket cached", "sock", authSock)
	}

	b.writer = transcript.NewWriter(cfg.ProjectsRoot, b.clock())
	b.panes = proxypane.NewManager(server, aliases, cfg.ProxySession,
		resolveRelayBin(cfg.RelayBin), authSock, cfg.RelaySSHTimeout.Std(), log)

	// A previous daemon may have died without teardown. Start from an
	// empty proxy session rather than adopting windows of unknown state.
	b.panes.CleanupStartup(ctx)

	sweepDone := make(chan struct{})
	go b.sweepLoop(ctx, sweepDone)

	for ctx.Err() == nil {
		conn := b.connect(ctx)
		if conn == nil {
			break
		}
		b.serve(ctx, conn)
		// Pause before reconnecting so a flapping bus (accepts the
		// dial, then drops the connection) cannot drive a tight loop.
		select {
		case <-ctx.Done():
		case <-b.clock().After(cfg.ReconnectMin.Std()):
		}
	}

	<-sweepDone
	b.panes.DestroyAll(context.Background())
	log.Info("bridge stopped")
	return nil
}

// connect dials the bus, retrying with doubling backoff between
// Config.ReconnectMin and Config.ReconnectMax. Returns nil once ctx is
// cancelled.
func (b *Bridge) connect(ctx context.Context) *natswire.Conn {
	cfg := b.Config
	delay := cfg.ReconnectMin.Std()
	for {
		conn, err := natswire.Dial(cfg.BusAddr, cfg.PublishTimeout.Std())
		if err == nil {
			b.logger().Info("connected to bus", "addr", cfg.BusAddr)
			return conn
		}
		b.logger().Warn("bus unavailable, retrying",
			"addr", cfg.BusAddr, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-b.clock().After(delay):
		}
		delay *= 2
		if ceiling := cfg.ReconnectMax.Std(); delay > ceiling {
			delay = ceiling
		}
	}
}

// sweepLoop periodically prunes proxy panes whose underlying tmux
// window has died (user closed it, relay exited). Runs until ctx is
// cancelled.
func (b *Bridge) sweepLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := b.clock().NewTicker(b.Config.SweepInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.panes.Sweep(ctx)
		}
	}
}

// serve owns one bus connection: subscribe to both subjects, then read
// frames until the connection drops or ctx is cancelled. State
// documents are handed to a single worker goroutine so they are
// processed in arrival order; each permission request runs in its own
// goroutine because the observer round trip can take minutes.
func (b *Bridge) serve(ctx context.Context, conn *natswire.Conn) {
	cfg := b.Config
	log := b.logger()

	if err := b.subscribe(conn); err != nil {
		log.Warn("bus subscribe failed", "error", err)
		conn.Close()
		return
	}
	log.Info("subscribed", "state", cfg.SubjectState, "permission", cfg.SubjectPermission)

	// Next has no read deadline; closing the connection is what
	// unblocks it when ctx is cancelled mid-read.
	readerDone := make(chan struct{})
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readerDone:
		}
	}()

	states := make(chan map[string]any, 64)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for doc := range states {
			b.handleState(ctx, doc)
		}
	}()

	for {
		msg, err := conn.Next()
		if err != nil {
			if ctx.Err() == nil && !netutil.IsExpectedCloseError(err) {
				log.Warn("bus read failed", "error", err)
			}
			break
		}
		switch msg.Subject {
		case cfg.SubjectState:
			var doc map[string]any
			if err := json.Unmarshal(msg.Data, &doc); err != nil {
				log.Warn("dropping malformed state document", "error", err)
				continue
			}
			states <- doc
		case cfg.SubjectPermission:
			b.permissions.Add(1)
			go func(m natswire.Msg) {
				defer b.permissions.Done()
				b.handlePermission(ctx, conn, m)
			}(*msg)
		default:
			log.Debug("ignoring message on unexpected subject", "subject", msg.Subject)
		}
	}

	close(states)
	<-workerDone
	b.permissions.Wait()
	close(readerDone)
	<-watchdogDone
	conn.Close()
}

func (b *Bridge) subscribe(conn *natswire.Conn) error {
	cfg := b.Config
	if err := conn.Subscribe(cfg.SubjectState, sidState); err != nil {
		return err
	}
	if err := conn.Subscribe(cfg.SubjectPermission, sidPermission); err != nil {
		return err
	}
	// The flush confirms the server registered both subscriptions
	// before we settle into the read loop.
	return conn.Flush(cfg.PublishTimeout.Std())
}

// handleState processes one state document: mirror it into the local
// transcript, keep the proxy pane registry in step with the session's
// remote coordinates, and forward the document to the observer app.
// Also injects transcript_path, and on pane creation rewrites pid/tty
// to the local pane's, so the observer's focus action lands on the
// local window rather than a pid on another machine.
func (b *Bridge) handleState(ctx context.Context, doc map[string]any) {
	log := b.logger()

	sessionID := stringField(doc, "session_id")
	cwd := stringField(doc, "cwd")

	path, err := b.writer.Path(cwd, sessionID)
	if err != nil {
		log.Warn("transcript path unavailable", "session", sessionID, "error", err)
	} else {
		doc["transcript_path"] = path
		wrote, err := b.writer.Write(path, transcript.Entry{
			SessionID:            sessionID,
			CWD:                  cwd,
			Event:                stringField(doc, "event"),
			UserPrompt:           stringField(doc, "user_prompt"),
			LastAssistantMessage: stringField(doc, "last_assistant_message"),
		})
		if err != nil {
			log.Warn("transcript write failed", "session", sessionID, "error", err)
		} else if wrote {
			log.Debug("transcript record appended", "session", sessionID, "path", path)
		}
	}

	if stringField(doc, "status") == string(hookevent.StatusEnded) {
		b.panes.Destroy(ctx, sessionID)
	} else if target := stringField(doc, "remote_tmux_target"); target != "" {
		pane, ok := b.panes.Ensure(ctx, sessionID, target, stringField(doc, "remote_hostname"))
		if ok {
			doc["pid"] = pane.PID
			doc["tty"] = pane.TTY
		}
	}

	if err := b.forward(doc); err != nil {
		// The observer app not running is the normal case when the
		// user is away from the machine.
		log.Debug("observer unavailable", "error", err)
	}
}

// forward delivers one document to the observer socket: a single JSON
// object on a fresh connection, then close.
func (b *Bridge) forward(doc map[string]any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding state document: %w", err)
	}
	timeout := b.Config.ForwardTimeout.Std()
	conn, err := net.DialTimeout("unix", b.Config.SocketPath, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("writing state document: %w", err)
	}
	return nil
}

// handlePermission round-trips one permission request to the observer
// and publishes the decision to the frame's reply subject. Every
// failure mode (malformed request, observer down, observer silent,
// garbage decision) replies ask so the agent prompts locally instead
// of hanging.
func (b *Bridge) handlePermission(ctx context.Context, conn *natswire.Conn, msg natswire.Msg) {
	log := b.logger()
	reply := askReply
	defer func() {
		if msg.ReplyTo == "" {
			return
		}
		if err := conn.Publish(msg.ReplyTo, reply); err != nil {
			log.Warn("permission reply failed", "subject", msg.ReplyTo, "error", err)
		}
	}()

	var doc map[string]any
	if err := json.Unmarshal(msg.Data, &doc); err != nil {
		log.Warn("dropping malformed permission request", "error", err)
		return
	}
	sessionID := stringField(doc, "session_id")
	if path, err := b.writer.Path(stringField(doc, "cwd"), sessionID); err == nil {
		doc["transcript_path"] = path
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		log.Warn("encoding permission request failed", "session", sessionID, "error", err)
		return
	}
	decision, err := b.requestDecision(ctx, payload)
	if err != nil {
		log.Warn("no decision from observer", "session", sessionID, "error", err)
		return
	}
	reply = decision
	log.Info("permission decision relayed",
		"session", sessionID, "tool", stringField(doc, "tool"))
}

// requestDecision performs the observer round trip for a permission
// request: one document out, one decision JSON back on the same
// connection. ctx cancellation closes the connection so shutdown never
// waits out the full decision timeout.
func (b *Bridge) requestDecision(ctx context.Context, payload []byte) ([]byte, error) {
	cfg := b.Config
	conn, err := net.DialTimeout("unix", cfg.SocketPath, cfg.ForwardTimeout.Std())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	watchdog := make(chan struct{})
	defer close(watchdog)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdog:
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(cfg.PermissionTimeout.Std())); err != nil {
		return nil, fmt.Errorf("set decision deadline: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("writing permission request: %w", err)
	}
	// The observer writes exactly one JSON document; decoding off the
	// connection tolerates a reply split across segments.
	var decision map[string]any
	if err := json.NewDecoder(conn).Decode(&decision); err != nil {
		return nil, fmt.Errorf("reading decision: %w", err)
	}
	// Re-encode rather than echo the raw bytes: the published reply
	// must be exactly one JSON object even if the observer's write
	// carried padding.
	encoded, err := json.Marshal(decision)
	if err != nil {
		return nil, fmt.Errorf("encoding decision: %w", err)
	}
	return encoded, nil
}

// resolveRelayBin turns the configured relay binary name into the
// command the proxy pane runs. Explicit paths pass through; a bare
// name is looked up next to our own executable first (the usual
// install layout), then on PATH. When neither finds it the bare name
// is kept and the pane reports the failure when it runs.
func resolveRelayBin(configured string) string {
	if strings.Contains(configured, "/") {
		return configured
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), configured)
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	if path, err := exec.LookPath(configured); err == nil {
		return path
	}
	return configured
}

// stringField returns doc[key] when it holds a string, else "".
func stringField(doc map[string]any, key string) string {
	value, _ := doc[key].(string)
	return value
}
