// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package route picks the transport for hook events: the observer's
// local Unix socket when it is listening, the bus when the hook runs
// inside an SSH session and the socket is not there. Delivery is
// best-effort throughout; a hook must never fail Claude Code over a
// missing observer.
package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/claude-island/island/lib/natswire"
)

// Decision verbs the observer replies with. Ask means "no opinion":
// Claude Code falls back to its own permission prompt.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionAsk   = "ask"
)

// Decision is the observer's answer to a permission request.
type Decision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

var askDecision = Decision{Decision: DecisionAsk}

// IsRemoteSession reports whether the current process runs inside an
// SSH session, which is when bus fallback applies.
func IsRemoteSession() bool {
	return os.Getenv("SSH_CLIENT") != "" ||
		os.Getenv("SSH_TTY") != "" ||
		os.Getenv("SSH_CONNECTION") != ""
}

// Router delivers state documents and permission requests.
type Router struct {
	// SocketPath is the observer's Unix socket.
	SocketPath string

	// BusAddr, SubjectState, and SubjectPermission configure the bus
	// used when the session is remote.
	BusAddr           string
	SubjectState      string
	SubjectPermission string

	// Remote marks an SSH session: state falls back to the bus when
	// the socket is unavailable, and decisions go through bus
	// request/reply instead of the socket.
	Remote bool

	// PublishTimeout bounds dials and fire-and-forget sends.
	PublishTimeout time.Duration

	// DecisionTimeout bounds one permission round trip.
	DecisionTimeout time.Duration

	// Logger records transport diagnostics. Nil falls back to the
	// default logger.
	Logger *slog.Logger
}

func (r *Router) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Deliver sends one state document: a single connection carrying a
// single JSON document, closed without waiting for a reply. When the
// observer is not listening and the session is remote, the document
// goes to the bus instead. The returned error is for diagnostics only;
// callers proceed regardless.
func (r *Router) Deliver(payload []byte) error {
	socketErr := r.sendLocal(payload)
	if socketErr == nil {
		return nil
	}
	if !r.Remote {
		return fmt.Errorf("observer socket: %w", socketErr)
	}

	r.logger().Debug("observer socket unavailable, publishing to bus", "error", socketErr)
	if busErr := r.publishBus(r.SubjectState, payload); busErr != nil {
		return errors.Join(
			fmt.Errorf("observer socket: %w", socketErr),
			fmt.Errorf("bus publish: %w", busErr),
		)
	}
	return nil
}

// RequestDecision delivers a waiting_for_approval document and waits
// for the observer's decision. Remote sessions use bus request/reply;
// local ones hold the socket open for exactly one JSON reply. Every
// failure mode (no transport, timeout, malformed reply) resolves to
// ask rather than an error.
func (r *Router) RequestDecision(payload []byte) Decision {
	if r.Remote {
		return r.requestBus(payload)
	}
	return r.requestLocal(payload)
}

func (r *Router) sendLocal(payload []byte) error {
	conn, err := net.DialTimeout("unix", r.SocketPath, r.PublishTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(r.PublishTimeout))
	_, err = conn.Write(payload)
	return err
}

func (r *Router) publishBus(subject string, payload []byte) error {
	conn, err := natswire.Dial(r.BusAddr, r.PublishTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Publish(subject, payload); err != nil {
		return err
	}
	// The flush is the delivery guarantee: without the PONG the server
	// may never have seen the publish.
	return conn.Flush(r.PublishTimeout)
}

func (r *Router) requestBus(payload []byte) Decision {
	conn, err := natswire.Dial(r.BusAddr, r.PublishTimeout)
	if err != nil {
		r.logger().Debug("bus unavailable for permission request", "error", err)
		return askDecision
	}
	defer conn.Close()

	reply, err := conn.Request(r.SubjectPermission, payload, r.DecisionTimeout)
	if err != nil {
		r.logger().Debug("permission request failed", "error", err)
		return askDecision
	}
	return parseDecision(reply)
}

func (r *Router) requestLocal(payload []byte) Decision {
	conn, err := net.DialTimeout("unix", r.SocketPath, r.PublishTimeout)
	if err != nil {
		r.logger().Debug("observer socket unavailable for permission request", "error", err)
		return askDecision
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(r.DecisionTimeout))
	if _, err := conn.Write(payload); err != nil {
		r.logger().Debug("permission request write failed", "error", err)
		return askDecision
	}

	// The observer writes exactly one JSON document; decoding off the
	// connection tolerates a reply split across segments.
	var decision Decision
	if err := json.NewDecoder(conn).Decode(&decision); err != nil {
		r.logger().Debug("no permission reply from observer", "error", err)
		return askDecision
	}
	if decision.Decision == "" {
		decision.Decision = DecisionAsk
	}
	return decision
}

func parseDecision(reply []byte) Decision {
	var decision Decision
	if err := json.Unmarshal(reply, &decision); err != nil {
		return askDecision
	}
	if decision.Decision == "" {
		decision.Decision = DecisionAsk
	}
	return decision
}
