// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/claude-island/island/lib/execx"
	"github.com/claude-island/island/lib/hookevent"
	"github.com/claude-island/island/lib/route"
	"github.com/claude-island/island/lib/tmux"
)

// decisionEnvelope is the hook output contract for permission events:
// printing it with an allow or deny behavior and exiting zero tells
// Claude Code the decision; exiting zero with no output means "no
// opinion, show the default permission UI".
type decisionEnvelope struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

type hookSpecificOutput struct {
	HookEventName string           `json:"hookEventName"`
	Decision      behaviorDecision `json:"decision"`
}

type behaviorDecision struct {
	Behavior string `json:"behavior"`
	Message  string `json:"message,omitempty"`
}

// defaultDenyMessage is shown by Claude Code when the observer denies
// without giving a reason.
const defaultDenyMessage = "Denied by user via ClaudeIsland"

// hook is one hook invocation: Claude Code spawns the binary, writes
// one event JSON to stdin, and reads an optional decision envelope
// from stdout.
type hook struct {
	router *route.Router
	runner execx.Runner
	tmux   *tmux.Server
	logger *slog.Logger

	// stdout receives the decision envelope. Nothing else may write
	// to it: Claude Code parses the whole stream.
	stdout io.Writer

	// ppid is the Claude Code process (our parent).
	ppid int

	// pid is this hook process, used as the tty probe fallback when
	// the parent has detached from its terminal.
	pid int

	// insideTmux mirrors $TMUX: remote pane coordinates are only
	// discoverable from within a tmux client.
	insideTmux bool
}

// run handles one event end to end. The returned exit code is the
// process's: 1 only for unparseable stdin, 0 for everything else
// including every transport failure — a flaky observer must never
// break the agent.
func (h *hook) run(ctx context.Context, input io.Reader) int {
	event, err := hookevent.Decode(input)
	if err != nil {
		h.logger.Debug("unparseable hook event", "error", err)
		return 1
	}

	class := hookevent.Classify(event)
	if class.Status == hookevent.StatusSkip {
		return 0
	}

	state, err := hookevent.NewState(event, class, h.ppid, h.lookupTTY(ctx))
	if err != nil {
		h.logger.Debug("building state document", "error", err)
		return 0
	}

	if class.Status == hookevent.StatusWaitingForApproval {
		h.decide(state)
		return 0
	}

	// Remote sessions inside tmux advertise their pane coordinates so
	// the bridge can shadow them with a local proxy pane.
	if h.router.Remote && h.insideTmux {
		state.RemoteTmuxTarget = h.remoteTarget(ctx)
		state.RemoteHostname = h.remoteHostname(ctx)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		h.logger.Debug("encoding state document", "error", err)
		return 0
	}
	if err := h.router.Deliver(payload); err != nil {
		h.logger.Debug("state delivery failed", "error", err)
	}
	return 0
}

// decide performs the permission round trip and emits the decision
// envelope. An ask decision (including every failure mode behind it)
// emits nothing: Claude Code falls back to its own prompt.
func (h *hook) decide(state *hookevent.State) {
	payload, err := json.Marshal(state)
	if err != nil {
		h.logger.Debug("encoding permission request", "error", err)
		return
	}
	decision := h.router.RequestDecision(payload)

	var behavior behaviorDecision
	switch decision.Decision {
	case route.DecisionAllow:
		behavior = behaviorDecision{Behavior: "allow"}
	case route.DecisionDeny:
		message := decision.Reason
		if message == "" {
			message = defaultDenyMessage
		}
		behavior = behaviorDecision{Behavior: "deny", Message: message}
	default:
		return
	}

	envelope := decisionEnvelope{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName: hookevent.EventPermissionRequest,
			Decision:      behavior,
		},
	}
	output, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Debug("encoding decision envelope", "error", err)
		return
	}
	fmt.Fprintln(h.stdout, string(output))
}

// lookupTTY finds the controlling terminal of the Claude Code process,
// falling back to this hook's own when the parent reports none (hooks
// inherit the parent's terminal, so the fallback answers the same
// question).
func (h *hook) lookupTTY(ctx context.Context) string {
	if tty := h.ttyOf(ctx, h.ppid); tty != "" {
		return tty
	}
	return h.ttyOf(ctx, h.pid)
}

// ttyOf asks ps for a process's terminal. ps prints a bare device name
// ("ttys001"), or "??" / "-" for processes without one.
func (h *hook) ttyOf(ctx context.Context, pid int) string {
	result, err := h.runner.Run(ctx, "ps", "-p", fmt.Sprint(pid), "-o", "tty=")
	if err != nil || result.ExitCode != 0 {
		return ""
	}
	tty := strings.TrimSpace(result.Stdout)
	if tty == "" || tty == "??" || tty == "-" {
		return ""
	}
	if !strings.HasPrefix(tty, "/dev/") {
		tty = "/dev/" + tty
	}
	return tty
}

// remoteTarget reports the tmux pane this hook runs in, as a
// session:window.pane coordinate on the remote machine.
func (h *hook) remoteTarget(ctx context.Context) string {
	target, err := h.tmux.DisplayMessage(ctx,
		"#{session_name}:#{window_index}.#{pane_index}")
	if err != nil {
		return ""
	}
	return target
}

// remoteHostname reports this machine's FQDN, which the bridge matches
// against its ssh config. The hostname binary's -f form is preferred;
// the kernel hostname is the fallback.
func (h *hook) remoteHostname(ctx context.Context) string {
	result, err := h.runner.Run(ctx, "hostname", "-f")
	if err == nil && result.ExitCode == 0 {
		if name := strings.TrimSpace(result.Stdout); name != "" {
			return name
		}
	}
	result, err = h.runner.Run(ctx, "hostname")
	if err != nil || result.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(result.Stdout)
}
