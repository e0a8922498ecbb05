// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/claude-island/island/lib/execx"
	"github.com/claude-island/island/lib/route"
	"github.com/claude-island/island/lib/tmux"
)

// newTestHook builds a hook whose router points at a socket path under
// the test's temp dir (nothing listening unless the test starts an
// observer) and an unreachable bus.
func newTestHook(t *testing.T, runner *execx.Fake, stdout io.Writer) *hook {
	t.Helper()
	return &hook{
		router: &route.Router{
			SocketPath:        filepath.Join(t.TempDir(), "island.sock"),
			BusAddr:           "127.0.0.1:1",
			SubjectState:      "claude.island.state",
			SubjectPermission: "claude.island.permission",
			PublishTimeout:    2 * time.Second,
			DecisionTimeout:   2 * time.Second,
			Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		runner: runner,
		tmux:   tmux.NewServer("tmux", runner, 2*time.Second),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		stdout: stdout,
		ppid:   4242,
		pid:    4243,
	}
}

// startObserver listens on socketPath and runs handler on the first
// connection.
func startObserver(t *testing.T, socketPath string, handler func(conn net.Conn)) {
	t.Helper()
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on %s: %v", socketPath, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()

	t.Cleanup(func() {
		listener.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("observer handler did not finish")
		}
	})
}

// psRunner answers ps tty probes: parent reports parentTTY, the hook's
// own pid reports ownTTY. Everything else succeeds with no output.
func psRunner(parentTTY, ownTTY string) *execx.Fake {
	return &execx.Fake{
		Respond: func(name string, args ...string) (execx.Result, error) {
			if name == "ps" && len(args) >= 2 {
				switch args[1] {
				case "4242":
					return execx.Result{Stdout: parentTTY + "\n"}, nil
				case "4243":
					return execx.Result{Stdout: ownTTY + "\n"}, nil
				}
			}
			return execx.Result{}, nil
		},
	}
}

func TestRunRejectsUnparseableInput(t *testing.T) {
	var stdout bytes.Buffer
	h := newTestHook(t, &execx.Fake{}, &stdout)

	if code := h.run(context.Background(), strings.NewReader("not json")); code != 1 {
		t.Errorf("exit code %d, want 1", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("unexpected stdout: %s", stdout.String())
	}
}

func TestRunSuppressesPermissionPromptNotification(t *testing.T) {
	var stdout bytes.Buffer
	runner := &execx.Fake{}
	h := newTestHook(t, runner, &stdout)

	input := `{"session_id":"s1","hook_event_name":"Notification","notification_type":"permission_prompt"}`
	if code := h.run(context.Background(), strings.NewReader(input)); code != 0 {
		t.Errorf("exit code %d, want 0", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("unexpected stdout: %s", stdout.String())
	}
	// Suppression short-circuits before any process probing or
	// transport work.
	if calls := runner.Calls(); len(calls) != 0 {
		t.Errorf("unexpected commands: %v", calls)
	}
}

func TestRunDeliversStateWithProcessIdentity(t *testing.T) {
	var stdout bytes.Buffer
	h := newTestHook(t, psRunner("ttys003", "??"), &stdout)

	received := make(chan []byte, 1)
	startObserver(t, h.router.SocketPath, func(conn net.Conn) {
		data, _ := io.ReadAll(conn)
		received <- data
	})

	input := `{"session_id":"s1","cwd":"/home/dev/proj","hook_event_name":"UserPromptSubmit","prompt":"fix the bug"}`
	if code := h.run(context.Background(), strings.NewReader(input)); code != 0 {
		t.Fatalf("exit code %d, want 0", code)
	}

	var doc map[string]any
	select {
	case data := <-received:
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("parsing delivered document: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("observer received nothing")
	}

	if doc["status"] != "processing" {
		t.Errorf("status %v, want processing", doc["status"])
	}
	if doc["user_prompt"] != "fix the bug" {
		t.Errorf("user_prompt %v", doc["user_prompt"])
	}
	if doc["pid"] != float64(4242) {
		t.Errorf("pid %v, want the parent's 4242", doc["pid"])
	}
	if doc["tty"] != "/dev/ttys003" {
		t.Errorf("tty %v, want /dev/ttys003", doc["tty"])
	}
	if stdout.Len() != 0 {
		t.Errorf("state events must not write stdout: %s", stdout.String())
	}
}

func TestLookupTTYFallsBackToOwnProcess(t *testing.T) {
	h := newTestHook(t, psRunner("??", "ttys009"), io.Discard)

	if got := h.lookupTTY(context.Background()); got != "/dev/ttys009" {
		t.Errorf("lookupTTY = %q, want /dev/ttys009", got)
	}
}

func TestRunAttachesRemoteCoordinates(t *testing.T) {
	runner := &execx.Fake{
		Respond: func(name string, args ...string) (execx.Result, error) {
			switch name {
			case "tmux":
				return execx.Result{Stdout: "main:2.1\n"}, nil
			case "hostname":
				return execx.Result{Stdout: "build.corp.example.com\n"}, nil
			case "ps":
				return execx.Result{Stdout: "ttys001\n"}, nil
			}
			return execx.Result{}, nil
		},
	}
	h := newTestHook(t, runner, io.Discard)
	h.router.Remote = true
	h.insideTmux = true

	received := make(chan []byte, 1)
	startObserver(t, h.router.SocketPath, func(conn net.Conn) {
		data, _ := io.ReadAll(conn)
		received <- data
	})

	input := `{"session_id":"s1","hook_event_name":"Stop","last_assistant_message":"done"}`
	if code := h.run(context.Background(), strings.NewReader(input)); code != 0 {
		t.Fatalf("exit code %d, want 0", code)
	}

	var doc map[string]any
	select {
	case data := <-received:
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("parsing delivered document: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("observer received nothing")
	}
	if doc["remote_tmux_target"] != "main:2.1" {
		t.Errorf("remote_tmux_target %v", doc["remote_tmux_target"])
	}
	if doc["remote_hostname"] != "build.corp.example.com" {
		t.Errorf("remote_hostname %v", doc["remote_hostname"])
	}
}

func TestPermissionAllowEnvelope(t *testing.T) {
	var stdout bytes.Buffer
	h := newTestHook(t, psRunner("ttys001", "??"), &stdout)

	startObserver(t, h.router.SocketPath, func(conn net.Conn) {
		buffer := make([]byte, 4096)
		conn.Read(buffer)
		conn.Write([]byte(`{"decision":"allow"}`))
	})

	input := `{"session_id":"s1","hook_event_name":"PermissionRequest","tool_name":"Bash","tool_input":{"command":"ls"}}`
	if code := h.run(context.Background(), strings.NewReader(input)); code != 0 {
		t.Fatalf("exit code %d, want 0", code)
	}

	want := `{"hookSpecificOutput":{"hookEventName":"PermissionRequest","decision":{"behavior":"allow"}}}` + "\n"
	if stdout.String() != want {
		t.Errorf("stdout:\n got %q\nwant %q", stdout.String(), want)
	}
}

func TestPermissionDenyUsesDefaultMessage(t *testing.T) {
	var stdout bytes.Buffer
	h := newTestHook(t, psRunner("ttys001", "??"), &stdout)

	startObserver(t, h.router.SocketPath, func(conn net.Conn) {
		buffer := make([]byte, 4096)
		conn.Read(buffer)
		conn.Write([]byte(`{"decision":"deny"}`))
	})

	input := `{"session_id":"s1","hook_event_name":"PermissionRequest","tool_name":"Bash"}`
	if code := h.run(context.Background(), strings.NewReader(input)); code != 0 {
		t.Fatalf("exit code %d, want 0", code)
	}

	var envelope decisionEnvelope
	if err := json.Unmarshal(stdout.Bytes(), &envelope); err != nil {
		t.Fatalf("parsing envelope: %v", err)
	}
	if envelope.HookSpecificOutput.Decision.Behavior != "deny" {
		t.Errorf("behavior %q, want deny", envelope.HookSpecificOutput.Decision.Behavior)
	}
	if envelope.HookSpecificOutput.Decision.Message != defaultDenyMessage {
		t.Errorf("message %q, want %q", envelope.HookSpecificOutput.Decision.Message, defaultDenyMessage)
	}
}

func TestPermissionWithoutObserverEmitsNothing(t *testing.T) {
	var stdout bytes.Buffer
	h := newTestHook(t, psRunner("ttys001", "??"), &stdout)

	input := `{"session_id":"s1","hook_event_name":"PermissionRequest","tool_name":"Bash"}`
	if code := h.run(context.Background(), strings.NewReader(input)); code != 0 {
		t.Fatalf("exit code %d, want 0", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("ask must produce no output, got: %s", stdout.String())
	}
}

func TestEnvSeconds(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset", "", 300 * time.Second},
		{"valid", "60", 60 * time.Second},
		{"garbage", "soon", 300 * time.Second},
		{"negative", "-5", 300 * time.Second},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("ISLAND_PERMISSION_TIMEOUT", test.value)
			if got := envSeconds("ISLAND_PERMISSION_TIMEOUT", 300*time.Second); got != test.want {
				t.Errorf("envSeconds(%q) = %v, want %v", test.value, got, test.want)
			}
		})
	}
}
