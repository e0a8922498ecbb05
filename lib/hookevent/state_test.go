// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package hookevent

import (
	"encoding/json"
	"strings"
	"testing"
)

func mustMarshalState(t *testing.T, state *State) string {
	t.Helper()
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshaling state: %v", err)
	}
	return string(data)
}

func TestNewStateToolEvent(t *testing.T) {
	event := &Event{
		SessionID:     "sess-1",
		CWD:           "/home/dev/project",
		HookEventName: "PreToolUse",
		ToolName:      "Bash",
		ToolInput:     json.RawMessage(`{"command":"ls"}`),
	}
	state, err := NewState(event, Classify(event), 4242, "/dev/ttys003")
	if err != nil {
		t.Fatalf("NewState() error: %v", err)
	}

	encoded := mustMarshalState(t, state)
	for _, want := range []string{
		`"session_id":"sess-1"`,
		`"event":"PreToolUse"`,
		`"status":"running_tool"`,
		`"pid":4242`,
		`"tty":"/dev/ttys003"`,
		`"tool":"Bash"`,
		`"tool_input":{"command":"ls"}`,
	} {
		if !strings.Contains(encoded, want) {
			t.Errorf("state JSON missing %s:\n%s", want, encoded)
		}
	}
}

func TestNewStateEmptyToolInputStaysPresent(t *testing.T) {
	// A tool event whose input normalized to empty must still carry
	// "tool_input":{} on the wire; consumers assume the mapping exists.
	event := &Event{
		SessionID:     "sess-2",
		HookEventName: "PermissionRequest",
		ToolName:      "Bash",
		ToolInput:     json.RawMessage(`null`),
	}
	state, err := NewState(event, Classify(event), 1, "")
	if err != nil {
		t.Fatalf("NewState() error: %v", err)
	}

	encoded := mustMarshalState(t, state)
	if !strings.Contains(encoded, `"tool_input":{}`) {
		t.Errorf("state JSON missing empty tool_input mapping:\n%s", encoded)
	}
}

func TestNewStateOmitsUnsetFields(t *testing.T) {
	event := &Event{
		SessionID:     "sess-3",
		CWD:           "/tmp",
		HookEventName: "SessionStart",
	}
	state, err := NewState(event, Classify(event), 7, "")
	if err != nil {
		t.Fatalf("NewState() error: %v", err)
	}

	encoded := mustMarshalState(t, state)
	if !strings.Contains(encoded, `"status":"waiting_for_input"`) {
		t.Errorf("state JSON missing status:\n%s", encoded)
	}
	for _, absent := range []string{"user_prompt", "tool", "tool_input", "tool_use_id", "notification_type", "message"} {
		if strings.Contains(encoded, `"`+absent+`"`) {
			t.Errorf("state JSON should omit %q:\n%s", absent, encoded)
		}
	}
}

func TestNewStateNullTTY(t *testing.T) {
	// No controlling terminal is reported as an explicit null, not an
	// omitted field.
	event := &Event{SessionID: "s", HookEventName: "Stop"}
	state, err := NewState(event, Classify(event), 9, "")
	if err != nil {
		t.Fatalf("NewState() error: %v", err)
	}
	if encoded := mustMarshalState(t, state); !strings.Contains(encoded, `"tty":null`) {
		t.Errorf("state JSON missing explicit null tty:\n%s", encoded)
	}
}

func TestNewStateDefaultsSessionID(t *testing.T) {
	event := &Event{HookEventName: "Stop"}
	state, err := NewState(event, Classify(event), 9, "")
	if err != nil {
		t.Fatalf("NewState() error: %v", err)
	}
	if state.SessionID != "unknown" {
		t.Errorf("SessionID = %q, want %q", state.SessionID, "unknown")
	}
}
