// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package hookevent

import (
	"encoding/json"
	"fmt"
)

// State is the wire document sent to the observer app and published on
// the bus: one compact JSON object per event. Optional fields are
// omitted when unset; tool_input, once extracted, is serialized even
// when empty so consumers always see a mapping.
type State struct {
	SessionID string  `json:"session_id"`
	CWD       string  `json:"cwd"`
	Event     string  `json:"event"`
	PID       int     `json:"pid"`
	TTY       *string `json:"tty"`
	Status    Status  `json:"status"`

	UserPrompt           string          `json:"user_prompt,omitempty"`
	Tool                 string          `json:"tool,omitempty"`
	ToolInput            json.RawMessage `json:"tool_input,omitempty"`
	ToolUseID            string          `json:"tool_use_id,omitempty"`
	NotificationType     string          `json:"notification_type,omitempty"`
	Message              string          `json:"message,omitempty"`
	LastAssistantMessage string          `json:"last_assistant_message,omitempty"`

	// Remote session coordinates, attached when the producer runs
	// inside tmux on an SSH host. The bridge uses these to shadow the
	// remote pane with a local proxy window.
	RemoteTmuxTarget string `json:"remote_tmux_target,omitempty"`
	RemoteHostname   string `json:"remote_hostname,omitempty"`
}

// NewState assembles the outgoing wire document for a classified
// event. The caller supplies process identity: pid is the agent
// process, tty its controlling terminal (empty when there is none,
// recorded as an explicit null so the observer can tell "no terminal"
// from "not reported").
func NewState(event *Event, class Classification, pid int, tty string) (*State, error) {
	sessionID := event.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}

	state := &State{
		SessionID: sessionID,
		CWD:       event.CWD,
		Event:     event.HookEventName,
		PID:       pid,
		Status:    class.Status,

		UserPrompt:           class.UserPrompt,
		Tool:                 class.Tool,
		ToolUseID:            class.ToolUseID,
		NotificationType:     class.NotificationType,
		Message:              class.Message,
		LastAssistantMessage: class.LastAssistantMessage,
	}
	if tty != "" {
		state.TTY = &tty
	}
	if class.ToolInput != nil {
		encoded, err := json.Marshal(class.ToolInput)
		if err != nil {
			return nil, fmt.Errorf("encoding tool input: %w", err)
		}
		state.ToolInput = encoded
	}
	return state, nil
}
