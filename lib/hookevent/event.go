// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package hookevent

import (
	"encoding/json"
	"fmt"
	"io"
)

// Lifecycle event kinds, as delivered in hook_event_name.
const (
	EventUserPromptSubmit  = "UserPromptSubmit"
	EventPreToolUse        = "PreToolUse"
	EventPostToolUse       = "PostToolUse"
	EventPermissionRequest = "PermissionRequest"
	EventNotification      = "Notification"
	EventStop              = "Stop"
	EventSubagentStop      = "SubagentStop"
	EventSessionStart      = "SessionStart"
	EventSessionEnd        = "SessionEnd"
	EventPreCompact        = "PreCompact"
)

// Notification subtypes that classification treats specially.
const (
	NotificationPermissionPrompt = "permission_prompt"
	NotificationIdlePrompt       = "idle_prompt"
)

// Event is the JSON envelope Claude Code sends to hook handlers on
// stdin. All hook types share this structure; unused fields are zero
// for event kinds that don't populate them.
type Event struct {
	SessionID            string          `json:"session_id"`
	CWD                  string          `json:"cwd"`
	HookEventName        string          `json:"hook_event_name"`
	Prompt               string          `json:"prompt"`
	ToolName             string          `json:"tool_name"`
	ToolInput            json.RawMessage `json:"tool_input"`
	ToolUseID            string          `json:"tool_use_id"`
	NotificationType     string          `json:"notification_type"`
	Message              string          `json:"message"`
	LastAssistantMessage string          `json:"last_assistant_message"`
}

// Decode reads and parses one hook event from the given reader.
func Decode(reader io.Reader) (*Event, error) {
	var event Event
	if err := json.NewDecoder(reader).Decode(&event); err != nil {
		return nil, fmt.Errorf("parsing hook event JSON: %w", err)
	}
	return &event, nil
}
