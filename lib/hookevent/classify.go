// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package hookevent defines the lifecycle events Claude Code delivers
// to its hooks and the normalized session state derived from them.
//
// Classification is a pure function: one event in, one status plus
// extracted fields out, no cross-event memory. Per-session continuity
// (transcript chaining, proxy pane state) lives in the bridge daemon.
package hookevent

import "encoding/json"

// Status is the normalized session status derived from a lifecycle
// event. Statuses travel as plain strings in the wire document.
type Status string

const (
	StatusProcessing         Status = "processing"
	StatusRunningTool        Status = "running_tool"
	StatusWaitingForApproval Status = "waiting_for_approval"
	StatusWaitingForInput    Status = "waiting_for_input"
	StatusNotification       Status = "notification"
	StatusEnded              Status = "ended"
	StatusCompacting         Status = "compacting"
	StatusUnknown            Status = "unknown"

	// StatusSkip never reaches the wire. The event is suppressed
	// entirely: no transport send, no transcript write. Used for
	// permission-prompt notifications, which duplicate the richer
	// PermissionRequest event.
	StatusSkip Status = "skip"
)

// Classification is the result of classifying one lifecycle event:
// the normalized status plus whichever fields that event kind carries.
type Classification struct {
	Status Status

	UserPrompt           string
	Tool                 string
	ToolInput            map[string]any
	ToolUseID            string
	NotificationType     string
	Message              string
	LastAssistantMessage string
}

// Classify maps a lifecycle event to its normalized status and
// extracted fields. Unrecognized event kinds classify as unknown
// rather than erroring; the producer must never crash on a new hook
// type.
func Classify(event *Event) Classification {
	switch event.HookEventName {
	case EventUserPromptSubmit:
		return Classification{
			Status:     StatusProcessing,
			UserPrompt: event.Prompt,
		}
	case EventPreToolUse:
		return Classification{
			Status:    StatusRunningTool,
			Tool:      event.ToolName,
			ToolInput: NormalizeToolInput(event.ToolInput),
			ToolUseID: event.ToolUseID,
		}
	case EventPostToolUse:
		return Classification{
			Status:    StatusProcessing,
			Tool:      event.ToolName,
			ToolInput: NormalizeToolInput(event.ToolInput),
			ToolUseID: event.ToolUseID,
		}
	case EventPermissionRequest:
		return Classification{
			Status:    StatusWaitingForApproval,
			Tool:      event.ToolName,
			ToolInput: NormalizeToolInput(event.ToolInput),
		}
	case EventNotification:
		switch event.NotificationType {
		case NotificationPermissionPrompt:
			return Classification{Status: StatusSkip}
		case NotificationIdlePrompt:
			return Classification{
				Status:           StatusWaitingForInput,
				NotificationType: event.NotificationType,
				Message:          event.Message,
			}
		default:
			return Classification{
				Status:           StatusNotification,
				NotificationType: event.NotificationType,
				Message:          event.Message,
			}
		}
	case EventStop, EventSubagentStop:
		return Classification{
			Status:               StatusWaitingForInput,
			LastAssistantMessage: event.LastAssistantMessage,
		}
	case EventSessionStart:
		return Classification{Status: StatusWaitingForInput}
	case EventSessionEnd:
		return Classification{Status: StatusEnded}
	case EventPreCompact:
		return Classification{Status: StatusCompacting}
	default:
		return Classification{Status: StatusUnknown}
	}
}

// NormalizeToolInput coerces a raw tool_input value into a string-keyed
// map. Downstream consumers assume a mapping is always present, so
// null, arrays, scalars, and malformed JSON all normalize to an empty
// map, never nil.
func NormalizeToolInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil || input == nil {
		return map[string]any{}
	}
	return input
}
