// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript mirrors remote conversations into the local
// JSONL transcript layout the observer app already knows how to read.
// Each session gets an append-only file of parent-chained records; the
// chain is a singly linked history, not a tree.
//
// The observer locates and scans these files with substring matching,
// not structural JSON parsing, so records must serialize as single
// compact lines with stable field order.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude-island/island/lib/clock"
	"github.com/claude-island/island/lib/hookevent"
)

// record field order is load-bearing: the observer's parser does
// substring checks like `contains("\"type\":\"user\"")` against whole
// lines. encoding/json emits struct fields in declaration order.
type record struct {
	ParentUUID  *string `json:"parentUuid"`
	IsSidechain bool    `json:"isSidechain"`
	UserType    string  `json:"userType"`
	CWD         string  `json:"cwd"`
	SessionID   string  `json:"sessionId"`
	Version     string  `json:"version"`
	Type        string  `json:"type"`
	UUID        string  `json:"uuid"`
	Timestamp   string  `json:"timestamp"`
	Message     any     `json:"message"`
}

type userMessage struct {
	Content string `json:"content"`
}

type assistantMessage struct {
	Type    string               `json:"type"`
	Role    string               `json:"role"`
	Content []assistantTextBlock `json:"content"`
}

type assistantTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Entry is the slice of a state document the transcript cares about.
type Entry struct {
	SessionID            string
	CWD                  string
	Event                string
	UserPrompt           string
	LastAssistantMessage string
}

// Writer appends transcript records and tracks the per-session parent
// chain. The chain lives in memory for the daemon's lifetime; after a
// restart, new records start a fresh chain in the same file, which the
// observer tolerates.
type Writer struct {
	root  string
	clock clock.Clock

	mu       sync.Mutex
	lastUUID map[string]string
}

// NewWriter creates a transcript writer rooted at the observer's
// projects directory.
func NewWriter(root string, clk clock.Clock) *Writer {
	return &Writer{
		root:     root,
		clock:    clk,
		lastUUID: make(map[string]string),
	}
}

// FoldCWD flattens a working directory into a single path component:
// separators and dots become dashes. The observer derives the same
// name when it resolves a session's transcript, so the fold must match
// exactly.
func FoldCWD(cwd string) string {
	folded := strings.ReplaceAll(cwd, "/", "-")
	return strings.ReplaceAll(folded, ".", "-")
}

// Path returns the transcript file path for a session, creating the
// project directory if needed.
func (w *Writer) Path(cwd, sessionID string) (string, error) {
	if cwd == "" {
		cwd = "/tmp"
	}
	if sessionID == "" {
		sessionID = "unknown"
	}
	projectDir := filepath.Join(w.root, FoldCWD(cwd))
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		return "", fmt.Errorf("creating project directory: %w", err)
	}
	return filepath.Join(projectDir, sessionID+".jsonl"), nil
}

// Write appends the transcript record for one event, maintaining the
// per-session parent chain. Only user prompts and final assistant
// messages produce records: those are the conversation the observer
// reconstructs. Tool traffic and lifecycle noise write nothing.
// Returns whether a record was appended.
func (w *Writer) Write(path string, entry Entry) (bool, error) {
	switch entry.Event {
	case hookevent.EventUserPromptSubmit:
		prompt := entry.UserPrompt
		if prompt == "" {
			prompt = "(remote session)"
		}
		if err := w.append(path, entry, "user", userMessage{Content: prompt}); err != nil {
			return false, err
		}
		return true, nil
	case hookevent.EventStop, hookevent.EventSubagentStop:
		if entry.LastAssistantMessage == "" {
			return false, nil
		}
		message := assistantMessage{
			Type: "message",
			Role: "assistant",
			Content: []assistantTextBlock{
				{Type: "text", Text: entry.LastAssistantMessage},
			},
		}
		if err := w.append(path, entry, "assistant", message); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

func (w *Writer) append(path string, entry Entry, recordType string, message any) error {
	sessionID := entry.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}
	cwd := entry.CWD
	if cwd == "" {
		cwd = "/tmp"
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	rec := record{
		UserType:  "external",
		CWD:       cwd,
		SessionID: sessionID,
		Version:   "remote-bridge",
		Type:      recordType,
		UUID:      uuid.NewString(),
		Timestamp: formatTimestamp(w.clock.Now()),
		Message:   message,
	}
	if parent, ok := w.lastUUID[sessionID]; ok {
		rec.ParentUUID = &parent
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding transcript record: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		file.Close()
		return fmt.Errorf("appending transcript record: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing transcript: %w", err)
	}

	w.lastUUID[sessionID] = rec.UUID
	return nil
}

// formatTimestamp truncates to whole seconds with a fixed ".000Z"
// suffix. The suffix is literal: the original transcript format never
// carries real milliseconds, and the observer's parser expects the
// exact shape.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + ".000Z"
}
