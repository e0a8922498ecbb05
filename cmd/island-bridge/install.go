// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// hookEventNames are the lifecycle events island-hook is registered
// for. Every kind the classifier knows appears here; an event that is
// never delivered costs nothing, one that is missed costs a status
// transition the observer never sees.
var hookEventNames = []string{
	"UserPromptSubmit",
	"PreToolUse",
	"PostToolUse",
	"PermissionRequest",
	"Notification",
	"Stop",
	"SubagentStop",
	"SessionStart",
	"SessionEnd",
	"PreCompact",
}

// hookMarker identifies entries this installer owns. Matching on the
// binary's base name keeps the merge idempotent across installs from
// different directories.
const hookMarker = "island-hook"

// installHooks registers hookBin for every lifecycle event in the
// Claude Code settings file. The existing file is read tolerantly
// (user-edited settings often carry comments and trailing commas);
// previous island entries are replaced, all other settings and foreign
// hook entries are preserved; the result is written as strict
// pretty-printed JSON.
func installHooks(settingsPath, hookBin string) error {
	settings, err := readSettings(settingsPath)
	if err != nil {
		return err
	}

	hooks, _ := settings["hooks"].(map[string]any)
	if hooks == nil {
		hooks = make(map[string]any)
	}
	for _, eventName := range hookEventNames {
		entries, _ := hooks[eventName].([]any)
		merged := removeIslandEntries(entries)
		merged = append(merged, map[string]any{
			"hooks": []any{
				map[string]any{
					"type":    "command",
					"command": hookBin,
				},
			},
		})
		hooks[eventName] = merged
	}
	settings["hooks"] = hooks

	return writeSettings(settingsPath, settings)
}

// readSettings loads the settings file as a JSON-with-comments
// document. A missing file starts from scratch; a file that exists but
// does not parse is an error, because silently rewriting it would
// destroy whatever the user had.
func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	settings := make(map[string]any)
	if err := json.Unmarshal(jsonc.ToJSON(data), &settings); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return settings, nil
}

func writeSettings(path string, settings map[string]any) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// removeIslandEntries filters out hook entries previously written by
// this installer, keeping any the user added themselves.
func removeIslandEntries(entries []any) []any {
	var kept []any
	for _, entry := range entries {
		if !isIslandEntry(entry) {
			kept = append(kept, entry)
		}
	}
	return kept
}

// isIslandEntry reports whether a hook entry invokes island-hook in
// any of its commands.
func isIslandEntry(entry any) bool {
	entryMap, ok := entry.(map[string]any)
	if !ok {
		return false
	}
	hooks, _ := entryMap["hooks"].([]any)
	for _, hook := range hooks {
		hookMap, ok := hook.(map[string]any)
		if !ok {
			continue
		}
		command, _ := hookMap["command"].(string)
		if strings.Contains(command, hookMarker) {
			return true
		}
	}
	return false
}
