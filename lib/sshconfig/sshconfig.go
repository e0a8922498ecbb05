// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package sshconfig builds the HostName-to-alias map the bridge uses
// to turn a remote session's advertised hostname into something the
// local ssh binary can connect to. Parsing is deliberately shallow:
// Host and HostName directives plus Include traversal, nothing else;
// authentication, jump hosts, and every other client option stay the
// ssh binary's problem. The map is built once at daemon startup and
// read-only afterwards.
package sshconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// maxIncludeDepth caps Include recursion so a config cycle cannot hang
// daemon startup.
const maxIncludeDepth = 8

type entry struct {
	hostName string
	alias    string
}

// Map resolves advertised remote hostnames to ssh connection aliases.
// Entries keep file order so the prefix and service-heuristic scans in
// Resolve are deterministic.
type Map struct {
	entries []entry
	index   map[string]int
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{index: make(map[string]int)}
}

func (m *Map) add(hostName, alias string) {
	if position, ok := m.index[hostName]; ok {
		m.entries[position].alias = alias
		return
	}
	m.index[hostName] = len(m.entries)
	m.entries = append(m.entries, entry{hostName: hostName, alias: alias})
}

// Len reports the number of host mappings.
func (m *Map) Len() int {
	return len(m.entries)
}

// Load parses the OpenSSH client configuration at path and returns the
// HostName-to-alias map. Include directives are followed; relative
// patterns resolve against the top-level config's directory, and glob
// matches apply in sorted order. Wildcard Host patterns are skipped:
// they name no single alias to connect to. A missing file is not an
// error; the returned map is empty and remote sessions simply get no
// proxy panes.
func Load(path string) (*Map, error) {
	m := NewMap()
	err := m.parseFile(path, filepath.Dir(path), 0)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	return m, err
}

func (m *Map) parseFile(path, baseDir string, depth int) error {
	if depth > maxIncludeDepth {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading ssh config: %w", err)
	}

	currentAlias := ""
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := splitDirective(trimmed)
		if !ok {
			continue
		}

		switch key {
		case "include":
			pattern := value
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(baseDir, pattern)
			}
			matches, globErr := filepath.Glob(pattern)
			if globErr != nil {
				continue
			}
			sort.Strings(matches)
			for _, included := range matches {
				if parseErr := m.parseFile(included, baseDir, depth+1); parseErr != nil && !errors.Is(parseErr, os.ErrNotExist) {
					return parseErr
				}
			}
		case "host":
			first := strings.Fields(value)[0]
			if strings.ContainsAny(first, "*?") {
				currentAlias = ""
			} else {
				currentAlias = first
			}
		case "hostname":
			if currentAlias != "" {
				m.add(value, currentAlias)
			}
		}
	}
	return nil
}

// splitDirective splits a config line into its lowercased keyword and
// the remainder. Lines without a value are not directives we care
// about.
func splitDirective(line string) (key, value string, ok bool) {
	boundary := strings.IndexFunc(line, unicode.IsSpace)
	if boundary < 0 {
		return "", "", false
	}
	value = strings.TrimSpace(line[boundary+1:])
	if value == "" {
		return "", "", false
	}
	return strings.ToLower(line[:boundary]), value, true
}

// Resolve maps a remote session's advertised hostname to a configured
// ssh alias. Three tiers, strongest first:
//
//  1. Exact HostName match.
//  2. FQDN-versus-short-name prefix match in either direction: the
//     config says "build.corp.example.com" and the host advertises
//     "build", or vice versa.
//  3. Clustered-service heuristic for entries whose HostName contains
//     "-svc.": pod-style hostnames ("cluster-7f8b", or the fully
//     qualified "db-0.cluster-svc.internal") resolve against the
//     service entry ("cluster-svc.internal") by base-name or
//     domain-suffix comparison.
//
// Returns false when nothing matches; the caller still forwards the
// event, it just creates no proxy pane.
func (m *Map) Resolve(remoteHostname string) (string, bool) {
	if remoteHostname == "" {
		return "", false
	}
	if position, ok := m.index[remoteHostname]; ok {
		return m.entries[position].alias, true
	}
	for _, e := range m.entries {
		if strings.HasPrefix(e.hostName, remoteHostname+".") || strings.HasPrefix(remoteHostname, e.hostName+".") {
			return e.alias, true
		}
	}
	for _, e := range m.entries {
		serviceIndex := strings.Index(e.hostName, "-svc.")
		if serviceIndex <= 0 {
			continue
		}
		base := e.hostName[:serviceIndex]
		if remoteHostname == base ||
			strings.HasPrefix(remoteHostname, base+"-") ||
			strings.HasSuffix(remoteHostname, "."+e.hostName) {
			return e.alias, true
		}
	}
	return "", false
}
