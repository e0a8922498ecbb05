// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads from YAML as a Go duration
// string ("5s", "300ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the bridge daemon configuration.
type Config struct {
	// SocketPath is the observer app's Unix socket.
	// Default: /tmp/claude-island.sock
	SocketPath string `yaml:"socket_path"`

	// BusAddr is the NATS server address.
	// Default: localhost:4222
	BusAddr string `yaml:"bus_addr"`

	// SubjectState is the subject remote hooks publish state documents to.
	// Default: claude.island.state
	SubjectState string `yaml:"subject_state"`

	// SubjectPermission is the subject remote hooks send permission
	// requests on.
	// Default: claude.island.permission
	SubjectPermission string `yaml:"subject_permission"`

	// PidFile is where the daemon records its pid.
	// Default: /tmp/island-bridge.pid
	PidFile string `yaml:"pid_file"`

	// ProjectsRoot is the observer's transcript tree.
	// Default: ~/.claude/projects
	ProjectsRoot string `yaml:"projects_root"`

	// ProxySession is the tmux session holding proxy panes.
	// Default: claude-island-proxy
	ProxySession string `yaml:"proxy_session"`

	// SSHConfigPath is the ssh client config parsed for hostname → alias
	// resolution.
	// Default: ~/.ssh/config
	SSHConfigPath string `yaml:"ssh_config_path"`

	// TmuxBin is the tmux binary. Empty means resolve from PATH with a
	// Homebrew fallback.
	TmuxBin string `yaml:"tmux_bin"`

	// RelayBin is the keystroke relay launched inside proxy panes.
	// A bare name is resolved next to the running binary, then in PATH.
	// Default: island-relay
	RelayBin string `yaml:"relay_bin"`

	// PermissionTimeout bounds a permission round trip: the observer
	// decision wait on the bridge side, and the bus request on the hook
	// side.
	// Default: 300s
	PermissionTimeout Duration `yaml:"permission_timeout"`

	// ForwardTimeout bounds one state forward to the observer socket.
	// Default: 5s
	ForwardTimeout Duration `yaml:"forward_timeout"`

	// PublishTimeout bounds a hook's bus dial-publish-flush sequence.
	// Default: 5s
	PublishTimeout Duration `yaml:"publish_timeout"`

	// CommandTimeout bounds each external command the bridge runs.
	// Default: 5s
	CommandTimeout Duration `yaml:"command_timeout"`

	// RelaySSHTimeout bounds one keystroke round trip through ssh.
	// Default: 30s
	RelaySSHTimeout Duration `yaml:"relay_ssh_timeout"`

	// SweepInterval is how often the pane registry is pruned of dead
	// panes.
	// Default: 30s
	SweepInterval Duration `yaml:"sweep_interval"`

	// ReconnectMin and ReconnectMax bound the bus reconnect backoff.
	// Defaults: 1s and 30s
	ReconnectMin Duration `yaml:"reconnect_min"`
	ReconnectMax Duration `yaml:"reconnect_max"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		SocketPath:        "/tmp/claude-island.sock",
		BusAddr:           "localhost:4222",
		SubjectState:      "claude.island.state",
		SubjectPermission: "claude.island.permission",
		PidFile:           "/tmp/island-bridge.pid",
		ProjectsRoot:      filepath.Join(homeDir, ".claude", "projects"),
		ProxySession:      "claude-island-proxy",
		SSHConfigPath:     filepath.Join(homeDir, ".ssh", "config"),
		TmuxBin:           "",
		RelayBin:          "island-relay",
		PermissionTimeout: Duration(300 * time.Second),
		ForwardTimeout:    Duration(5 * time.Second),
		PublishTimeout:    Duration(5 * time.Second),
		CommandTimeout:    Duration(5 * time.Second),
		RelaySSHTimeout:   Duration(30 * time.Second),
		SweepInterval:     Duration(30 * time.Second),
		ReconnectMin:      Duration(time.Second),
		ReconnectMax:      Duration(30 * time.Second),
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "claude-island", "bridge.yaml")
}

// LoadFile loads configuration from an explicit path, layered over the
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// LoadDefault loads the default config file. A missing file is not an
// error: the defaults stand on their own.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.SocketPath = expandVars(c.SocketPath, vars)
	c.PidFile = expandVars(c.PidFile, vars)
	c.ProjectsRoot = expandVars(c.ProjectsRoot, vars)
	c.SSHConfigPath = expandVars(c.SSHConfigPath, vars)
	c.TmuxBin = expandVars(c.TmuxBin, vars)
	c.RelayBin = expandVars(c.RelayBin, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		name  string
		value string
	}{
		{"socket_path", c.SocketPath},
		{"bus_addr", c.BusAddr},
		{"subject_state", c.SubjectState},
		{"subject_permission", c.SubjectPermission},
		{"pid_file", c.PidFile},
		{"projects_root", c.ProjectsRoot},
		{"proxy_session", c.ProxySession},
		{"relay_bin", c.RelayBin},
	}
	for _, field := range required {
		if field.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", field.name))
		}
	}

	durations := []struct {
		name  string
		value Duration
	}{
		{"permission_timeout", c.PermissionTimeout},
		{"forward_timeout", c.ForwardTimeout},
		{"publish_timeout", c.PublishTimeout},
		{"command_timeout", c.CommandTimeout},
		{"relay_ssh_timeout", c.RelaySSHTimeout},
		{"sweep_interval", c.SweepInterval},
		{"reconnect_min", c.ReconnectMin},
		{"reconnect_max", c.ReconnectMax},
	}
	for _, field := range durations {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field.name))
		}
	}

	if c.ReconnectMin > c.ReconnectMax {
		errs = append(errs, fmt.Errorf("reconnect_min exceeds reconnect_max"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
