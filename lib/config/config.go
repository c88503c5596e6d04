// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when no --config flag is
// given.
const EnvironmentVariable = "KEYWARD_CONFIG"

// Approval modes.
const (
	ApprovalNone       = "none"
	ApprovalAlwaysDeny = "always-deny"
	ApprovalCommand    = "command"
)

// Store types.
const (
	// StoreFile serves a key directory and rescans it on reload.
	StoreFile = "file"

	// StoreMemory reads a key directory once at startup and keeps the
	// keys in memory. Reload does not rescan, so the directory may be
	// on removable media that is detached after startup.
	StoreMemory = "memory"
)

// maxFrameLimit caps agent.max_frame_length.
const maxFrameLimit = 16 << 20

// Config is the complete keyward configuration.
type Config struct {
	Agent      AgentConfig      `yaml:"agent" toml:"agent"`
	Control    ControlConfig    `yaml:"control" toml:"control"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Approval   ApprovalConfig   `yaml:"approval" toml:"approval"`
	Stores     []StoreConfig    `yaml:"stores" toml:"stores"`
	PublicKeys PublicKeysConfig `yaml:"public_keys" toml:"public_keys"`
}

// AgentConfig configures the agent socket.
type AgentConfig struct {
	// SocketPath is where SSH_AUTH_SOCK should point.
	SocketPath string `yaml:"socket_path" toml:"socket_path"`

	// MaxFrameLength is the largest request accepted, in bytes. Zero
	// selects the OpenSSH limit of 256 KiB.
	MaxFrameLength uint32 `yaml:"max_frame_length" toml:"max_frame_length"`
}

// ControlConfig configures the control socket. An empty SocketPath
// disables it.
type ControlConfig struct {
	SocketPath string `yaml:"socket_path" toml:"socket_path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" toml:"level"`

	// Format is json or text.
	Format string `yaml:"format" toml:"format"`
}

// ApprovalConfig configures per-signature approval.
type ApprovalConfig struct {
	// Mode is none, always-deny or command.
	Mode string `yaml:"mode" toml:"mode"`

	// Command is the argv of the approval program for mode command.
	// The prompt is appended as the last argument; exit status zero
	// approves.
	Command []string `yaml:"command" toml:"command"`

	// Timeout bounds each approval, as a Go duration string. Empty or
	// "0" waits until the client disconnects.
	Timeout string `yaml:"timeout" toml:"timeout"`
}

// StoreConfig configures one key store.
type StoreConfig struct {
	Type            string `yaml:"type" toml:"type"`
	Name            string `yaml:"name" toml:"name"`
	Directory       string `yaml:"directory" toml:"directory"`
	AgeIdentityFile string `yaml:"age_identity_file" toml:"age_identity_file"`
}

// PublicKeysConfig configures public key file export.
type PublicKeysConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Directory string `yaml:"directory" toml:"directory"`

	// Clear removes exported files for keys the agent no longer holds.
	Clear bool `yaml:"clear" toml:"clear"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	config := &Config{
		Agent: AgentConfig{
			SocketPath: "${XDG_RUNTIME_DIR:-/tmp}/keyward/agent.sock",
		},
		Control: ControlConfig{
			SocketPath: "${XDG_RUNTIME_DIR:-/tmp}/keyward/control.sock",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Approval: ApprovalConfig{
			Mode:    ApprovalNone,
			Timeout: "60s",
		},
		PublicKeys: PublicKeysConfig{
			Directory: "${HOME}/.config/keyward/public-keys",
		},
	}
	config.applyDefaults()
	config.expandVariables()
	return config
}

// Load loads the file named by KEYWARD_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your keyward config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads the file at path over Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	config.Stores = nil
	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		metadata, err := toml.Decode(string(data), config)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parsing %s: unknown keys %v", path, undecoded)
		}
	default:
		return nil, fmt.Errorf("config file %s: unsupported extension %q (want .yaml, .yml or .toml)", path, extension)
	}

	config.applyDefaults()
	config.expandVariables()
	return config, nil
}

// applyDefaults fills values a file may leave out.
func (c *Config) applyDefaults() {
	if len(c.Stores) == 0 {
		c.Stores = []StoreConfig{{
			Type:      StoreFile,
			Name:      "ssh",
			Directory: "${HOME}/.ssh",
		}}
	}
	for index := range c.Stores {
		store := &c.Stores[index]
		if store.Type == "" {
			store.Type = StoreFile
		}
		if store.Name == "" && store.Directory != "" {
			store.Name = filepath.Base(store.Directory)
		}
	}
}

func (c *Config) expandVariables() {
	c.Agent.SocketPath = expandVars(c.Agent.SocketPath)
	c.Control.SocketPath = expandVars(c.Control.SocketPath)
	c.PublicKeys.Directory = expandVars(c.PublicKeys.Directory)
	for index := range c.Approval.Command {
		c.Approval.Command[index] = expandVars(c.Approval.Command[index])
	}
	for index := range c.Stores {
		c.Stores[index].Directory = expandVars(c.Stores[index].Directory)
		c.Stores[index].AgeIdentityFile = expandVars(c.Stores[index].AgeIdentityFile)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// ApprovalTimeout parses Approval.Timeout.
func (c *Config) ApprovalTimeout() (time.Duration, error) {
	if c.Approval.Timeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(c.Approval.Timeout)
	if err != nil {
		return 0, fmt.Errorf("approval.timeout: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("approval.timeout must not be negative, got %s", c.Approval.Timeout)
	}
	return timeout, nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.SocketPath == "" {
		errs = append(errs, errors.New("agent.socket_path is required"))
	} else if !filepath.IsAbs(c.Agent.SocketPath) {
		errs = append(errs, fmt.Errorf("agent.socket_path must be absolute, got %q", c.Agent.SocketPath))
	}
	if c.Agent.MaxFrameLength > maxFrameLimit {
		errs = append(errs, fmt.Errorf("agent.max_frame_length must be at most %d", maxFrameLimit))
	}
	if c.Control.SocketPath != "" && !filepath.IsAbs(c.Control.SocketPath) {
		errs = append(errs, fmt.Errorf("control.socket_path must be absolute, got %q", c.Control.SocketPath))
	}
	if c.Control.SocketPath != "" && c.Control.SocketPath == c.Agent.SocketPath {
		errs = append(errs, errors.New("control.socket_path must differ from agent.socket_path"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	switch c.Approval.Mode {
	case ApprovalNone, ApprovalAlwaysDeny:
	case ApprovalCommand:
		if len(c.Approval.Command) == 0 {
			errs = append(errs, errors.New("approval.command is required when approval.mode is command"))
		}
	default:
		errs = append(errs, fmt.Errorf("approval.mode must be one of none, always-deny, command; got %q", c.Approval.Mode))
	}
	if _, err := c.ApprovalTimeout(); err != nil {
		errs = append(errs, err)
	}

	names := make(map[string]bool)
	for index, store := range c.Stores {
		prefix := fmt.Sprintf("stores[%d]", index)
		if store.Type != StoreFile && store.Type != StoreMemory {
			errs = append(errs, fmt.Errorf("%s.type must be file or memory, got %q", prefix, store.Type))
		}
		if store.Directory == "" {
			errs = append(errs, fmt.Errorf("%s.directory is required", prefix))
		}
		if store.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if names[store.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is used by another store", prefix, store.Name))
		}
		names[store.Name] = true
	}

	if c.PublicKeys.Enabled && c.PublicKeys.Directory == "" {
		errs = append(errs, errors.New("public_keys.directory is required when public_keys.enabled is set"))
	}

	return errors.Join(errs...)
}
