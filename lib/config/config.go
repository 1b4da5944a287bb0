// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the front port the relay listens on when the config
// file does not say otherwise. It matches the port the backend's own
// clients are conventionally pointed at.
const DefaultPort = 8317

// defaultFlushInterval is used when usage.flush_interval is empty or
// does not parse. Validate rejects malformed values, so the fallback
// only matters for hand-built Config structs.
const defaultFlushInterval = 30 * time.Second

// Config is the Quotio application configuration, loaded from
// ~/.quotio/config.yaml.
type Config struct {
	// Port is the front port the relay listens on.
	// Default: 8317
	Port uint16 `yaml:"port"`

	// BackendPort is the port the managed backend listens on. Zero
	// means derive it from Port; see EffectiveBackendPort.
	// Default: 0 (derived)
	BackendPort uint16 `yaml:"backend_port"`

	// BackendBinary is an explicit path to the backend executable.
	// Empty means discover it in the standard install locations.
	BackendBinary string `yaml:"backend_binary"`

	// AuthDir is the directory holding the backend's provider
	// credentials.
	// Default: ~/.cli-proxy-api
	AuthDir string `yaml:"auth_dir"`

	// DataDir is the base directory for Quotio state: the backend
	// config and log, the pid file, and the usage history.
	// Default: ~/.quotio
	DataDir string `yaml:"data_dir"`

	// Log configures rotation of the backend's log file.
	Log LogConfig `yaml:"log"`

	// Usage configures usage history persistence.
	Usage UsageConfig `yaml:"usage"`
}

// LogConfig configures rotation of the backend process log.
type LogConfig struct {
	// File is the backend log path. Empty means backend.log under
	// DataDir; see Config.LogFile.
	File string `yaml:"file"`

	// MaxSizeMB is the size at which the log rotates.
	// Default: 100
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	// Default: 3
	MaxBackups int `yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are retained.
	// Default: 28
	MaxAgeDays int `yaml:"max_age_days"`

	// Compress gzips rotated files.
	// Default: false
	Compress bool `yaml:"compress"`
}

// UsageConfig configures usage history persistence.
type UsageConfig struct {
	// HistoryFile is where usage snapshots are written. Empty means
	// usage.cbor.zst under DataDir; see Config.HistoryFile.
	HistoryFile string `yaml:"history_file"`

	// FlushInterval is how often the usage tracker is flushed to
	// disk, as a Go duration string.
	// Default: 30s
	FlushInterval string `yaml:"flush_interval"`
}

// Default returns the default configuration. Derived paths (log file,
// history file, backend port) are left unset so that overriding
// DataDir or Port retargets them; use the Effective*/LogFile/
// HistoryFile accessors to resolve them.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Port:    DefaultPort,
		AuthDir: filepath.Join(homeDir, ".cli-proxy-api"),
		DataDir: filepath.Join(homeDir, ".quotio"),
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Usage: UsageConfig{
			FlushInterval: "30s",
		},
	}
}

// DefaultPath returns the standard config file location,
// ~/.quotio/config.yaml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".quotio", "config.yaml")
}

// Load loads configuration from path, merging the file's values over
// the defaults. A missing file is not an error: the defaults are the
// configuration. Leading ~/ in path fields is expanded to the user's
// home directory after loading.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// expandPaths expands a leading ~/ in every path field.
func (c *Config) expandPaths() {
	c.BackendBinary = expandHome(c.BackendBinary)
	c.AuthDir = expandHome(c.AuthDir)
	c.DataDir = expandHome(c.DataDir)
	c.Log.File = expandHome(c.Log.File)
	c.Usage.HistoryFile = expandHome(c.Usage.HistoryFile)
}

// expandHome replaces a leading ~ or ~/ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return homeDir
	}
	return filepath.Join(homeDir, path[2:])
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Port == 0 {
		errs = append(errs, fmt.Errorf("port is required"))
	}

	if c.BackendPort != 0 && c.BackendPort == c.Port {
		errs = append(errs, fmt.Errorf("backend_port must differ from port"))
	}

	if c.AuthDir == "" {
		errs = append(errs, fmt.Errorf("auth_dir is required"))
	}

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir is required"))
	}

	if c.Log.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("log.max_size_mb must be positive"))
	}

	if c.Usage.FlushInterval != "" {
		if _, err := time.ParseDuration(c.Usage.FlushInterval); err != nil {
			errs = append(errs, fmt.Errorf("usage.flush_interval: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// DeriveBackendPort computes the backend port paired with a front
// port: frontPort + 10000, wrapping into the high ephemeral range
// (49152 + frontPort mod 1000) when the addition would exceed 65535.
// The result is always distinct from frontPort: the wrapped range
// tops out at 50151, below the 55536 threshold that triggers it.
func DeriveBackendPort(frontPort uint16) uint16 {
	// Work in int: frontPort + 10000 overflows uint16 for high ports.
	candidate := int(frontPort) + 10000
	if candidate > 65535 {
		candidate = 49152 + int(frontPort)%1000
	}
	return uint16(candidate)
}

// EffectiveBackendPort returns BackendPort when set, otherwise the
// port derived from Port.
func (c *Config) EffectiveBackendPort() uint16 {
	if c.BackendPort != 0 {
		return c.BackendPort
	}
	return DeriveBackendPort(c.Port)
}

// LogFile returns the backend log path, defaulting to backend.log
// under DataDir.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "backend.log")
}

// HistoryFile returns the usage history path, defaulting to
// usage.cbor.zst under DataDir.
func (c *Config) HistoryFile() string {
	if c.Usage.HistoryFile != "" {
		return c.Usage.HistoryFile
	}
	return filepath.Join(c.DataDir, "usage.cbor.zst")
}

// FlushInterval returns the parsed usage flush interval, falling back
// to 30s when the field is empty or malformed.
func (c *Config) FlushInterval() time.Duration {
	if c.Usage.FlushInterval == "" {
		return defaultFlushInterval
	}
	interval, err := time.ParseDuration(c.Usage.FlushInterval)
	if err != nil || interval <= 0 {
		return defaultFlushInterval
	}
	return interval
}

// EnsureDirs creates DataDir and AuthDir if they don't exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.AuthDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
