// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Port != 8317 {
		t.Errorf("expected port=8317, got %d", cfg.Port)
	}

	if cfg.BackendPort != 0 {
		t.Errorf("expected backend_port=0 (derived), got %d", cfg.BackendPort)
	}

	if !strings.HasSuffix(cfg.AuthDir, ".cli-proxy-api") {
		t.Errorf("expected auth_dir under ~/.cli-proxy-api, got %s", cfg.AuthDir)
	}

	if !strings.HasSuffix(cfg.DataDir, ".quotio") {
		t.Errorf("expected data_dir under ~/.quotio, got %s", cfg.DataDir)
	}

	if cfg.Log.MaxSizeMB != 100 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 28 {
		t.Errorf("unexpected log rotation defaults: %+v", cfg.Log)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file should return defaults, got error: %v", err)
	}

	if cfg.Port != 8317 {
		t.Errorf("expected default port=8317, got %d", cfg.Port)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
port: 9000
backend_port: 19000
backend_binary: /opt/bin/cli-proxy-api

log:
  max_size_mb: 50
  compress: true

usage:
  flush_interval: 5s
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port=9000, got %d", cfg.Port)
	}

	if cfg.BackendPort != 19000 {
		t.Errorf("expected backend_port=19000, got %d", cfg.BackendPort)
	}

	if cfg.BackendBinary != "/opt/bin/cli-proxy-api" {
		t.Errorf("expected backend_binary=/opt/bin/cli-proxy-api, got %s", cfg.BackendBinary)
	}

	if cfg.Log.MaxSizeMB != 50 {
		t.Errorf("expected max_size_mb=50, got %d", cfg.Log.MaxSizeMB)
	}

	if !cfg.Log.Compress {
		t.Error("expected compress=true")
	}

	// Fields the file doesn't mention keep their defaults.
	if cfg.Log.MaxBackups != 3 {
		t.Errorf("expected default max_backups=3, got %d", cfg.Log.MaxBackups)
	}

	if cfg.FlushInterval() != 5*time.Second {
		t.Errorf("expected flush interval 5s, got %s", cfg.FlushInterval())
	}
}

func TestLoad_ExpandsHome(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
auth_dir: ~/custom-auth
data_dir: ~/custom-data
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	if cfg.AuthDir != filepath.Join(homeDir, "custom-auth") {
		t.Errorf("expected ~ expansion in auth_dir, got %s", cfg.AuthDir)
	}

	if cfg.DataDir != filepath.Join(homeDir, "custom-data") {
		t.Errorf("expected ~ expansion in data_dir, got %s", cfg.DataDir)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("port: [not a port"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error for malformed YAML, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "zero port",
			modify: func(c *Config) {
				c.Port = 0
			},
			wantErr: true,
		},
		{
			name: "backend port equals port",
			modify: func(c *Config) {
				c.BackendPort = c.Port
			},
			wantErr: true,
		},
		{
			name: "distinct explicit backend port",
			modify: func(c *Config) {
				c.BackendPort = 18317
			},
			wantErr: false,
		},
		{
			name: "empty auth dir",
			modify: func(c *Config) {
				c.AuthDir = ""
			},
			wantErr: true,
		},
		{
			name: "empty data dir",
			modify: func(c *Config) {
				c.DataDir = ""
			},
			wantErr: true,
		},
		{
			name: "non-positive log size",
			modify: func(c *Config) {
				c.Log.MaxSizeMB = 0
			},
			wantErr: true,
		},
		{
			name: "malformed flush interval",
			modify: func(c *Config) {
				c.Usage.FlushInterval = "every so often"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeriveBackendPort(t *testing.T) {
	tests := []struct {
		front uint16
		want  uint16
	}{
		{front: 8317, want: 18317},
		{front: 80, want: 10080},
		{front: 55535, want: 65535},  // last front port before the wrap
		{front: 55536, want: 49688},  // 49152 + 536
		{front: 60000, want: 49152},  // 49152 + 0
		{front: 65535, want: 49687},  // 49152 + 535
	}

	for _, tt := range tests {
		got := DeriveBackendPort(tt.front)
		if got != tt.want {
			t.Errorf("DeriveBackendPort(%d) = %d, want %d", tt.front, got, tt.want)
		}
		if got == tt.front {
			t.Errorf("DeriveBackendPort(%d) returned the front port itself", tt.front)
		}
	}
}

func TestEffectiveBackendPort(t *testing.T) {
	cfg := Default()

	if got := cfg.EffectiveBackendPort(); got != 18317 {
		t.Errorf("expected derived backend port 18317, got %d", got)
	}

	cfg.BackendPort = 9123
	if got := cfg.EffectiveBackendPort(); got != 9123 {
		t.Errorf("expected explicit backend port 9123, got %d", got)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/srv/quotio"

	if got := cfg.LogFile(); got != "/srv/quotio/backend.log" {
		t.Errorf("expected log file under data dir, got %s", got)
	}

	if got := cfg.HistoryFile(); got != "/srv/quotio/usage.cbor.zst" {
		t.Errorf("expected history file under data dir, got %s", got)
	}

	// Explicit settings win over the derived paths.
	cfg.Log.File = "/var/log/quotio.log"
	cfg.Usage.HistoryFile = "/var/lib/quotio/usage.cbor.zst"

	if got := cfg.LogFile(); got != "/var/log/quotio.log" {
		t.Errorf("expected explicit log file, got %s", got)
	}

	if got := cfg.HistoryFile(); got != "/var/lib/quotio/usage.cbor.zst" {
		t.Errorf("expected explicit history file, got %s", got)
	}
}

func TestFlushInterval(t *testing.T) {
	cfg := Default()

	if got := cfg.FlushInterval(); got != 30*time.Second {
		t.Errorf("expected default flush interval 30s, got %s", got)
	}

	cfg.Usage.FlushInterval = "2m"
	if got := cfg.FlushInterval(); got != 2*time.Minute {
		t.Errorf("expected flush interval 2m, got %s", got)
	}

	cfg.Usage.FlushInterval = "garbage"
	if got := cfg.FlushInterval(); got != 30*time.Second {
		t.Errorf("expected fallback flush interval 30s, got %s", got)
	}
}

func TestEnsureDirs(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.DataDir = filepath.Join(tmpDir, "quotio")
	cfg.AuthDir = filepath.Join(tmpDir, "auth")

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.AuthDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", dir)
		}
	}
}
