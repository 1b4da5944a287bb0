// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// backendConfig mirrors the slice of CLIProxyAPI's config file the
// supervisor controls. Keys follow the backend's kebab-case
// convention.
type backendConfig struct {
	Host    string         `yaml:"host"`
	Port    uint16         `yaml:"port"`
	AuthDir string         `yaml:"auth-dir"`
	Debug   bool           `yaml:"debug"`
	Routing backendRouting `yaml:"routing"`
}

type backendRouting struct {
	Strategy string `yaml:"strategy"`
}

// writeBackendConfig renders the config the backend is started with.
// The host is pinned to loopback: the relay is the backend's only
// intended client, and the backend fronts credentialed provider access
// with no authentication of its own.
func writeBackendConfig(path string, port uint16, authDir string) error {
	cfg := backendConfig{
		Host:    "127.0.0.1",
		Port:    port,
		AuthDir: authDir,
		Routing: backendRouting{Strategy: "round-robin"},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling backend config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing backend config: %w", err)
	}
	return nil
}
