// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// backendBinaryName is the executable the supervisor manages.
const backendBinaryName = "CLIProxyAPI"

// discoverBinary locates the backend executable. An explicit
// backend_binary config value wins and must point at an executable
// file; otherwise the standard install locations are probed in order,
// ending with PATH.
func (s *Supervisor) discoverBinary() (string, error) {
	if explicit := s.Config.BackendBinary; explicit != "" {
		if !isExecutableFile(explicit) {
			return "", fmt.Errorf("supervisor: backend_binary %s is not an executable file", explicit)
		}
		return explicit, nil
	}

	homeDir, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(s.Config.DataDir, backendBinaryName),
		filepath.Join("/usr/local/bin", backendBinaryName),
		filepath.Join(homeDir, ".local", "bin", backendBinaryName),
	}
	for _, candidate := range candidates {
		if isExecutableFile(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(backendBinaryName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("supervisor: %s not found (checked %s, /usr/local/bin, ~/.local/bin, and PATH); install it or set backend_binary in the config",
		backendBinaryName, s.Config.DataDir)
}

// isExecutableFile reports whether path is a regular file with an
// execute bit set.
func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}
