// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Quotio.
//
// Configuration lives in a single file, ~/.quotio/config.yaml by
// default ([DefaultPath]). A missing file is not an error: [Load]
// returns the defaults, so a fresh install works with no setup.
// Environment variables never override config values.
//
// Derived values resolve through accessors rather than being frozen
// at load time: [Config.EffectiveBackendPort] applies the port
// derivation when backend_port is unset, and [Config.LogFile] and
// [Config.HistoryFile] place their files under data_dir unless given
// explicitly. Overriding data_dir therefore retargets everything
// stored beneath it.
//
// [DeriveBackendPort] is the pairing rule between the relay's front
// port and the backend's port: frontPort + 10000, wrapping into the
// high ephemeral range when that would exceed 65535. The supervisor
// and the CLI both consume it; the relay itself never derives ports,
// it only requires that the two it is given are distinct.
//
// This package depends on no other Quotio packages.
package config
