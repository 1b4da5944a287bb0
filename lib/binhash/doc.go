// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides SHA256 content hashing for binary files.
//
// The supervisor logs the backend binary's digest every time it spawns
// the process. The backend is installed and upgraded out of band, so
// when a log line says the backend misbehaved, the digest pins exactly
// which build was running — a version string in the binary's output
// can lag the build, the digest cannot.
//
//   - [HashFile] streams a file through SHA256, returning a [32]byte
//     digest with constant memory usage regardless of file size.
//   - [FormatDigest] converts a digest to its hex string form for logs.
//
// This package has no dependencies on other Quotio packages.
package binhash
