// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Quotio's standard CBOR encoding configuration.
//
// Quotio uses two serialization formats with a clear boundary:
//
//   - YAML and JSON for surfaces a person or another program reads:
//     the config file, the generated backend config, CLI output, and
//     the provider API responses the CLI parses.
//   - CBOR for Quotio's own on-disk state, today the usage history
//     file. These bytes are written and read only by Quotio binaries.
//
// This package provides the shared encoding and decoding modes so that
// every writer encodes identically without duplicating configuration.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types serialized through this package carry `cbor` struct tags; a
// type that also participates in JSON output carries `json` tags
// instead (fxamacker/cbor reads them as fallback). Never both on the
// same field — the tag documents which contract the type serves.
//
// This package depends on no other Quotio packages.
package codec
