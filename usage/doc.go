// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package usage aggregates relayed request activity into per-provider
// totals and persists them across daemon restarts.
//
// [Tracker] is the live half: it implements [relay.RecordSink], so the
// daemon hands it to the relay and every answered request lands here —
// request and error counts, byte totals, a latency histogram, and
// per-model counts, all keyed by inferred provider, plus a bounded
// ring of the most recent requests for the dashboard's request log.
// [Tracker.Snapshot] returns a deep copy safe to hand to another
// goroutine.
//
// [Save] and [Load] are the durable half: a [Snapshot] round-trips
// through deterministic CBOR and zstd to a single history file. The
// daemon saves on a timer and at shutdown; the CLI's usage command
// loads the same file, so the two sides never need a socket between
// them. Load treats a missing file as an empty history, and
// [FromSnapshot] seeds a new tracker from a loaded one so counts
// survive restarts.
//
// This package depends only on the relay package (for the record type)
// and lib/codec.
package usage
