// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Quotio packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. Both fail the test via
// t.Fatalf rather than returning errors, since a missed channel signal
// is never recoverable from inside a test.
//
// This package has no Quotio-internal dependencies.
package testutil
