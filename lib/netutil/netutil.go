// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small TCP helpers shared by the relay and the
// backend supervisor.
//
// [IsExpectedCloseError] classifies errors that occur during normal
// connection teardown so the relay's streaming loops can tell a peer
// hanging up from a genuine failure. [ProbeTCP] is a one-shot reachability
// check used for backend readiness and status reporting.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection reset.
// These occur routinely when either end of a forwarded request hangs up
// first — the client closing after its CLI tool exits, or the backend
// closing after honoring Connection: close — and should be logged at
// Debug, not treated as failures.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// ProbeTCP reports whether a TCP listener is accepting connections at
// addr. The probe connection is closed immediately; nothing is written.
func ProbeTCP(addr string, timeout time.Duration) bool {
	connection, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	connection.Close()
	return true
}
