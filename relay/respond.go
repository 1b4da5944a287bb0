// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"net"
	"net/http"
)

// synthesizeResponse builds the minimal HTTP/1.1 response the relay
// sends when it must answer for itself: 400 for requests that never
// framed, 502 when the backend cannot be reached, 500 for internal
// failures. Always carries Connection: close.
func synthesizeResponse(statusCode int, message string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		statusCode, http.StatusText(statusCode), len(message), message,
	))
}

// respond writes a synthesized response to the client, returning how
// many bytes were delivered. An error means the client is gone and no
// completion record should claim it was answered.
func respond(conn net.Conn, statusCode int, message string) (int64, error) {
	written, err := conn.Write(synthesizeResponse(statusCode, message))
	return int64(written), err
}
