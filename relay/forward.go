// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/quotio/quotio/lib/netutil"
)

// dialTimeout bounds the single connect attempt to the backend. No
// retries at this layer: backend health is the supervisor's job.
const dialTimeout = 5 * time.Second

// chunkSize is the read granularity for both request intake and
// response streaming.
const chunkSize = 4096

// strippedHeaders are removed from the inbound request before
// forwarding, matched case-insensitively. Connection and Host are
// replaced with the relay's own values, Content-Length is recomputed
// from the actual body, and Transfer-Encoding must not leak through
// since chunked request bodies are unsupported.
var strippedHeaders = []string{"connection", "content-length", "host", "transfer-encoding"}

func isStrippedHeader(name string) bool {
	for _, stripped := range strippedHeaders {
		if strings.EqualFold(name, stripped) {
			return true
		}
	}
	return false
}

// buildOutboundRequest serializes the framed request for the backend:
// the original request line and headers minus the stripped set, then
// Host for the backend address, Connection: close so the backend never
// keeps the connection alive, and a Content-Length recomputed from the
// body actually being sent.
func buildOutboundRequest(request *framedRequest, backPort uint16) []byte {
	var builder strings.Builder

	fmt.Fprintf(&builder, "%s %s %s\r\n", request.method, request.path, request.version)
	for _, header := range request.headers {
		if isStrippedHeader(header.name) {
			continue
		}
		fmt.Fprintf(&builder, "%s: %s\r\n", header.name, header.value)
	}
	fmt.Fprintf(&builder, "Host: 127.0.0.1:%d\r\n", backPort)
	builder.WriteString("Connection: close\r\n")
	fmt.Fprintf(&builder, "Content-Length: %d\r\n\r\n", len(request.body))

	return append([]byte(builder.String()), request.body...)
}

// forwardResponse streams the backend's response to the client in
// bounded chunks, each forwarded as soon as it arrives — a streamed
// LLM response reaches the client while the backend is still
// producing it. Only the first statusPrefixLimit bytes are retained,
// for status parsing; the rest is counted and passed through. The
// backend closing cleanly ends the response (it was asked for
// Connection: close); written reports bytes delivered to the client.
func forwardResponse(backend, client net.Conn) (written int64, prefix []byte, err error) {
	buffer := make([]byte, chunkSize)

	for {
		n, readErr := backend.Read(buffer)
		if n > 0 {
			if len(prefix) < statusPrefixLimit {
				take := statusPrefixLimit - len(prefix)
				if take > n {
					take = n
				}
				prefix = append(prefix, buffer[:take]...)
			}

			w, writeErr := client.Write(buffer[:n])
			written += int64(w)
			if writeErr != nil {
				return written, prefix, fmt.Errorf("writing response to client: %w", writeErr)
			}
		}
		if readErr != nil {
			if netutil.IsExpectedCloseError(readErr) {
				return written, prefix, nil
			}
			return written, prefix, fmt.Errorf("reading response from backend: %w", readErr)
		}
	}
}
