// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// handleConnection owns one accepted client socket end to end: frame
// the request, forward it over a fresh backend connection, stream the
// response back, emit one completion record. Every failure path
// terminates this connection only — concurrent requests are fully
// isolated from each other.
func (r *Relay) handleConnection(conn net.Conn, connectionID int64, backPort uint16) {
	defer conn.Close()

	r.activeConnections.Add(1)
	defer r.activeConnections.Add(-1)

	start := time.Now()
	logger := r.logger().With("connection_id", connectionID)
	logger.Debug("connection accepted", "remote_addr", conn.RemoteAddr())

	// A handler bug must cost one connection, not the process.
	defer func() {
		if v := recover(); v != nil {
			logger.Error("connection handler panicked", "panic", v)
			respond(conn, http.StatusInternalServerError, "internal error")
		}
	}()

	request, requestBytes, err := readFramedRequest(conn)
	if err != nil {
		if !errors.Is(err, errMalformedRequest) {
			// Nothing parseable arrived before the connection died
			// (port probe, client gave up). Nobody to answer.
			logger.Debug("request never completed",
				"error", err,
				"bytes_received", requestBytes,
			)
			return
		}

		// Answer the malformed request directly; the backend is never
		// contacted. Best effort — the client may already be gone.
		r.totalRequests.Add(1)
		logger.Debug("rejecting malformed request",
			"error", err,
			"bytes_received", requestBytes,
		)
		written, writeErr := respond(conn, http.StatusBadRequest, "malformed request")
		if writeErr != nil {
			return
		}
		r.emit(CompletionRecord{
			Timestamp:     start,
			StatusCode:    http.StatusBadRequest,
			Duration:      time.Since(start),
			RequestBytes:  int64(requestBytes),
			ResponseBytes: written,
		})
		return
	}

	r.totalRequests.Add(1)
	metadata := extractMetadata(request, start)

	backendAddr := fmt.Sprintf("127.0.0.1:%d", backPort)
	backend, err := net.DialTimeout("tcp", backendAddr, dialTimeout)
	if err != nil {
		logger.Info("backend unreachable",
			"backend_addr", backendAddr,
			"error", err,
		)
		r.respondAndRecord(conn, http.StatusBadGateway, "cannot connect to backend",
			metadata, start, requestBytes)
		return
	}
	defer backend.Close()

	if _, err := backend.Write(buildOutboundRequest(request, backPort)); err != nil {
		logger.Info("backend rejected request",
			"backend_addr", backendAddr,
			"error", err,
		)
		r.respondAndRecord(conn, http.StatusBadGateway, "cannot connect to backend",
			metadata, start, requestBytes)
		return
	}

	responseBytes, prefix, streamErr := forwardResponse(backend, conn)
	if streamErr != nil {
		// Mid-stream failure: both sockets close and the client sees
		// a truncated response. Once bytes have been forwarded there
		// is nothing useful left to synthesize.
		logger.Debug("response stream aborted",
			"error", streamErr,
			"bytes_forwarded", responseBytes,
		)
		if responseBytes == 0 {
			return
		}
	}

	// End-of-stream: half-close toward the client before the deferred
	// full close, so it sees a clean EOF after the final chunk.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.CloseWrite()
	}

	statusCode, _ := parseStatusCode(prefix)
	r.emit(CompletionRecord{
		Timestamp:     metadata.timestamp,
		Method:        metadata.method,
		Path:          metadata.path,
		Provider:      metadata.provider,
		Model:         metadata.model,
		StatusCode:    statusCode,
		Duration:      time.Since(start),
		RequestBytes:  int64(requestBytes),
		ResponseBytes: responseBytes,
	})

	logger.Debug("request complete",
		"method", metadata.method,
		"path", metadata.path,
		"status", statusCode,
		"request_bytes", requestBytes,
		"response_bytes", responseBytes,
		"duration", time.Since(start),
	)
}

// respondAndRecord delivers a synthesized response and emits the
// completion record for it. Used on failure paths where the request
// framed but was never answered by the backend.
func (r *Relay) respondAndRecord(conn net.Conn, statusCode int, message string,
	metadata requestMetadata, start time.Time, requestBytes int) {

	written, err := respond(conn, statusCode, message)
	if err != nil {
		return
	}
	r.emit(CompletionRecord{
		Timestamp:     metadata.timestamp,
		Method:        metadata.method,
		Path:          metadata.path,
		Provider:      metadata.provider,
		Model:         metadata.model,
		StatusCode:    statusCode,
		Duration:      time.Since(start),
		RequestBytes:  int64(requestBytes),
		ResponseBytes: written,
	})
}
