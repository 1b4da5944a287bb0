// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
)

// splitOutbound separates a serialized request into header lines and
// body for assertion.
func splitOutbound(t *testing.T, outbound []byte) (lines []string, body []byte) {
	t.Helper()
	boundary := bytes.Index(outbound, []byte("\r\n\r\n"))
	if boundary < 0 {
		t.Fatalf("outbound request has no header boundary: %q", outbound)
	}
	return strings.Split(string(outbound[:boundary]), "\r\n"), outbound[boundary+4:]
}

// TestBuildOutboundRequest_HeaderRewrite checks the rewrite invariant:
// none of connection, content-length, host, or transfer-encoding
// survives from the original request, whatever its casing, and the
// outbound request carries exactly one Connection: close, one Host for
// the backend, and a Content-Length matching the body actually sent.
func TestBuildOutboundRequest_HeaderRewrite(t *testing.T) {
	request := &framedRequest{
		method:  "POST",
		path:    "/v1/chat/completions",
		version: "HTTP/1.1",
		headers: []headerField{
			{name: "Host", value: "example.com:9999"},
			{name: "CONNECTION", value: "keep-alive"},
			{name: "content-length", value: "999"},
			{name: "Transfer-Encoding", value: "chunked"},
			{name: "Authorization", value: "Bearer token"},
			{name: "X-Custom", value: "one"},
			{name: "X-Custom", value: "two"},
		},
		body: []byte(`{"model":"gpt-4o"}`),
	}

	lines, body := splitOutbound(t, buildOutboundRequest(request, 18317))

	if lines[0] != "POST /v1/chat/completions HTTP/1.1" {
		t.Errorf("request line = %q", lines[0])
	}

	counts := map[string]int{}
	for _, line := range lines[1:] {
		name, _, found := strings.Cut(line, ":")
		if !found {
			t.Errorf("header line without colon: %q", line)
			continue
		}
		counts[strings.ToLower(name)]++
	}

	if counts["connection"] != 1 {
		t.Errorf("connection header count = %d, want 1", counts["connection"])
	}
	if counts["host"] != 1 {
		t.Errorf("host header count = %d, want 1", counts["host"])
	}
	if counts["content-length"] != 1 {
		t.Errorf("content-length header count = %d, want 1", counts["content-length"])
	}
	if counts["transfer-encoding"] != 0 {
		t.Errorf("transfer-encoding leaked through")
	}

	joined := strings.Join(lines[1:], "\n")
	if !strings.Contains(joined, "Connection: close") {
		t.Errorf("missing Connection: close in %q", joined)
	}
	if !strings.Contains(joined, "Host: 127.0.0.1:18317") {
		t.Errorf("missing backend Host header in %q", joined)
	}
	if !strings.Contains(joined, "Content-Length: 18") {
		t.Errorf("missing recomputed Content-Length in %q", joined)
	}
	if !strings.Contains(joined, "Authorization: Bearer token") {
		t.Errorf("passthrough header dropped from %q", joined)
	}

	// Duplicates of non-stripped headers survive in order.
	first := strings.Index(joined, "X-Custom: one")
	second := strings.Index(joined, "X-Custom: two")
	if first < 0 || second < 0 || second < first {
		t.Errorf("duplicate headers not preserved in order: %q", joined)
	}

	if string(body) != `{"model":"gpt-4o"}` {
		t.Errorf("body = %q", body)
	}
}

func TestBuildOutboundRequest_EmptyBody(t *testing.T) {
	request := &framedRequest{
		method:  "GET",
		path:    "/v1/models",
		version: "HTTP/1.1",
	}

	lines, body := splitOutbound(t, buildOutboundRequest(request, 9000))

	if len(body) != 0 {
		t.Errorf("expected empty body, got %q", body)
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Content-Length: 0") {
		t.Errorf("missing zero Content-Length in %q", joined)
	}
	if !strings.Contains(joined, "Host: 127.0.0.1:9000") {
		t.Errorf("missing backend Host header in %q", joined)
	}
}

func TestSynthesizeResponse_WireFormat(t *testing.T) {
	got := synthesizeResponse(400, "malformed request")
	want := "HTTP/1.1 400 Bad Request\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 17\r\n" +
		"Connection: close\r\n" +
		"\r\n" +
		"malformed request"
	if string(got) != want {
		t.Errorf("synthesized 400:\ngot  %q\nwant %q", got, want)
	}

	got = synthesizeResponse(502, "cannot connect to backend")
	if !bytes.HasPrefix(got, []byte("HTTP/1.1 502 Bad Gateway\r\n")) {
		t.Errorf("synthesized 502 status line wrong: %q", got)
	}
	if !bytes.Contains(got, []byte("Connection: close\r\n")) {
		t.Errorf("synthesized 502 missing Connection: close: %q", got)
	}

	got = synthesizeResponse(500, "internal error")
	if !bytes.HasPrefix(got, []byte("HTTP/1.1 500 Internal Server Error\r\n")) {
		t.Errorf("synthesized 500 status line wrong: %q", got)
	}
}

// TestForwardResponse_Streams pushes a response through forwardResponse
// across two in-memory pipes and checks that every byte reaches the
// client while only the first 100 are retained for status parsing.
func TestForwardResponse_Streams(t *testing.T) {
	backendSide, backendRelay := net.Pipe()
	clientSide, clientRelay := net.Pipe()

	// 41 header bytes leave 4959 for the body.
	response := make([]byte, 5000)
	copy(response, []byte("HTTP/1.1 200 OK\r\nContent-Length: 4959\r\n\r\n"))
	for i := 41; i < len(response); i++ {
		response[i] = byte('a' + i%23)
	}

	var written int64
	var prefix []byte
	var forwardErr error
	var forwardDone sync.WaitGroup
	forwardDone.Add(1)
	go func() {
		defer forwardDone.Done()
		defer clientRelay.Close()
		written, prefix, forwardErr = forwardResponse(backendRelay, clientRelay)
	}()

	go func() {
		backendSide.Write(response)
		backendSide.Close()
	}()

	received, err := io.ReadAll(clientSide)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	forwardDone.Wait()

	if forwardErr != nil {
		t.Fatalf("forwardResponse: %v", forwardErr)
	}
	if !bytes.Equal(received, response) {
		t.Fatalf("client received %d bytes, want %d, content mismatch", len(received), len(response))
	}
	if written != int64(len(response)) {
		t.Errorf("written = %d, want %d", written, len(response))
	}
	if len(prefix) != statusPrefixLimit {
		t.Errorf("prefix length = %d, want %d", len(prefix), statusPrefixLimit)
	}
	if !bytes.Equal(prefix, response[:statusPrefixLimit]) {
		t.Errorf("prefix does not match response head")
	}

	code, ok := parseStatusCode(prefix)
	if !ok || code != 200 {
		t.Errorf("status from prefix = (%d, %v), want (200, true)", code, ok)
	}
}

func TestForwardResponse_ShortResponse(t *testing.T) {
	backendSide, backendRelay := net.Pipe()
	clientSide, clientRelay := net.Pipe()

	response := []byte("HTTP/1.1 204 No Content\r\n\r\n")

	go func() {
		backendSide.Write(response)
		backendSide.Close()
	}()

	done := make(chan struct{})
	var received []byte
	go func() {
		defer close(done)
		received, _ = io.ReadAll(clientSide)
	}()

	written, prefix, err := forwardResponse(backendRelay, clientRelay)
	clientRelay.Close()
	<-done

	if err != nil {
		t.Fatalf("forwardResponse: %v", err)
	}
	if written != int64(len(response)) {
		t.Errorf("written = %d, want %d", written, len(response))
	}
	if !bytes.Equal(received, response) {
		t.Errorf("received %q, want %q", received, response)
	}
	if !bytes.Equal(prefix, response) {
		t.Errorf("prefix should be the whole short response")
	}
}
