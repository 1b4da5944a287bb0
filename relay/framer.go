// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"
)

// errMalformedRequest classifies inbound bytes that can never frame as
// an HTTP/1.1 request: bad encoding, a missing or short request line,
// an unparseable Content-Length, or a body cut off by EOF. The handler
// answers it with a synthesized 400 and never contacts the backend.
var errMalformedRequest = errors.New("malformed request")

// errIncompleteRequest classifies a connection that closed before the
// request headers completed — port probes, half-open sockets. There is
// no request to answer, so the handler just logs and closes.
var errIncompleteRequest = errors.New("connection closed before request completed")

// headerBoundary separates the header block from the body.
var headerBoundary = []byte("\r\n\r\n")

// headerField is one request header with its original casing.
// Matching against the forwarding exclusion set is case-insensitive.
type headerField struct {
	name  string
	value string
}

// framedRequest is one complete inbound HTTP/1.1 request. Immutable
// once built: either the declared body is fully present, or framing
// failed and nothing reaches the forwarder. Partial requests are never
// forwarded.
type framedRequest struct {
	method  string
	path    string
	version string
	headers []headerField // ordered, duplicates preserved
	body    []byte
}

// framer accumulates inbound bytes until exactly one complete request
// has been framed: headers terminated by \r\n\r\n, plus Content-Length
// bytes of body when the header is present. There is no chunked
// request body support.
type framer struct {
	buffer      []byte
	request     *framedRequest // header section parsed, body pending
	bodyStart   int            // offset just past the header boundary
	bodyLength  int            // declared Content-Length, 0 when absent
	headersDone bool
}

// feed appends one chunk and reports whether a complete request is now
// available from take. Framing failures return errMalformedRequest
// wrapped with the particular violation.
func (f *framer) feed(chunk []byte) (bool, error) {
	f.buffer = append(f.buffer, chunk...)

	if !f.headersDone {
		boundary := bytes.Index(f.buffer, headerBoundary)
		if boundary < 0 {
			return false, nil
		}

		request, bodyLength, err := parseHeaderBlock(f.buffer[:boundary])
		if err != nil {
			return false, err
		}

		f.request = request
		f.bodyStart = boundary + len(headerBoundary)
		f.bodyLength = bodyLength
		f.headersDone = true
	}

	return len(f.buffer) >= f.bodyStart+f.bodyLength, nil
}

// take returns the framed request. Valid only after feed has reported
// completion.
func (f *framer) take() *framedRequest {
	f.request.body = f.buffer[f.bodyStart : f.bodyStart+f.bodyLength]
	return f.request
}

// received returns how many bytes have been accumulated.
func (f *framer) received() int {
	return len(f.buffer)
}

// missingBodyBytes returns how many declared body bytes have not
// arrived yet. Only meaningful once the headers are done.
func (f *framer) missingBodyBytes() int {
	return f.bodyStart + f.bodyLength - len(f.buffer)
}

// parseHeaderBlock parses the request line and header fields from the
// bytes preceding the end-of-headers boundary. Header names keep their
// original case; values are trimmed of surrounding whitespace. Lines
// without a colon are skipped rather than rejected — this is a
// forwarding relay, not a validator.
func parseHeaderBlock(block []byte) (*framedRequest, int, error) {
	if !utf8.Valid(block) {
		return nil, 0, fmt.Errorf("%w: header block is not valid UTF-8", errMalformedRequest)
	}

	lines := strings.Split(string(block), "\r\n")

	tokens := strings.Fields(lines[0])
	if len(tokens) < 3 {
		return nil, 0, fmt.Errorf("%w: request line %q has %d tokens, need 3",
			errMalformedRequest, lines[0], len(tokens))
	}

	request := &framedRequest{
		method:  tokens[0],
		path:    tokens[1],
		version: tokens[2],
	}

	bodyLength := 0
	haveLength := false
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		field := headerField{name: name, value: strings.TrimSpace(value)}
		request.headers = append(request.headers, field)

		if !haveLength && strings.EqualFold(name, "Content-Length") {
			parsed, err := strconv.Atoi(field.value)
			if err != nil || parsed < 0 {
				return nil, 0, fmt.Errorf("%w: content-length %q is not a valid length",
					errMalformedRequest, field.value)
			}
			bodyLength = parsed
			haveLength = true
		}
	}

	return request, bodyLength, nil
}

// readFramedRequest reads from the client until one complete request
// has been framed, returning it with the total byte count received.
// The loop is explicitly iterative: each pass reads at most chunkSize
// bytes and re-feeds the framer, so arbitrarily fragmented delivery
// costs buffer growth, never stack growth.
func readFramedRequest(conn net.Conn) (*framedRequest, int, error) {
	f := &framer{}
	buffer := make([]byte, chunkSize)

	for {
		n, readErr := conn.Read(buffer)
		if n > 0 {
			done, err := f.feed(buffer[:n])
			if err != nil {
				return nil, f.received(), err
			}
			if done {
				return f.take(), f.received(), nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if f.headersDone {
					return nil, f.received(), fmt.Errorf(
						"%w: connection closed %d bytes short of the declared content-length",
						errMalformedRequest, f.missingBodyBytes())
				}
				return nil, f.received(), errIncompleteRequest
			}
			return nil, f.received(), fmt.Errorf("reading request: %w", readErr)
		}
	}
}
