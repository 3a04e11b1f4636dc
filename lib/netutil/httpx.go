// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds the bounded HTTP response helpers used by the
// federation client.
//
// Every body read is capped. A remote homeserver that streams an endless
// or oversized response gets ErrResponseTooLarge instead of the process
// allocating until it dies. Gzip-encoded bodies are decompressed before
// the cap is applied, so the limit bounds decoded bytes.
package netutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MaxResponseSize bounds federation response bodies: 64 MB. A backfill
// response of a few hundred full PDUs is well under a megabyte.
const MaxResponseSize int64 = 64 << 20

// maxErrorBody bounds the body text quoted in error messages.
const maxErrorBody = 4 << 10

// ErrResponseTooLarge is returned when a response body exceeds its limit.
var ErrResponseTooLarge = errors.New("response body too large")

// ReadLimited reads body up to limit bytes. A body longer than limit is
// an error, not a silent truncation.
func ReadLimited(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return data, nil
}

// ReadResponse reads the body of response up to MaxResponseSize bytes,
// decompressing it when the server sent Content-Encoding: gzip. The
// caller still owns and closes response.Body.
func ReadResponse(response *http.Response) ([]byte, error) {
	body := io.Reader(response.Body)
	if strings.EqualFold(response.Header.Get("Content-Encoding"), "gzip") {
		reader, err := gzip.NewReader(response.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		defer reader.Close()
		body = reader
	}
	return ReadLimited(body, MaxResponseSize)
}

// DecodeResponse reads the body of response and JSON-decodes it into v.
func DecodeResponse(response *http.Response, v any) error {
	data, err := ReadResponse(response)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns the start of an error response body for use in
// diagnostics. Read errors yield whatever was read before them.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return strings.TrimSpace(string(data))
}
