// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/codec"
)

// maxPDUSize is the Matrix limit on a serialized PDU.
const maxPDUSize = 65536

// ParseJSON decodes a federation-format PDU. Identifier fields are
// validated by their ref types; structural rules are left to Conforms so
// that callers can decide whether non-conformance is fatal.
func ParseJSON(data []byte) (*Event, error) {
	if len(data) > maxPDUSize {
		return nil, &MalformedError{Field: "pdu", Reason: fmt.Sprintf("%d bytes exceeds the %d byte limit", len(data), maxPDUSize)}
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &MalformedError{Field: "pdu", Reason: err.Error()}
	}
	if ev.Content == nil {
		ev.Content = map[string]any{}
	}
	return &ev, nil
}

// MarshalJSON is a convenience for the federation boundary and the CLI.
func MarshalJSON(ev *Event) ([]byte, error) {
	return json.Marshal(ev)
}

// EncodeBody returns the deterministic CBOR form stored in the event
// store's body column (before compression framing).
func EncodeBody(ev *Event) ([]byte, error) {
	return codec.Marshal(ev)
}

// DecodeBody reverses EncodeBody.
func DecodeBody(data []byte) (*Event, error) {
	var ev Event
	if err := codec.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding stored event body: %w", err)
	}
	if ev.Content == nil {
		ev.Content = map[string]any{}
	}
	return &ev, nil
}

// DecodeBodyMap decodes a stored body into a generic map, for property
// lookups that have no dedicated column.
func DecodeBodyMap(data []byte) (map[string]any, error) {
	var body map[string]any
	if err := codec.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding stored event body: %w", err)
	}
	return body, nil
}
