// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// EventID names one PDU. Room versions 4 and later use "$" plus the
// unpadded base64 reference hash; earlier versions use "$opaque:server".
// Both forms are stored verbatim as index key fields, so parsing only
// insists on the sigil, a non-empty body and key-safe bytes.
type EventID struct {
	id string
}

// ParseEventID checks raw and returns it as an EventID.
func ParseEventID(raw string) (EventID, error) {
	switch {
	case raw == "":
		return EventID{}, fmt.Errorf("empty event ID")
	case raw[0] != '$':
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	case len(raw) == 1:
		return EventID{}, fmt.Errorf("event ID has no content after '$': %q", raw)
	}
	if err := validateOpaque(raw, "event ID"); err != nil {
		return EventID{}, err
	}
	return EventID{id: raw}, nil
}

// MustParseEventID panics when raw does not parse. Fixtures only.
func MustParseEventID(raw string) EventID {
	id, err := ParseEventID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseEventID(%q): %v", raw, err))
	}
	return id
}

func (e EventID) String() string { return e.id }

// IsZero reports whether e was never set. A zero EventID appears in PDUs
// for absent optional references such as redacts.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText renders the zero EventID as an empty string.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.id), nil
}

// UnmarshalText parses data, mapping empty input to the zero EventID.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
