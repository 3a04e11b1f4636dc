// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"fmt"
)

// ErrMalformed is the sentinel for events lacking a field (or carrying an
// invalid one) that a requested operation needs. Match it with errors.Is;
// use errors.As with *MalformedError for the field and reason.
var ErrMalformed = errors.New("malformed event")

// MalformedError describes which field of which event made an operation
// impossible.
type MalformedError struct {
	// EventID identifies the event, if it had one.
	EventID string
	// Field is the PDU field name (e.g., "type", "state_key").
	Field string
	// Reason is a human-readable description of the problem.
	Reason string
}

func (e *MalformedError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("malformed event: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed event %s: %s: %s", e.EventID, e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrMalformed) match.
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Malformed builds a *MalformedError for ev (which may be nil).
func Malformed(ev *Event, field, reason string) error {
	err := &MalformedError{Field: field, Reason: reason}
	if ev != nil {
		err.EventID = ev.EventID.String()
	}
	return err
}
