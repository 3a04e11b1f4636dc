// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// Get returns one property of the event under idx. See GetIn.
func (s *Store) Get(idx event.Idx, property string) ([]byte, error) {
	return GetIn(s.db, idx, property)
}

// GetIn returns one property of the event under idx, read through
// reader. Properties with a dedicated column are served from it; any
// other property is a dotted path into the stored body. The result is
// store.ErrNotFound both when idx was never assigned and when the event
// has no such property; callers that care check Exists first.
func GetIn(reader store.Reader, idx event.Idx, property string) ([]byte, error) {
	if property == "" {
		return nil, fmt.Errorf("empty property name")
	}
	if column, ok := keys.PropertyColumn(property); ok {
		value, err := reader.Get(column, keys.IdxKey(idx))
		if err == nil && column == keys.ColumnEventID && len(value) == 0 {
			err = store.ErrNotFound
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s of event %d", store.ErrNotFound, property, idx)
		}
		return value, err
	}

	body, err := readBody(reader, idx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: event %d", store.ErrNotFound, idx)
	}
	if err != nil {
		return nil, err
	}
	decoded, err := event.DecodeBodyMap(body)
	if err != nil {
		return nil, &store.StorageError{Op: "decode body", Column: keys.ColumnEventJSON, Err: err}
	}
	value, ok := event.LookupPath(decoded, property)
	if !ok {
		return nil, fmt.Errorf("%w: %s of event %d", store.ErrNotFound, property, idx)
	}
	return event.RawValue(value)
}
