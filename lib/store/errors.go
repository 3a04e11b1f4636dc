// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/bureau-foundation/eventgraph/lib/keys"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// ErrStorage matches every *StorageError.
var ErrStorage = errors.New("storage failure")

// StorageError is an I/O or corruption failure reported by pebble.
type StorageError struct {
	// Op is the store operation that failed ("get", "commit", ...).
	Op string
	// Column is the column involved, or zero for whole-database
	// operations.
	Column keys.Column
	Err    error
}

func (e *StorageError) Error() string {
	if e.Column == 0 {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Column, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// wrapError maps pebble errors onto the package's taxonomy.
func wrapError(op string, column keys.Column, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	return &StorageError{Op: op, Column: column, Err: err}
}
