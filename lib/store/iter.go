// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"github.com/cockroachdb/pebble"

	"github.com/bureau-foundation/eventgraph/lib/keys"
)

// Iter walks the keys of one column within a prefix, in the column's
// order. Key and Value return slices that are only valid until the next
// positioning call; clone them to keep them.
type Iter struct {
	iterator *pebble.Iterator
	column   keys.Column
}

// First moves to the first key in range.
func (i *Iter) First() bool { return i.iterator.First() }

// Last moves to the last key in range.
func (i *Iter) Last() bool { return i.iterator.Last() }

// Next moves forward.
func (i *Iter) Next() bool { return i.iterator.Next() }

// Prev moves backward.
func (i *Iter) Prev() bool { return i.iterator.Prev() }

// SeekGE moves to the first key >= key (key excludes the column byte).
func (i *Iter) SeekGE(key []byte) bool {
	return i.iterator.SeekGE(columnKey(i.column, key))
}

// SeekLT moves to the last key < key.
func (i *Iter) SeekLT(key []byte) bool {
	return i.iterator.SeekLT(columnKey(i.column, key))
}

// Valid reports whether the iterator is positioned on a key.
func (i *Iter) Valid() bool { return i.iterator.Valid() }

// Key returns the current key without its column byte.
func (i *Iter) Key() []byte { return i.iterator.Key()[1:] }

// Value returns the current value.
func (i *Iter) Value() []byte { return i.iterator.Value() }

// Error returns any accumulated iteration error.
func (i *Iter) Error() error {
	return wrapError("iterate", i.column, i.iterator.Error())
}

// Close releases the iterator.
func (i *Iter) Close() error {
	return wrapError("iterate", i.column, i.iterator.Close())
}
