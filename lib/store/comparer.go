// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"cmp"

	"github.com/cockroachdb/pebble"

	"github.com/bureau-foundation/eventgraph/lib/keys"
)

// comparerName is persisted in the database's OPTIONS file. Pebble
// refuses to open a database written with a different comparer name, so
// it changes whenever any column's ordering changes.
const comparerName = "eventgraph.columns.v1"

// columnComparer orders keys by column byte and then by the column's own
// comparator. Key shortening is disabled (Separator and Successor return
// their input), which keeps index blocks correct for comparators that do
// not agree with bytewise order.
var columnComparer = &pebble.Comparer{
	Name:    comparerName,
	Compare: compareKeys,
	Equal:   bytes.Equal,
	AbbreviatedKey: func(key []byte) uint64 {
		if len(key) == 0 {
			return 0
		}
		return uint64(key[0]) << 56
	},
	Separator: func(dst, a, _ []byte) []byte {
		return append(dst, a...)
	},
	Successor: func(dst, a []byte) []byte {
		return append(dst, a...)
	},
	ImmediateSuccessor: func(dst, a []byte) []byte {
		return append(append(dst, a...), 0)
	},
	Split: func(a []byte) int {
		return len(a)
	},
}

func compareKeys(a, b []byte) int {
	if len(a) == 0 || len(b) == 0 {
		return cmp.Compare(len(a), len(b))
	}
	if a[0] != b[0] {
		return cmp.Compare(a[0], b[0])
	}
	column := keys.Column(a[0])
	if !column.Valid() {
		return bytes.Compare(a[1:], b[1:])
	}
	return keys.Compare(column, a[1:], b[1:])
}

// columnKey prefixes key with its column byte.
func columnKey(column keys.Column, key []byte) []byte {
	full := make([]byte, 0, 1+len(key))
	full = append(full, byte(column))
	return append(full, key...)
}

// prefixUpperBound returns the smallest key greater than every key that
// starts with prefix. For newest-first columns the prefix must end at a
// string field boundary (a NUL) or be the bare column byte; every prefix
// built by lib/keys does.
func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
