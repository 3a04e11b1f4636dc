// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the ordered key-value store underneath the event
// graph: one pebble database holding every column of lib/keys.
//
// Each stored key starts with its column byte. A custom
// pebble.Comparer dispatches on that byte to the column's comparator,
// so timeline columns iterate newest first while the rest sort
// bytewise, and a single [Txn] can update every column atomically.
//
// Reads go through the [Reader] interface, implemented by both [DB]
// (committed data) and [Txn] (committed data overlaid with the
// transaction's staged mutations). Iterators are bounded to one column
// and one key prefix.
//
// Missing keys return [ErrNotFound]. Every other pebble failure is
// wrapped in a [*StorageError] matching [ErrStorage]; callers treat it
// as fatal to the current operation and never retry it silently.
package store
