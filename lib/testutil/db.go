// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/bureau-foundation/eventgraph/lib/store"
)

// OpenDB opens an in-memory database closed at test cleanup.
func OpenDB(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.Open(store.Options{InMemory: true, CacheSize: 1 << 20, BloomBitsPerKey: 10}, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("store.Close: %v", err)
		}
	})
	return db
}

// Commit commits txn or fails the test.
func Commit(t testing.TB, txn *store.Txn) {
	t.Helper()
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}
