// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/eventgraph/lib/clock"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{InMemory: true, BloomBitsPerKey: 10, CacheSize: 1 << 20}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

func commit(t *testing.T, txn *Txn) {
	t.Helper()
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestGetSetDelete(t *testing.T) {
	db := openTestDB(t)
	key := keys.EventIdxKey(ref.MustParseEventID("$a"))

	if _, err := db.Get(keys.ColumnEventIdx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	txn := db.NewTxn()
	if err := txn.Set(keys.ColumnEventIdx, key, event.Idx(7).Bytes()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	commit(t, txn)

	value, err := db.Get(keys.ColumnEventIdx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if idx, _ := event.IdxFromBytes(value); idx != 7 {
		t.Errorf("Get = idx %d, want 7", idx)
	}

	// The same key bytes in another column are a different entry.
	if found, err := Has(db, keys.ColumnRoomHead, key); err != nil || found {
		t.Errorf("Has(other column) = %v, %v, want false, nil", found, err)
	}

	txn = db.NewTxn()
	if err := txn.Delete(keys.ColumnEventIdx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	commit(t, txn)
	if found, err := Has(db, keys.ColumnEventIdx, key); err != nil || found {
		t.Errorf("Has(deleted) = %v, %v, want false, nil", found, err)
	}
}

func TestTxnReadsOwnWrites(t *testing.T) {
	db := openTestDB(t)
	key := []byte("$staged")

	txn := db.NewTxn()
	defer txn.Discard()
	if err := txn.Set(keys.ColumnEventIdx, key, []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if found, err := Has(txn, keys.ColumnEventIdx, key); err != nil || !found {
		t.Errorf("Has(txn) = %v, %v, want true, nil", found, err)
	}
	if found, err := Has(db, keys.ColumnEventIdx, key); err != nil || found {
		t.Errorf("Has(db) before commit = %v, %v, want false, nil", found, err)
	}
}

func TestStagingApply(t *testing.T) {
	db := openTestDB(t)
	txn := db.NewTxn()
	defer txn.Discard()

	staging := db.NewStaging()
	if err := staging.Set(keys.ColumnEventIdx, []byte("$x"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := staging.Get(keys.ColumnEventIdx, []byte("$x")); err == nil {
		t.Error("staging transaction allowed a read")
	}
	if err := txn.Apply(staging); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	staging.Discard()

	if txn.Count() != 1 {
		t.Errorf("Count() = %d, want 1", txn.Count())
	}
	if found, _ := Has(txn, keys.ColumnEventIdx, []byte("$x")); !found {
		t.Error("applied mutation not visible in the transaction")
	}
	commit(t, txn)
	if err := txn.Set(keys.ColumnEventIdx, []byte("$y"), nil); !errors.Is(err, ErrTxnClosed) {
		t.Errorf("Set after Commit error = %v, want ErrTxnClosed", err)
	}
}

func TestTimelineIteratesNewestFirst(t *testing.T) {
	db := openTestDB(t)
	room := ref.MustParseRoomID("!r:example.org")
	otherRoom := ref.MustParseRoomID("!s:example.org")

	txn := db.NewTxn()
	entries := []struct {
		room  ref.RoomID
		depth int64
		idx   event.Idx
	}{
		{room, 1, 1}, {room, 3, 4}, {room, 2, 2}, {room, 2, 3}, {otherRoom, 9, 5},
	}
	for _, entry := range entries {
		key, err := keys.RoomEventsKey(entry.room, entry.depth, entry.idx)
		if err != nil {
			t.Fatalf("RoomEventsKey: %v", err)
		}
		if err := txn.Set(keys.ColumnRoomEvents, key, nil); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	commit(t, txn)

	iter, err := db.NewIter(keys.ColumnRoomEvents, keys.RoomEventsPrefix(room))
	if err != nil {
		t.Fatalf("NewIter: %v", err)
	}
	defer iter.Close()

	var got []event.Idx
	for valid := iter.First(); valid; valid = iter.Next() {
		tuple, err := keys.Decode(keys.ColumnRoomEvents, iter.Key())
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got = append(got, tuple.Idx)
	}
	if err := iter.Error(); err != nil {
		t.Fatalf("iteration: %v", err)
	}
	want := []event.Idx{4, 3, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("iterated %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("iterated %v, want %v", got, want)
			break
		}
	}

	if !iter.Last() {
		t.Fatal("Last() found nothing")
	}
	tuple, _ := keys.Decode(keys.ColumnRoomEvents, iter.Key())
	if tuple.Idx != 1 {
		t.Errorf("Last() = idx %d, want the oldest event 1", tuple.Idx)
	}
}

func TestLastKey(t *testing.T) {
	db := openTestDB(t)
	if _, err := LastKey(db, keys.ColumnEventID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LastKey(empty) error = %v, want ErrNotFound", err)
	}
	txn := db.NewTxn()
	for _, idx := range []event.Idx{3, 300, 12} {
		if err := txn.Set(keys.ColumnEventID, keys.IdxKey(idx), nil); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	commit(t, txn)
	last, err := LastKey(db, keys.ColumnEventID)
	if err != nil {
		t.Fatalf("LastKey: %v", err)
	}
	if idx, _ := event.IdxFromBytes(last); idx != 300 {
		t.Errorf("LastKey = idx %d, want 300", idx)
	}
}

func TestCollectorRegisters(t *testing.T) {
	db := openTestDB(t)
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(db)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("collector produced no metric families")
	}
}

func TestRunCompaction(t *testing.T) {
	db := openTestDB(t)
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- db.RunCompaction(ctx, "* * * * *", fake) }()

	fake.WaitForWaiters(1)
	fake.Advance(30 * time.Second)
	// The scheduler registers its next wait only after compacting.
	fake.WaitForWaiters(1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunCompaction error = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("RunCompaction did not stop after cancellation")
	}
}

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule("0 3 * * *"); err != nil {
		t.Errorf("ValidateSchedule(valid) = %v", err)
	}
	if err := ValidateSchedule("every tuesday"); err == nil {
		t.Error("ValidateSchedule accepted an invalid expression")
	}
}
