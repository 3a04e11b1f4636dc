// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/bureau-foundation/eventgraph/lib/keys"
)

// ErrTxnClosed is returned by operations on a committed or discarded
// transaction.
var ErrTxnClosed = errors.New("transaction already committed or discarded")

// Txn stages mutations across any number of columns and applies them
// atomically on Commit. A Txn from NewTxn also reads its own staged
// mutations; a staging Txn from NewStaging is write-only and exists to be
// merged into another Txn with Apply.
//
// A Txn is not safe for concurrent use.
type Txn struct {
	db     *DB
	batch  *pebble.Batch
	closed bool
}

// NewTxn starts a read-write transaction.
func (d *DB) NewTxn() *Txn {
	return &Txn{db: d, batch: d.pebble.NewIndexedBatch()}
}

// NewStaging starts a write-only transaction for building a group of
// mutations that is merged into a read-write Txn only if the whole
// group succeeds.
func (d *DB) NewStaging() *Txn {
	return &Txn{db: d, batch: d.pebble.NewBatch()}
}

// Set stages key = value in column.
func (t *Txn) Set(column keys.Column, key, value []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	return wrapError("set", column, t.batch.Set(columnKey(column, key), value, nil))
}

// Delete stages the removal of key from column. Deleting an absent key
// is not an error.
func (t *Txn) Delete(column keys.Column, key []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	return wrapError("delete", column, t.batch.Delete(columnKey(column, key), nil))
}

// Get implements Reader, seeing committed data and this transaction's
// staged mutations.
func (t *Txn) Get(column keys.Column, key []byte) ([]byte, error) {
	if err := t.readable(); err != nil {
		return nil, err
	}
	return get(t.batch, column, key)
}

// NewIter implements Reader, seeing committed data and this
// transaction's staged mutations.
func (t *Txn) NewIter(column keys.Column, prefix []byte) (*Iter, error) {
	if err := t.readable(); err != nil {
		return nil, err
	}
	return newIter(t.batch, column, prefix)
}

func (t *Txn) readable() error {
	if t.closed {
		return ErrTxnClosed
	}
	if !t.batch.Indexed() {
		return errors.New("store: staging transactions are write-only")
	}
	return nil
}

// Apply merges every mutation staged in other into t. other stays open
// and must still be discarded.
func (t *Txn) Apply(other *Txn) error {
	if t.closed || other.closed {
		return ErrTxnClosed
	}
	return wrapError("apply", 0, t.batch.Apply(other.batch, nil))
}

// Count returns the number of staged mutations.
func (t *Txn) Count() int {
	return int(t.batch.Count())
}

// Empty reports whether nothing has been staged.
func (t *Txn) Empty() bool {
	return t.batch.Empty()
}

// Commit applies every staged mutation atomically and closes the
// transaction.
func (t *Txn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	defer t.batch.Close()
	if err := t.batch.Commit(t.db.writeOptions); err != nil {
		return &StorageError{Op: "commit", Err: err}
	}
	return nil
}

// Discard drops every staged mutation. Safe to call after Commit, so
// callers can defer it unconditionally.
func (t *Txn) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	t.batch.Close()
}
