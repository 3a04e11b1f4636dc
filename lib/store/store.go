// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/bureau-foundation/eventgraph/lib/keys"
)

// Options configures Open.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in a pebble memory filesystem.
	// Intended for tests and throwaway CLI runs.
	InMemory bool

	// CacheSize is the shared block cache size in bytes. The config
	// layer derives it from the per-column cache sizes.
	CacheSize int64

	// BloomBitsPerKey sets the table bloom filter density. Zero
	// disables bloom filters.
	BloomBitsPerKey int

	// Sync makes every commit wait for the WAL to reach stable storage.
	Sync bool
}

// DB is an open event graph database.
type DB struct {
	pebble       *pebble.DB
	writeOptions *pebble.WriteOptions
	logger       *slog.Logger
}

// Open opens (or creates) the database described by options.
func Open(options Options, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if !options.InMemory && options.Path == "" {
		return nil, errors.New("store: path is required unless InMemory is set")
	}

	pebbleOptions := &pebble.Options{
		Comparer: columnComparer,
		Logger:   pebbleLogger{logger: logger},
	}
	if options.InMemory {
		pebbleOptions.FS = vfs.NewMem()
	}
	if options.CacheSize > 0 {
		cache := pebble.NewCache(options.CacheSize)
		defer cache.Unref()
		pebbleOptions.Cache = cache
	}
	if options.BloomBitsPerKey > 0 {
		pebbleOptions.Levels = []pebble.LevelOptions{{
			FilterPolicy: bloom.FilterPolicy(options.BloomBitsPerKey),
			FilterType:   pebble.TableFilter,
		}}
	}

	path := options.Path
	if options.InMemory {
		path = ""
	}
	database, err := pebble.Open(path, pebbleOptions)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	writeOptions := pebble.NoSync
	if options.Sync {
		writeOptions = pebble.Sync
	}
	logger.Info("store opened",
		"path", path,
		"in_memory", options.InMemory,
		"cache_size", options.CacheSize,
		"bloom_bits_per_key", options.BloomBitsPerKey,
	)
	return &DB{pebble: database, writeOptions: writeOptions, logger: logger}, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	if err := d.pebble.Close(); err != nil {
		return &StorageError{Op: "close", Err: err}
	}
	d.logger.Info("store closed")
	return nil
}

// Reader is implemented by DB and Txn.
type Reader interface {
	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(column keys.Column, key []byte) ([]byte, error)

	// NewIter returns an iterator over the keys of column that start
	// with prefix. An empty prefix iterates the whole column.
	NewIter(column keys.Column, prefix []byte) (*Iter, error)
}

// Get implements Reader.
func (d *DB) Get(column keys.Column, key []byte) ([]byte, error) {
	return get(d.pebble, column, key)
}

// NewIter implements Reader.
func (d *DB) NewIter(column keys.Column, prefix []byte) (*Iter, error) {
	return newIter(d.pebble, column, prefix)
}

// Has reports whether key exists in column.
func Has(reader Reader, column keys.Column, key []byte) (bool, error) {
	_, err := reader.Get(column, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// LastKey returns the greatest key of column (in the column's order), or
// ErrNotFound when the column is empty.
func LastKey(reader Reader, column keys.Column) ([]byte, error) {
	iter, err := reader.NewIter(column, nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return bytes.Clone(iter.Key()), nil
}

// getter is the read surface shared by *pebble.DB and *pebble.Batch.
type getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(options *pebble.IterOptions) (*pebble.Iterator, error)
}

func get(source getter, column keys.Column, key []byte) ([]byte, error) {
	value, closer, err := source.Get(columnKey(column, key))
	if err != nil {
		return nil, wrapError("get", column, err)
	}
	defer closer.Close()
	return bytes.Clone(value), nil
}

func newIter(source getter, column keys.Column, prefix []byte) (*Iter, error) {
	lower := columnKey(column, prefix)
	iterator, err := source.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return nil, wrapError("iterate", column, err)
	}
	return &Iter{iterator: iterator, column: column}, nil
}

// Compact compacts every column. Long-running; the scheduler in
// compaction.go calls it on the configured cron schedule.
func (d *DB) Compact() error {
	for _, column := range keys.Columns() {
		start := []byte{byte(column)}
		end := []byte{byte(column) + 1}
		if err := d.pebble.Compact(start, end, true); err != nil {
			return &StorageError{Op: "compact", Column: column, Err: err}
		}
	}
	return nil
}

// Flush persists the memtable to an sstable.
func (d *DB) Flush() error {
	if err := d.pebble.Flush(); err != nil {
		return &StorageError{Op: "flush", Err: err}
	}
	return nil
}

// Metrics returns pebble's internal metrics.
func (d *DB) Metrics() *pebble.Metrics {
	return d.pebble.Metrics()
}

// pebbleLogger routes pebble's printf-style logging into slog.
type pebbleLogger struct {
	logger *slog.Logger
}

func (l pebbleLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l pebbleLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l pebbleLogger) Fatalf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	l.logger.Error(message, "component", "pebble", "fatal", true)
	panic("pebble: " + message)
}
