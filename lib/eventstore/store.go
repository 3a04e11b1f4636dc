// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bureau-foundation/eventgraph/lib/codec"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// ErrAlreadyIndexed is returned by AssignIndex for an event ID that
// already has an index.
var ErrAlreadyIndexed = errors.New("event already indexed")

// Options configures a Store.
type Options struct {
	// Compression is applied to stored event bodies.
	Compression codec.CompressionTag

	// BodyCacheEntries sizes the cache of decoded events; 0 disables it.
	BodyCacheEntries int

	// LookupWidth bounds the goroutines of one GetBatch call.
	LookupWidth int
}

// Store is the event store over one database.
type Store struct {
	db      *store.DB
	options Options
	lastIdx atomic.Uint64
	bodies  *lru.Cache[event.Idx, *event.Event]
	logger  *slog.Logger
}

// Open returns a Store over db, recovering the index counter from the
// highest key of the event_id column. Retired indices keep their key
// there, so the counter never moves back below a deleted event.
func Open(db *store.DB, options Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if options.LookupWidth < 1 {
		options.LookupWidth = 1
	}
	s := &Store{db: db, options: options, logger: logger}

	if options.BodyCacheEntries > 0 {
		cache, err := lru.New[event.Idx, *event.Event](options.BodyCacheEntries)
		if err != nil {
			return nil, fmt.Errorf("creating body cache: %w", err)
		}
		s.bodies = cache
	}

	last, err := store.LastKey(db, keys.ColumnEventID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("recovering index counter: %w", err)
	default:
		idx, err := event.IdxFromBytes(last)
		if err != nil {
			return nil, fmt.Errorf("recovering index counter: %w", err)
		}
		s.lastIdx.Store(uint64(idx))
	}
	logger.Info("event store opened", "last_idx", s.lastIdx.Load())
	return s, nil
}

// LastIdx returns the highest index assigned so far.
func (s *Store) LastIdx() event.Idx {
	return event.Idx(s.lastIdx.Load())
}

// Index returns the index of a committed event, or store.ErrNotFound.
func (s *Store) Index(eventID ref.EventID) (event.Idx, error) {
	return Index(s.db, eventID)
}

// Index looks eventID up through reader, which may be a transaction.
func Index(reader store.Reader, eventID ref.EventID) (event.Idx, error) {
	value, err := reader.Get(keys.ColumnEventIdx, keys.EventIdxKey(eventID))
	if err != nil {
		return 0, err
	}
	return event.IdxFromBytes(value)
}

// AssignIndex allocates the next index for eventID and stages the
// mapping in both directions into txn. Returns ErrAlreadyIndexed when
// txn already sees an index for eventID.
func (s *Store) AssignIndex(txn *store.Txn, eventID ref.EventID) (event.Idx, error) {
	idx, err := s.Reserve(txn, eventID)
	if err != nil {
		return idx, err
	}
	if err := StageMapping(txn, eventID, idx); err != nil {
		return 0, err
	}
	return idx, nil
}

// Reserve allocates the next index for eventID without staging the
// mapping. reader is checked for an existing mapping first; on
// ErrAlreadyIndexed the existing index is returned with the error. An
// index reserved for a write that is later abandoned is never reused.
func (s *Store) Reserve(reader store.Reader, eventID ref.EventID) (event.Idx, error) {
	existing, err := Index(reader, eventID)
	switch {
	case err == nil:
		return existing, fmt.Errorf("%w: %s is %d", ErrAlreadyIndexed, eventID, existing)
	case !errors.Is(err, store.ErrNotFound):
		return 0, err
	}
	return event.Idx(s.lastIdx.Add(1)), nil
}

// StageMapping writes event_id -> idx and idx -> event_id.
func StageMapping(txn *store.Txn, eventID ref.EventID, idx event.Idx) error {
	if err := txn.Set(keys.ColumnEventIdx, keys.EventIdxKey(eventID), idx.Bytes()); err != nil {
		return err
	}
	return txn.Set(keys.ColumnEventID, keys.IdxKey(idx), []byte(eventID.String()))
}

// UnstageMapping deletes the event_id -> idx direction and retires idx:
// its event_id entry is overwritten with an empty value, which readers
// treat as absent and counter recovery still counts.
func UnstageMapping(txn *store.Txn, eventID ref.EventID, idx event.Idx) error {
	if err := txn.Delete(keys.ColumnEventIdx, keys.EventIdxKey(eventID)); err != nil {
		return err
	}
	return txn.Set(keys.ColumnEventID, keys.IdxKey(idx), nil)
}

// StageBody writes the compressed CBOR body of ev under idx.
func (s *Store) StageBody(txn *store.Txn, idx event.Idx, ev *event.Event) error {
	body, err := event.EncodeBody(ev)
	if err != nil {
		return event.Malformed(ev, "body", err.Error())
	}
	frame, err := codec.Pack(body, s.options.Compression)
	if err != nil {
		return fmt.Errorf("compressing body of %s: %w", ev.EventID, err)
	}
	return txn.Set(keys.ColumnEventJSON, keys.IdxKey(idx), frame)
}

// StageProperties writes the dedicated property columns of ev. The
// state_key column is only written for state events, so looking it up
// on a timeline event is store.ErrNotFound.
func StageProperties(txn *store.Txn, idx event.Idx, ev *event.Event) error {
	key := keys.IdxKey(idx)
	for column, value := range propertyValues(ev) {
		if err := txn.Set(column, key, value); err != nil {
			return err
		}
	}
	return nil
}

// UnstageBody deletes the stored body of idx.
func (s *Store) UnstageBody(txn *store.Txn, idx event.Idx) error {
	if s.bodies != nil {
		s.bodies.Remove(idx)
	}
	return txn.Delete(keys.ColumnEventJSON, keys.IdxKey(idx))
}

// UnstageProperties deletes the dedicated property columns of idx.
func UnstageProperties(txn *store.Txn, idx event.Idx) error {
	key := keys.IdxKey(idx)
	for _, column := range propertyColumns {
		if err := txn.Delete(column, key); err != nil {
			return err
		}
	}
	return nil
}

var propertyColumns = []keys.Column{
	keys.ColumnRoomID, keys.ColumnSender, keys.ColumnType,
	keys.ColumnStateKey, keys.ColumnDepth, keys.ColumnOriginServerTS,
}

func propertyValues(ev *event.Event) map[keys.Column][]byte {
	values := map[keys.Column][]byte{
		keys.ColumnRoomID:         []byte(ev.RoomID.String()),
		keys.ColumnSender:         []byte(ev.Sender.String()),
		keys.ColumnType:           []byte(ev.Type),
		keys.ColumnDepth:          strconv.AppendInt(nil, ev.Depth, 10),
		keys.ColumnOriginServerTS: strconv.AppendInt(nil, ev.OriginServerTS, 10),
	}
	if ev.IsState() {
		values[keys.ColumnStateKey] = []byte(ev.StateKeyValue())
	}
	return values
}

// Exists reports whether idx has a stored body.
func (s *Store) Exists(idx event.Idx) (bool, error) {
	return store.Has(s.db, keys.ColumnEventJSON, keys.IdxKey(idx))
}

// Fetch returns the full event stored under idx. Events returned from the
// cache are shared; callers must not modify them.
func (s *Store) Fetch(idx event.Idx) (*event.Event, error) {
	if s.bodies != nil {
		if cached, ok := s.bodies.Get(idx); ok {
			return cached, nil
		}
	}
	ev, err := Fetch(s.db, idx)
	if err != nil {
		return nil, err
	}
	if s.bodies != nil {
		s.bodies.Add(idx, ev)
	}
	return ev, nil
}

// Fetch reads and decodes the event stored under idx through reader.
func Fetch(reader store.Reader, idx event.Idx) (*event.Event, error) {
	body, err := readBody(reader, idx)
	if err != nil {
		return nil, err
	}
	return event.DecodeBody(body)
}

func readBody(reader store.Reader, idx event.Idx) ([]byte, error) {
	frame, err := reader.Get(keys.ColumnEventJSON, keys.IdxKey(idx))
	if err != nil {
		return nil, err
	}
	body, err := codec.Unpack(frame)
	if err != nil {
		return nil, &store.StorageError{Op: "unpack", Column: keys.ColumnEventJSON, Err: err}
	}
	return body, nil
}

// EventID returns the event ID of idx.
func EventID(reader store.Reader, idx event.Idx) (ref.EventID, error) {
	value, err := reader.Get(keys.ColumnEventID, keys.IdxKey(idx))
	if err != nil {
		return ref.EventID{}, err
	}
	if len(value) == 0 {
		return ref.EventID{}, fmt.Errorf("%w: event %d was deleted", store.ErrNotFound, idx)
	}
	return ref.ParseEventID(string(value))
}
