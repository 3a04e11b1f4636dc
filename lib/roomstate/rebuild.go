// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/eventgraph/lib/auth"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/indexer"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/query"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// Resolver rebuilds room state.
type Resolver struct {
	db     *store.DB
	events *eventstore.Store
	writer *indexer.Writer
	logger *slog.Logger
}

// New returns a Resolver.
func New(db *store.DB, events *eventstore.Store, writer *indexer.Writer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{db: db, events: events, writer: writer, logger: logger}
}

// Prev is Prev over the committed database.
func (r *Resolver) Prev(idx event.Idx) (event.Idx, error) {
	return Prev(r.db, idx)
}

// RebuildReport summarizes one Rebuild.
type RebuildReport struct {
	Room ref.RoomID

	// Messages and States count the timeline and state events scanned.
	Messages int64
	States   int64

	// Rejected counts state events failing an authorization check.
	// Deleted counts those whose state_space entry was still present
	// and has now been removed; it is zero when the room was already
	// rebuilt.
	Rejected int64
	Deleted  int64

	// Unreadable counts events listed in the timeline whose body could
	// not be found.
	Unreadable int64
}

// Rebuild recomputes the present state and joined members of room.
//
// Every event in the room timeline is visited oldest first. State
// events are checked with auth.Static and then auth.Relative against
// the state accumulated so far. Passing events are written to the
// state indices; failing events have their state_space entry removed
// and never enter present state. Per-event failures are logged and
// counted; only storage errors and cancellation stop the rebuild, in
// which case nothing is committed.
func (r *Resolver) Rebuild(ctx context.Context, room ref.RoomID) (RebuildReport, error) {
	report := RebuildReport{Room: room}

	timeline, err := r.timeline(room)
	if err != nil {
		return report, err
	}

	txn := r.db.NewTxn()
	defer txn.Discard()
	if err := clearDerived(txn, room); err != nil {
		return report, err
	}

	var accumulators query.Accumulators
	messages := query.NewCounter(query.Not(query.Has(event.PropertyStateKey)))
	states := query.NewCounter(query.Has(event.PropertyStateKey))
	accumulators.Register(messages)
	accumulators.Register(states)

	current := scanState{}
	for _, idx := range timeline {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ev, err := eventstore.Fetch(txn, idx)
		if errors.Is(err, store.ErrNotFound) {
			report.Unreadable++
			r.logger.Warn("rebuild skipped event without body", "room_id", room, "idx", idx)
			continue
		}
		if err != nil {
			return report, err
		}
		if err := accumulators.Add(ev); err != nil {
			return report, err
		}
		if !ev.IsState() {
			continue
		}

		checkErr := auth.Static(ev)
		if checkErr == nil {
			checkErr = auth.Relative(ev, current)
		}
		switch {
		case checkErr == nil:
			if _, err := r.writer.Write(txn, ev, indexer.Options{Op: indexer.OpSet, Appendix: indexer.AppendixState, Idx: idx}); err != nil {
				if !errors.Is(err, event.ErrMalformed) {
					return report, err
				}
				report.Rejected++
				r.logger.Warn("rebuild could not index state event", "room_id", room, "event_id", ev.EventID, "error", err)
				continue
			}
			current[slotOf(ev)] = ev
		case errors.Is(checkErr, auth.ErrUnauthorized):
			report.Rejected++
			deleted, err := r.retract(txn, ev, idx)
			if err != nil {
				return report, err
			}
			if deleted {
				report.Deleted++
			}
			r.logger.Warn("rebuild rejected state event",
				"room_id", room,
				"event_id", ev.EventID,
				"idx", idx,
				"deleted", deleted,
				"reason", checkErr,
			)
		default:
			return report, checkErr
		}
	}

	report.Messages = messages.Count()
	report.States = states.Count()
	if err := txn.Commit(); err != nil {
		return report, err
	}
	r.logger.Info("room state rebuilt",
		"room_id", room,
		"messages", report.Messages,
		"states", report.States,
		"rejected", report.Rejected,
		"deleted", report.Deleted,
		"unreadable", report.Unreadable,
	)
	return report, nil
}

// timeline lists the room's events oldest first.
func (r *Resolver) timeline(room ref.RoomID) ([]event.Idx, error) {
	iter, err := r.db.NewIter(keys.ColumnRoomEvents, keys.RoomEventsPrefix(room))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var timeline []event.Idx
	for valid := iter.Last(); valid; valid = iter.Prev() {
		tuple, err := keys.Decode(keys.ColumnRoomEvents, iter.Key())
		if err != nil {
			return nil, &store.StorageError{Op: "decode timeline", Column: keys.ColumnRoomEvents, Err: err}
		}
		timeline = append(timeline, tuple.Idx)
	}
	return timeline, iter.Error()
}

// clearDerived deletes the present state and joined members of room so
// the scan can reinsert them.
func clearDerived(txn *store.Txn, room ref.RoomID) error {
	statePrefix, err := keys.RoomStatePrefix(room, "")
	if err != nil {
		return err
	}
	if err := deletePrefix(txn, keys.ColumnRoomState, statePrefix); err != nil {
		return err
	}
	return deletePrefix(txn, keys.ColumnRoomJoined, keys.RoomJoinedPrefix(room, ref.ServerName{}))
}

func deletePrefix(txn *store.Txn, column keys.Column, prefix []byte) error {
	iter, err := txn.NewIter(column, prefix)
	if err != nil {
		return err
	}
	var doomed [][]byte
	for valid := iter.First(); valid; valid = iter.Next() {
		doomed = append(doomed, append([]byte(nil), iter.Key()...))
	}
	if err := errors.Join(iter.Error(), iter.Close()); err != nil {
		return err
	}
	for _, key := range doomed {
		if err := txn.Delete(column, key); err != nil {
			return err
		}
	}
	return nil
}

// retract removes a rejected event's state_space entry and reports
// whether it was there.
func (r *Resolver) retract(txn *store.Txn, ev *event.Event, idx event.Idx) (bool, error) {
	slot := slotOf(ev)
	key, err := keys.RoomStateSpaceKey(slot.StateKey, slot.Type, ev.RoomID, ev.Depth, idx)
	if err != nil {
		return false, fmt.Errorf("retracting %s: %w", ev.EventID, err)
	}
	present, err := store.Has(txn, keys.ColumnRoomStateSpace, key)
	if err != nil || !present {
		return false, err
	}
	_, err = r.writer.Write(txn, ev, indexer.Options{Op: indexer.OpDelete, Appendix: indexer.AppendRoomStateSpace, Idx: idx})
	if err != nil {
		return false, fmt.Errorf("retracting %s: %w", ev.EventID, err)
	}
	return true, nil
}

// scanState is the room state accumulated during a rebuild.
type scanState map[Slot]*event.Event

func (s scanState) Lookup(eventType ref.EventType, stateKey string) (*event.Event, error) {
	if ev, ok := s[Slot{Type: eventType, StateKey: stateKey}]; ok {
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, eventType, stateKey)
}
