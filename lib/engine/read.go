// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/frontier"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/query"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/roomstate"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// Event returns the stored event with eventID and its index.
func (e *Engine) Event(eventID ref.EventID) (*event.Event, event.Idx, error) {
	idx, err := e.events.Index(eventID)
	if err != nil {
		return nil, 0, err
	}
	ev, err := e.events.Fetch(idx)
	if err != nil {
		return nil, 0, err
	}
	return ev, idx, nil
}

// TimelineQuery selects events of one room, newest first.
type TimelineQuery struct {
	Room ref.RoomID

	// Type narrows the walk to one event type's timeline.
	Type ref.EventType

	// Filter is evaluated against each event's stored properties. The
	// zero Filter matches everything.
	Filter query.Filter

	// Limit bounds the number of events passed to fn; 0 means no bound.
	Limit int
}

// Timeline calls fn for each event matching q, newest first. A non-nil
// error from fn stops the walk and is returned.
func (e *Engine) Timeline(q TimelineQuery, fn func(event.Idx, *event.Event) error) error {
	column := keys.ColumnRoomEvents
	prefix := keys.RoomEventsPrefix(q.Room)
	if q.Type != "" {
		truncated, _ := keys.TruncateType(q.Type)
		var err error
		prefix, err = keys.RoomTypePrefix(q.Room, truncated)
		if err != nil {
			return err
		}
		column = keys.ColumnRoomType
	}

	iter, err := e.db.NewIter(column, prefix)
	if err != nil {
		return err
	}
	defer iter.Close()

	delivered := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		tuple, err := keys.Decode(column, iter.Key())
		if err != nil {
			return &store.StorageError{Op: "decode timeline", Column: column, Err: err}
		}
		matched, err := q.Filter.Match(query.StoredTuple(e.db, tuple.Idx))
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		ev, err := e.events.Fetch(tuple.Idx)
		if err != nil {
			return err
		}
		if err := fn(tuple.Idx, ev); err != nil {
			return err
		}
		delivered++
		if q.Limit > 0 && delivered >= q.Limit {
			break
		}
	}
	return iter.Error()
}

// Members calls fn for each joined member of room, grouped by server.
// A non-zero origin narrows the walk to that server's members.
func (e *Engine) Members(room ref.RoomID, origin ref.ServerName, fn func(ref.UserID, event.Idx) error) error {
	iter, err := e.db.NewIter(keys.ColumnRoomJoined, keys.RoomJoinedPrefix(room, origin))
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		tuple, err := keys.Decode(keys.ColumnRoomJoined, iter.Key())
		if err != nil || len(tuple.Strings) != 3 {
			return &store.StorageError{Op: "decode joined", Column: keys.ColumnRoomJoined, Err: fmt.Errorf("bad key %q: %v", iter.Key(), err)}
		}
		user, err := ref.ParseUserID(tuple.Strings[2])
		if err != nil {
			return &store.StorageError{Op: "decode joined", Column: keys.ColumnRoomJoined, Err: err}
		}
		idx, err := event.IdxFromBytes(iter.Value())
		if err != nil {
			return &store.StorageError{Op: "decode joined", Column: keys.ColumnRoomJoined, Err: err}
		}
		if err := fn(user, idx); err != nil {
			return err
		}
	}
	return iter.Error()
}

// State calls fn for each present-state event of room, or of one type
// when eventType is non-empty.
func (e *Engine) State(room ref.RoomID, eventType ref.EventType, fn func(roomstate.Slot, *event.Event) error) error {
	return roomstate.ForEachPresent(e.db, room, eventType, func(slot roomstate.Slot, idx event.Idx) error {
		ev, err := e.events.Fetch(idx)
		if err != nil {
			return err
		}
		return fn(slot, ev)
	})
}

// StateEvent returns the event holding (eventType, stateKey) in room.
func (e *Engine) StateEvent(room ref.RoomID, eventType ref.EventType, stateKey string) (*event.Event, error) {
	idx, err := roomstate.Present(e.db, room, roomstate.Slot{Type: eventType, StateKey: stateKey})
	if err != nil {
		return nil, err
	}
	return e.events.Fetch(idx)
}

// Heads returns room's head set.
func (e *Engine) Heads(room ref.RoomID) ([]frontier.Head, error) {
	return frontier.Heads(e.db, room)
}

// Property returns one property of the event at idx.
func (e *Engine) Property(idx event.Idx, property string) ([]byte, error) {
	return e.events.Get(idx, property)
}

// Redacted reports whether any known event redacts the event at idx.
func (e *Engine) Redacted(idx event.Idx) (bool, error) {
	iter, err := e.db.NewIter(keys.ColumnEventRefs, keys.RefPrefix(idx, keys.RefRedacts))
	if err != nil {
		return false, err
	}
	defer iter.Close()
	found := iter.First()
	return found, iter.Error()
}
