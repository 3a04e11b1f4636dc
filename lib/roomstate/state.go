// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// Slot identifies one piece of room state.
type Slot struct {
	Type     ref.EventType
	StateKey string
}

func (s Slot) String() string {
	return fmt.Sprintf("%s/%q", s.Type, s.StateKey)
}

// slotOf returns the slot of a state event, truncated the way the
// index writer truncates it.
func slotOf(ev *event.Event) Slot {
	eventType, _ := keys.TruncateType(ev.Type)
	stateKey, _ := keys.TruncateStateKey(ev.StateKeyValue())
	return Slot{Type: eventType, StateKey: stateKey}
}

// Prev returns the index of the state event that the state event under
// idx superseded in its slot, or 0 when idx is the first event of the
// slot. Returns an event.ErrMalformed error when idx is not a state
// event and store.ErrNotFound when it is not indexed.
func Prev(reader store.Reader, idx event.Idx) (event.Idx, error) {
	room, err := eventstore.GetIn(reader, idx, event.PropertyRoomID)
	if err != nil {
		return 0, err
	}
	eventType, err := eventstore.GetIn(reader, idx, event.PropertyType)
	if err != nil {
		return 0, err
	}
	stateKey, err := eventstore.GetIn(reader, idx, event.PropertyStateKey)
	if errors.Is(err, store.ErrNotFound) {
		return 0, &event.MalformedError{Field: "state_key", Reason: fmt.Sprintf("event %d is not a state event", idx)}
	}
	if err != nil {
		return 0, err
	}
	depthText, err := eventstore.GetIn(reader, idx, event.PropertyDepth)
	if err != nil {
		return 0, err
	}
	depth, err := strconv.ParseInt(string(depthText), 10, 64)
	if err != nil {
		return 0, &store.StorageError{Op: "decode depth", Column: keys.ColumnDepth, Err: err}
	}
	roomID, err := ref.ParseRoomID(string(room))
	if err != nil {
		return 0, &store.StorageError{Op: "decode room_id", Column: keys.ColumnRoomID, Err: err}
	}

	truncatedType, _ := keys.TruncateType(ref.EventType(eventType))
	truncatedKey, _ := keys.TruncateStateKey(string(stateKey))
	prefix, err := keys.RoomStateSpacePrefix(truncatedKey, truncatedType, roomID)
	if err != nil {
		return 0, err
	}
	key, err := keys.RoomStateSpaceKey(truncatedKey, truncatedType, roomID, depth, idx)
	if err != nil {
		return 0, err
	}

	iter, err := reader.NewIter(keys.ColumnRoomStateSpace, prefix)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	// Newest first: the entry after idx's own key is the one it
	// superseded. If idx's entry is absent, SeekGE already lands there.
	valid := iter.SeekGE(key)
	if valid && keys.Compare(keys.ColumnRoomStateSpace, iter.Key(), key) == 0 {
		valid = iter.Next()
	}
	if !valid {
		return 0, iter.Error()
	}
	tuple, err := keys.Decode(keys.ColumnRoomStateSpace, iter.Key())
	if err != nil {
		return 0, &store.StorageError{Op: "decode state space", Column: keys.ColumnRoomStateSpace, Err: err}
	}
	return tuple.Idx, nil
}

// Present returns the index holding slot in room, or store.ErrNotFound.
func Present(reader store.Reader, room ref.RoomID, slot Slot) (event.Idx, error) {
	eventType, _ := keys.TruncateType(slot.Type)
	stateKey, _ := keys.TruncateStateKey(slot.StateKey)
	key, err := keys.RoomStateKey(room, eventType, stateKey)
	if err != nil {
		return 0, err
	}
	value, err := reader.Get(keys.ColumnRoomState, key)
	if err != nil {
		return 0, err
	}
	return event.IdxFromBytes(value)
}

// ForEachPresent calls fn for every present-state slot of room, or of
// one type when eventType is non-empty, in (type, state_key) order. A
// non-nil error from fn stops the iteration and is returned.
func ForEachPresent(reader store.Reader, room ref.RoomID, eventType ref.EventType, fn func(Slot, event.Idx) error) error {
	eventType, _ = keys.TruncateType(eventType)
	prefix, err := keys.RoomStatePrefix(room, eventType)
	if err != nil {
		return err
	}
	iter, err := reader.NewIter(keys.ColumnRoomState, prefix)
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		tuple, err := keys.Decode(keys.ColumnRoomState, iter.Key())
		if err != nil {
			return &store.StorageError{Op: "decode present state", Column: keys.ColumnRoomState, Err: err}
		}
		if len(tuple.Strings) != 3 {
			return &store.StorageError{Op: "decode present state", Column: keys.ColumnRoomState,
				Err: fmt.Errorf("key has %d fields, want 3", len(tuple.Strings))}
		}
		idx, err := event.IdxFromBytes(iter.Value())
		if err != nil {
			return &store.StorageError{Op: "decode present state", Column: keys.ColumnRoomState, Err: err}
		}
		slot := Slot{Type: ref.EventType(tuple.Strings[1]), StateKey: tuple.Strings[2]}
		if err := fn(slot, idx); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Transition is one entry of a slot's history.
type Transition struct {
	Depth int64
	Idx   event.Idx
}

// ForEachTransition calls fn for every event that has held slot in
// room, newest first.
func ForEachTransition(reader store.Reader, room ref.RoomID, slot Slot, fn func(Transition) error) error {
	eventType, _ := keys.TruncateType(slot.Type)
	stateKey, _ := keys.TruncateStateKey(slot.StateKey)
	prefix, err := keys.RoomStateSpacePrefix(stateKey, eventType, room)
	if err != nil {
		return err
	}
	iter, err := reader.NewIter(keys.ColumnRoomStateSpace, prefix)
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		tuple, err := keys.Decode(keys.ColumnRoomStateSpace, iter.Key())
		if err != nil {
			return &store.StorageError{Op: "decode state space", Column: keys.ColumnRoomStateSpace, Err: err}
		}
		if err := fn(Transition{Depth: tuple.Depth, Idx: tuple.Idx}); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ForEachStateKey calls fn for every transition of every slot keyed by
// stateKey, across all rooms and types. Transitions are grouped by
// (type, room) and newest first within a group.
func ForEachStateKey(reader store.Reader, stateKey string, fn func(ref.RoomID, ref.EventType, Transition) error) error {
	truncated, _ := keys.TruncateStateKey(stateKey)
	prefix, err := keys.Encode(keys.ColumnRoomStateSpace, []string{truncated}, keys.UndefinedDepth, 0)
	if err != nil {
		return err
	}
	iter, err := reader.NewIter(keys.ColumnRoomStateSpace, prefix)
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		tuple, err := keys.Decode(keys.ColumnRoomStateSpace, iter.Key())
		if err != nil || len(tuple.Strings) != 3 {
			return &store.StorageError{Op: "decode state space", Column: keys.ColumnRoomStateSpace,
				Err: fmt.Errorf("malformed key %q: %v", iter.Key(), err)}
		}
		room, err := ref.ParseRoomID(tuple.Strings[2])
		if err != nil {
			return &store.StorageError{Op: "decode state space", Column: keys.ColumnRoomStateSpace, Err: err}
		}
		transition := Transition{Depth: tuple.Depth, Idx: tuple.Idx}
		if err := fn(room, ref.EventType(tuple.Strings[1]), transition); err != nil {
			return err
		}
	}
	return iter.Error()
}
