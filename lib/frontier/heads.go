// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontier

import (
	"fmt"
	"math/rand/v2"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// Head is one member of a room's head set.
type Head struct {
	EventID ref.EventID
	Idx     event.Idx
}

// ForEachHead calls fn for each head of room in event ID order. A
// non-nil error from fn stops the iteration and is returned.
func ForEachHead(reader store.Reader, room ref.RoomID, fn func(Head) error) error {
	iter, err := reader.NewIter(keys.ColumnRoomHead, keys.RoomHeadPrefix(room))
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		head, err := decodeHead(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if err := fn(head); err != nil {
			return err
		}
	}
	return iter.Error()
}

func decodeHead(key, value []byte) (Head, error) {
	tuple, err := keys.Decode(keys.ColumnRoomHead, key)
	if err != nil || len(tuple.Strings) != 2 {
		return Head{}, &store.StorageError{Op: "decode head", Column: keys.ColumnRoomHead, Err: fmt.Errorf("bad key %q: %v", key, err)}
	}
	eventID, err := ref.ParseEventID(tuple.Strings[1])
	if err != nil {
		return Head{}, &store.StorageError{Op: "decode head", Column: keys.ColumnRoomHead, Err: err}
	}
	idx, err := event.IdxFromBytes(value)
	if err != nil {
		return Head{}, &store.StorageError{Op: "decode head", Column: keys.ColumnRoomHead, Err: err}
	}
	return Head{EventID: eventID, Idx: idx}, nil
}

// Heads returns the head set of room.
func Heads(reader store.Reader, room ref.RoomID) ([]Head, error) {
	var heads []Head
	err := ForEachHead(reader, room, func(head Head) error {
		heads = append(heads, head)
		return nil
	})
	return heads, err
}

// HeadCount returns the size of room's head set.
func HeadCount(reader store.Reader, room ref.RoomID) (int, error) {
	count := 0
	err := ForEachHead(reader, room, func(Head) error {
		count++
		return nil
	})
	return count, err
}

// RandomHead picks one head of room uniformly in a single pass. It
// returns store.ErrNotFound when the room has no heads.
func RandomHead(reader store.Reader, room ref.RoomID, rng *rand.Rand) (Head, error) {
	var chosen Head
	seen := 0
	err := ForEachHead(reader, room, func(head Head) error {
		seen++
		if rng.IntN(seen) == 0 {
			chosen = head
		}
		return nil
	})
	if err != nil {
		return Head{}, err
	}
	if seen == 0 {
		return Head{}, fmt.Errorf("no heads in %s: %w", room, store.ErrNotFound)
	}
	return chosen, nil
}

// HeadDepth returns the greatest depth in room's timeline, or
// store.ErrNotFound for an unknown room.
func HeadDepth(reader store.Reader, room ref.RoomID) (int64, error) {
	iter, err := reader.NewIter(keys.ColumnRoomEvents, keys.RoomEventsPrefix(room))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	// Newest first: the first key holds the greatest depth.
	if !iter.First() {
		if err := iter.Error(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("no events in %s: %w", room, store.ErrNotFound)
	}
	tuple, err := keys.Decode(keys.ColumnRoomEvents, iter.Key())
	if err != nil {
		return 0, &store.StorageError{Op: "decode room event", Column: keys.ColumnRoomEvents, Err: err}
	}
	return tuple.Depth, nil
}
