// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontier

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// errStop ends an iteration early without reporting an error.
var errStop = errors.New("stop")

// Origins calls fn once for each server with at least one joined member
// in room. Joined keys are grouped by server, so each server is seen in
// one contiguous run.
func Origins(reader store.Reader, room ref.RoomID, fn func(ref.ServerName) error) error {
	iter, err := reader.NewIter(keys.ColumnRoomJoined, keys.RoomJoinedPrefix(room, ref.ServerName{}))
	if err != nil {
		return err
	}
	defer iter.Close()

	var last string
	for valid := iter.First(); valid; valid = iter.Next() {
		tuple, err := keys.Decode(keys.ColumnRoomJoined, iter.Key())
		if err != nil || len(tuple.Strings) < 2 {
			return &store.StorageError{Op: "decode joined", Column: keys.ColumnRoomJoined, Err: fmt.Errorf("bad key %q: %v", iter.Key(), err)}
		}
		if tuple.Strings[1] == last {
			continue
		}
		last = tuple.Strings[1]
		server, err := ref.ParseServerName(last)
		if err != nil {
			return &store.StorageError{Op: "decode joined", Column: keys.ColumnRoomJoined, Err: err}
		}
		if err := fn(server); err != nil {
			return err
		}
	}
	return iter.Error()
}

// RandomOrigin picks a joined origin of room that accept approves. The
// first pass is a uniform reservoir pick over every origin; when accept
// rejects that pick, a second pass returns the first origin accept
// approves, so the result is random only among first picks. A nil
// accept approves everything. store.ErrNotFound means no origin
// qualifies.
func RandomOrigin(reader store.Reader, room ref.RoomID, rng *rand.Rand, accept func(ref.ServerName) bool) (ref.ServerName, error) {
	if accept == nil {
		accept = func(ref.ServerName) bool { return true }
	}

	var chosen ref.ServerName
	seen := 0
	err := Origins(reader, room, func(server ref.ServerName) error {
		seen++
		if rng.IntN(seen) == 0 {
			chosen = server
		}
		return nil
	})
	if err != nil {
		return ref.ServerName{}, err
	}
	if seen > 0 && accept(chosen) {
		return chosen, nil
	}

	var fallback ref.ServerName
	err = Origins(reader, room, func(server ref.ServerName) error {
		if accept(server) {
			fallback = server
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return ref.ServerName{}, err
	}
	if fallback.IsZero() {
		return ref.ServerName{}, fmt.Errorf("no acceptable origin in %s: %w", room, store.ErrNotFound)
	}
	return fallback, nil
}
