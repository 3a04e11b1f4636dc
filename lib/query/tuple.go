// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"fmt"
	"strconv"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// EventTuple exposes the properties of a decoded event with the same
// raw rendering the event store uses.
func EventTuple(ev *event.Event) Tuple {
	return eventTuple{ev: ev}
}

type eventTuple struct {
	ev *event.Event
}

func (t eventTuple) Lookup(property string) ([]byte, error) {
	ev := t.ev
	switch property {
	case event.PropertyEventID:
		return nonEmpty(property, ev.EventID.String())
	case event.PropertyRoomID:
		return nonEmpty(property, ev.RoomID.String())
	case event.PropertySender:
		return nonEmpty(property, ev.Sender.String())
	case event.PropertyType:
		return nonEmpty(property, string(ev.Type))
	case event.PropertyStateKey:
		if !ev.IsState() {
			return nil, notFound(property)
		}
		return []byte(*ev.StateKey), nil
	case event.PropertyDepth:
		return strconv.AppendInt(nil, ev.Depth, 10), nil
	case event.PropertyOriginServerTS:
		return strconv.AppendInt(nil, ev.OriginServerTS, 10), nil
	case "origin":
		return nonEmpty(property, ev.OriginServer().String())
	case "redacts":
		return nonEmpty(property, ev.Redacts.String())
	}
	value, ok := event.LookupPath(map[string]any{"content": ev.Content, "unsigned": ev.Unsigned}, property)
	if !ok {
		return nil, notFound(property)
	}
	return event.RawValue(value)
}

func nonEmpty(property, value string) ([]byte, error) {
	if value == "" {
		return nil, notFound(property)
	}
	return []byte(value), nil
}

func notFound(property string) error {
	return fmt.Errorf("%w: property %s", store.ErrNotFound, property)
}

// StoredTuple reads the properties of the event under idx through
// reader on first use and remembers them for the tuple's lifetime.
func StoredTuple(reader store.Reader, idx event.Idx) Tuple {
	return &storedTuple{reader: reader, idx: idx, cache: map[string]lookup{}}
}

type lookup struct {
	value []byte
	err   error
}

type storedTuple struct {
	reader store.Reader
	idx    event.Idx
	cache  map[string]lookup
}

func (t *storedTuple) Lookup(property string) ([]byte, error) {
	if cached, ok := t.cache[property]; ok {
		return cached.value, cached.err
	}
	value, err := eventstore.GetIn(t.reader, t.idx, property)
	t.cache[property] = lookup{value: value, err: err}
	return value, err
}
