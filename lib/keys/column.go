// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/event"
)

// Column identifies one keyspace of the event graph database. The value
// is the first byte of every stored key, so it is part of the persisted
// layout and must never be renumbered.
type Column uint8

const (
	// ColumnEventIdx maps event_id to idx.
	ColumnEventIdx Column = iota + 1
	// ColumnEventJSON maps idx to the stored event body.
	ColumnEventJSON
	// ColumnEventID through ColumnOriginServerTS map idx to one
	// property of the event.
	ColumnEventID
	ColumnRoomID
	ColumnSender
	ColumnType
	ColumnStateKey
	ColumnDepth
	ColumnOriginServerTS
	// ColumnEventRefs holds target idx, ref kind and source idx: the
	// forward references from an event to the events citing it.
	ColumnEventRefs
	// ColumnEventHorizon holds references to events not yet known:
	// missing event_id and the idx of the event citing it.
	ColumnEventHorizon
	// ColumnEventSender holds sender NUL idx.
	ColumnEventSender
	// ColumnEventSenderOrigin holds reversed host NUL localpart NUL idx.
	ColumnEventSenderOrigin
	// ColumnEventType holds type NUL idx.
	ColumnEventType
	// ColumnRoomEvents is the room timeline: room NUL depth idx.
	ColumnRoomEvents
	// ColumnRoomType is the type timeline: room NUL type NUL depth idx.
	ColumnRoomType
	// ColumnRoomStateSpace is the state timeline:
	// state_key NUL type NUL room NUL depth idx.
	ColumnRoomStateSpace
	// ColumnRoomState is the present state: room NUL type NUL state_key
	// mapped to idx.
	ColumnRoomState
	// ColumnRoomJoined holds room NUL origin NUL user mapped to idx.
	ColumnRoomJoined
	// ColumnRoomHead holds room NUL event_id mapped to idx.
	ColumnRoomHead

	columnLimit
)

// Order selects a column's comparator.
type Order uint8

const (
	// Bytewise orders keys by bytes.Compare.
	Bytewise Order = iota
	// NewestFirst orders the string region ascending, then depth and
	// idx descending.
	NewestFirst
)

// Tail is the numeric suffix of a column's keys.
type Tail uint8

const (
	// TailNone keys end with their last string field, unterminated.
	TailNone Tail = iota
	// TailIdx keys end with NUL-terminated strings followed by an idx.
	TailIdx
	// TailDepthIdx keys end with NUL-terminated strings followed by a
	// depth and an idx.
	TailDepthIdx
)

// Descriptor describes one column: its name, ordering and key shape.
type Descriptor struct {
	Column Column
	Name   string
	Order  Order

	// StringFields is the number of string fields at the front of the
	// key.
	StringFields int
	Tail         Tail

	// MaxKeySize bounds the encoded key, excluding the column byte.
	MaxKeySize int
}

// Field size limits used to derive each column's maximum key size.
const (
	MaxRoomIDSize   = 255
	MaxEventIDSize  = 255
	MaxUserIDSize   = 255
	MaxServerSize   = 255
	MaxTypeSize     = 255
	MaxStateKeySize = 255

	depthSize = 8
	idxSize   = 8
)

func property(name string) Descriptor {
	return Descriptor{Name: name, Tail: TailIdx, MaxKeySize: idxSize}
}

var descriptors = [columnLimit]Descriptor{
	ColumnEventIdx: {
		Name: "event_idx", StringFields: 1, Tail: TailNone,
		MaxKeySize: MaxEventIDSize,
	},
	ColumnEventJSON:      property("event_json"),
	ColumnEventID:        property("event_id"),
	ColumnRoomID:         property("room_id"),
	ColumnSender:         property("sender"),
	ColumnType:           property("type"),
	ColumnStateKey:       property("state_key"),
	ColumnDepth:          property("depth"),
	ColumnOriginServerTS: property("origin_server_ts"),
	ColumnEventRefs: {
		Name:       "event_refs",
		MaxKeySize: idxSize + 1 + idxSize,
	},
	ColumnEventHorizon: {
		Name: "event_horizon", StringFields: 1, Tail: TailIdx,
		MaxKeySize: MaxEventIDSize + 1 + idxSize,
	},
	ColumnEventSender: {
		Name: "event_sender", StringFields: 1, Tail: TailIdx,
		MaxKeySize: MaxUserIDSize + 1 + idxSize,
	},
	ColumnEventSenderOrigin: {
		Name: "event_sender_origin", StringFields: 2, Tail: TailIdx,
		MaxKeySize: MaxServerSize + 1 + MaxUserIDSize + 1 + idxSize,
	},
	ColumnEventType: {
		Name: "event_type", StringFields: 1, Tail: TailIdx,
		MaxKeySize: MaxTypeSize + 1 + idxSize,
	},
	ColumnRoomEvents: {
		Name: "room_events", Order: NewestFirst, StringFields: 1, Tail: TailDepthIdx,
		MaxKeySize: MaxRoomIDSize + 1 + depthSize + idxSize,
	},
	ColumnRoomType: {
		Name: "room_type", Order: NewestFirst, StringFields: 2, Tail: TailDepthIdx,
		MaxKeySize: MaxRoomIDSize + 1 + MaxTypeSize + 1 + depthSize + idxSize,
	},
	ColumnRoomStateSpace: {
		Name: "room_state_space", Order: NewestFirst, StringFields: 3, Tail: TailDepthIdx,
		MaxKeySize: MaxStateKeySize + 1 + MaxTypeSize + 1 + MaxRoomIDSize + 1 + depthSize + idxSize,
	},
	ColumnRoomState: {
		Name: "room_state", StringFields: 3, Tail: TailNone,
		MaxKeySize: MaxRoomIDSize + 1 + MaxTypeSize + 1 + MaxStateKeySize,
	},
	ColumnRoomJoined: {
		Name: "room_joined", StringFields: 3, Tail: TailNone,
		MaxKeySize: MaxRoomIDSize + 1 + MaxServerSize + 1 + MaxUserIDSize,
	},
	ColumnRoomHead: {
		Name: "room_head", StringFields: 2, Tail: TailNone,
		MaxKeySize: MaxRoomIDSize + 1 + MaxEventIDSize,
	},
}

func init() {
	for column := ColumnEventIdx; column < columnLimit; column++ {
		descriptors[column].Column = column
	}
}

// Describe returns the descriptor of column. It panics for an unknown
// column, which is always a programming error.
func Describe(column Column) Descriptor {
	if column == 0 || column >= columnLimit {
		panic(fmt.Sprintf("keys: unknown column %d", column))
	}
	return descriptors[column]
}

// Columns returns every column in id order.
func Columns() []Column {
	columns := make([]Column, 0, columnLimit-1)
	for column := ColumnEventIdx; column < columnLimit; column++ {
		columns = append(columns, column)
	}
	return columns
}

// Valid reports whether column is a known column id.
func (c Column) Valid() bool { return c > 0 && c < columnLimit }

// String returns the column name, or "column(N)" for unknown ids.
func (c Column) String() string {
	if !c.Valid() {
		return fmt.Sprintf("column(%d)", uint8(c))
	}
	return descriptors[c].Name
}

// ParseColumn looks a column up by name.
func ParseColumn(name string) (Column, error) {
	for column := ColumnEventIdx; column < columnLimit; column++ {
		if descriptors[column].Name == name {
			return column, nil
		}
	}
	return 0, fmt.Errorf("unknown column %q", name)
}

// PropertyColumn returns the dedicated column for an event property
// name, if it has one.
func PropertyColumn(property string) (Column, bool) {
	switch property {
	case event.PropertyEventID:
		return ColumnEventID, true
	case event.PropertyRoomID:
		return ColumnRoomID, true
	case event.PropertySender:
		return ColumnSender, true
	case event.PropertyType:
		return ColumnType, true
	case event.PropertyStateKey:
		return ColumnStateKey, true
	case event.PropertyDepth:
		return ColumnDepth, true
	case event.PropertyOriginServerTS:
		return ColumnOriginServerTS, true
	}
	return 0, false
}
