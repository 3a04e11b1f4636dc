// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package indexer

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// Appendix is a set of flags selecting the indices one write touches.
type Appendix uint32

const (
	// AppendEventIdx maps event_id to idx and back.
	AppendEventIdx Appendix = 1 << iota
	// AppendEventJSON stores the event body.
	AppendEventJSON
	// AppendEventColumns stores the dedicated property columns.
	AppendEventColumns
	// AppendEventRefs records prev/auth/redacts references between
	// known events, and resolves horizon entries of the event itself.
	AppendEventRefs
	// AppendEventHorizon records prev_events that are not yet known.
	AppendEventHorizon
	// AppendEventSender indexes by sender and by sender origin.
	AppendEventSender
	// AppendEventType indexes by type across rooms.
	AppendEventType
	// AppendRoomEvents adds the event to the room timeline.
	AppendRoomEvents
	// AppendRoomType adds the event to the room's type timeline.
	AppendRoomType
	// AppendRoomStateSpace adds a state event to its slot's transitions.
	AppendRoomStateSpace
	// AppendRoomState upserts the present-state slot of a state event.
	AppendRoomState
	// AppendRoomJoined maintains the joined-members index.
	AppendRoomJoined
	// AppendRoomHead maintains the room frontier.
	AppendRoomHead

	appendixLimit
)

// AppendixDefault selects every index.
const AppendixDefault = appendixLimit - 1

// AppendixState selects the indices describing room state: the state
// space, present state and joined members. Used by rebuilds.
const AppendixState = AppendRoomStateSpace | AppendRoomState | AppendRoomJoined

var appendixNames = []string{
	"event_idx",
	"event_json",
	"event_columns",
	"event_refs",
	"event_horizon",
	"event_sender",
	"event_type",
	"room_events",
	"room_type",
	"room_state_space",
	"room_state",
	"room_joined",
	"room_head",
}

// Has reports whether every flag of other is set.
func (a Appendix) Has(other Appendix) bool { return a&other == other }

// String renders the set as a "|"-separated list of index names.
func (a Appendix) String() string {
	if a == 0 {
		return "none"
	}
	var names []string
	for i, name := range appendixNames {
		if a&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// ParseAppendix parses a "|"- or ","-separated list of index names.
// "all" selects AppendixDefault and "state" selects AppendixState.
func ParseAppendix(text string) (Appendix, error) {
	var result Appendix
	for _, name := range strings.FieldsFunc(text, func(r rune) bool { return r == '|' || r == ',' }) {
		name = strings.TrimSpace(name)
		switch name {
		case "all":
			result |= AppendixDefault
			continue
		case "state":
			result |= AppendixState
			continue
		}
		found := false
		for i, candidate := range appendixNames {
			if candidate == name {
				result |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown index %q", name)
		}
	}
	return result, nil
}

// For narrows a to the indices that apply to ev: state indices need a
// state key and the joined-members index needs a member event.
func (a Appendix) For(ev *event.Event) Appendix {
	if !ev.IsState() {
		a &^= AppendRoomStateSpace | AppendRoomState | AppendRoomJoined
	}
	if ev.Type != ref.EventTypeMember {
		a &^= AppendRoomJoined
	}
	return a
}

// Op is the direction of a write.
type Op uint8

const (
	// OpSet adds the event to the selected indices.
	OpSet Op = iota
	// OpDelete removes the event from the selected indices.
	OpDelete
)

func (o Op) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "set"
}

// Options controls one Write.
type Options struct {
	Op       Op
	Appendix Appendix

	// Idx is the event's index. When zero, Write reserves a new index
	// for OpSet and looks the existing one up for OpDelete.
	Idx event.Idx
}

// DefaultOptions sets every index.
func DefaultOptions() Options {
	return Options{Op: OpSet, Appendix: AppendixDefault}
}
