// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// Room builds sealed events for one room. Each event's depth is one more
// than the deepest of its prev_events, and every event gets a distinct
// origin_server_ts so identical content still yields distinct IDs.
type Room struct {
	t         testing.TB
	ID        ref.RoomID
	Creator   ref.UserID
	timestamp int64
}

// NewRoom returns a builder for roomID created by creator.
func NewRoom(t testing.TB, roomID, creator string) *Room {
	t.Helper()
	return &Room{
		t:         t,
		ID:        ref.MustParseRoomID(roomID),
		Creator:   ref.MustParseUserID(creator),
		timestamp: 1700000000000,
	}
}

// Create returns the m.room.create event.
func (r *Room) Create() *event.Event {
	r.t.Helper()
	return r.seal(&event.Event{
		Sender:   r.Creator,
		Type:     ref.EventTypeCreate,
		StateKey: event.StateKeyPtr(""),
		Depth:    0,
		Content:  map[string]any{"creator": r.Creator.String(), "room_version": "11"},
	})
}

// Member returns an m.room.member event setting user's membership.
func (r *Room) Member(user string, membership string, prevs ...*event.Event) *event.Event {
	r.t.Helper()
	userID := ref.MustParseUserID(user)
	return r.State(userID.String(), ref.EventTypeMember, userID.String(),
		map[string]any{"membership": membership}, prevs...)
}

// State returns a state event.
func (r *Room) State(sender string, eventType ref.EventType, stateKey string, content map[string]any, prevs ...*event.Event) *event.Event {
	r.t.Helper()
	return r.Event(sender, eventType, event.StateKeyPtr(stateKey), content, prevs...)
}

// Message returns an m.room.message event.
func (r *Room) Message(sender, body string, prevs ...*event.Event) *event.Event {
	r.t.Helper()
	return r.Event(sender, ref.EventTypeMessage, nil,
		map[string]any{"msgtype": "m.text", "body": body}, prevs...)
}

// Event returns an arbitrary event citing prevs.
func (r *Room) Event(sender string, eventType ref.EventType, stateKey *string, content map[string]any, prevs ...*event.Event) *event.Event {
	r.t.Helper()
	ev := &event.Event{
		Sender:   ref.MustParseUserID(sender),
		Type:     eventType,
		StateKey: stateKey,
		Content:  content,
	}
	for _, prev := range prevs {
		ev.PrevEvents = append(ev.PrevEvents, prev.EventID)
		ev.Depth = max(ev.Depth, prev.Depth+1)
	}
	return r.seal(ev)
}

func (r *Room) seal(ev *event.Event) *event.Event {
	r.t.Helper()
	r.timestamp++
	ev.RoomID = r.ID
	ev.OriginServerTS = r.timestamp
	if ev.Content == nil {
		ev.Content = map[string]any{}
	}
	if _, err := event.Seal(ev); err != nil {
		r.t.Fatalf("sealing %s event: %v", ev.Type, err)
	}
	return ev
}
