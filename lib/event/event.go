// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// Event is a Matrix PDU as stored by the engine. Field names follow the
// federation wire format; the same tags drive the stored CBOR form.
type Event struct {
	EventID        ref.EventID                  `json:"event_id"`
	RoomID         ref.RoomID                   `json:"room_id"`
	Sender         ref.UserID                   `json:"sender"`
	Origin         ref.ServerName               `json:"origin,omitzero"`
	Type           ref.EventType                `json:"type"`
	StateKey       *string                      `json:"state_key,omitempty"`
	Depth          int64                        `json:"depth"`
	OriginServerTS int64                        `json:"origin_server_ts"`
	PrevEvents     []ref.EventID                `json:"prev_events"`
	AuthEvents     []ref.EventID                `json:"auth_events,omitempty"`
	Content        map[string]any               `json:"content"`
	Hashes         map[string]string            `json:"hashes,omitempty"`
	Signatures     map[string]map[string]string `json:"signatures,omitempty"`
	Redacts        ref.EventID                  `json:"redacts,omitzero"`
	Unsigned       map[string]any               `json:"unsigned,omitempty"`
}

// Property names with a dedicated column in the event store. Lookups of
// any other property (including dotted paths into content) fall back to
// decoding the stored body.
const (
	PropertyEventID        = "event_id"
	PropertyRoomID         = "room_id"
	PropertySender         = "sender"
	PropertyType           = "type"
	PropertyStateKey       = "state_key"
	PropertyDepth          = "depth"
	PropertyOriginServerTS = "origin_server_ts"
)

// Membership values of m.room.member content.
const (
	MembershipJoin   = "join"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipInvite = "invite"
	MembershipKnock  = "knock"
)

// IsState reports whether the event carries a state key. An empty state
// key still makes the event a state event.
func (ev *Event) IsState() bool { return ev.StateKey != nil }

// StateKeyValue returns the state key, or "" for timeline events. Use
// IsState to distinguish the empty state key from an absent one.
func (ev *Event) StateKeyValue() string {
	if ev.StateKey == nil {
		return ""
	}
	return *ev.StateKey
}

// Membership returns content.membership for m.room.member events and ""
// for every other event or when the field is missing or not a string.
func (ev *Event) Membership() string {
	if ev.Type != ref.EventTypeMember {
		return ""
	}
	membership, _ := ev.Content["membership"].(string)
	return membership
}

// OriginServer returns the server the event originated from: the
// explicit origin field when present, otherwise the sender's server.
func (ev *Event) OriginServer() ref.ServerName {
	if !ev.Origin.IsZero() {
		return ev.Origin
	}
	if ev.Sender.IsZero() {
		return ref.ServerName{}
	}
	return ev.Sender.Server()
}

// ContentString returns content[key] when it is a string.
func (ev *Event) ContentString(key string) (string, bool) {
	value, ok := ev.Content[key].(string)
	return value, ok
}

// StateKeyPtr returns a pointer to a copy of key, for building state
// events in literals.
func StateKeyPtr(key string) *string { return &key }
