// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state or timeline event type
// ("m.room.member", "m.room.message", or any dot-namespaced custom type).
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing. The type exists purely for
// compile-time safety, preventing a state key from being passed where an
// event type is expected (or vice versa).
type EventType string

// Standard event types the engine gives special treatment to.
const (
	EventTypeCreate      EventType = "m.room.create"
	EventTypeMember      EventType = "m.room.member"
	EventTypePowerLevels EventType = "m.room.power_levels"
	EventTypeJoinRules   EventType = "m.room.join_rules"
	EventTypeMessage     EventType = "m.room.message"
	EventTypeTopic       EventType = "m.room.topic"
	EventTypeName        EventType = "m.room.name"
	EventTypeRedaction   EventType = "m.room.redaction"
)

// String returns the event type string (e.g., "m.room.member").
func (t EventType) String() string { return string(t) }
