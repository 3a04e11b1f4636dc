// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// Typed constructors for each column. Identifier arguments come from
// lib/ref, whose parsers already reject NUL and oversized values, so the
// keys built from them only fail on the free-form type and state key
// strings.

// EventIdxKey is the event_idx key of eventID.
func EventIdxKey(eventID ref.EventID) []byte {
	return []byte(eventID.String())
}

// IdxKey is the key of the body and property columns.
func IdxKey(idx event.Idx) []byte {
	return idx.Bytes()
}

// HorizonKey records that source cites missing, an event not yet known.
func HorizonKey(missing ref.EventID, source event.Idx) []byte {
	return mustEncode(ColumnEventHorizon, []string{missing.String()}, UndefinedDepth, source)
}

// HorizonPrefix selects every horizon entry for missing.
func HorizonPrefix(missing ref.EventID) []byte {
	return mustEncode(ColumnEventHorizon, []string{missing.String()}, UndefinedDepth, 0)
}

// SenderKey is the event_sender key of an event sent by sender.
func SenderKey(sender ref.UserID, idx event.Idx) []byte {
	return mustEncode(ColumnEventSender, []string{sender.String()}, UndefinedDepth, idx)
}

// SenderPrefix selects every event sent by sender.
func SenderPrefix(sender ref.UserID) []byte {
	return SenderKey(sender, 0)
}

// SenderOriginKey is the event_sender_origin key of an event sent by
// sender: reversed host, localpart, idx. Reversing the host groups
// subdomains of one organization together.
func SenderOriginKey(sender ref.UserID, idx event.Idx) []byte {
	fields := []string{sender.Server().Reversed(), sender.Localpart()}
	return mustEncode(ColumnEventSenderOrigin, fields, UndefinedDepth, idx)
}

// OriginPrefix selects every event sent from server.
func OriginPrefix(server ref.ServerName) []byte {
	return mustEncode(ColumnEventSenderOrigin, []string{server.Reversed()}, UndefinedDepth, 0)
}

// TypeKey is the event_type key. eventType must already be truncated.
func TypeKey(eventType ref.EventType, idx event.Idx) ([]byte, error) {
	return Encode(ColumnEventType, []string{string(eventType)}, UndefinedDepth, idx)
}

// RoomEventsKey is the room timeline key. Pass UndefinedDepth for a
// prefix selecting the whole room.
func RoomEventsKey(room ref.RoomID, depth int64, idx event.Idx) ([]byte, error) {
	return Encode(ColumnRoomEvents, []string{room.String()}, depth, idx)
}

// RoomEventsPrefix selects a room's whole timeline, newest first.
func RoomEventsPrefix(room ref.RoomID) []byte {
	return mustEncode(ColumnRoomEvents, []string{room.String()}, UndefinedDepth, 0)
}

// RoomTypeKey is the type timeline key. eventType must already be
// truncated.
func RoomTypeKey(room ref.RoomID, eventType ref.EventType, depth int64, idx event.Idx) ([]byte, error) {
	return Encode(ColumnRoomType, []string{room.String(), string(eventType)}, depth, idx)
}

// RoomTypePrefix selects one type's timeline in a room.
func RoomTypePrefix(room ref.RoomID, eventType ref.EventType) ([]byte, error) {
	return RoomTypeKey(room, eventType, UndefinedDepth, 0)
}

// RoomStateSpaceKey is the state timeline key. The state key leads so
// that every transition of one state key can be scanned across rooms.
func RoomStateSpaceKey(stateKey string, eventType ref.EventType, room ref.RoomID, depth int64, idx event.Idx) ([]byte, error) {
	fields := []string{stateKey, string(eventType), room.String()}
	return Encode(ColumnRoomStateSpace, fields, depth, idx)
}

// RoomStateSpacePrefix selects the transitions of one state slot.
func RoomStateSpacePrefix(stateKey string, eventType ref.EventType, room ref.RoomID) ([]byte, error) {
	return RoomStateSpaceKey(stateKey, eventType, room, UndefinedDepth, 0)
}

// RoomStateKey is the present state key of a slot.
func RoomStateKey(room ref.RoomID, eventType ref.EventType, stateKey string) ([]byte, error) {
	return Encode(ColumnRoomState, []string{room.String(), string(eventType), stateKey}, UndefinedDepth, 0)
}

// RoomStatePrefix selects a room's present state, or one type of it
// when eventType is non-empty.
func RoomStatePrefix(room ref.RoomID, eventType ref.EventType) ([]byte, error) {
	fields := []string{room.String()}
	if eventType != "" {
		fields = append(fields, string(eventType))
	}
	return Encode(ColumnRoomState, fields, UndefinedDepth, 0)
}

// RoomJoinedKey is the joined member key of user.
func RoomJoinedKey(room ref.RoomID, user ref.UserID) []byte {
	fields := []string{room.String(), user.Server().String(), user.String()}
	return mustEncode(ColumnRoomJoined, fields, UndefinedDepth, 0)
}

// RoomJoinedPrefix selects a room's joined members, or those of one
// origin when origin is non-zero.
func RoomJoinedPrefix(room ref.RoomID, origin ref.ServerName) []byte {
	fields := []string{room.String()}
	if !origin.IsZero() {
		fields = append(fields, origin.String())
	}
	return mustEncode(ColumnRoomJoined, fields, UndefinedDepth, 0)
}

// RoomHeadKey is the head key of eventID.
func RoomHeadKey(room ref.RoomID, eventID ref.EventID) []byte {
	return mustEncode(ColumnRoomHead, []string{room.String(), eventID.String()}, UndefinedDepth, 0)
}

// RoomHeadPrefix selects a room's heads.
func RoomHeadPrefix(room ref.RoomID) []byte {
	return mustEncode(ColumnRoomHead, []string{room.String()}, UndefinedDepth, 0)
}

// mustEncode encodes keys built only from validated identifiers.
func mustEncode(column Column, fields []string, depth int64, idx event.Idx) []byte {
	key, err := Encode(column, fields, depth, idx)
	if err != nil {
		panic(fmt.Sprintf("keys: encoding validated %s key: %v", column, err))
	}
	return key
}
