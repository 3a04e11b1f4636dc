// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/eventgraph/lib/ref"
)

func createEvent(t *testing.T) *Event {
	t.Helper()
	ev := &Event{
		RoomID:         ref.MustParseRoomID("!r:example.org"),
		Sender:         ref.MustParseUserID("@u:example.org"),
		Type:           ref.EventTypeCreate,
		StateKey:       StateKeyPtr(""),
		Depth:          0,
		OriginServerTS: 1700000000000,
		Content:        map[string]any{"creator": "@u:example.org", "room_version": "11"},
	}
	if _, err := Seal(ev); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return ev
}

func TestParseJSONStateKeyPresence(t *testing.T) {
	timeline, err := ParseJSON([]byte(`{"event_id":"$a","room_id":"!r:x","sender":"@u:x","type":"m.room.message","depth":2,"prev_events":["$p"],"content":{"body":"hi"}}`))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if timeline.IsState() {
		t.Error("event without state_key parsed as a state event")
	}

	state, err := ParseJSON([]byte(`{"event_id":"$b","room_id":"!r:x","sender":"@u:x","type":"m.room.topic","state_key":"","depth":3,"prev_events":["$a"],"content":{"topic":"t"}}`))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if !state.IsState() {
		t.Error("event with empty state_key parsed as a timeline event")
	}
	if state.StateKeyValue() != "" {
		t.Errorf("StateKeyValue() = %q, want empty", state.StateKeyValue())
	}
}

func TestParseJSONRejectsInvalidIdentifiers(t *testing.T) {
	_, err := ParseJSON([]byte(`{"event_id":"$a","room_id":"not-a-room","sender":"@u:x","type":"m.room.message"}`))
	if err == nil {
		t.Fatal("ParseJSON accepted an invalid room_id")
	}
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("error %v does not match ErrMalformed", err)
	}
	var malformed *MalformedError
	if !errors.As(err, &malformed) || malformed.Field != "pdu" {
		t.Errorf("error %v is not a *MalformedError for field pdu", err)
	}
}

func TestParseJSONRejectsOversizedPDU(t *testing.T) {
	huge := `{"content":{"body":"` + strings.Repeat("x", maxPDUSize) + `"}}`
	if _, err := ParseJSON([]byte(huge)); !errors.Is(err, ErrMalformed) {
		t.Errorf("ParseJSON(oversized) error = %v, want ErrMalformed", err)
	}
}

func TestBodyRoundTripPreservesReferenceHash(t *testing.T) {
	ev := createEvent(t)
	body, err := EncodeBody(ev)
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}
	decoded, err := DecodeBody(body)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if decoded.EventID != ev.EventID {
		t.Errorf("EventID = %s, want %s", decoded.EventID, ev.EventID)
	}
	if !decoded.IsState() {
		t.Error("decoded create event lost its empty state key")
	}
	if err := VerifyEventID(decoded); err != nil {
		t.Errorf("VerifyEventID after round trip: %v", err)
	}
}

func TestVerifyEventIDDetectsTampering(t *testing.T) {
	ev := createEvent(t)
	if err := VerifyEventID(ev); err != nil {
		t.Fatalf("VerifyEventID on sealed event: %v", err)
	}

	ev.Content["creator"] = "@mallory:example.org"
	if err := VerifyEventID(ev); err == nil {
		t.Error("VerifyEventID accepted modified content")
	}
}

func TestReferenceHashIgnoresSignaturesAndUnsigned(t *testing.T) {
	ev := createEvent(t)
	before, err := ReferenceHash(ev)
	if err != nil {
		t.Fatalf("ReferenceHash: %v", err)
	}
	ev.Signatures = map[string]map[string]string{"example.org": {"ed25519:a": "sig"}}
	ev.Unsigned = map[string]any{"age": 5}
	after, err := ReferenceHash(ev)
	if err != nil {
		t.Fatalf("ReferenceHash: %v", err)
	}
	if before != after {
		t.Error("reference hash changed when only signatures and unsigned changed")
	}
}

func TestConforms(t *testing.T) {
	room := ref.MustParseRoomID("!r:example.org")
	sender := ref.MustParseUserID("@u:example.org")
	prev := ref.MustParseEventID("$prev")

	tests := []struct {
		name  string
		event Event
		want  Conformity
	}{
		{
			name: "valid message",
			event: Event{EventID: ref.MustParseEventID("$m"), RoomID: room, Sender: sender,
				Type: ref.EventTypeMessage, Depth: 3, PrevEvents: []ref.EventID{prev}},
			want: 0,
		},
		{
			name:  "empty event",
			event: Event{},
			want:  MissingEventID | MissingRoomID | MissingSender | MissingType | MissingPrevEvents,
		},
		{
			name: "create with prev events and depth",
			event: Event{EventID: ref.MustParseEventID("$c"), RoomID: room, Sender: sender,
				Type: ref.EventTypeCreate, StateKey: StateKeyPtr(""), Depth: 4, PrevEvents: []ref.EventID{prev}},
			want: CreatePrevEvents | CreateDepth,
		},
		{
			name: "create without state key",
			event: Event{EventID: ref.MustParseEventID("$c"), RoomID: room, Sender: sender,
				Type: ref.EventTypeCreate},
			want: CreateStateKey,
		},
		{
			name: "create on foreign room server",
			event: Event{EventID: ref.MustParseEventID("$c"), RoomID: ref.MustParseRoomID("!r:other.org"), Sender: sender,
				Type: ref.EventTypeCreate, StateKey: StateKeyPtr("")},
			want: CreateRoomServer,
		},
		{
			name: "member with bad state key and no membership",
			event: Event{EventID: ref.MustParseEventID("$j"), RoomID: room, Sender: sender,
				Type: ref.EventTypeMember, StateKey: StateKeyPtr("alice"), Depth: 1, PrevEvents: []ref.EventID{prev},
				Content: map[string]any{}},
			want: MemberStateKey | MemberMembership,
		},
		{
			name: "self and duplicate prev",
			event: Event{EventID: ref.MustParseEventID("$s"), RoomID: room, Sender: sender,
				Type: ref.EventTypeMessage, Depth: 1, PrevEvents: []ref.EventID{ref.MustParseEventID("$s"), prev, prev}},
			want: SelfPrevEvent | DuplicatePrevEvent,
		},
		{
			name: "oversized type and negative depth",
			event: Event{EventID: ref.MustParseEventID("$t"), RoomID: room, Sender: sender,
				Type: ref.EventType(strings.Repeat("t", MaxTypeSize+1)), Depth: -1, PrevEvents: []ref.EventID{prev}},
			want: TypeTooLong | NegativeDepth,
		},
		{
			name: "type longer than an index key field",
			event: Event{EventID: ref.MustParseEventID("$l"), RoomID: room, Sender: sender,
				Type: ref.EventType("com.example." + strings.Repeat("l", 300)), Depth: 1, PrevEvents: []ref.EventID{prev}},
			want: 0,
		},
		{
			name: "origin mismatch",
			event: Event{EventID: ref.MustParseEventID("$o"), RoomID: room, Sender: sender, Origin: ref.MustParseServerName("evil.org"),
				Type: ref.EventTypeMessage, Depth: 1, PrevEvents: []ref.EventID{prev}},
			want: OriginMismatch,
		},
		{
			name: "redaction without target",
			event: Event{EventID: ref.MustParseEventID("$x"), RoomID: room, Sender: sender,
				Type: ref.EventTypeRedaction, Depth: 1, PrevEvents: []ref.EventID{prev}},
			want: RedactionTarget,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Conforms(&test.event)
			if got != test.want {
				t.Errorf("Conforms() = %q, want %q", got, test.want)
			}
			if (got.Err(&test.event) == nil) != (test.want == 0) {
				t.Errorf("Err() = %v for conformity %q", got.Err(&test.event), got)
			}
		})
	}
}

func TestConformityString(t *testing.T) {
	c := MissingType | NegativeDepth
	if got := c.String(); got != "missing_type negative_depth" {
		t.Errorf("String() = %q", got)
	}
	if c.Count() != 2 {
		t.Errorf("Count() = %d, want 2", c.Count())
	}
	if !c.Has(NegativeDepth) || c.Has(MissingSender) {
		t.Errorf("Has() reports wrong membership for %q", c)
	}
	if Conformity(0).String() != "conforms" {
		t.Errorf("zero String() = %q", Conformity(0).String())
	}
}

func TestLookupPathAndRawValue(t *testing.T) {
	body := map[string]any{
		"type":  "m.room.member",
		"depth": uint64(7),
		"content": map[string]any{
			"membership":  "join",
			"displayname": "Alice \"A\"",
			"flags":       []any{"x"},
			"ratio":       1.5,
			"count":       float64(12),
			"public":      true,
		},
	}

	tests := []struct {
		path  string
		want  string
		found bool
	}{
		{"type", "m.room.member", true},
		{"depth", "7", true},
		{"content.membership", "join", true},
		{"content.displayname", `Alice "A"`, true},
		{"content.flags", `["x"]`, true},
		{"content.ratio", "1.5", true},
		{"content.count", "12", true},
		{"content.public", "true", true},
		{"content.missing", "", false},
		{"type.nested", "", false},
	}
	for _, test := range tests {
		value, found := LookupPath(body, test.path)
		if found != test.found {
			t.Errorf("LookupPath(%q) found = %v, want %v", test.path, found, test.found)
			continue
		}
		if !found {
			continue
		}
		raw, err := RawValue(value)
		if err != nil {
			t.Fatalf("RawValue(%q): %v", test.path, err)
		}
		if string(raw) != test.want {
			t.Errorf("RawValue(%q) = %q, want %q", test.path, raw, test.want)
		}
	}
}
