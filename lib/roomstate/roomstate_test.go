// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/eventgraph/lib/codec"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/indexer"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
	"github.com/bureau-foundation/eventgraph/lib/testutil"
)

type harness struct {
	t        *testing.T
	db       *store.DB
	resolver *Resolver
	writer   *indexer.Writer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.OpenDB(t)
	events, err := eventstore.Open(db, eventstore.Options{Compression: codec.CompressionNone, LookupWidth: 1}, nil)
	if err != nil {
		t.Fatalf("eventstore.Open: %v", err)
	}
	writer := indexer.New(db, events, nil)
	return &harness{t: t, db: db, resolver: New(db, events, writer, nil), writer: writer}
}

func (h *harness) ingest(events ...*event.Event) []event.Idx {
	h.t.Helper()
	var idxs []event.Idx
	for _, ev := range events {
		txn := h.db.NewTxn()
		idx, err := h.writer.Write(txn, ev, indexer.DefaultOptions())
		if err != nil {
			txn.Discard()
			h.t.Fatalf("Write(%s): %v", ev.EventID, err)
		}
		testutil.Commit(h.t, txn)
		idxs = append(idxs, idx)
	}
	return idxs
}

func (h *harness) present(room ref.RoomID, slot Slot) event.Idx {
	h.t.Helper()
	idx, err := Present(h.db, room, slot)
	if errors.Is(err, store.ErrNotFound) {
		return 0
	}
	if err != nil {
		h.t.Fatalf("Present(%s): %v", slot, err)
	}
	return idx
}

func (h *harness) joined(room ref.RoomID, user string) bool {
	h.t.Helper()
	found, err := store.Has(h.db, keys.ColumnRoomJoined, keys.RoomJoinedKey(room, ref.MustParseUserID(user)))
	if err != nil {
		h.t.Fatalf("Has(room_joined): %v", err)
	}
	return found
}

var topicSlot = Slot{Type: ref.EventTypeTopic, StateKey: ""}

func TestPrev(t *testing.T) {
	h := newHarness(t)
	room := testutil.NewRoom(t, "!r:example", "@u:example")
	create := room.Create()
	s1 := room.State("@u:example", ref.EventTypeTopic, "", map[string]any{"topic": "one"}, create)
	message := room.Message("@u:example", "hi", s1)
	s2 := room.State("@u:example", ref.EventTypeTopic, "", map[string]any{"topic": "two"}, message)
	other := room.State("@u:example", ref.EventTypeName, "", map[string]any{"name": "n"}, s2)
	idxs := h.ingest(create, s1, message, s2, other)
	s1Idx, messageIdx, s2Idx, otherIdx := idxs[1], idxs[2], idxs[3], idxs[4]

	tests := []struct {
		name string
		idx  event.Idx
		want event.Idx
	}{
		{"second topic", s2Idx, s1Idx},
		{"first topic", s1Idx, 0},
		{"only name", otherIdx, 0},
	}
	for _, test := range tests {
		got, err := h.resolver.Prev(test.idx)
		if err != nil {
			t.Errorf("Prev(%s): %v", test.name, err)
			continue
		}
		if got != test.want {
			t.Errorf("Prev(%s) = %d, want %d", test.name, got, test.want)
		}
	}

	if _, err := h.resolver.Prev(messageIdx); !errors.Is(err, event.ErrMalformed) {
		t.Errorf("Prev(message) error = %v, want ErrMalformed", err)
	}
	if _, err := h.resolver.Prev(999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Prev(unassigned) error = %v, want ErrNotFound", err)
	}
}

func TestPresentAndTransitions(t *testing.T) {
	h := newHarness(t)
	room := testutil.NewRoom(t, "!r:example", "@u:example")
	create := room.Create()
	s1 := room.State("@u:example", ref.EventTypeTopic, "", map[string]any{"topic": "one"}, create)
	s2 := room.State("@u:example", ref.EventTypeTopic, "", map[string]any{"topic": "two"}, s1)
	idxs := h.ingest(create, s1, s2)

	if got := h.present(room.ID, topicSlot); got != idxs[2] {
		t.Errorf("Present(topic) = %d, want %d", got, idxs[2])
	}

	var slots []Slot
	err := ForEachPresent(h.db, room.ID, "", func(slot Slot, idx event.Idx) error {
		slots = append(slots, slot)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachPresent: %v", err)
	}
	want := []Slot{{Type: ref.EventTypeCreate}, {Type: ref.EventTypeTopic}}
	if len(slots) != len(want) || slots[0] != want[0] || slots[1] != want[1] {
		t.Errorf("ForEachPresent slots = %v, want %v", slots, want)
	}

	var transitions []Transition
	err = ForEachTransition(h.db, room.ID, topicSlot, func(transition Transition) error {
		transitions = append(transitions, transition)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachTransition: %v", err)
	}
	if len(transitions) != 2 || transitions[0].Idx != idxs[2] || transitions[1].Idx != idxs[1] {
		t.Errorf("ForEachTransition = %v, want newest first [%d %d]", transitions, idxs[2], idxs[1])
	}

	other := testutil.NewRoom(t, "!s:example", "@u:example")
	otherCreate := other.Create()
	otherTopic := other.State("@u:example", ref.EventTypeTopic, "", map[string]any{"topic": "x"}, otherCreate)
	h.ingest(otherCreate, otherTopic)

	rooms := map[ref.RoomID]int{}
	err = ForEachStateKey(h.db, "", func(room ref.RoomID, eventType ref.EventType, _ Transition) error {
		if eventType == ref.EventTypeTopic {
			rooms[room]++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachStateKey: %v", err)
	}
	if rooms[room.ID] != 2 || rooms[other.ID] != 1 {
		t.Errorf("topic transitions by room = %v, want 2 in %s and 1 in %s", rooms, room.ID, other.ID)
	}

	stop := errors.New("stop")
	calls := 0
	err = ForEachPresent(h.db, room.ID, "", func(Slot, event.Idx) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("ForEachPresent with stopping callback = %v after %d calls, want stop after 1", err, calls)
	}
}

// buildContestedRoom ingests a room where two state events would fail
// authorization: a topic from a user without power and an uninvited
// join.
func buildContestedRoom(t *testing.T, h *harness) (*testutil.Room, map[string]event.Idx) {
	t.Helper()
	room := testutil.NewRoom(t, "!r:example", "@admin:example")
	create := room.Create()
	adminJoin := room.Member("@admin:example", event.MembershipJoin, create)
	levels := room.State("@admin:example", ref.EventTypePowerLevels, "",
		map[string]any{"users": map[string]any{"@admin:example": 100}}, adminJoin)
	invite := room.State("@admin:example", ref.EventTypeMember, "@user:example",
		map[string]any{"membership": "invite"}, levels)
	userJoin := room.Member("@user:example", event.MembershipJoin, invite)
	goodTopic := room.State("@admin:example", ref.EventTypeTopic, "", map[string]any{"topic": "good"}, userJoin)
	badTopic := room.State("@user:example", ref.EventTypeTopic, "", map[string]any{"topic": "bad"}, goodTopic)
	strangerJoin := room.Member("@stranger:example", event.MembershipJoin, badTopic)
	message := room.Message("@user:example", "hi", strangerJoin)

	idxs := h.ingest(create, adminJoin, levels, invite, userJoin, goodTopic, badTopic, strangerJoin, message)
	return room, map[string]event.Idx{
		"good topic": idxs[5],
		"bad topic":  idxs[6],
	}
}

func TestRebuild(t *testing.T) {
	h := newHarness(t)
	room, idxs := buildContestedRoom(t, h)

	if got := h.present(room.ID, topicSlot); got != idxs["bad topic"] {
		t.Fatalf("Present(topic) before rebuild = %d, want the unchecked %d", got, idxs["bad topic"])
	}
	if !h.joined(room.ID, "@stranger:example") {
		t.Fatal("stranger not joined before rebuild")
	}

	report, err := h.resolver.Rebuild(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	want := RebuildReport{Room: room.ID, Messages: 1, States: 8, Rejected: 2, Deleted: 2}
	if report != want {
		t.Errorf("Rebuild report = %+v, want %+v", report, want)
	}

	if got := h.present(room.ID, topicSlot); got != idxs["good topic"] {
		t.Errorf("Present(topic) after rebuild = %d, want %d", got, idxs["good topic"])
	}
	for user, want := range map[string]bool{"@admin:example": true, "@user:example": true, "@stranger:example": false} {
		if got := h.joined(room.ID, user); got != want {
			t.Errorf("joined(%s) after rebuild = %v, want %v", user, got, want)
		}
	}
	if got, err := h.resolver.Prev(idxs["bad topic"]); err != nil || got != idxs["good topic"] {
		t.Errorf("Prev(bad topic) = %d, %v; want %d", got, err, idxs["good topic"])
	}

	second, err := h.resolver.Rebuild(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	want.Deleted = 0
	if second != want {
		t.Errorf("second Rebuild report = %+v, want %+v", second, want)
	}
	if got := h.present(room.ID, topicSlot); got != idxs["good topic"] {
		t.Errorf("Present(topic) after second rebuild = %d, want %d", got, idxs["good topic"])
	}
}

func TestRebuildRetractsTruncatedEntry(t *testing.T) {
	h := newHarness(t)
	room := testutil.NewRoom(t, "!long:example", "@admin:example")
	create := room.Create()
	adminJoin := room.Member("@admin:example", event.MembershipJoin, create)
	levels := room.State("@admin:example", ref.EventTypePowerLevels, "",
		map[string]any{"users": map[string]any{"@admin:example": 100}}, adminJoin)
	invite := room.State("@admin:example", ref.EventTypeMember, "@user:example",
		map[string]any{"membership": "invite"}, levels)
	userJoin := room.Member("@user:example", event.MembershipJoin, invite)
	longType := ref.EventType("com.example." + strings.Repeat("t", 300))
	longKey := strings.Repeat("k", 300)
	long := room.State("@user:example", longType, longKey, map[string]any{}, userJoin)
	idxs := h.ingest(create, adminJoin, levels, invite, userJoin, long)
	longIdx := idxs[5]

	eventType, _ := keys.TruncateType(longType)
	stateKey, _ := keys.TruncateStateKey(longKey)
	spaceKey, err := keys.RoomStateSpaceKey(stateKey, eventType, room.ID, long.Depth, longIdx)
	if err != nil {
		t.Fatalf("RoomStateSpaceKey: %v", err)
	}
	if found, err := store.Has(h.db, keys.ColumnRoomStateSpace, spaceKey); err != nil || !found {
		t.Fatalf("state_space entry before rebuild = %v, %v; want present", found, err)
	}

	report, err := h.resolver.Rebuild(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.Rejected != 1 || report.Deleted != 1 {
		t.Errorf("Rebuild rejected %d deleted %d, want 1 and 1", report.Rejected, report.Deleted)
	}
	if found, err := store.Has(h.db, keys.ColumnRoomStateSpace, spaceKey); err != nil || found {
		t.Errorf("state_space entry after rebuild = %v, %v; want removed", found, err)
	}
}

func TestRebuildCancelled(t *testing.T) {
	h := newHarness(t)
	room, idxs := buildContestedRoom(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.resolver.Rebuild(ctx, room.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("Rebuild(cancelled) error = %v, want context.Canceled", err)
	}
	if got := h.present(room.ID, topicSlot); got != idxs["bad topic"] {
		t.Errorf("Present(topic) after cancelled rebuild = %d, want unchanged %d", got, idxs["bad topic"])
	}
	if !h.joined(room.ID, "@stranger:example") {
		t.Error("cancelled rebuild changed joined members")
	}
}
