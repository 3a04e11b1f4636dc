// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"errors"
	"testing"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/testutil"
)

func TestMatch(t *testing.T) {
	room := testutil.NewRoom(t, "!r:example", "@u:example")
	create := room.Create()
	join := room.Member("@v:other", event.MembershipJoin, create)
	message := room.Message("@u:example", "hi", join)

	isMember := Equal(event.PropertyType, string(ref.EventTypeMember))
	tests := []struct {
		name   string
		filter Filter
		ev     *event.Event
		want   bool
	}{
		{"all", Filter{}, message, true},
		{"equal", isMember, join, true},
		{"equal mismatch", isMember, message, false},
		{"not equal", NotEqual(event.PropertyType, string(ref.EventTypeMember)), message, true},
		{"absent equal", Equal(event.PropertyStateKey, ""), message, false},
		{"absent not equal", NotEqual(event.PropertyStateKey, ""), message, true},
		{"empty state key", Equal(event.PropertyStateKey, ""), create, true},
		{"content path", Equal("content.membership", "join"), join, true},
		{"depth rendered", Equal(event.PropertyDepth, "2"), message, true},
		{"and", And(isMember, Equal("content.membership", "join")), join, true},
		{"and short", And(isMember, Equal("content.membership", "leave")), join, false},
		{"empty and", And(), message, true},
		{"or", Or(isMember, Equal(event.PropertySender, "@u:example")), message, true},
		{"empty or", Or(), message, false},
		{"not", Not(isMember), message, true},
		{"origin from sender", Equal("origin", "other"), join, true},
		{"has state key", Has(event.PropertyStateKey), create, true},
		{"has no state key", Has(event.PropertyStateKey), message, false},
		{"has content path", Has("content.membership"), join, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := test.filter.Match(EventTuple(test.ev))
			if err != nil {
				t.Fatalf("Match(%s): %v", test.filter, err)
			}
			if got != test.want {
				t.Errorf("Match(%s) = %v, want %v", test.filter, got, test.want)
			}
		})
	}
}

type failingTuple struct{ calls int }

func (f *failingTuple) Lookup(string) ([]byte, error) {
	f.calls++
	return nil, errors.New("disk on fire")
}

func TestMatchErrorsAndShortCircuit(t *testing.T) {
	tuple := &failingTuple{}
	if _, err := Equal("type", "x").Match(tuple); err == nil {
		t.Error("Match with failing tuple succeeded, want error")
	}

	tuple = &failingTuple{}
	matched, err := Or(Filter{}, Equal("type", "x")).Match(tuple)
	if err != nil || !matched {
		t.Errorf("Or(*, ...) = %v, %v; want true", matched, err)
	}
	if tuple.calls != 0 {
		t.Errorf("Or looked up %d properties after its first operand matched, want 0", tuple.calls)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"type=m.room.member", "type=m.room.member"},
		{"room_id=!r:example", "room_id=!r:example"},
		{"a=1 & b!=2", "a=1 & b!=2"},
		{"a=1 | b=2 & c=3", "a=1 | (b=2 & c=3)"},
		{"(a=1 | b=2) & c=3", "(a=1 | b=2) & c=3"},
		{"!(a=1)", "!(a=1)"},
		{"!a=1", "!(a=1)"},
		{`state_key="with space"`, `state_key="with space"`},
		{`content.body=""`, `content.body=""`},
		{"*", "*"},
		{"state_key & !content.membership", "state_key & !(content.membership)"},
	}
	for _, test := range tests {
		filter, err := Parse(test.text)
		if err != nil {
			t.Errorf("Parse(%q): %v", test.text, err)
			continue
		}
		if got := filter.String(); got != test.want {
			t.Errorf("Parse(%q).String() = %q, want %q", test.text, got, test.want)
		}
		again, err := Parse(filter.String())
		if err != nil {
			t.Errorf("Parse(%q) of rendered filter: %v", filter.String(), err)
			continue
		}
		if again.String() != filter.String() {
			t.Errorf("rendering %q is not stable: %q", filter.String(), again.String())
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{"", "a=", "a b", "(a=1", "a=1)", "a=1 &", "=x", `a="unterminated`} {
		if _, err := Parse(text); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", text)
		}
	}
}

func TestProperties(t *testing.T) {
	filter := And(Equal("type", "x"), Or(NotEqual("sender", "y"), Not(Equal("type", "z"))), Has("state_key"))
	got := filter.Properties()
	if len(got) != 3 || got[0] != "type" || got[1] != "sender" || got[2] != "state_key" {
		t.Errorf("Properties() = %v, want [type sender state_key]", got)
	}
}

func TestAccumulators(t *testing.T) {
	room := testutil.NewRoom(t, "!r:example", "@u:example")
	create := room.Create()
	join := room.Member("@v:other", event.MembershipJoin, create)
	message := room.Message("@u:example", "hi", join)
	second := room.Message("@v:other", "hey", message)

	var accumulators Accumulators
	messages := accumulators.Register(NewCounter(Equal(event.PropertyType, string(ref.EventTypeMessage))))
	senders := accumulators.Register(NewDistinct(Filter{}, event.PropertySender))

	for _, ev := range []*event.Event{create, join, message, second} {
		if err := accumulators.Add(ev); err != nil {
			t.Fatalf("Add(%s): %v", ev.EventID, err)
		}
	}
	if got := accumulators.Get(messages).(*Counter).Count(); got != 2 {
		t.Errorf("messages = %d, want 2", got)
	}
	distinct := accumulators.Get(senders).(*Distinct)
	if distinct.Len() != 2 {
		t.Errorf("distinct senders = %d, want 2", distinct.Len())
	}

	if err := accumulators.Del(second); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if got := accumulators.Get(messages).(*Counter).Count(); got != 1 {
		t.Errorf("messages after Del = %d, want 1", got)
	}
	if !distinct.Has("@v:other") {
		t.Error("@v:other dropped while its join is still added")
	}
	if err := accumulators.Del(join); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if distinct.Has("@v:other") {
		t.Error("@v:other still present after all its events were removed")
	}
}
