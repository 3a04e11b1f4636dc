// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"math/bits"
	"strings"

	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// Limits applied by Conforms. The type and state key bounds are the
// 65536-byte PDU limit; values longer than the key codec's 255-byte
// fields still conform and are truncated when indexed.
const (
	MaxTypeSize       = 64 << 10
	MaxStateKeySize   = 64 << 10
	MaxPrevEvents     = 20
	MaxAuthEvents     = 10
	maxContentEntries = 4096
)

// Conformity is a bit set of structural problems found by Conforms. The
// zero value means the event conforms.
type Conformity uint32

// Individual conformity failures.
const (
	MissingEventID Conformity = 1 << iota
	MissingRoomID
	MissingSender
	MissingType
	TypeTooLong
	StateKeyTooLong
	NegativeDepth
	MissingPrevEvents
	TooManyPrevEvents
	TooManyAuthEvents
	SelfPrevEvent
	DuplicatePrevEvent
	CreatePrevEvents
	CreateDepth
	CreateStateKey
	CreateRoomServer
	MemberStateKey
	MemberMembership
	OriginMismatch
	RedactionTarget
	ContentTooLarge
)

var conformityNames = []string{
	"missing_event_id",
	"missing_room_id",
	"missing_sender",
	"missing_type",
	"type_too_long",
	"state_key_too_long",
	"negative_depth",
	"missing_prev_events",
	"too_many_prev_events",
	"too_many_auth_events",
	"self_prev_event",
	"duplicate_prev_event",
	"create_prev_events",
	"create_depth",
	"create_state_key",
	"create_room_server",
	"member_state_key",
	"member_membership",
	"origin_mismatch",
	"redaction_target",
	"content_too_large",
}

// Has reports whether every bit of flag is set in c.
func (c Conformity) Has(flag Conformity) bool { return c&flag == flag }

// Count returns the number of failures recorded in c.
func (c Conformity) Count() int { return bits.OnesCount32(uint32(c)) }

// String lists the failure names separated by spaces, or "conforms".
func (c Conformity) String() string {
	if c == 0 {
		return "conforms"
	}
	var names []string
	for i, name := range conformityNames {
		if c&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, " ")
}

// Err converts a non-zero Conformity into a *MalformedError for ev.
func (c Conformity) Err(ev *Event) error {
	if c == 0 {
		return nil
	}
	return Malformed(ev, "conforms", c.String())
}

// Conforms checks the structure of ev without consulting any other
// event. It reports every failure it finds rather than stopping at the
// first, so operators see the whole picture in one log line.
func Conforms(ev *Event) Conformity {
	var c Conformity
	if ev.EventID.IsZero() {
		c |= MissingEventID
	}
	if ev.RoomID.IsZero() {
		c |= MissingRoomID
	}
	if ev.Sender.IsZero() {
		c |= MissingSender
	}
	if ev.Type == "" {
		c |= MissingType
	}
	if len(ev.Type) > MaxTypeSize {
		c |= TypeTooLong
	}
	if len(ev.StateKeyValue()) > MaxStateKeySize {
		c |= StateKeyTooLong
	}
	if ev.Depth < 0 {
		c |= NegativeDepth
	}
	if len(ev.PrevEvents) > MaxPrevEvents {
		c |= TooManyPrevEvents
	}
	if len(ev.AuthEvents) > MaxAuthEvents {
		c |= TooManyAuthEvents
	}
	if len(ev.Content) > maxContentEntries {
		c |= ContentTooLarge
	}

	seen := make(map[ref.EventID]struct{}, len(ev.PrevEvents))
	for _, prev := range ev.PrevEvents {
		if prev == ev.EventID {
			c |= SelfPrevEvent
		}
		if _, duplicate := seen[prev]; duplicate {
			c |= DuplicatePrevEvent
		}
		seen[prev] = struct{}{}
	}

	if !ev.Origin.IsZero() && !ev.Sender.IsZero() && ev.Origin != ev.Sender.Server() {
		c |= OriginMismatch
	}

	switch ev.Type {
	case ref.EventTypeCreate:
		if len(ev.PrevEvents) > 0 {
			c |= CreatePrevEvents
		}
		if ev.Depth != 0 {
			c |= CreateDepth
		}
		if !ev.IsState() || ev.StateKeyValue() != "" {
			c |= CreateStateKey
		}
		if !ev.RoomID.IsZero() && !ev.Sender.IsZero() && ev.RoomID.Server() != ev.Sender.Server() {
			c |= CreateRoomServer
		}
	case ref.EventTypeMember:
		if _, err := ref.ParseUserID(ev.StateKeyValue()); err != nil || !ev.IsState() {
			c |= MemberStateKey
		}
		if ev.Membership() == "" {
			c |= MemberMembership
		}
		if len(ev.PrevEvents) == 0 {
			c |= MissingPrevEvents
		}
	case ref.EventTypeRedaction:
		if ev.Redacts.IsZero() {
			c |= RedactionTarget
		}
		if len(ev.PrevEvents) == 0 {
			c |= MissingPrevEvents
		}
	default:
		if len(ev.PrevEvents) == 0 {
			c |= MissingPrevEvents
		}
	}

	return c
}
