// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// ErrUnauthorized matches every *Failure.
var ErrUnauthorized = errors.New("event not authorized")

// Pass names the check that rejected an event.
type Pass string

const (
	PassStatic   Pass = "static"
	PassRelative Pass = "relative"
)

// Failure describes why an event was rejected.
type Failure struct {
	Pass    Pass
	EventID ref.EventID
	Reason  string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s check rejected %s: %s", f.Pass, f.EventID, f.Reason)
}

// Is lets errors.Is(err, ErrUnauthorized) match.
func (f *Failure) Is(target error) bool { return target == ErrUnauthorized }

func reject(pass Pass, ev *event.Event, format string, args ...any) error {
	return &Failure{Pass: pass, EventID: ev.EventID, Reason: fmt.Sprintf(format, args...)}
}

// State is the room state in effect before the event being checked.
// Lookup returns store.ErrNotFound for an empty slot.
type State interface {
	Lookup(eventType ref.EventType, stateKey string) (*event.Event, error)
}

// Static checks ev in isolation.
func Static(ev *event.Event) error {
	if problems := event.Conforms(ev); problems != 0 {
		return reject(PassStatic, ev, "does not conform: %s", problems)
	}
	switch ev.Type {
	case ref.EventTypePowerLevels, ref.EventTypeJoinRules:
		if !ev.IsState() {
			return reject(PassStatic, ev, "%s must be a state event", ev.Type)
		}
	case ref.EventTypeMember:
		switch ev.Membership() {
		case event.MembershipJoin, event.MembershipKnock:
			if ev.StateKeyValue() != ev.Sender.String() {
				return reject(PassStatic, ev, "%s must be sent by the member", ev.Membership())
			}
		}
	}
	if ev.Type == ref.EventTypePowerLevels {
		if _, err := ParsePowerLevels(ev); err != nil {
			return reject(PassStatic, ev, "%v", err)
		}
	}
	return nil
}

// Relative checks ev against the room state in effect before it.
func Relative(ev *event.Event, state State) error {
	if ev.Type == ref.EventTypeCreate {
		if _, err := lookup(state, ref.EventTypeCreate, ""); err == nil {
			return reject(PassRelative, ev, "room already has a create event")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	}

	create, err := lookup(state, ref.EventTypeCreate, "")
	if errors.Is(err, store.ErrNotFound) {
		return reject(PassRelative, ev, "room has no create event")
	}
	if err != nil {
		return err
	}
	levels, err := powerLevels(state, create)
	if err != nil {
		return err
	}

	if ev.Type == ref.EventTypeMember {
		return checkMembership(ev, state, create, levels)
	}

	senderMembership, err := membership(state, ev.Sender)
	if err != nil {
		return err
	}
	if senderMembership != event.MembershipJoin {
		return reject(PassRelative, ev, "sender %s is not joined (membership %q)", ev.Sender, senderMembership)
	}
	senderLevel := levels.UserLevel(ev.Sender)
	if required := levels.EventLevel(ev.Type, ev.IsState()); senderLevel < required {
		return reject(PassRelative, ev, "sender level %d below %d required for %s", senderLevel, required, ev.Type)
	}
	if ev.Type == ref.EventTypePowerLevels {
		return checkPowerLevelsChange(ev, levels, senderLevel)
	}
	return nil
}

func lookup(state State, eventType ref.EventType, stateKey string) (*event.Event, error) {
	return state.Lookup(eventType, stateKey)
}

func membership(state State, user ref.UserID) (string, error) {
	member, err := lookup(state, ref.EventTypeMember, user.String())
	if errors.Is(err, store.ErrNotFound) {
		return event.MembershipLeave, nil
	}
	if err != nil {
		return "", err
	}
	return member.Membership(), nil
}

func powerLevels(state State, create *event.Event) (*PowerLevels, error) {
	current, err := lookup(state, ref.EventTypePowerLevels, "")
	if errors.Is(err, store.ErrNotFound) {
		return implicitPowerLevels(create.Sender), nil
	}
	if err != nil {
		return nil, err
	}
	return ParsePowerLevels(current)
}

func joinRule(state State) (string, error) {
	rules, err := lookup(state, ref.EventTypeJoinRules, "")
	if errors.Is(err, store.ErrNotFound) {
		return "invite", nil
	}
	if err != nil {
		return "", err
	}
	rule, _ := rules.ContentString("join_rule")
	return rule, nil
}

// checkPowerLevelsChange rejects granting or revoking levels above the
// sender's own.
func checkPowerLevelsChange(ev *event.Event, current *PowerLevels, senderLevel int) error {
	proposed, err := ParsePowerLevels(ev)
	if err != nil {
		return reject(PassRelative, ev, "%v", err)
	}
	for user, level := range proposed.Users {
		userID, err := ref.ParseUserID(user)
		if err != nil {
			return reject(PassRelative, ev, "power levels name invalid user %q", user)
		}
		old := current.UserLevel(userID)
		if old == level {
			continue
		}
		if level > senderLevel || (old >= senderLevel && userID != ev.Sender) {
			return reject(PassRelative, ev, "cannot change level of %s from %d to %d at level %d", user, old, level, senderLevel)
		}
	}
	for user, old := range current.Users {
		if _, kept := proposed.Users[user]; kept {
			continue
		}
		if old > senderLevel {
			return reject(PassRelative, ev, "cannot remove level %d of %s at level %d", old, user, senderLevel)
		}
	}
	return nil
}
