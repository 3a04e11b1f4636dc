// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// checkMembership applies the m.room.member transition rules.
func checkMembership(ev *event.Event, state State, create *event.Event, levels *PowerLevels) error {
	target, err := ref.ParseUserID(ev.StateKeyValue())
	if err != nil {
		return reject(PassRelative, ev, "member state key %q is not a user", ev.StateKeyValue())
	}
	targetMembership, err := membership(state, target)
	if err != nil {
		return err
	}
	senderMembership, err := membership(state, ev.Sender)
	if err != nil {
		return err
	}
	senderLevel := levels.UserLevel(ev.Sender)
	targetLevel := levels.UserLevel(target)

	switch ev.Membership() {
	case event.MembershipJoin:
		if targetMembership == event.MembershipBan {
			return reject(PassRelative, ev, "%s is banned", target)
		}
		// The creator's first join directly follows the create event.
		if target == create.Sender && len(ev.PrevEvents) == 1 && ev.PrevEvents[0] == create.EventID {
			return nil
		}
		if targetMembership == event.MembershipJoin || targetMembership == event.MembershipInvite {
			return nil
		}
		rule, err := joinRule(state)
		if err != nil {
			return err
		}
		if rule != "public" {
			return reject(PassRelative, ev, "join rule %q requires an invite", rule)
		}
		return nil

	case event.MembershipInvite:
		if senderMembership != event.MembershipJoin {
			return reject(PassRelative, ev, "inviter %s is not joined", ev.Sender)
		}
		if targetMembership == event.MembershipJoin || targetMembership == event.MembershipBan {
			return reject(PassRelative, ev, "cannot invite %s with membership %q", target, targetMembership)
		}
		if senderLevel < levels.InviteLevel() {
			return reject(PassRelative, ev, "sender level %d below invite level %d", senderLevel, levels.InviteLevel())
		}
		return nil

	case event.MembershipLeave:
		if target == ev.Sender {
			if senderMembership == event.MembershipLeave || senderMembership == event.MembershipBan {
				return reject(PassRelative, ev, "%s cannot leave with membership %q", target, senderMembership)
			}
			return nil
		}
		if senderMembership != event.MembershipJoin {
			return reject(PassRelative, ev, "kicker %s is not joined", ev.Sender)
		}
		if targetMembership == event.MembershipBan {
			if senderLevel < levels.BanLevel() {
				return reject(PassRelative, ev, "sender level %d below ban level %d to unban", senderLevel, levels.BanLevel())
			}
			return nil
		}
		if senderLevel < levels.KickLevel() || targetLevel >= senderLevel {
			return reject(PassRelative, ev, "sender level %d cannot kick %s at level %d", senderLevel, target, targetLevel)
		}
		return nil

	case event.MembershipBan:
		if senderMembership != event.MembershipJoin {
			return reject(PassRelative, ev, "banner %s is not joined", ev.Sender)
		}
		if senderLevel < levels.BanLevel() || targetLevel >= senderLevel {
			return reject(PassRelative, ev, "sender level %d cannot ban %s at level %d", senderLevel, target, targetLevel)
		}
		return nil

	case event.MembershipKnock:
		rule, err := joinRule(state)
		if err != nil {
			return err
		}
		if rule != "knock" {
			return reject(PassRelative, ev, "join rule %q does not allow knocking", rule)
		}
		if targetMembership == event.MembershipBan || targetMembership == event.MembershipJoin {
			return reject(PassRelative, ev, "cannot knock with membership %q", targetMembership)
		}
		return nil
	}
	return reject(PassRelative, ev, "unknown membership %q", ev.Membership())
}
