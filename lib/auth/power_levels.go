// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// Matrix defaults for power levels missing from the content, or for a
// room with no m.room.power_levels event at all.
const (
	defaultStateLevel  = 50
	defaultActionLevel = 50
	creatorLevel       = 100
)

// PowerLevels is the content of an m.room.power_levels event. Pointer
// fields distinguish an absent level from an explicit 0.
type PowerLevels struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  *int           `json:"users_default,omitempty"`
	Events        map[string]int `json:"events,omitempty"`
	EventsDefault *int           `json:"events_default,omitempty"`
	StateDefault  *int           `json:"state_default,omitempty"`
	Invite        *int           `json:"invite,omitempty"`
	Ban           *int           `json:"ban,omitempty"`
	Kick          *int           `json:"kick,omitempty"`
}

// ParsePowerLevels decodes the content of a power levels event.
func ParsePowerLevels(ev *event.Event) (*PowerLevels, error) {
	encoded, err := json.Marshal(ev.Content)
	if err != nil {
		return nil, fmt.Errorf("encoding power levels content: %w", err)
	}
	var levels PowerLevels
	if err := json.Unmarshal(encoded, &levels); err != nil {
		return nil, fmt.Errorf("parsing power levels content: %w", err)
	}
	return &levels, nil
}

// UserLevel returns the level of userID: its explicit entry, otherwise
// users_default, otherwise 0.
func (p *PowerLevels) UserLevel(userID ref.UserID) int {
	if level, ok := p.Users[userID.String()]; ok {
		return level
	}
	return levelOr(p.UsersDefault, 0)
}

// EventLevel returns the level required to send eventType, as a state
// event when state is set.
func (p *PowerLevels) EventLevel(eventType ref.EventType, state bool) int {
	if level, ok := p.Events[string(eventType)]; ok {
		return level
	}
	if state {
		return levelOr(p.StateDefault, defaultStateLevel)
	}
	return levelOr(p.EventsDefault, 0)
}

// InviteLevel returns the level required to invite.
func (p *PowerLevels) InviteLevel() int { return levelOr(p.Invite, 0) }

// KickLevel returns the level required to kick.
func (p *PowerLevels) KickLevel() int { return levelOr(p.Kick, defaultActionLevel) }

// BanLevel returns the level required to ban.
func (p *PowerLevels) BanLevel() int { return levelOr(p.Ban, defaultActionLevel) }

func levelOr(level *int, fallback int) int {
	if level == nil {
		return fallback
	}
	return *level
}

// implicitPowerLevels applies before the room has a power levels event:
// the creator has level 100, everyone else the defaults.
func implicitPowerLevels(creator ref.UserID) *PowerLevels {
	return &PowerLevels{Users: map[string]int{creator.String(): creatorLevel}}
}
