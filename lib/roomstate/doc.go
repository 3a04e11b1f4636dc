// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomstate reads and maintains the state of rooms.
//
// The present state of a room is one event per (type, state_key) slot,
// held in the room_state column. The full history of each slot lives in
// room_state_space, newest first, which is what [Prev] walks to find the
// event a state event superseded.
//
// [Resolver.Rebuild] recomputes a room's present state and joined
// members from its timeline, re-applying the authorization rules of the
// auth package to every state event. It runs in one transaction, so
// readers see either the old state or the rebuilt one, and running it
// again on an unchanged room changes nothing.
package roomstate
