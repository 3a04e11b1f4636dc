// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventstore maps event IDs to event indices and serves event
// properties by index.
//
// Every accepted event gets one [event.Idx], assigned by
// [Store.AssignIndex] from a counter recovered at open time. The mapping
// is staged into the caller's transaction, so an index becomes visible
// exactly when the event's other columns do. Assignment must be
// serialized per event ID by the caller (the engine holds a per-room lock
// across the check and the assignment); the counter itself is safe for
// concurrent use and never hands out the same index twice.
//
// Properties with a dedicated column (room_id, sender, type, state_key,
// depth, origin_server_ts, event_id) are served from that column. Any
// other property, including dotted paths into content, is extracted from
// the stored body. Values are always raw: strings without JSON quoting,
// numbers in decimal.
package eventstore
