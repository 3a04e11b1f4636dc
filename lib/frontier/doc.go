// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package frontier reads a room's leading edge and moves events across
// it.
//
// The head set (events no known event cites as a prev_event) and the
// joined-origin set are maintained by the index writer; this package
// only reads them. [Heads], [RandomHead] and [HeadDepth] expose the
// frontier, [Origins] and [RandomOrigin] the remote servers taking part
// in a room.
//
// Two bulk operations use them. [Acquire] pulls history: each round
// fetches events that are cited but unknown (bounded by a viewport below
// the head) and the current heads of remote origins (bounded below by
// depth), validates every candidate and ingests it. [Gossip] pushes: it
// asks each origin for its head, walks forward from that event through
// event_refs, and sends what the origin has not seen as one transaction.
//
// Both operations bound their outstanding requests by a width, give
// every request its own timeout, and survive per-request failure: a
// transport error, rejection or timeout is logged, recorded on the
// request's [Fetch] or [Send] record, and the operation continues. Only
// storage errors and cancellation stop them.
package frontier
