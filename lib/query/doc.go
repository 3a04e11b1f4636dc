// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package query evaluates predicates over event properties.
//
// A [Filter] is a small expression tree (equal, not-equal, and, or,
// not) evaluated by one recursive function against a [Tuple], which
// supplies raw property values by name. [EventTuple] adapts a decoded
// event; [StoredTuple] reads properties lazily from the event store.
//
// [Accumulators] hold per-scan state machines addressed by [Handle].
// Each accumulator decides which events it tracks (Test) and is told
// about additions and removals (Add, Del).
package query
