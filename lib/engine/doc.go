// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine assembles the event graph: one pebble database, the
// event store, the secondary index writer, the state resolver, and the
// frontier's acquire and gossip loops over a federation client.
//
// [Engine.Ingest] is the single write path. Each event is checked,
// assigned an index and written with all of its secondary indices in one
// atomic commit. Ingests into the same room are serialized by a striped
// lock, which keeps the head set's remove-parents/insert-self update and
// the index assignment race-free without a global lock; different rooms
// proceed in parallel.
//
// The engine owns a prometheus.Registry holding the database, writer,
// frontier and ingest metrics. Nothing serves it; callers gather it or
// mount it on their own HTTP handler.
package engine
