// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package indexer translates one event into the complete set of
// mutations across every secondary index it touches.
//
// [Writer.Write] reads through the caller's transaction (so events
// staged earlier in the same transaction are visible) and stages its own
// mutations into a private write-only transaction. Only when every
// mutation for the event has been built is that group merged into the
// caller's transaction; a malformed event leaves the caller's
// transaction exactly as it was. The writer never commits.
//
// [Appendix] selects which indices a write touches. State-only indices
// are skipped for timeline events and the joined-members index only
// applies to m.room.member events, regardless of the flags.
//
// Present-state writes are blind: the previous slot value is not read.
// Callers that need the superseded event (prev_content) resolve it
// before writing, see the roomstate package.
package indexer
