// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the immutable, content-addressed Matrix event
// (PDU) the engine stores, and the numeric handle every index joins on.
//
// An [Event] is parsed once at the ingestion boundary ([ParseJSON]) and
// never mutated afterwards. Its StateKey is a pointer: a nil StateKey is a
// timeline event, while a non-nil empty string is a state event for the
// empty slot. The two are distinct and every index writer honors the
// distinction.
//
// [Idx] is the server-local 64-bit handle assigned to an event the first
// time it is durably accepted. Zero is the undefined sentinel and is never
// assigned.
//
// [Conforms] performs the structural checks that need no database access
// (identifier syntax, size limits, create-event shape). [ReferenceHash]
// and [ComputeEventID] derive the content address of an event; they are
// the default verification primitive used by the frontier tracker.
package event
