// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keys encodes and decodes the composite binary keys of every
// event graph column.
//
// Keys are built from a fixed sequence of fields. String fields (room
// ID, type, state key, sender) are separated by a single NUL byte;
// numeric fields (depth, event index) follow the last separator as
// 8-byte big-endian integers. Encoders only append a trailing field while
// every field before it is present, so a depth is never written without
// the string fields that precede it. Decoders report absent trailing
// numeric fields as [UndefinedDepth] and a zero [event.Idx].
//
// Columns declare an [Order]. [Bytewise] columns sort by plain byte
// comparison. [NewestFirst] columns compare the string region
// ascending and then depth and index descending, so a forward scan of
// a room's timeline yields the newest event first. The reversal lives
// in [Compare], not in the bytes, so keys stay readable in a debugger.
//
// Strings containing NUL and negative depths are rejected with
// [event.ErrMalformed]. Oversized type and state key strings must be
// shortened with [TruncateType] and [TruncateStateKey] before encoding;
// every other field has a hard maximum enforced by the encoder.
package keys
