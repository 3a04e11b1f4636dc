// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the engine's on-disk encodings for event bodies.
//
// Event bodies arrive as JSON at the federation boundary and are stored
// as CBOR. The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length items.
// The same logical event always produces identical bytes, which is what
// makes the reference hash in lib/event reproducible from a stored body.
//
// Stored bodies are additionally framed by [Pack]: a one-byte
// [CompressionTag], the uvarint length of the uncompressed payload, then
// the (possibly) compressed payload. Framing records the algorithm per
// value, so the configured compression can change without rewriting
// existing data.
//
//	framed, err := codec.Pack(body, codec.CompressionZstd)
//	body, err = codec.Unpack(framed)
//
// Types use `json` struct tags; fxamacker/cbor reads them as a fallback
// when `cbor` tags are absent, so one tag set serves both the federation
// JSON form and the stored CBOR form.
package codec
