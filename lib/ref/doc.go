// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable references for the Matrix
// identifiers that flow through the event graph: room IDs, event IDs, user
// IDs, server names and event types.
//
// All constructors validate their inputs and return errors for malformed
// identifiers. Once constructed, a ref is immutable and its accessors return
// pre-validated strings. The zero value of every ref type is "unset"; use
// IsZero to check.
//
// Identifiers are validated once, at the boundary where they enter the
// engine (federation responses, CLI fixtures, the ingest API). Storage code
// below that boundary trusts the typed values and never re-parses them.
//
// JSON and CBOR marshaling use the canonical string form via
// encoding.TextMarshaler, so refs can be embedded directly in PDU structs.
package ref
