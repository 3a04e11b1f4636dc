// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth applies room authorization rules to events during state
// rebuilds.
//
// Checks come in two passes. [Static] looks at the event alone: its
// structure conforms and its shape is legal for its type. [Relative]
// checks the event against the room state in effect before it: the
// room exists, the sender is joined and powerful enough, and membership
// transitions are permitted.
//
// The rules are the subset of the Matrix room authorization rules that
// need no signatures: create, membership (join, invite, leave, kick,
// ban, knock) and power levels. Both passes return a
// *[Failure] matching [ErrUnauthorized].
package auth
