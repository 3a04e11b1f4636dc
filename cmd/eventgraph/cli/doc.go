// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the eventgraph
// binary: a tree of [Command] values dispatched by name, flags bound from
// tagged parameter structs with [FlagsFromParams], and helpers for
// --json output and exit codes.
//
// Commands write to the [Output] they are constructed with rather than
// to os.Stdout directly, so a whole command tree can be exercised from a
// test by pointing it at a buffer.
package cli
