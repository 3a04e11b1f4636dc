// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides test helpers shared across packages:
// channel receive helpers with timeouts, and [Room], a builder for
// sealed events with consistent depths and prev_events. [OpenDB]
// returns an in-memory database scoped to one test.
//
// This package is imported only from _test.go files.
package testutil
