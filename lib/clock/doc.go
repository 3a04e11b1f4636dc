// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The frontier acquire and gossip loops wait on per-fetch timeouts and
// poll intervals; the store's compaction scheduler waits for the next
// cron slot. All of them take a [Clock] so tests can drive time with
// [FakeClock.Advance] instead of sleeping.
package clock
