// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import "github.com/bureau-foundation/eventgraph/lib/ref"

// TruncateType shortens eventType to MaxTypeSize bytes. The boolean
// reports whether anything was cut. Two types sharing their first
// MaxTypeSize bytes collide after truncation; callers count truncations
// so collisions are observable.
func TruncateType(eventType ref.EventType) (ref.EventType, bool) {
	if len(eventType) <= MaxTypeSize {
		return eventType, false
	}
	return eventType[:MaxTypeSize], true
}

// TruncateStateKey shortens stateKey to MaxStateKeySize bytes.
func TruncateStateKey(stateKey string) (string, bool) {
	if len(stateKey) <= MaxStateKeySize {
		return stateKey, false
	}
	return stateKey[:MaxStateKeySize], true
}
