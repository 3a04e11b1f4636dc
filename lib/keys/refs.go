// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"encoding/binary"
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/event"
)

// RefKind says how a source event cites its target.
type RefKind uint8

const (
	// RefPrev: the target is one of the source's prev_events.
	RefPrev RefKind = iota + 1
	// RefAuth: the target is one of the source's auth_events.
	RefAuth
	// RefRedacts: the source redacts the target.
	RefRedacts
)

func (k RefKind) String() string {
	switch k {
	case RefPrev:
		return "prev"
	case RefAuth:
		return "auth"
	case RefRedacts:
		return "redacts"
	default:
		return fmt.Sprintf("ref(%d)", uint8(k))
	}
}

// RefKey is the event_refs key recording that source cites target.
func RefKey(target event.Idx, kind RefKind, source event.Idx) []byte {
	key := make([]byte, 0, idxSize+1+idxSize)
	key = target.AppendBytes(key)
	key = append(key, byte(kind))
	return source.AppendBytes(key)
}

// RefPrefix selects every event citing target. A non-zero kind narrows
// the selection to that kind.
func RefPrefix(target event.Idx, kind RefKind) []byte {
	key := target.Bytes()
	if kind != 0 {
		key = append(key, byte(kind))
	}
	return key
}

// DecodeRef splits an event_refs key.
func DecodeRef(key []byte) (target event.Idx, kind RefKind, source event.Idx, err error) {
	if len(key) != idxSize+1+idxSize {
		return 0, 0, 0, fmt.Errorf("keys: event_refs key is %d bytes, want %d", len(key), idxSize+1+idxSize)
	}
	target = event.Idx(binary.BigEndian.Uint64(key))
	kind = RefKind(key[idxSize])
	source = event.Idx(binary.BigEndian.Uint64(key[idxSize+1:]))
	return target, kind, source, nil
}
