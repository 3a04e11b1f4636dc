// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/base64"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/eventgraph/lib/codec"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// referenceDomainKey separates event reference hashes from every other
// BLAKE3 use. Changing it changes every computed event ID.
var referenceDomainKey = [32]byte{
	'e', 'v', 'e', 'n', 't', 'g', 'r', 'a', 'p', 'h', '.', 'e', 'v', 'e', 'n', 't',
	'.', 'r', 'e', 'f', 'e', 'r', 'e', 'n', 'c', 'e', 0, 0, 0, 0, 0, 0,
}

// ReferenceHash computes the content address of ev: the keyed BLAKE3
// hash of its deterministic CBOR encoding with event_id, signatures and
// unsigned removed. Those three fields are either derived from the hash
// or added after it, so they cannot be inputs.
func ReferenceHash(ev *Event) (Hash, error) {
	stripped := *ev
	stripped.EventID = ref.EventID{}
	stripped.Signatures = nil
	stripped.Unsigned = nil

	encoded, err := codec.Marshal(&stripped)
	if err != nil {
		return Hash{}, fmt.Errorf("encoding event for reference hash: %w", err)
	}

	hasher, err := blake3.NewKeyed(referenceDomainKey[:])
	if err != nil {
		panic("event: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(encoded)
	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result, nil
}

// ComputeEventID returns the room-version-4 style event ID for ev:
// "$" followed by the unpadded URL-safe base64 of its reference hash.
func ComputeEventID(ev *Event) (ref.EventID, error) {
	hash, err := ReferenceHash(ev)
	if err != nil {
		return ref.EventID{}, err
	}
	return ref.ParseEventID("$" + base64.RawURLEncoding.EncodeToString(hash[:]))
}

// Seal sets ev.EventID to its computed content address and returns ev.
// Use when building events locally (CLI, tests); events received from
// remotes are verified with VerifyEventID instead.
func Seal(ev *Event) (*Event, error) {
	eventID, err := ComputeEventID(ev)
	if err != nil {
		return nil, err
	}
	ev.EventID = eventID
	return ev, nil
}

// VerifyEventID checks that ev.EventID matches the event's content.
func VerifyEventID(ev *Event) error {
	computed, err := ComputeEventID(ev)
	if err != nil {
		return err
	}
	if computed != ev.EventID {
		return fmt.Errorf("event ID %s does not match content hash %s", ev.EventID, computed)
	}
	return nil
}
