// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Idx is the server-local numeric handle of an accepted event. Indices
// are assigned once, in increasing order, and never reused. Every
// secondary index stores an Idx instead of an event ID or body.
type Idx uint64

// IdxSize is the encoded width of an Idx in keys and values.
const IdxSize = 8

// IsZero reports whether idx is the undefined sentinel.
func (idx Idx) IsZero() bool { return idx == 0 }

// String renders the index in decimal.
func (idx Idx) String() string { return strconv.FormatUint(uint64(idx), 10) }

// AppendBytes appends the big-endian encoding of idx to dst.
func (idx Idx) AppendBytes(dst []byte) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(idx))
}

// Bytes returns the 8-byte big-endian encoding of idx.
func (idx Idx) Bytes() []byte {
	return idx.AppendBytes(make([]byte, 0, IdxSize))
}

// IdxFromBytes decodes an 8-byte big-endian index.
func IdxFromBytes(data []byte) (Idx, error) {
	if len(data) != IdxSize {
		return 0, fmt.Errorf("event index value is %d bytes, want %d", len(data), IdxSize)
	}
	return Idx(binary.BigEndian.Uint64(data)), nil
}
