// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/bureau-foundation/eventgraph/lib/event"
)

// UndefinedDepth is the depth decoded from a key that carries no depth
// field, and the value callers pass to stop encoding before the depth.
const UndefinedDepth int64 = -1

// Tuple is the decoded form of a composite key. Strings holds the string
// fields that were present, in key order; Depth and Idx hold
// UndefinedDepth and 0 when the key ends before them.
type Tuple struct {
	Strings []string
	Depth   int64
	Idx     event.Idx
}

// Encode builds a key for column from its string fields followed by the
// optional depth and idx. Fewer strings than the column defines produce
// a prefix key; depth is only written after every string field, and idx
// only after the depth (for columns that have one). A depth of
// UndefinedDepth or an idx of 0 ends the key.
func Encode(column Column, fields []string, depth int64, idx event.Idx) ([]byte, error) {
	descriptor := Describe(column)
	if len(fields) > descriptor.StringFields {
		return nil, fmt.Errorf("keys: %s takes %d string fields, got %d", column, descriptor.StringFields, len(fields))
	}
	if depth < UndefinedDepth {
		return nil, event.Malformed(nil, "depth", fmt.Sprintf("negative depth %d", depth))
	}

	key := make([]byte, 0, encodedSize(fields))
	for i, field := range fields {
		if strings.IndexByte(field, 0) >= 0 {
			return nil, event.Malformed(nil, column.String(), fmt.Sprintf("string field %d contains NUL", i))
		}
		key = append(key, field...)
		last := i == descriptor.StringFields-1
		if !last || descriptor.Tail != TailNone {
			key = append(key, 0)
		}
	}

	complete := len(fields) == descriptor.StringFields
	switch descriptor.Tail {
	case TailIdx:
		if complete && !idx.IsZero() {
			key = idx.AppendBytes(key)
		}
	case TailDepthIdx:
		if complete && depth != UndefinedDepth {
			key = binary.BigEndian.AppendUint64(key, uint64(depth))
			if !idx.IsZero() {
				key = idx.AppendBytes(key)
			}
		}
	}

	if len(key) > descriptor.MaxKeySize {
		return nil, event.Malformed(nil, column.String(),
			fmt.Sprintf("key is %d bytes, column maximum is %d", len(key), descriptor.MaxKeySize))
	}
	return key, nil
}

func encodedSize(fields []string) int {
	size := depthSize + idxSize
	for _, field := range fields {
		size += len(field) + 1
	}
	return size
}

// Decode splits a key of column into its fields. Absent trailing fields
// decode to fewer Strings, UndefinedDepth and a zero Idx.
func Decode(column Column, key []byte) (Tuple, error) {
	descriptor := Describe(column)
	tuple := Tuple{Depth: UndefinedDepth}
	if column == ColumnEventRefs {
		return tuple, fmt.Errorf("keys: %s keys decode with DecodeRef", column)
	}

	rest := key
	for i := range descriptor.StringFields {
		if i == descriptor.StringFields-1 && descriptor.Tail == TailNone {
			// The last field of an untailed key runs to the end and may
			// be empty.
			if i > 0 || len(rest) > 0 {
				tuple.Strings = append(tuple.Strings, string(rest))
			}
			rest = nil
			break
		}
		if len(rest) == 0 {
			break
		}
		separator := bytes.IndexByte(rest, 0)
		if separator < 0 {
			tuple.Strings = append(tuple.Strings, string(rest))
			rest = nil
			break
		}
		tuple.Strings = append(tuple.Strings, string(rest[:separator]))
		rest = rest[separator+1:]
	}

	if descriptor.Tail == TailDepthIdx && len(rest) >= depthSize {
		depth := binary.BigEndian.Uint64(rest)
		if depth > 1<<63-1 {
			return tuple, event.Malformed(nil, column.String(), "stored depth overflows int64")
		}
		tuple.Depth = int64(depth)
		rest = rest[depthSize:]
	}
	if descriptor.Tail != TailNone && len(rest) >= idxSize {
		tuple.Idx = event.Idx(binary.BigEndian.Uint64(rest))
		rest = rest[idxSize:]
	}
	if len(rest) != 0 {
		return tuple, fmt.Errorf("keys: %s key has %d trailing bytes", column, len(rest))
	}
	return tuple, nil
}
