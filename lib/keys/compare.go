// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import "bytes"

// Compare orders two keys of column (without the column byte) according
// to the column's Order.
func Compare(column Column, a, b []byte) int {
	descriptor := Describe(column)
	if descriptor.Order == NewestFirst {
		return compareNewestFirst(descriptor.StringFields, a, b)
	}
	return bytes.Compare(a, b)
}

// compareNewestFirst compares the string region (everything up to and
// including the fields-th NUL) bytewise, then the numeric tails. A key
// with fewer separators is all string region, which makes partial keys
// usable as seek targets that land before every complete key sharing
// their prefix.
func compareNewestFirst(fields int, a, b []byte) int {
	aRegion := regionEnd(a, fields)
	bRegion := regionEnd(b, fields)
	if c := bytes.Compare(a[:aRegion], b[:bRegion]); c != 0 {
		return c
	}
	return compareTail(a[aRegion:], b[bRegion:])
}

// regionEnd returns the offset just past the fields-th NUL of key, or
// len(key) when key holds fewer separators.
func regionEnd(key []byte, fields int) int {
	offset := 0
	for range fields {
		separator := bytes.IndexByte(key[offset:], 0)
		if separator < 0 {
			return len(key)
		}
		offset += separator + 1
	}
	return offset
}

// compareTail orders numeric tails: a tail too short to hold a depth
// sorts first (bytewise among such tails), then depth descending, then
// idx descending, then any remainder bytewise.
func compareTail(a, b []byte) int {
	for range 2 {
		aComplete := len(a) >= 8
		bComplete := len(b) >= 8
		switch {
		case !aComplete && !bComplete:
			return bytes.Compare(a, b)
		case !aComplete:
			return -1
		case !bComplete:
			return 1
		}
		// Big-endian fields compare numerically as bytes; swapping the
		// operands makes the order descending.
		if c := bytes.Compare(b[:8], a[:8]); c != 0 {
			return c
		}
		a, b = a[8:], b[8:]
	}
	return bytes.Compare(a, b)
}
