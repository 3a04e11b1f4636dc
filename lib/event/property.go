// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LookupPath walks a decoded body by a dotted property path
// ("content.membership"). It returns false when any segment is missing or
// traverses a non-object.
func LookupPath(body map[string]any, path string) (any, bool) {
	var current any = body
	for _, segment := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// RawValue renders a decoded body value the way property columns store
// it: strings without quotes or escapes, integers in decimal, booleans as
// "true"/"false", and structured values as compact JSON.
func RawValue(value any) ([]byte, error) {
	switch typed := value.(type) {
	case string:
		return []byte(typed), nil
	case bool:
		return []byte(strconv.FormatBool(typed)), nil
	case int64:
		return []byte(strconv.FormatInt(typed, 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(typed, 10)), nil
	case int:
		return []byte(strconv.Itoa(typed)), nil
	case float64:
		if typed == math.Trunc(typed) && math.Abs(typed) < 1<<53 {
			return []byte(strconv.FormatInt(int64(typed), 10)), nil
		}
		return []byte(strconv.FormatFloat(typed, 'g', -1, 64)), nil
	case nil:
		return []byte("null"), nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, fmt.Errorf("rendering %T property: %w", value, err)
		}
		return encoded, nil
	}
}
