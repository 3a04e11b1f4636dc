// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/eventgraph/lib/store"
)

// Kind is the node type of a Filter.
type Kind uint8

const (
	// KindAll matches every tuple. It is the zero Filter.
	KindAll Kind = iota
	KindEqual
	KindNotEqual
	KindAnd
	KindOr
	KindNot
	KindHas
)

// Filter is one node of a predicate tree. Equal and NotEqual compare
// Property against Value, Has tests its presence; And, Or and Not
// combine Operands.
type Filter struct {
	Kind     Kind
	Property string
	Value    []byte
	Operands []Filter
}

// Equal matches tuples whose property equals value. An absent property
// never matches.
func Equal(property, value string) Filter {
	return Filter{Kind: KindEqual, Property: property, Value: []byte(value)}
}

// NotEqual matches tuples whose property is absent or differs from
// value.
func NotEqual(property, value string) Filter {
	return Filter{Kind: KindNotEqual, Property: property, Value: []byte(value)}
}

// Has matches tuples where property is present. Has("state_key")
// selects state events.
func Has(property string) Filter {
	return Filter{Kind: KindHas, Property: property}
}

// And matches when every operand matches. And() matches everything.
func And(operands ...Filter) Filter {
	return Filter{Kind: KindAnd, Operands: operands}
}

// Or matches when any operand matches. Or() matches nothing.
func Or(operands ...Filter) Filter {
	return Filter{Kind: KindOr, Operands: operands}
}

// Not inverts operand.
func Not(operand Filter) Filter {
	return Filter{Kind: KindNot, Operands: []Filter{operand}}
}

// Tuple supplies raw property values. Lookup returns store.ErrNotFound
// for an absent property; any other error aborts evaluation.
type Tuple interface {
	Lookup(property string) ([]byte, error)
}

// Match evaluates f against tuple. And and Or short-circuit, so
// properties behind a decided branch are never looked up.
func (f Filter) Match(tuple Tuple) (bool, error) {
	switch f.Kind {
	case KindAll:
		return true, nil
	case KindEqual, KindNotEqual:
		value, err := tuple.Lookup(f.Property)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return f.Kind == KindNotEqual, nil
		case err != nil:
			return false, err
		}
		return bytes.Equal(value, f.Value) == (f.Kind == KindEqual), nil
	case KindHas:
		_, err := tuple.Lookup(f.Property)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return false, nil
		case err != nil:
			return false, err
		}
		return true, nil
	case KindAnd:
		for _, operand := range f.Operands {
			matched, err := operand.Match(tuple)
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	case KindOr:
		for _, operand := range f.Operands {
			matched, err := operand.Match(tuple)
			if err != nil || matched {
				return matched, err
			}
		}
		return false, nil
	case KindNot:
		if len(f.Operands) != 1 {
			return false, fmt.Errorf("not filter has %d operands, want 1", len(f.Operands))
		}
		matched, err := f.Operands[0].Match(tuple)
		return !matched, err
	default:
		return false, fmt.Errorf("unknown filter kind %d", f.Kind)
	}
}

// Properties returns the distinct property names f reads.
func (f Filter) Properties() []string {
	seen := map[string]bool{}
	var names []string
	var walk func(Filter)
	walk = func(node Filter) {
		if node.Kind == KindEqual || node.Kind == KindNotEqual || node.Kind == KindHas {
			if !seen[node.Property] {
				seen[node.Property] = true
				names = append(names, node.Property)
			}
		}
		for _, operand := range node.Operands {
			walk(operand)
		}
	}
	walk(f)
	return names
}

// String renders f in the syntax accepted by Parse.
func (f Filter) String() string {
	switch f.Kind {
	case KindAll:
		return "*"
	case KindEqual:
		return f.Property + "=" + quoteValue(f.Value)
	case KindNotEqual:
		return f.Property + "!=" + quoteValue(f.Value)
	case KindHas:
		return f.Property
	case KindAnd, KindOr:
		if len(f.Operands) == 0 {
			if f.Kind == KindAnd {
				return "*"
			}
			return "!*"
		}
		separator := " & "
		if f.Kind == KindOr {
			separator = " | "
		}
		parts := make([]string, len(f.Operands))
		for i, operand := range f.Operands {
			parts[i] = operand.String()
			if operand.Kind == KindAnd || operand.Kind == KindOr {
				parts[i] = "(" + parts[i] + ")"
			}
		}
		return strings.Join(parts, separator)
	case KindNot:
		if len(f.Operands) == 1 {
			return "!(" + f.Operands[0].String() + ")"
		}
	}
	return fmt.Sprintf("<invalid filter kind %d>", f.Kind)
}

func quoteValue(value []byte) string {
	if len(value) > 0 && !bytes.ContainsAny(value, " \t\"()&|") {
		return string(value)
	}
	return fmt.Sprintf("%q", value)
}
