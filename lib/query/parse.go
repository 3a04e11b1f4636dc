// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads a filter expression:
//
//	type=m.room.member & content.membership!=leave
//	!(sender=@bot:example) | state_key="with space"
//	state_key & !content.membership
//
// A property name alone tests for presence.
// "|" binds looser than "&", "!" negates the following term and "*"
// matches everything. Values run to the next space or one of "()&|";
// quote values containing those with Go string syntax.
func Parse(text string) (Filter, error) {
	p := &parser{input: text}
	filter, err := p.or()
	if err != nil {
		return Filter{}, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return Filter{}, p.errorf("unexpected %q", p.input[p.pos:])
	}
	return filter, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("filter %q at offset %d: %s", p.input, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) or() (Filter, error) {
	first, err := p.and()
	if err != nil {
		return Filter{}, err
	}
	operands := []Filter{first}
	for p.peek() == '|' {
		p.pos++
		next, err := p.and()
		if err != nil {
			return Filter{}, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return Or(operands...), nil
}

func (p *parser) and() (Filter, error) {
	first, err := p.unary()
	if err != nil {
		return Filter{}, err
	}
	operands := []Filter{first}
	for p.peek() == '&' {
		p.pos++
		next, err := p.unary()
		if err != nil {
			return Filter{}, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return And(operands...), nil
}

func (p *parser) unary() (Filter, error) {
	switch p.peek() {
	case 0:
		return Filter{}, p.errorf("unexpected end of expression")
	case '!':
		p.pos++
		operand, err := p.unary()
		if err != nil {
			return Filter{}, err
		}
		return Not(operand), nil
	case '(':
		p.pos++
		inner, err := p.or()
		if err != nil {
			return Filter{}, err
		}
		if p.peek() != ')' {
			return Filter{}, p.errorf("missing )")
		}
		p.pos++
		return inner, nil
	case '*':
		p.pos++
		return Filter{}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Filter, error) {
	start := p.pos
	for p.pos < len(p.input) && isPropertyByte(p.input[p.pos]) {
		p.pos++
	}
	property := p.input[start:p.pos]
	if property == "" {
		return Filter{}, p.errorf("expected property name")
	}

	var kind Kind
	switch {
	case strings.HasPrefix(p.input[p.pos:], "!="):
		kind = KindNotEqual
		p.pos += 2
	case strings.HasPrefix(p.input[p.pos:], "="):
		kind = KindEqual
		p.pos++
	default:
		return Has(property), nil
	}

	value, err := p.value()
	if err != nil {
		return Filter{}, err
	}
	return Filter{Kind: kind, Property: property, Value: []byte(value)}, nil
}

func (p *parser) value() (string, error) {
	if p.pos < len(p.input) && p.input[p.pos] == '"' {
		prefix, err := strconv.QuotedPrefix(p.input[p.pos:])
		if err != nil {
			return "", p.errorf("bad quoted value: %v", err)
		}
		p.pos += len(prefix)
		return strconv.Unquote(prefix)
	}
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune(" \t()&|", rune(p.input[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected value")
	}
	return p.input[start:p.pos], nil
}

func isPropertyByte(c byte) bool {
	return c == '_' || c == '.' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
