// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"fmt"

	"github.com/bureau-foundation/eventgraph/lib/event"
)

// Accumulator is per-scan state fed with events.
type Accumulator interface {
	// Test reports whether the accumulator tracks ev.
	Test(ev *event.Event) (bool, error)
	// Add records ev. Only called when Test returned true.
	Add(ev *event.Event)
	// Del retracts a previously added ev.
	Del(ev *event.Event)
}

// Handle addresses an accumulator within its Accumulators.
type Handle int

// Accumulators is an arena of accumulators fed together.
type Accumulators struct {
	entries []Accumulator
}

// Register appends accumulator and returns its handle.
func (a *Accumulators) Register(accumulator Accumulator) Handle {
	a.entries = append(a.entries, accumulator)
	return Handle(len(a.entries) - 1)
}

// Get returns the accumulator at handle.
func (a *Accumulators) Get(handle Handle) Accumulator {
	return a.entries[handle]
}

// Add offers ev to every accumulator, adding it to those whose Test
// accepts it.
func (a *Accumulators) Add(ev *event.Event) error {
	return a.each(ev, Accumulator.Add)
}

// Del retracts ev from every accumulator whose Test accepts it.
func (a *Accumulators) Del(ev *event.Event) error {
	return a.each(ev, Accumulator.Del)
}

func (a *Accumulators) each(ev *event.Event, apply func(Accumulator, *event.Event)) error {
	for handle, accumulator := range a.entries {
		accepted, err := accumulator.Test(ev)
		if err != nil {
			return fmt.Errorf("accumulator %d on %s: %w", handle, ev.EventID, err)
		}
		if accepted {
			apply(accumulator, ev)
		}
	}
	return nil
}

// Counter counts the events matching its filter.
type Counter struct {
	Filter Filter
	count  int64
}

// NewCounter returns a Counter over filter.
func NewCounter(filter Filter) *Counter {
	return &Counter{Filter: filter}
}

func (c *Counter) Test(ev *event.Event) (bool, error) {
	return c.Filter.Match(EventTuple(ev))
}

func (c *Counter) Add(*event.Event) { c.count++ }

func (c *Counter) Del(*event.Event) { c.count-- }

// Count returns the running count.
func (c *Counter) Count() int64 { return c.count }

// Distinct tracks the distinct values of one property among matching
// events, with a reference count per value.
type Distinct struct {
	Filter   Filter
	Property string
	values   map[string]int
}

// NewDistinct returns a Distinct over property for events matching
// filter.
func NewDistinct(filter Filter, property string) *Distinct {
	return &Distinct{Filter: filter, Property: property, values: map[string]int{}}
}

func (d *Distinct) Test(ev *event.Event) (bool, error) {
	return d.Filter.Match(EventTuple(ev))
}

func (d *Distinct) Add(ev *event.Event) {
	if value, err := EventTuple(ev).Lookup(d.Property); err == nil {
		d.values[string(value)]++
	}
}

func (d *Distinct) Del(ev *event.Event) {
	value, err := EventTuple(ev).Lookup(d.Property)
	if err != nil {
		return
	}
	key := string(value)
	if d.values[key] <= 1 {
		delete(d.values, key)
		return
	}
	d.values[key]--
}

// Len returns the number of distinct values.
func (d *Distinct) Len() int { return len(d.values) }

// Has reports whether value is currently present.
func (d *Distinct) Has(value string) bool { return d.values[value] > 0 }
