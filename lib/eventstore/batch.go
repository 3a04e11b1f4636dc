// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// Batch holds the result of GetBatch: one value slot per requested index
// and a bitmask of which slots were found.
type Batch struct {
	Property string
	Idxs     []event.Idx

	values [][]byte
	found  []atomic.Uint64
}

func newBatch(property string, idxs []event.Idx) *Batch {
	return &Batch{
		Property: property,
		Idxs:     idxs,
		values:   make([][]byte, len(idxs)),
		found:    make([]atomic.Uint64, (len(idxs)+63)/64),
	}
}

func (b *Batch) set(i int, value []byte) {
	b.values[i] = value
	b.found[i/64].Or(1 << (i % 64))
}

// Len returns the number of requested indices.
func (b *Batch) Len() int { return len(b.Idxs) }

// Found reports whether slot i was found.
func (b *Batch) Found(i int) bool {
	return b.found[i/64].Load()&(1<<(i%64)) != 0
}

// FoundCount returns the number of found slots.
func (b *Batch) FoundCount() int {
	count := 0
	for i := range b.found {
		count += bits.OnesCount64(b.found[i].Load())
	}
	return count
}

// Value returns the value of slot i and whether it was found.
func (b *Batch) Value(i int) ([]byte, bool) {
	if !b.Found(i) {
		return nil, false
	}
	return b.values[i], true
}

// Missing returns the indices whose property was not found.
func (b *Batch) Missing() []event.Idx {
	var missing []event.Idx
	for i, idx := range b.Idxs {
		if !b.Found(i) {
			missing = append(missing, idx)
		}
	}
	return missing
}

// GetBatch looks property up for every index in idxs concurrently, at
// most LookupWidth at a time. When fewer values are found than requested
// it returns the partial batch together with an error matching
// store.ErrNotFound that carries both counts. Any other failure aborts
// the whole batch.
func (s *Store) GetBatch(ctx context.Context, idxs []event.Idx, property string) (*Batch, error) {
	batch := newBatch(property, idxs)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.options.LookupWidth)

	for i, idx := range idxs {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			value, err := GetIn(s.db, idx, property)
			switch {
			case err == nil:
				batch.set(i, value)
				return nil
			case errors.Is(err, store.ErrNotFound):
				return nil
			default:
				return err
			}
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("batch lookup of %s: %w", property, err)
	}

	if found := batch.FoundCount(); found < len(idxs) {
		return batch, fmt.Errorf("%w: %s found for %d of %d events", store.ErrNotFound, property, found, len(idxs))
	}
	return batch, nil
}
