// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package indexer

import (
	"errors"

	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// eventRefs records the event's outgoing references. A cited event that
// is already indexed gets an event_refs entry; an unknown prev_event gets
// a horizon entry instead. When the event itself resolves horizon
// entries left by earlier arrivals, those become event_refs entries.
// Unknown auth_events and redaction targets are not tracked.
func (s *write) eventRefs() error {
	for _, prev := range s.ev.PrevEvents {
		if err := s.reference(prev, keys.RefPrev, true); err != nil {
			return err
		}
	}
	for _, auth := range s.ev.AuthEvents {
		if err := s.reference(auth, keys.RefAuth, false); err != nil {
			return err
		}
	}
	if !s.ev.Redacts.IsZero() {
		if err := s.reference(s.ev.Redacts, keys.RefRedacts, false); err != nil {
			return err
		}
	}
	if s.appendix.Has(AppendEventRefs) {
		return s.resolveHorizon()
	}
	return nil
}

func (s *write) reference(target ref.EventID, kind keys.RefKind, horizon bool) error {
	targetIdx, err := eventstore.Index(s.parent, target)
	switch {
	case err == nil:
		if !s.appendix.Has(AppendEventRefs) {
			return nil
		}
		return s.put(keys.ColumnEventRefs, keys.RefKey(targetIdx, kind, s.idx), nil)
	case errors.Is(err, store.ErrNotFound):
		if !horizon || !s.appendix.Has(AppendEventHorizon) {
			return nil
		}
		return s.put(keys.ColumnEventHorizon, keys.HorizonKey(target, s.idx), nil)
	default:
		return err
	}
}

// resolveHorizon converts every horizon entry waiting on this event into
// a prev reference. On OpDelete the references are turned back into
// horizon entries, since the citing events still lack their prev_event.
func (s *write) resolveHorizon() error {
	if s.op == OpDelete {
		return s.restoreHorizon()
	}
	iter, err := s.parent.NewIter(keys.ColumnEventHorizon, keys.HorizonPrefix(s.ev.EventID))
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		key := iter.Key()
		tuple, err := keys.Decode(keys.ColumnEventHorizon, key)
		if err != nil {
			return &store.StorageError{Op: "decode horizon", Column: keys.ColumnEventHorizon, Err: err}
		}
		if err := s.staging.Set(keys.ColumnEventRefs, keys.RefKey(s.idx, keys.RefPrev, tuple.Idx), nil); err != nil {
			return err
		}
		if err := s.staging.Delete(keys.ColumnEventHorizon, append([]byte(nil), key...)); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *write) restoreHorizon() error {
	iter, err := s.parent.NewIter(keys.ColumnEventRefs, keys.RefPrefix(s.idx, keys.RefPrev))
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		_, _, source, err := keys.DecodeRef(iter.Key())
		if err != nil {
			return &store.StorageError{Op: "decode ref", Column: keys.ColumnEventRefs, Err: err}
		}
		if err := s.staging.Delete(keys.ColumnEventRefs, append([]byte(nil), iter.Key()...)); err != nil {
			return err
		}
		if err := s.staging.Set(keys.ColumnEventHorizon, keys.HorizonKey(s.ev.EventID, source), nil); err != nil {
			return err
		}
	}
	return iter.Error()
}
