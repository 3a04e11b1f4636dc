// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package indexer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// Writer builds the index mutations of single events.
type Writer struct {
	db          *store.DB
	events      *eventstore.Store
	truncations *prometheus.CounterVec
	logger      *slog.Logger
}

// New returns a Writer over db and events.
func New(db *store.DB, events *eventstore.Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{
		db:     db,
		events: events,
		truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgraph",
			Name:      "key_truncations_total",
			Help:      "Type and state key values cut to the column maximum before encoding. Distinct values sharing a truncated prefix collide.",
		}, []string{"column"}),
		logger: logger,
	}
}

// Collectors returns the writer's metrics for registration.
func (w *Writer) Collectors() []prometheus.Collector {
	return []prometheus.Collector{w.truncations}
}

// Write stages every mutation selected by options for ev into txn and
// returns the event's index. txn must be a read-write transaction. On
// any error nothing is merged into txn. An event that already has an
// index returns it with an error matching eventstore.ErrAlreadyIndexed. Errors matching
// event.ErrMalformed concern ev alone; the caller may keep staging other
// events into txn.
func (w *Writer) Write(txn *store.Txn, ev *event.Event, options Options) (event.Idx, error) {
	if err := w.check(ev, options); err != nil {
		return 0, err
	}

	idx, err := w.resolveIdx(txn, ev, options)
	if errors.Is(err, eventstore.ErrAlreadyIndexed) {
		return idx, err
	}
	if err != nil {
		return 0, err
	}

	staging := w.db.NewStaging()
	defer staging.Discard()

	state := &write{
		writer:   w,
		parent:   txn,
		staging:  staging,
		ev:       ev,
		idx:      idx,
		op:       options.Op,
		appendix: options.Appendix.For(ev),
	}
	if err := state.run(); err != nil {
		return 0, err
	}
	if staging.Empty() {
		return idx, nil
	}
	if err := txn.Apply(staging); err != nil {
		return 0, err
	}
	w.logger.Debug("event indexed",
		"event_id", ev.EventID,
		"room_id", ev.RoomID,
		"idx", idx,
		"op", options.Op,
		"mutations", staging.Count(),
	)
	return idx, nil
}

// check rejects events missing a field that a selected index needs,
// before an index is reserved.
func (w *Writer) check(ev *event.Event, options Options) error {
	if ev == nil {
		return event.Malformed(nil, "event", "nil event")
	}
	if ev.EventID.IsZero() {
		return event.Malformed(ev, "event_id", "missing")
	}
	appendix := options.Appendix.For(ev)
	roomIndices := AppendRoomEvents | AppendRoomType | AppendRoomStateSpace | AppendRoomState | AppendRoomJoined | AppendRoomHead
	if appendix&roomIndices != 0 && ev.RoomID.IsZero() {
		return event.Malformed(ev, "room_id", "missing")
	}
	typeIndices := AppendEventType | AppendRoomType | AppendRoomStateSpace | AppendRoomState
	if appendix&typeIndices != 0 && ev.Type == "" {
		return event.Malformed(ev, "type", "missing")
	}
	if appendix&(AppendEventSender|AppendEventColumns) != 0 && ev.Sender.IsZero() {
		return event.Malformed(ev, "sender", "missing")
	}
	timelines := AppendRoomEvents | AppendRoomType | AppendRoomStateSpace
	if appendix&timelines != 0 && ev.Depth < 0 {
		return event.Malformed(ev, "depth", fmt.Sprintf("negative depth %d", ev.Depth))
	}
	if appendix.Has(AppendRoomJoined) {
		if _, err := ref.ParseUserID(ev.StateKeyValue()); err != nil {
			return event.Malformed(ev, "state_key", err.Error())
		}
	}
	return nil
}

func (w *Writer) resolveIdx(txn *store.Txn, ev *event.Event, options Options) (event.Idx, error) {
	if !options.Idx.IsZero() {
		return options.Idx, nil
	}
	if options.Op == OpDelete {
		idx, err := eventstore.Index(txn, ev.EventID)
		if err != nil {
			return 0, fmt.Errorf("deleting %s: %w", ev.EventID, err)
		}
		return idx, nil
	}
	return w.events.Reserve(txn, ev.EventID)
}

func (w *Writer) truncateType(column keys.Column, eventType ref.EventType) ref.EventType {
	truncated, cut := keys.TruncateType(eventType)
	if cut {
		w.truncations.WithLabelValues(column.String()).Inc()
	}
	return truncated
}

func (w *Writer) truncateStateKey(column keys.Column, stateKey string) string {
	truncated, cut := keys.TruncateStateKey(stateKey)
	if cut {
		w.truncations.WithLabelValues(column.String()).Inc()
	}
	return truncated
}

// write carries one Write call through the per-index steps.
type write struct {
	writer   *Writer
	parent   *store.Txn
	staging  *store.Txn
	ev       *event.Event
	idx      event.Idx
	op       Op
	appendix Appendix
}

func (s *write) run() error {
	steps := []struct {
		appendix Appendix
		apply    func() error
	}{
		{AppendEventIdx, s.eventIdx},
		{AppendEventJSON, s.eventJSON},
		{AppendEventColumns, s.eventColumns},
		{AppendEventRefs | AppendEventHorizon, s.eventRefs},
		{AppendEventSender, s.eventSender},
		{AppendEventType, s.eventType},
		{AppendRoomEvents, s.roomEvents},
		{AppendRoomType, s.roomType},
		{AppendRoomStateSpace, s.roomStateSpace},
		{AppendRoomState, s.roomState},
		{AppendRoomJoined, s.roomJoined},
		{AppendRoomHead, s.roomHead},
	}
	for _, step := range steps {
		if s.appendix&step.appendix == 0 {
			continue
		}
		if err := step.apply(); err != nil {
			var malformed *event.MalformedError
			if errors.As(err, &malformed) && malformed.EventID == "" {
				malformed.EventID = s.ev.EventID.String()
			}
			return err
		}
	}
	return nil
}

// put stages key in column for OpSet and deletes it for OpDelete.
func (s *write) put(column keys.Column, key, value []byte) error {
	if s.op == OpDelete {
		return s.staging.Delete(column, key)
	}
	return s.staging.Set(column, key, value)
}

func (s *write) eventIdx() error {
	if s.op == OpDelete {
		return eventstore.UnstageMapping(s.staging, s.ev.EventID, s.idx)
	}
	return eventstore.StageMapping(s.staging, s.ev.EventID, s.idx)
}

func (s *write) eventJSON() error {
	if s.op == OpDelete {
		return s.writer.events.UnstageBody(s.staging, s.idx)
	}
	return s.writer.events.StageBody(s.staging, s.idx, s.ev)
}

func (s *write) eventColumns() error {
	if s.op == OpDelete {
		return eventstore.UnstageProperties(s.staging, s.idx)
	}
	return eventstore.StageProperties(s.staging, s.idx, s.ev)
}

func (s *write) eventSender() error {
	if err := s.put(keys.ColumnEventSender, keys.SenderKey(s.ev.Sender, s.idx), nil); err != nil {
		return err
	}
	return s.put(keys.ColumnEventSenderOrigin, keys.SenderOriginKey(s.ev.Sender, s.idx), nil)
}

func (s *write) eventType() error {
	key, err := keys.TypeKey(s.writer.truncateType(keys.ColumnEventType, s.ev.Type), s.idx)
	if err != nil {
		return err
	}
	return s.put(keys.ColumnEventType, key, nil)
}

func (s *write) roomEvents() error {
	key, err := keys.RoomEventsKey(s.ev.RoomID, s.ev.Depth, s.idx)
	if err != nil {
		return err
	}
	return s.put(keys.ColumnRoomEvents, key, nil)
}

func (s *write) roomType() error {
	eventType := s.writer.truncateType(keys.ColumnRoomType, s.ev.Type)
	key, err := keys.RoomTypeKey(s.ev.RoomID, eventType, s.ev.Depth, s.idx)
	if err != nil {
		return err
	}
	return s.put(keys.ColumnRoomType, key, nil)
}

func (s *write) roomStateSpace() error {
	stateKey := s.writer.truncateStateKey(keys.ColumnRoomStateSpace, s.ev.StateKeyValue())
	eventType := s.writer.truncateType(keys.ColumnRoomStateSpace, s.ev.Type)
	key, err := keys.RoomStateSpaceKey(stateKey, eventType, s.ev.RoomID, s.ev.Depth, s.idx)
	if err != nil {
		return err
	}
	return s.put(keys.ColumnRoomStateSpace, key, nil)
}

// roomState overwrites the present-state slot on OpSet without reading
// it. OpDelete clears the slot only while it still names this event.
func (s *write) roomState() error {
	stateKey := s.writer.truncateStateKey(keys.ColumnRoomState, s.ev.StateKeyValue())
	eventType := s.writer.truncateType(keys.ColumnRoomState, s.ev.Type)
	key, err := keys.RoomStateKey(s.ev.RoomID, eventType, stateKey)
	if err != nil {
		return err
	}
	if s.op == OpSet {
		return s.staging.Set(keys.ColumnRoomState, key, s.idx.Bytes())
	}
	current, err := s.parent.Get(keys.ColumnRoomState, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	if currentIdx, err := event.IdxFromBytes(current); err == nil && currentIdx != s.idx {
		return nil
	}
	return s.staging.Delete(keys.ColumnRoomState, key)
}

// roomJoined dispatches on membership for OpSet: join inserts, leave and
// ban delete, other values leave the index alone. OpDelete always
// deletes.
func (s *write) roomJoined() error {
	user, err := ref.ParseUserID(s.ev.StateKeyValue())
	if err != nil {
		return event.Malformed(s.ev, "state_key", err.Error())
	}
	key := keys.RoomJoinedKey(s.ev.RoomID, user)
	if s.op == OpDelete {
		return s.staging.Delete(keys.ColumnRoomJoined, key)
	}
	switch s.ev.Membership() {
	case event.MembershipJoin:
		return s.staging.Set(keys.ColumnRoomJoined, key, s.idx.Bytes())
	case event.MembershipLeave, event.MembershipBan:
		return s.staging.Delete(keys.ColumnRoomJoined, key)
	case "":
		return event.Malformed(s.ev, "content.membership", "missing or not a string")
	default:
		return nil
	}
}

// roomHead inserts the event as a head unless a known event already
// cites it, and removes the heads it cites. OpDelete removes only the
// event's own head entry; the prev_events it displaced are not
// restored, so retracting a head can leave the frontier short.
func (s *write) roomHead() error {
	headKey := keys.RoomHeadKey(s.ev.RoomID, s.ev.EventID)
	if s.op == OpDelete {
		return s.staging.Delete(keys.ColumnRoomHead, headKey)
	}

	cited, err := s.citedByKnownEvent()
	if err != nil {
		return err
	}
	if !cited {
		if err := s.staging.Set(keys.ColumnRoomHead, headKey, s.idx.Bytes()); err != nil {
			return err
		}
	}
	for _, prev := range s.ev.PrevEvents {
		if err := s.staging.Delete(keys.ColumnRoomHead, keys.RoomHeadKey(s.ev.RoomID, prev)); err != nil {
			return err
		}
	}
	return nil
}

// citedByKnownEvent reports whether a horizon entry waits for this
// event, meaning some already indexed event lists it in prev_events.
func (s *write) citedByKnownEvent() (bool, error) {
	iter, err := s.parent.NewIter(keys.ColumnEventHorizon, keys.HorizonPrefix(s.ev.EventID))
	if err != nil {
		return false, err
	}
	defer iter.Close()
	cited := iter.First()
	return cited, iter.Error()
}
