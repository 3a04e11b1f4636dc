// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/eventgraph/lib/clock"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/federation"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// IngestFunc writes one validated event. It must be safe for concurrent
// use. Returning an error matching eventstore.ErrAlreadyIndexed means
// the event was already known; store.ErrStorage stops the operation;
// any other error rejects the event.
type IngestFunc func(ctx context.Context, ev *event.Event) error

// AcquireOptions bounds an acquire run.
type AcquireOptions struct {
	// Width is the maximum number of outstanding fetches, and the
	// maximum number of fetches planned per round.
	Width int

	// Viewport skips missing events more than this many depth units
	// below the room's head. 0 disables the bound.
	Viewport int64

	// Rounds is the number of fetch rounds per run.
	Rounds int

	// Timeout bounds each remote request.
	Timeout time.Duration

	// HeadDepthLowerBound discards remote heads shallower than this.
	HeadDepthLowerBound int64

	// BackfillLimit is the page size requested for missing events.
	BackfillLimit int
}

// AcquireConfig holds the dependencies of an Acquire.
type AcquireConfig struct {
	DB      *store.DB
	Fetcher federation.Fetcher
	Ingest  IngestFunc

	// ServerName is this server; it is never asked for events.
	ServerName ref.ServerName

	// Verifier defaults to ReferenceHashVerifier.
	Verifier Verifier

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Metrics defaults to a private, unregistered set.
	Metrics *Metrics

	// Rand seeds origin selection. Defaults to a randomly seeded PCG.
	Rand *rand.Rand

	Options AcquireOptions
	Logger  *slog.Logger
}

// Acquire pulls missing history and remote heads into the store. One
// Acquire may run for several rooms at once; an event already being
// fetched by one run is skipped by the others.
type Acquire struct {
	db         *store.DB
	fetcher    federation.Fetcher
	ingest     IngestFunc
	serverName ref.ServerName
	verifier   Verifier
	clock      clock.Clock
	metrics    *Metrics
	options    AcquireOptions
	logger     *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	inflight *xsync.MapOf[ref.EventID, struct{}]
}

// NewAcquire creates an Acquire.
func NewAcquire(config AcquireConfig) (*Acquire, error) {
	if config.DB == nil || config.Fetcher == nil || config.Ingest == nil {
		return nil, errors.New("frontier: acquire requires a database, a fetcher and an ingest function")
	}
	options := config.Options
	if options.Width <= 0 {
		return nil, fmt.Errorf("frontier: acquire width must be positive, got %d", options.Width)
	}
	options.Rounds = max(options.Rounds, 1)
	options.BackfillLimit = max(options.BackfillLimit, 1)

	a := &Acquire{
		db:         config.DB,
		fetcher:    config.Fetcher,
		ingest:     config.Ingest,
		serverName: config.ServerName,
		verifier:   config.Verifier,
		clock:      config.Clock,
		metrics:    config.Metrics,
		options:    options,
		logger:     config.Logger,
		rng:        config.Rand,
		inflight:   xsync.NewMapOf[ref.EventID, struct{}](),
	}
	if a.verifier == nil {
		a.verifier = ReferenceHashVerifier{}
	}
	if a.clock == nil {
		a.clock = clock.Real()
	}
	if a.metrics == nil {
		a.metrics = NewMetrics()
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return a, nil
}

// AcquireReport summarizes one run. Fetches holds every request made,
// in dispatch order, each in a terminal state or Idle when another run
// already had the event in flight.
type AcquireReport struct {
	Room    ref.RoomID
	Rounds  int
	Fetches []*Fetch
}

// Count returns the number of fetches that ended in state.
func (r *AcquireReport) Count(state FetchState) int {
	count := 0
	for _, fetch := range r.Fetches {
		if fetch.State == state {
			count++
		}
	}
	return count
}

// Ingested returns the number of events written during the run.
func (r *AcquireReport) Ingested() int {
	total := 0
	for _, fetch := range r.Fetches {
		total += fetch.Ingested
	}
	return total
}

// attempt identifies a (remote, event) pair.
type attempt struct {
	remote  ref.ServerName
	eventID ref.EventID
}

// Run executes up to Rounds rounds for room. A round plans up to Width
// fetches (missing events first, then remote heads), dispatches them
// with at most Width outstanding, and waits for all of them. A pair that
// was rejected or timed out is not asked again during the run. The run
// ends early when a round plans nothing. Only storage errors and
// cancellation return an error; the report is valid either way.
func (a *Acquire) Run(ctx context.Context, room ref.RoomID) (*AcquireReport, error) {
	report := &AcquireReport{Room: room}
	failed := make(map[attempt]bool)

	for round := 0; round < a.options.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fetches, err := a.plan(ctx, room, failed)
		if err != nil {
			return report, err
		}
		if len(fetches) == 0 {
			break
		}
		report.Rounds++
		report.Fetches = append(report.Fetches, fetches...)

		err = a.dispatch(ctx, fetches)
		for _, fetch := range fetches {
			if fetch.State == Rejected || fetch.State == TimedOut {
				failed[attempt{fetch.Remote, fetch.EventID}] = true
			}
		}
		if err != nil {
			return report, err
		}
		a.logger.Info("acquire round complete",
			"room_id", room.String(),
			"round", round+1,
			"fetches", len(fetches),
			"accepted", countState(fetches, Accepted),
			"rejected", countState(fetches, Rejected),
			"timed_out", countState(fetches, TimedOut),
		)
	}
	return report, nil
}

func countState(fetches []*Fetch, state FetchState) int {
	count := 0
	for _, fetch := range fetches {
		if fetch.State == state {
			count++
		}
	}
	return count
}

// plan collects the next round's fetches.
func (a *Acquire) plan(ctx context.Context, room ref.RoomID, failed map[attempt]bool) ([]*Fetch, error) {
	headDepth, err := HeadDepth(a.db, room)
	if errors.Is(err, store.ErrNotFound) {
		// Nothing known about the room: no gaps and no origins.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	planned := make(map[ref.EventID]bool)
	fetches, err := a.planMissing(room, headDepth, failed, planned)
	if err != nil {
		return nil, err
	}
	if len(fetches) >= a.options.Width {
		return fetches, nil
	}
	heads, err := a.planHeads(ctx, room, failed, planned, a.options.Width-len(fetches))
	if err != nil {
		return nil, err
	}
	return append(fetches, heads...), nil
}

// planMissing turns horizon entries cited by events of room into
// fetches, skipping gaps below the viewport.
func (a *Acquire) planMissing(room ref.RoomID, headDepth int64, failed map[attempt]bool, planned map[ref.EventID]bool) ([]*Fetch, error) {
	iter, err := a.db.NewIter(keys.ColumnEventHorizon, nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var fetches []*Fetch
	for valid := iter.First(); valid && len(fetches) < a.options.Width; valid = iter.Next() {
		tuple, err := keys.Decode(keys.ColumnEventHorizon, iter.Key())
		if err != nil || len(tuple.Strings) != 1 {
			return nil, &store.StorageError{Op: "decode horizon", Column: keys.ColumnEventHorizon, Err: fmt.Errorf("bad key %q: %v", iter.Key(), err)}
		}
		missing, err := ref.ParseEventID(tuple.Strings[0])
		if err != nil {
			return nil, &store.StorageError{Op: "decode horizon", Column: keys.ColumnEventHorizon, Err: err}
		}
		if planned[missing] {
			continue
		}

		citing, err := a.citingEvent(tuple.Idx)
		if err != nil {
			return nil, err
		}
		if citing.room != room {
			continue
		}
		expected := max(citing.depth-1, 0)
		if a.options.Viewport > 0 && headDepth-expected > a.options.Viewport {
			a.logger.Debug("missing event outside viewport",
				"room_id", room.String(),
				"event_id", missing.String(),
				"depth", expected,
				"head_depth", headDepth,
			)
			continue
		}

		remote, err := a.pickRemote(room, missing, citing.sender.Server(), failed)
		if err != nil {
			return nil, err
		}
		if remote.IsZero() {
			continue
		}
		planned[missing] = true
		fetches = append(fetches, &Fetch{
			Room:    room,
			EventID: missing,
			Remote:  remote,
			Source:  SourceMissing,
			Depth:   expected,
		})
	}
	return fetches, iter.Error()
}

type citingEvent struct {
	room   ref.RoomID
	sender ref.UserID
	depth  int64
}

// citingEvent reads the columns of a horizon entry's source needed for
// planning.
func (a *Acquire) citingEvent(idx event.Idx) (citingEvent, error) {
	var citing citingEvent
	roomValue, err := eventstore.GetIn(a.db, idx, event.PropertyRoomID)
	if err != nil {
		return citing, err
	}
	senderValue, err := eventstore.GetIn(a.db, idx, event.PropertySender)
	if err != nil {
		return citing, err
	}
	depthValue, err := eventstore.GetIn(a.db, idx, event.PropertyDepth)
	if err != nil {
		return citing, err
	}
	if citing.room, err = ref.ParseRoomID(string(roomValue)); err != nil {
		return citing, &store.StorageError{Op: "read room_id", Column: keys.ColumnRoomID, Err: err}
	}
	if citing.sender, err = ref.ParseUserID(string(senderValue)); err != nil {
		return citing, &store.StorageError{Op: "read sender", Column: keys.ColumnSender, Err: err}
	}
	if citing.depth, err = strconv.ParseInt(string(depthValue), 10, 64); err != nil {
		return citing, &store.StorageError{Op: "read depth", Column: keys.ColumnDepth, Err: err}
	}
	return citing, nil
}

// pickRemote prefers the server that sent the citing event; when that
// is this server or already failed for eventID, a random joined origin
// that has not failed is used. The zero ServerName means no candidate.
func (a *Acquire) pickRemote(room ref.RoomID, eventID ref.EventID, preferred ref.ServerName, failed map[attempt]bool) (ref.ServerName, error) {
	usable := func(server ref.ServerName) bool {
		return server != a.serverName && !failed[attempt{server, eventID}]
	}
	if usable(preferred) {
		return preferred, nil
	}
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	server, err := RandomOrigin(a.db, room, a.rng, usable)
	if errors.Is(err, store.ErrNotFound) {
		return ref.ServerName{}, nil
	}
	return server, err
}

// planHeads asks every remote origin for its head and schedules the head
// events not known locally, up to limit.
func (a *Acquire) planHeads(ctx context.Context, room ref.RoomID, failed map[attempt]bool, planned map[ref.EventID]bool, limit int) ([]*Fetch, error) {
	origins, err := remoteOrigins(a.db, room, a.serverName)
	if err != nil || len(origins) == 0 {
		return nil, err
	}
	poller := headPoller{
		fetcher: a.fetcher,
		clock:   a.clock,
		timeout: a.options.Timeout,
		width:   a.options.Width,
		logger:  a.logger,
	}
	heads, err := poller.poll(ctx, room, origins)
	if err != nil {
		return nil, err
	}

	var fetches []*Fetch
	for i, origin := range origins {
		head := heads[i]
		if len(head.Events) == 0 {
			continue
		}
		if head.Depth < a.options.HeadDepthLowerBound {
			a.logger.Debug("remote head below depth bound",
				"room_id", room.String(),
				"remote", origin.String(),
				"depth", head.Depth,
			)
			continue
		}
		for _, eventID := range head.Events {
			if len(fetches) >= limit {
				return fetches, nil
			}
			if planned[eventID] || failed[attempt{origin, eventID}] {
				continue
			}
			known, err := store.Has(a.db, keys.ColumnEventIdx, keys.EventIdxKey(eventID))
			if err != nil {
				return nil, err
			}
			if known {
				continue
			}
			planned[eventID] = true
			fetches = append(fetches, &Fetch{
				Room:    room,
				EventID: eventID,
				Remote:  origin,
				Source:  SourceHead,
				Depth:   head.Depth,
			})
		}
	}
	return fetches, nil
}

// dispatch runs fetches with at most Width outstanding.
func (a *Acquire) dispatch(ctx context.Context, fetches []*Fetch) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.options.Width)
	for _, fetch := range fetches {
		group.Go(func() error { return a.run(groupCtx, fetch) })
	}
	return group.Wait()
}

// run drives one fetch to a terminal state.
func (a *Acquire) run(ctx context.Context, fetch *Fetch) error {
	if _, loaded := a.inflight.LoadOrStore(fetch.EventID, struct{}{}); loaded {
		a.logger.Debug("event already in flight", "event_id", fetch.EventID.String())
		return nil
	}
	defer a.inflight.Delete(fetch.EventID)

	fetch.State = Fetching
	fetch.Started = a.clock.Now()
	limit := 1
	if fetch.Source == SourceMissing {
		limit = a.options.BackfillLimit
	}

	var pdus []json.RawMessage
	err := withTimeout(ctx, a.clock, a.options.Timeout, func(ctx context.Context) error {
		var err error
		pdus, err = a.fetcher.Fetch(ctx, federation.FetchRequest{
			Room:    fetch.Room,
			EventID: fetch.EventID,
			Server:  fetch.Remote,
			Limit:   limit,
		})
		return err
	})
	switch {
	case err == nil:
		err = a.accept(ctx, fetch, pdus)
	case errors.Is(err, ErrTimedOut):
		fetch.State = TimedOut
		fetch.Err = err
		err = nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		fetch.State = Rejected
		fetch.Err = &RejectedError{EventID: fetch.EventID, Remote: fetch.Remote, Reason: "fetch failed", Err: err}
		err = nil
	}
	if err != nil {
		return err
	}

	fetch.Finished = a.clock.Now()
	a.metrics.fetches.WithLabelValues(fetch.Source.String(), fetch.State.String()).Inc()
	a.metrics.ingested.Add(float64(fetch.Ingested))

	attrs := []any{
		"room_id", fetch.Room.String(),
		"event_id", fetch.EventID.String(),
		"remote", fetch.Remote.String(),
		"source", fetch.Source.String(),
		"state", fetch.State.String(),
		"ingested", fetch.Ingested,
		"elapsed", fetch.Finished.Sub(fetch.Started),
	}
	if fetch.Err != nil {
		a.logger.Warn("fetch failed", append(attrs, "error", fetch.Err)...)
	} else {
		a.logger.Debug("fetch complete", attrs...)
	}
	return nil
}

// accept validates and ingests a response. The fetch is Accepted when
// its own event is written or already known; other events of the
// response are written when valid but do not decide the outcome.
func (a *Acquire) accept(ctx context.Context, fetch *Fetch, pdus []json.RawMessage) error {
	var candidates []*event.Event
	var targetErr error
	for _, raw := range pdus {
		ev, err := validate(ctx, a.verifier, raw, fetch.Remote)
		if err != nil {
			var rejected *RejectedError
			if errors.As(err, &rejected) && rejected.EventID == fetch.EventID {
				targetErr = err
			}
			a.logger.Debug("candidate rejected", "remote", fetch.Remote.String(), "error", err)
			continue
		}
		if ev.RoomID != fetch.Room {
			err := &RejectedError{EventID: ev.EventID, Remote: fetch.Remote, Reason: "event belongs to " + ev.RoomID.String()}
			if ev.EventID == fetch.EventID {
				targetErr = err
			}
			continue
		}
		candidates = append(candidates, ev)
	}
	slices.SortStableFunc(candidates, func(x, y *event.Event) int {
		switch {
		case x.Depth < y.Depth:
			return -1
		case x.Depth > y.Depth:
			return 1
		}
		return 0
	})

	found := false
	for _, ev := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := a.ingest(ctx, ev)
		switch {
		case err == nil:
			fetch.Ingested++
		case errors.Is(err, eventstore.ErrAlreadyIndexed):
		case errors.Is(err, store.ErrStorage):
			return err
		default:
			rejected := &RejectedError{EventID: ev.EventID, Remote: fetch.Remote, Reason: "ingest refused", Err: err}
			if ev.EventID == fetch.EventID {
				targetErr = rejected
			}
			a.logger.Debug("candidate rejected", "remote", fetch.Remote.String(), "error", rejected)
			continue
		}
		if ev.EventID == fetch.EventID {
			found = true
		}
	}

	switch {
	case found:
		fetch.State = Accepted
	case targetErr != nil:
		fetch.State = Rejected
		fetch.Err = targetErr
	default:
		fetch.State = Rejected
		fetch.Err = &RejectedError{EventID: fetch.EventID, Remote: fetch.Remote, Reason: fmt.Sprintf("not among %d returned pdus", len(pdus))}
	}
	return nil
}
