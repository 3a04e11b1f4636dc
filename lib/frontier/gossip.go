// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/eventgraph/lib/clock"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/federation"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// GossipOptions bounds a gossip run.
type GossipOptions struct {
	// Width is the maximum number of outstanding sends.
	Width int

	// FanOut bounds how many citing events are followed from each event
	// during the forward walk.
	FanOut int

	// BatchSize bounds the PDUs of one transaction.
	BatchSize int

	// ShortPoll is how long the dispatcher waits for a completion after
	// each dispatch while below Width.
	ShortPoll time.Duration

	// LongPoll is how long it waits for a completion at Width and while
	// draining.
	LongPoll time.Duration

	// Timeout bounds each remote request.
	Timeout time.Duration
}

// GossipConfig holds the dependencies of a Gossip.
type GossipConfig struct {
	DB      *store.DB
	Fetcher federation.Fetcher
	Sender  federation.Sender

	// ServerName is this server, the origin of every transaction.
	ServerName ref.ServerName

	Clock   clock.Clock
	Metrics *Metrics
	Options GossipOptions
	Logger  *slog.Logger
}

// Gossip pushes events a remote has not seen yet. It is best-effort:
// nothing is retried.
type Gossip struct {
	db         *store.DB
	fetcher    federation.Fetcher
	sender     federation.Sender
	serverName ref.ServerName
	clock      clock.Clock
	metrics    *Metrics
	options    GossipOptions
	logger     *slog.Logger
}

// NewGossip creates a Gossip.
func NewGossip(config GossipConfig) (*Gossip, error) {
	if config.DB == nil || config.Fetcher == nil || config.Sender == nil {
		return nil, errors.New("frontier: gossip requires a database, a fetcher and a sender")
	}
	if config.ServerName.IsZero() {
		return nil, errors.New("frontier: gossip requires a server name")
	}
	options := config.Options
	if options.Width <= 0 || options.FanOut <= 0 || options.BatchSize <= 0 {
		return nil, fmt.Errorf("frontier: gossip width, fan-out and batch size must be positive, got %d, %d, %d",
			options.Width, options.FanOut, options.BatchSize)
	}
	g := &Gossip{
		db:         config.DB,
		fetcher:    config.Fetcher,
		sender:     config.Sender,
		serverName: config.ServerName,
		clock:      config.Clock,
		metrics:    config.Metrics,
		options:    options,
		logger:     config.Logger,
	}
	if g.clock == nil {
		g.clock = clock.Real()
	}
	if g.metrics == nil {
		g.metrics = NewMetrics()
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g, nil
}

// Send records one transaction to one remote.
type Send struct {
	Room        ref.RoomID
	Remote      ref.ServerName
	Transaction federation.Transaction

	// From is the remote's head event the transaction continues from.
	From ref.EventID

	State    FetchState
	Started  time.Time
	Finished time.Time

	// Results holds the remote's per-PDU verdicts for an Accepted send.
	Results map[ref.EventID]federation.PDUResult

	Err error
}

// Refused returns the number of PDUs the remote reported an error for.
func (s *Send) Refused() int {
	count := 0
	for _, result := range s.Results {
		if result.Error != "" {
			count++
		}
	}
	return count
}

// GossipReport summarizes one run.
type GossipReport struct {
	Room    ref.RoomID
	Remotes int
	Sends   []*Send
}

// PDUs returns the number of PDUs dispatched.
func (r *GossipReport) PDUs() int {
	total := 0
	for _, send := range r.Sends {
		total += len(send.Transaction.PDUs)
	}
	return total
}

// Run gossips room to every remote origin. For each event of a remote's
// head that is known here, it walks forward through the events citing
// it, at most FanOut per event, and sends up to BatchSize of them as one
// transaction. Only storage errors and cancellation return an error.
func (g *Gossip) Run(ctx context.Context, room ref.RoomID) (*GossipReport, error) {
	report := &GossipReport{Room: room}
	origins, err := remoteOrigins(g.db, room, g.serverName)
	if err != nil || len(origins) == 0 {
		return report, err
	}
	report.Remotes = len(origins)

	poller := headPoller{
		fetcher: g.fetcher,
		clock:   g.clock,
		timeout: g.options.Timeout,
		width:   g.options.Width,
		logger:  g.logger,
	}
	heads, err := poller.poll(ctx, room, origins)
	if err != nil {
		return report, err
	}

	for i, origin := range origins {
		sends, err := g.plan(room, origin, heads[i])
		if err != nil {
			return report, err
		}
		report.Sends = append(report.Sends, sends...)
	}
	if len(report.Sends) == 0 {
		return report, nil
	}

	err = g.dispatch(ctx, report.Sends)
	g.logger.Info("gossip complete",
		"room_id", room.String(),
		"remotes", report.Remotes,
		"transactions", len(report.Sends),
		"pdus", report.PDUs(),
	)
	return report, err
}

// plan builds one transaction per head event of remote that is known
// here and has known successors.
func (g *Gossip) plan(room ref.RoomID, remote ref.ServerName, head federation.Head) ([]*Send, error) {
	seen := make(map[event.Idx]bool)
	var sends []*Send
	for _, from := range head.Events {
		idx, err := eventstore.Index(g.db, from)
		if errors.Is(err, store.ErrNotFound) {
			// The remote is ahead of us here; acquire will catch up.
			continue
		}
		if err != nil {
			return nil, err
		}
		seen[idx] = true

		successors, err := g.walk(idx, seen)
		if err != nil {
			return nil, err
		}
		if len(successors) == 0 {
			continue
		}

		pdus := make([]json.RawMessage, 0, len(successors))
		for _, successor := range successors {
			ev, err := eventstore.Fetch(g.db, successor)
			if err != nil {
				return nil, err
			}
			raw, err := event.MarshalJSON(ev)
			if err != nil {
				return nil, fmt.Errorf("encoding %s for gossip: %w", ev.EventID, err)
			}
			pdus = append(pdus, raw)
		}
		sends = append(sends, &Send{
			Room:   room,
			Remote: remote,
			From:   from,
			Transaction: federation.Transaction{
				ID:          uuid.NewString(),
				Origin:      g.serverName,
				Destination: remote,
				PDUs:        pdus,
			},
		})
	}
	return sends, nil
}

// walk collects up to BatchSize events reachable forward from start,
// breadth first, following at most FanOut citing events per event.
// Events in seen are skipped and everything collected is added to it.
func (g *Gossip) walk(start event.Idx, seen map[event.Idx]bool) ([]event.Idx, error) {
	var collected []event.Idx
	queue := []event.Idx{start}
	for len(queue) > 0 && len(collected) < g.options.BatchSize {
		current := queue[0]
		queue = queue[1:]

		citing, err := g.citing(current)
		if err != nil {
			return nil, err
		}
		for _, source := range citing {
			if seen[source] {
				continue
			}
			seen[source] = true
			collected = append(collected, source)
			queue = append(queue, source)
			if len(collected) == g.options.BatchSize {
				break
			}
		}
	}
	return collected, nil
}

// citing returns up to FanOut events that list target as a prev_event.
func (g *Gossip) citing(target event.Idx) ([]event.Idx, error) {
	iter, err := g.db.NewIter(keys.ColumnEventRefs, keys.RefPrefix(target, keys.RefPrev))
	if err != nil {
		return nil, err
	}
	var sources []event.Idx
	for valid := iter.First(); valid && len(sources) < g.options.FanOut; valid = iter.Next() {
		_, _, source, err := keys.DecodeRef(iter.Key())
		if err != nil {
			iter.Close()
			return nil, &store.StorageError{Op: "decode ref", Column: keys.ColumnEventRefs, Err: err}
		}
		sources = append(sources, source)
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return nil, err
	}
	return sources, iter.Close()
}

// dispatch sends every transaction with at most Width outstanding. After
// each dispatch it waits up to ShortPoll for completions; at Width it
// waits in LongPoll steps until a slot frees. On cancellation it still
// waits for the outstanding sends, which observe the same context.
func (g *Gossip) dispatch(ctx context.Context, sends []*Send) error {
	done := make(chan *Send, len(sends))
	pending := 0
	drain := func(err error) error {
		for ; pending > 0; pending-- {
			<-done
		}
		return err
	}

	for _, send := range sends {
		for pending >= g.options.Width {
			completed, err := g.await(ctx, done, g.options.LongPoll)
			if err != nil {
				return drain(err)
			}
			pending -= completed
		}
		pending++
		go func() {
			g.send(ctx, send)
			done <- send
		}()

		completed, err := g.await(ctx, done, g.options.ShortPoll)
		if err != nil {
			return drain(err)
		}
		pending -= completed
	}
	for pending > 0 {
		completed, err := g.await(ctx, done, g.options.LongPoll)
		if err != nil {
			return drain(err)
		}
		pending -= completed
	}
	return nil
}

// await waits up to poll for one completion, then collects any others
// already finished. It returns how many completed.
func (g *Gossip) await(ctx context.Context, done <-chan *Send, poll time.Duration) (int, error) {
	select {
	case <-done:
	case <-g.clock.After(poll):
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	completed := 1
	for {
		select {
		case <-done:
			completed++
		default:
			return completed, nil
		}
	}
}

// send performs one transaction and logs each PDU's verdict.
func (g *Gossip) send(ctx context.Context, send *Send) {
	send.State = Fetching
	send.Started = g.clock.Now()
	send.Transaction.OriginServerTS = send.Started.UnixMilli()

	var results map[ref.EventID]federation.PDUResult
	err := withTimeout(ctx, g.clock, g.options.Timeout, func(ctx context.Context) error {
		var err error
		results, err = g.sender.Send(ctx, send.Transaction)
		return err
	})
	send.Finished = g.clock.Now()

	attrs := []any{
		"room_id", send.Room.String(),
		"remote", send.Remote.String(),
		"txn_id", send.Transaction.ID,
		"pdus", len(send.Transaction.PDUs),
	}
	switch {
	case err == nil:
		send.State = Accepted
		send.Results = results
	case errors.Is(err, ErrTimedOut):
		send.State = TimedOut
		send.Err = err
	default:
		send.State = Rejected
		send.Err = err
	}
	g.metrics.sends.WithLabelValues(send.State.String()).Inc()
	if send.Err != nil {
		g.logger.Warn("gossip send failed", append(attrs, "state", send.State.String(), "error", send.Err)...)
		return
	}

	for eventID, result := range results {
		if result.Error != "" {
			g.metrics.pdus.WithLabelValues("refused").Inc()
			g.logger.Warn("gossiped pdu refused", append(attrs, "event_id", eventID.String(), "error", result.Error)...)
			continue
		}
		g.metrics.pdus.WithLabelValues("accepted").Inc()
		g.logger.Debug("gossiped pdu accepted", append(attrs, "event_id", eventID.String())...)
	}
	if missing := len(send.Transaction.PDUs) - len(results); missing > 0 {
		g.metrics.pdus.WithLabelValues("unacknowledged").Add(float64(missing))
	}
}
