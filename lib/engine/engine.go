// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/eventgraph/lib/clock"
	"github.com/bureau-foundation/eventgraph/lib/codec"
	"github.com/bureau-foundation/eventgraph/lib/config"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/eventstore"
	"github.com/bureau-foundation/eventgraph/lib/federation"
	"github.com/bureau-foundation/eventgraph/lib/frontier"
	"github.com/bureau-foundation/eventgraph/lib/indexer"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/roomstate"
	"github.com/bureau-foundation/eventgraph/lib/store"
	"github.com/bureau-foundation/eventgraph/lib/version"
)

// Errors returned by the engine. Each is the sentinel of the package
// that produces it, so errors.Is works against either name.
var (
	ErrMalformed = event.ErrMalformed
	ErrNotFound  = store.ErrNotFound
	ErrStorage   = store.ErrStorage
	ErrDuplicate = eventstore.ErrAlreadyIndexed

	// ErrNoFederation is returned by Acquire and Gossip when the engine
	// has no server name and no injected remote boundary.
	ErrNoFederation = errors.New("federation is not configured")
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for fetch timeouts, gossip polling and
// compaction scheduling. The default is clock.Real().
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithFetcher replaces the federation client as the source of remote
// events.
func WithFetcher(fetcher federation.Fetcher) Option {
	return func(e *Engine) { e.fetcher = fetcher }
}

// WithSender replaces the federation client as the gossip transport.
func WithSender(sender federation.Sender) Option {
	return func(e *Engine) { e.sender = sender }
}

// WithVerifier sets how fetched events are authenticated. The default
// checks the reference hash.
func WithVerifier(verifier frontier.Verifier) Option {
	return func(e *Engine) { e.verifier = verifier }
}

// WithAuthorizer sets the request signer of the federation client.
func WithAuthorizer(authorizer federation.RequestAuthorizer) Option {
	return func(e *Engine) { e.authorizer = authorizer }
}

// Engine is an open event graph. It is safe for concurrent use.
type Engine struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock

	db       *store.DB
	events   *eventstore.Store
	writer   *indexer.Writer
	resolver *roomstate.Resolver

	fetcher    federation.Fetcher
	sender     federation.Sender
	verifier   frontier.Verifier
	authorizer federation.RequestAuthorizer
	serverName ref.ServerName
	acquire    *frontier.Acquire
	gossip     *frontier.Gossip

	stripes []sync.Mutex

	registry *prometheus.Registry
	ingests  *prometheus.CounterVec
}

// Open opens the database named by cfg and wires every component.
func Open(cfg *config.Config, logger *slog.Logger, options ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	compression, err := codec.ParseCompressionTag(cfg.Store.Compression)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		config:  cfg,
		logger:  logger,
		clock:   clock.Real(),
		stripes: make([]sync.Mutex, cfg.Engine.LockStripes),
	}
	for _, option := range options {
		option(e)
	}

	e.db, err = store.Open(store.Options{
		Path:            cfg.Store.Path,
		InMemory:        cfg.Store.InMemory,
		CacheSize:       cfg.TotalCacheSize(),
		BloomBitsPerKey: cfg.Store.BloomBitsPerKey,
		Sync:            cfg.Store.Sync,
	}, logger.With("component", "store"))
	if err != nil {
		return nil, err
	}

	e.events, err = eventstore.Open(e.db, eventstore.Options{
		Compression:      compression,
		BodyCacheEntries: cfg.Engine.BodyCacheEntries,
		LookupWidth:      cfg.Engine.LookupWidth,
	}, logger.With("component", "eventstore"))
	if err != nil {
		e.db.Close()
		return nil, err
	}
	e.writer = indexer.New(e.db, e.events, logger.With("component", "indexer"))
	e.resolver = roomstate.New(e.db, e.events, e.writer, logger.With("component", "roomstate"))

	e.ingests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventgraph_ingests_total",
		Help: "Ingested events by result.",
	}, []string{"result"})
	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(store.NewCollector(e.db), e.ingests)
	e.registry.MustRegister(e.writer.Collectors()...)
	e.registry.MustRegister(buildInfo())

	if err := e.wireFrontier(); err != nil {
		e.db.Close()
		return nil, err
	}

	e.logger.Info("engine open",
		"path", cfg.Store.Path,
		"in_memory", cfg.Store.InMemory,
		"last_idx", e.events.LastIdx(),
		"federation", e.acquire != nil,
	)
	return e, nil
}

// wireFrontier builds the acquire and gossip loops when a remote
// boundary is available: injected, or a federation client for the
// configured server name.
func (e *Engine) wireFrontier() error {
	if name := e.config.Federation.ServerName; name != "" {
		serverName, err := ref.ParseServerName(name)
		if err != nil {
			return fmt.Errorf("engine: federation.server_name: %w", err)
		}
		e.serverName = serverName
	}

	if (e.fetcher == nil || e.sender == nil) && !e.serverName.IsZero() {
		client, err := federation.NewClient(federation.ClientOptions{
			ServerName:        e.serverName,
			Timeout:           e.config.Federation.Timeout.Std(),
			Authorizer:        e.authorizer,
			RequestsPerSecond: e.config.Federation.RequestsPerSecond,
			Burst:             e.config.Federation.Burst,
			Logger:            e.logger.With("component", "federation"),
		})
		if err != nil {
			return err
		}
		if e.fetcher == nil {
			e.fetcher = client
		}
		if e.sender == nil {
			e.sender = client
		}
	}

	metrics := frontier.NewMetrics()
	e.registry.MustRegister(metrics.Collectors()...)
	frontierLogger := e.logger.With("component", "frontier")

	if e.fetcher != nil {
		acquireConfig := e.config.Acquire
		acquire, err := frontier.NewAcquire(frontier.AcquireConfig{
			DB:         e.db,
			Fetcher:    e.fetcher,
			Ingest:     e.ingestFetched,
			ServerName: e.serverName,
			Verifier:   e.verifier,
			Clock:      e.clock,
			Metrics:    metrics,
			Options: frontier.AcquireOptions{
				Width:               acquireConfig.Width,
				Viewport:            acquireConfig.Viewport,
				Rounds:              acquireConfig.Rounds,
				Timeout:             acquireConfig.Timeout.Std(),
				HeadDepthLowerBound: acquireConfig.HeadDepthLowerBound,
				BackfillLimit:       acquireConfig.BackfillLimit,
			},
			Logger: frontierLogger,
		})
		if err != nil {
			return err
		}
		e.acquire = acquire
	}

	if e.fetcher != nil && e.sender != nil && !e.serverName.IsZero() {
		gossipConfig := e.config.Gossip
		gossip, err := frontier.NewGossip(frontier.GossipConfig{
			DB:         e.db,
			Fetcher:    e.fetcher,
			Sender:     e.sender,
			ServerName: e.serverName,
			Clock:      e.clock,
			Metrics:    metrics,
			Options: frontier.GossipOptions{
				Width:     gossipConfig.Width,
				FanOut:    gossipConfig.FanOut,
				BatchSize: gossipConfig.BatchSize,
				ShortPoll: gossipConfig.ShortPoll.Std(),
				LongPoll:  gossipConfig.LongPoll.Std(),
				Timeout:   gossipConfig.Timeout.Std(),
			},
			Logger: frontierLogger,
		})
		if err != nil {
			return err
		}
		e.gossip = gossip
	}
	return nil
}

// Close closes the database. The engine must not be used afterwards.
func (e *Engine) Close() error {
	return e.db.Close()
}

// DB returns the underlying database.
func (e *Engine) DB() *store.DB { return e.db }

// Events returns the event store.
func (e *Engine) Events() *eventstore.Store { return e.events }

// Resolver returns the state resolver.
func (e *Engine) Resolver() *roomstate.Resolver { return e.resolver }

// Registry returns the engine's metrics registry.
func (e *Engine) Registry() *prometheus.Registry { return e.registry }

// ServerName returns the configured server name, zero when unset.
func (e *Engine) ServerName() ref.ServerName { return e.serverName }

// stripe returns the lock serializing writes to room.
func (e *Engine) stripe(room ref.RoomID) *sync.Mutex {
	return &e.stripes[xxhash.Sum64String(room.String())%uint64(len(e.stripes))]
}

// Ingest writes ev with the indices options selects and commits. For
// OpSet the event must conform structurally; an event already indexed
// returns its index with an error matching ErrDuplicate.
func (e *Engine) Ingest(ctx context.Context, ev *event.Event, options indexer.Options) (event.Idx, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if options.Op == indexer.OpSet {
		if err := event.Conforms(ev).Err(ev); err != nil {
			e.ingests.WithLabelValues("malformed").Inc()
			return 0, err
		}
	}

	lock := e.stripe(ev.RoomID)
	lock.Lock()
	defer lock.Unlock()

	txn := e.db.NewTxn()
	defer txn.Discard()

	idx, err := e.writer.Write(txn, ev, options)
	if err == nil {
		err = txn.Commit()
	}
	switch {
	case err == nil:
		e.ingests.WithLabelValues(options.Op.String()).Inc()
		return idx, nil
	case errors.Is(err, ErrDuplicate):
		e.ingests.WithLabelValues("duplicate").Inc()
		return idx, err
	case errors.Is(err, ErrMalformed):
		e.ingests.WithLabelValues("malformed").Inc()
		return 0, err
	default:
		e.ingests.WithLabelValues("error").Inc()
		return 0, err
	}
}

// IngestJSON parses a federation-format PDU and ingests it.
func (e *Engine) IngestJSON(ctx context.Context, data []byte, options indexer.Options) (*event.Event, event.Idx, error) {
	ev, err := event.ParseJSON(data)
	if err != nil {
		e.ingests.WithLabelValues("malformed").Inc()
		return nil, 0, err
	}
	idx, err := e.Ingest(ctx, ev, options)
	return ev, idx, err
}

// ingestFetched is the frontier's write path for remote events.
func (e *Engine) ingestFetched(ctx context.Context, ev *event.Event) error {
	_, err := e.Ingest(ctx, ev, indexer.DefaultOptions())
	return err
}

// Rebuild revalidates and rewrites room's present state.
func (e *Engine) Rebuild(ctx context.Context, room ref.RoomID) (roomstate.RebuildReport, error) {
	lock := e.stripe(room)
	lock.Lock()
	defer lock.Unlock()
	return e.resolver.Rebuild(ctx, room)
}

// Acquire runs the frontier's acquire loop for room.
func (e *Engine) Acquire(ctx context.Context, room ref.RoomID) (*frontier.AcquireReport, error) {
	if e.acquire == nil {
		return nil, ErrNoFederation
	}
	return e.acquire.Run(ctx, room)
}

// Gossip pushes room's recent events to its remote origins.
func (e *Engine) Gossip(ctx context.Context, room ref.RoomID) (*frontier.GossipReport, error) {
	if e.gossip == nil {
		return nil, ErrNoFederation
	}
	return e.gossip.Run(ctx, room)
}

// Compact compacts the whole database now.
func (e *Engine) Compact() error {
	return e.db.Compact()
}

// RunCompaction compacts on the configured cron schedule until ctx is
// cancelled. It returns nil at once when no schedule is configured.
func (e *Engine) RunCompaction(ctx context.Context) error {
	if e.config.Store.CompactionSchedule == "" {
		return nil
	}
	return e.db.RunCompaction(ctx, e.config.Store.CompactionSchedule, e.clock)
}

// buildInfo is the constant eventgraph_build_info gauge.
func buildInfo() prometheus.Collector {
	build := version.Read()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventgraph_build_info",
		Help: "Build information of the running binary; always 1.",
		ConstLabels: prometheus.Labels{
			"version":    build.Version,
			"commit":     build.Commit,
			"go_version": build.GoVersion,
		},
	})
	gauge.Set(1)
	return gauge
}
