// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontier

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/eventgraph/lib/clock"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/federation"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/testutil"
)

const dave = "@dave:fourth.example"

var fourthServer = ref.MustParseServerName("fourth.example")

func (h *harness) newGossip(remote *fakeRemote, options GossipOptions, metrics *Metrics) *Gossip {
	h.t.Helper()
	g, err := NewGossip(GossipConfig{
		DB:         h.db,
		Fetcher:    remote,
		Sender:     remote,
		ServerName: localServer,
		Metrics:    metrics,
		Options:    options,
	})
	if err != nil {
		h.t.Fatalf("NewGossip: %v", err)
	}
	return g
}

func defaultGossipOptions() GossipOptions {
	return GossipOptions{
		Width:     4,
		FanOut:    2,
		BatchSize: 10,
		ShortPoll: time.Millisecond,
		LongPoll:  5 * time.Millisecond,
		Timeout:   5 * time.Second,
	}
}

func pduIDs(t *testing.T, transaction federation.Transaction) []string {
	t.Helper()
	var out []string
	for _, raw := range transaction.PDUs {
		ev, err := event.ParseJSON(raw)
		if err != nil {
			t.Fatalf("ParseJSON(gossiped pdu): %v", err)
		}
		out = append(out, ev.EventID.String())
	}
	slices.Sort(out)
	return out
}

func TestGossipWalksForward(t *testing.T) {
	h := newHarness(t)
	room := testutil.NewRoom(t, "!gossip:local.example", alice)
	create := room.Create()
	aliceJoin := room.Member(alice, event.MembershipJoin, create)
	bobJoin := room.Member(bob, event.MembershipJoin, aliceJoin)
	m1 := room.Message(alice, "one", bobJoin)
	m2 := room.Message(alice, "two", m1)
	m3 := room.Message(alice, "three", m2)
	h.set(create, aliceJoin, bobJoin, m1, m2, m3)

	tests := []struct {
		name      string
		batchSize int
		want      []string
	}{
		{name: "whole chain", batchSize: 10, want: ids(m1, m2, m3)},
		{name: "batch bound", batchSize: 2, want: ids(m1, m2)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			remote := newFakeRemote()
			remote.heads[remoteServer] = federation.Head{Events: []ref.EventID{bobJoin.EventID}, Depth: bobJoin.Depth}
			options := defaultGossipOptions()
			options.BatchSize = test.batchSize
			metrics := NewMetrics()

			report, err := h.newGossip(remote, options, metrics).Run(context.Background(), room.ID)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Remotes != 1 || len(report.Sends) != 1 {
				t.Fatalf("report = %d remotes, %d sends, want 1 and 1", report.Remotes, len(report.Sends))
			}
			send := report.Sends[0]
			if send.State != Accepted || send.Remote != remoteServer || send.From != bobJoin.EventID {
				t.Errorf("send = %s to %s from %s", send.State, send.Remote, send.From)
			}
			if _, err := uuid.Parse(send.Transaction.ID); err != nil {
				t.Errorf("transaction ID %q is not a UUID: %v", send.Transaction.ID, err)
			}
			if send.Transaction.Origin != localServer || send.Transaction.OriginServerTS == 0 {
				t.Errorf("transaction origin = %s at %d", send.Transaction.Origin, send.Transaction.OriginServerTS)
			}
			if got := pduIDs(t, send.Transaction); !slices.Equal(got, test.want) {
				t.Errorf("gossiped %v, want %v", got, test.want)
			}
			if got := promtestutil.ToFloat64(metrics.pdus.WithLabelValues("accepted")); got != float64(len(test.want)) {
				t.Errorf("accepted pdus metric = %v, want %d", got, len(test.want))
			}
		})
	}
}

func TestGossipFanOut(t *testing.T) {
	h := newHarness(t)
	room := testutil.NewRoom(t, "!fanout:local.example", alice)
	create := room.Create()
	aliceJoin := room.Member(alice, event.MembershipJoin, create)
	bobJoin := room.Member(bob, event.MembershipJoin, aliceJoin)
	b1 := room.Message(alice, "b1", bobJoin)
	b2 := room.Message(alice, "b2", bobJoin)
	b3 := room.Message(alice, "b3", bobJoin)
	h.set(create, aliceJoin, bobJoin, b1, b2, b3)

	remote := newFakeRemote()
	remote.heads[remoteServer] = federation.Head{Events: []ref.EventID{bobJoin.EventID}, Depth: bobJoin.Depth}
	report, err := h.newGossip(remote, defaultGossipOptions(), nil).Run(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Sends) != 1 {
		t.Fatalf("len(Sends) = %d, want 1", len(report.Sends))
	}
	if got := len(report.Sends[0].Transaction.PDUs); got != 2 {
		t.Errorf("gossiped %d pdus with fan-out 2, want 2", got)
	}
}

// relayRoom has three remote origins, each of whose head is its own
// join, with later events known locally.
func relayRoom(t *testing.T, h *harness) (*testutil.Room, map[ref.ServerName]*event.Event) {
	t.Helper()
	room := testutil.NewRoom(t, "!relay:local.example", alice)
	create := room.Create()
	aliceJoin := room.Member(alice, event.MembershipJoin, create)
	bobJoin := room.Member(bob, event.MembershipJoin, aliceJoin)
	carolJoin := room.Member(carol, event.MembershipJoin, bobJoin)
	daveJoin := room.Member(dave, event.MembershipJoin, carolJoin)
	message := room.Message(alice, "hello", daveJoin)
	h.set(create, aliceJoin, bobJoin, carolJoin, daveJoin, message)
	return room, map[ref.ServerName]*event.Event{
		remoteServer: bobJoin,
		thirdServer:  carolJoin,
		fourthServer: daveJoin,
	}
}

func TestGossipWidth(t *testing.T) {
	h := newHarness(t)
	room, joins := relayRoom(t, h)
	remote := newFakeRemote()
	for server, join := range joins {
		remote.heads[server] = federation.Head{Events: []ref.EventID{join.EventID}, Depth: join.Depth}
	}
	remote.sendDelay = 20 * time.Millisecond

	options := defaultGossipOptions()
	options.Width = 1
	report, err := h.newGossip(remote, options, nil).Run(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Sends) != 3 {
		t.Fatalf("len(Sends) = %d, want 3", len(report.Sends))
	}
	for _, send := range report.Sends {
		if send.State != Accepted {
			t.Errorf("send to %s = %s, want accepted", send.Remote, send.State)
		}
	}
	if remote.maxConcurrent != 1 {
		t.Errorf("max concurrent sends = %d, want 1", remote.maxConcurrent)
	}
}

func TestGossipFailures(t *testing.T) {
	h := newHarness(t)
	room, joins := relayRoom(t, h)
	remote := newFakeRemote()
	remote.heads[remoteServer] = federation.Head{Events: []ref.EventID{joins[remoteServer].EventID}}
	remote.heads[thirdServer] = federation.Head{Events: []ref.EventID{joins[thirdServer].EventID}}
	// fourth.example has no head: FetchHead fails and it is skipped.
	remote.sendErr[thirdServer] = errors.New("connection refused")
	remote.refuse[joins[fourthServer].EventID] = "not allowed"

	metrics := NewMetrics()
	report, err := h.newGossip(remote, defaultGossipOptions(), metrics).Run(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Remotes != 3 || len(report.Sends) != 2 {
		t.Fatalf("report = %d remotes, %d sends, want 3 and 2", report.Remotes, len(report.Sends))
	}
	for _, send := range report.Sends {
		switch send.Remote {
		case remoteServer:
			if send.State != Accepted || send.Refused() != 1 {
				t.Errorf("send to %s = %s with %d refused, want accepted with 1", send.Remote, send.State, send.Refused())
			}
		case thirdServer:
			if send.State != Rejected || send.Err == nil {
				t.Errorf("send to %s = %s, %v, want rejected", send.Remote, send.State, send.Err)
			}
		default:
			t.Errorf("unexpected send to %s", send.Remote)
		}
	}
	if got := promtestutil.ToFloat64(metrics.pdus.WithLabelValues("refused")); got != 1 {
		t.Errorf("refused pdus metric = %v, want 1", got)
	}
	if got := promtestutil.ToFloat64(metrics.sends.WithLabelValues(Rejected.String())); got != 1 {
		t.Errorf("rejected transactions metric = %v, want 1", got)
	}
}

func TestGossipRemoteAhead(t *testing.T) {
	h := newHarness(t)
	room, _ := relayRoom(t, h)
	unknown := ref.MustParseEventID("$not-here-yet")
	remote := newFakeRemote()
	remote.heads[remoteServer] = federation.Head{Events: []ref.EventID{unknown}}

	report, err := h.newGossip(remote, defaultGossipOptions(), nil).Run(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Sends) != 0 {
		t.Errorf("len(Sends) = %d, want 0 when the remote is ahead", len(report.Sends))
	}
}

func TestNewGossipValidation(t *testing.T) {
	h := newHarness(t)
	remote := newFakeRemote()
	tests := []struct {
		name   string
		config GossipConfig
	}{
		{name: "no sender", config: GossipConfig{DB: h.db, Fetcher: remote, ServerName: localServer, Options: defaultGossipOptions()}},
		{name: "no server name", config: GossipConfig{DB: h.db, Fetcher: remote, Sender: remote, Options: defaultGossipOptions()}},
		{name: "zero batch", config: GossipConfig{DB: h.db, Fetcher: remote, Sender: remote, ServerName: localServer,
			Options: GossipOptions{Width: 1, FanOut: 1}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewGossip(test.config); err == nil {
				t.Error("NewGossip succeeded")
			}
		})
	}
}

func TestWithTimeout(t *testing.T) {
	t.Run("no timeout", func(t *testing.T) {
		want := errors.New("done")
		if err := withTimeout(context.Background(), clock.Real(), 0, func(context.Context) error { return want }); err != want {
			t.Errorf("withTimeout() = %v, want %v", err, want)
		}
	})

	t.Run("deadline", func(t *testing.T) {
		fake := clock.Fake(time.Unix(0, 0))
		done := make(chan error, 1)
		go func() {
			done <- withTimeout(context.Background(), fake, time.Second, func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			})
		}()
		fake.WaitForWaiters(1)
		fake.Advance(time.Second)
		if err := testutil.RequireReceive(t, done, 5*time.Second); !errors.Is(err, ErrTimedOut) {
			t.Errorf("withTimeout() = %v, want ErrTimedOut", err)
		}
	})

	t.Run("parent cancelled", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := withTimeout(ctx, clock.Fake(time.Unix(0, 0)), time.Hour, func(context.Context) error {
			<-release
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("withTimeout() = %v, want context.Canceled", err)
		}
	})
}

func TestFetchStateString(t *testing.T) {
	tests := []struct {
		state    FetchState
		want     string
		terminal bool
	}{
		{Idle, "idle", false},
		{Fetching, "fetching", false},
		{Accepted, "accepted", true},
		{Rejected, "rejected", true},
		{TimedOut, "timed_out", true},
		{FetchState(9), "fetch_state(9)", true},
	}
	for _, test := range tests {
		if got := test.state.String(); got != test.want {
			t.Errorf("FetchState(%d).String() = %q, want %q", test.state, got, test.want)
		}
		if got := test.state.Terminal(); got != test.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", test.state, got, test.terminal)
		}
	}
}
