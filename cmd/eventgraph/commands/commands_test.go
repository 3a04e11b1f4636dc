// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/eventgraph/cmd/eventgraph/cli"
	"github.com/bureau-foundation/eventgraph/lib/engine"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/federation"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/testutil"
)

type harness struct {
	t     *testing.T
	store string
}

func newHarness(t *testing.T) *harness {
	t.Setenv("EVENTGRAPH_CONFIG", "")
	return &harness{t: t, store: filepath.Join(t.TempDir(), "db")}
}

// run executes one command line against the harness store and returns
// its stdout.
func (h *harness) run(options []engine.Option, args ...string) (string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	root := Root(context.Background(), cli.Output{Stdout: &stdout, Stderr: &stderr}, options...)
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		args = append([]string{args[0], "--store", h.store}, args[1:]...)
	}
	err := root.Execute(args)
	return stdout.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(nil, args...)
	if err != nil {
		h.t.Fatalf("eventgraph %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// writeFixture writes events as a JSONC array with a comment and a
// trailing comma.
func (h *harness) writeFixture(name string, events ...*event.Event) string {
	h.t.Helper()
	var b strings.Builder
	b.WriteString("// room fixture\n[\n")
	for _, ev := range events {
		data, err := event.MarshalJSON(ev)
		if err != nil {
			h.t.Fatal(err)
		}
		b.Write(data)
		b.WriteString(", /* pdu */\n")
	}
	b.WriteString("]\n")
	path := filepath.Join(h.t.TempDir(), name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		h.t.Fatal(err)
	}
	return path
}

func decode[T any](t *testing.T, data string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		t.Fatalf("decoding %q: %v", data, err)
	}
	return v
}

type fixture struct {
	room                       *testutil.Room
	create, join, first, reply *event.Event
}

func newFixture(t *testing.T) fixture {
	room := testutil.NewRoom(t, "!cli:example", "@u:example")
	f := fixture{room: room}
	f.create = room.Create()
	f.join = room.Member("@u:example", event.MembershipJoin, f.create)
	f.first = room.Message("@u:example", "first", f.join)
	f.reply = room.Message("@u:example", "reply", f.first)
	return f
}

func TestIngestAndRead(t *testing.T) {
	h := newHarness(t)
	f := newFixture(t)
	path := h.writeFixture("room.jsonc", f.create, f.join, f.first, f.reply)

	results := decode[[]ingestResult](t, h.mustRun("ingest", "--json", path))
	if len(results) != 4 {
		t.Fatalf("ingest results = %+v, want 4", results)
	}
	for i, result := range results {
		if result.Result != "set" || (i > 0 && result.Idx <= results[i-1].Idx) {
			t.Errorf("ingest result %d = %+v", i, result)
		}
	}

	again := decode[[]ingestResult](t, h.mustRun("ingest", "--json", path))
	if len(again) != len(results) {
		t.Fatalf("re-ingest results = %+v, want %d", again, len(results))
	}
	for i, result := range again {
		if result.Result != "duplicate" || result.Idx != results[i].Idx {
			t.Errorf("re-ingest result = %+v, want duplicate at idx %d", result, results[i].Idx)
		}
	}

	heads := decode[[]head](t, h.mustRun("heads", "--json", "!cli:example"))
	if len(heads) != 1 || heads[0].EventID != f.reply.EventID.String() {
		t.Errorf("heads = %+v, want [%s]", heads, f.reply.EventID)
	}

	timeline := decode[[]eventSummary](t, h.mustRun("timeline", "--json", "-t", "m.room.message", "!cli:example"))
	var ids []string
	for _, s := range timeline {
		ids = append(ids, s.EventID)
	}
	if want := []string{f.reply.EventID.String(), f.first.EventID.String()}; !slices.Equal(ids, want) {
		t.Errorf("message timeline = %v, want %v", ids, want)
	}

	filtered := decode[[]eventSummary](t, h.mustRun("timeline", "--json", "-f", "content.body=first", "!cli:example"))
	if len(filtered) != 1 || filtered[0].EventID != f.first.EventID.String() {
		t.Errorf("filtered timeline = %+v, want only the first message", filtered)
	}

	limited := decode[[]eventSummary](t, h.mustRun("timeline", "--json", "-n", "1", "!cli:example"))
	if len(limited) != 1 || limited[0].EventID != f.reply.EventID.String() {
		t.Errorf("timeline -n 1 = %+v, want the reply", limited)
	}

	state := decode[[]eventSummary](t, h.mustRun("state", "--json", "!cli:example"))
	if len(state) != 2 {
		t.Errorf("state = %+v, want create and member", state)
	}

	members := decode[[]member](t, h.mustRun("members", "--json", "--origin", "example", "!cli:example"))
	if len(members) != 1 || members[0].UserID != "@u:example" {
		t.Errorf("members = %+v, want @u:example", members)
	}

	if body := strings.TrimSpace(h.mustRun("get", "-p", "content.body", f.first.EventID.String())); body != "first" {
		t.Errorf("get -p content.body = %q, want first", body)
	}
	full := decode[map[string]any](t, h.mustRun("get", f.create.EventID.String()))
	if full["type"] != "m.room.create" {
		t.Errorf("get create = %v", full)
	}
}

func TestGetMissing(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(nil, "get", "$missing")
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Errorf("get of a missing event error = %v, want exit code 1", err)
	}
}

func TestIngestMalformed(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"type": "m.room.message"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := h.run(nil, "ingest", path)
	if !errors.Is(err, engine.ErrMalformed) {
		t.Errorf("ingest of a malformed event error = %v, want ErrMalformed", err)
	}
}

func TestMaintenance(t *testing.T) {
	h := newHarness(t)
	f := newFixture(t)
	h.mustRun("ingest", h.writeFixture("room.json", f.create, f.join, f.first))

	report := decode[map[string]any](t, h.mustRun("rebuild", "--json", "!cli:example"))
	if report["States"] != float64(2) || report["Messages"] != float64(1) {
		t.Errorf("rebuild report = %v", report)
	}

	h.mustRun("compact")

	metrics := h.mustRun("metrics")
	if !strings.Contains(metrics, "eventgraph_pebble_") {
		t.Errorf("metrics output lacks store metrics:\n%s", metrics)
	}
}

// fixedFetcher serves events by ID.
type fixedFetcher map[ref.EventID]*event.Event

func (f fixedFetcher) Fetch(_ context.Context, request federation.FetchRequest) ([]json.RawMessage, error) {
	ev, ok := f[request.EventID]
	if !ok {
		return nil, &federation.MatrixError{Code: federation.ErrCodeNotFound, StatusCode: 404, Server: request.Server}
	}
	data, err := event.MarshalJSON(ev)
	return []json.RawMessage{data}, err
}

func (fixedFetcher) FetchHead(context.Context, ref.RoomID, ref.ServerName) (federation.Head, error) {
	return federation.Head{}, errors.New("unsupported")
}

func TestAcquire(t *testing.T) {
	h := newHarness(t)
	f := newFixture(t)
	h.mustRun("ingest", h.writeFixture("room.json", f.create, f.join, f.reply))

	if _, err := h.run(nil, "acquire", "!cli:example"); !errors.Is(err, engine.ErrNoFederation) {
		t.Fatalf("acquire without federation error = %v, want ErrNoFederation", err)
	}

	options := []engine.Option{engine.WithFetcher(fixedFetcher{f.first.EventID: f.first})}
	out, err := h.run(options, "acquire", "--json", "!cli:example")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	fetches := decode[[]fetchSummary](t, out)
	if len(fetches) != 1 || fetches[0].State != "accepted" || fetches[0].EventID != f.first.EventID.String() {
		t.Errorf("acquire fetches = %+v, want the first message accepted", fetches)
	}
	if body := strings.TrimSpace(h.mustRun("get", "-p", "content.body", f.first.EventID.String())); body != "first" {
		t.Errorf("acquired event body = %q, want first", body)
	}
}

func TestArguments(t *testing.T) {
	h := newHarness(t)
	tests := [][]string{
		{"timeline"},
		{"heads", "not-a-room"},
		{"ingest"},
		{"compact", "extra"},
		{"timeline", "--log-level", "loud", "!r:example"},
	}
	for _, args := range tests {
		if _, err := h.run(nil, args...); err == nil {
			t.Errorf("eventgraph %v succeeded, want an error", args)
		}
	}
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	root := Root(context.Background(), cli.Output{Stdout: &stdout, Stderr: &stdout})
	if err := root.Execute([]string{"version", "--json"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	build := decode[map[string]any](t, stdout.String())
	if build["version"] == "" || build["go_version"] == "" {
		t.Errorf("version --json = %v", build)
	}
}
