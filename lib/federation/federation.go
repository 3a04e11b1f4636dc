// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"encoding/json"

	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// FetchRequest names what to pull from a remote. With a zero EventID the
// remote's current head is the starting point. A Limit above one asks
// for a backfill page ending at EventID instead of the single event.
type FetchRequest struct {
	Room    ref.RoomID
	EventID ref.EventID
	Server  ref.ServerName
	Limit   int
}

// Head is a remote server's view of a room's frontier, taken from the
// prev_events and depth of a join template it builds for us.
type Head struct {
	Events []ref.EventID
	Depth  int64
}

// Transaction is one push of PDUs to one destination.
type Transaction struct {
	ID             string            `json:"-"`
	Origin         ref.ServerName    `json:"origin"`
	Destination    ref.ServerName    `json:"-"`
	OriginServerTS int64             `json:"origin_server_ts"`
	PDUs           []json.RawMessage `json:"pdus"`
}

// PDUResult is the remote's verdict on one PDU of a transaction. An
// empty Error means the PDU was accepted.
type PDUResult struct {
	Error string `json:"error,omitempty"`
}

// Fetcher pulls candidate events from remotes. Responses are raw PDU
// bodies; validating them is the caller's job.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) ([]json.RawMessage, error)
	FetchHead(ctx context.Context, room ref.RoomID, server ref.ServerName) (Head, error)
}

// Sender pushes transactions to remotes.
type Sender interface {
	Send(ctx context.Context, transaction Transaction) (map[ref.EventID]PDUResult, error)
}
