// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontier

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/eventgraph/lib/clock"
	"github.com/bureau-foundation/eventgraph/lib/federation"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/store"
)

// remoteOrigins lists the joined origins of room other than self.
func remoteOrigins(reader store.Reader, room ref.RoomID, self ref.ServerName) ([]ref.ServerName, error) {
	var origins []ref.ServerName
	err := Origins(reader, room, func(server ref.ServerName) error {
		if server != self {
			origins = append(origins, server)
		}
		return nil
	})
	return origins, err
}

// headPoller asks remotes for their view of a room's head.
type headPoller struct {
	fetcher federation.Fetcher
	clock   clock.Clock
	timeout time.Duration
	width   int
	logger  *slog.Logger
}

// poll fetches the head of each origin with at most width requests
// outstanding. A failed origin gets a zero Head; only cancellation is
// returned as an error.
func (p headPoller) poll(ctx context.Context, room ref.RoomID, origins []ref.ServerName) ([]federation.Head, error) {
	heads := make([]federation.Head, len(origins))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(p.width, 1))
	for i, origin := range origins {
		group.Go(func() error {
			var head federation.Head
			err := withTimeout(groupCtx, p.clock, p.timeout, func(ctx context.Context) error {
				var err error
				head, err = p.fetcher.FetchHead(ctx, room, origin)
				return err
			})
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger.Warn("fetching remote head failed",
					"room_id", room.String(),
					"remote", origin.String(),
					"error", err,
				)
				return nil
			}
			heads[i] = head
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return heads, nil
}
