// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the eventgraph command tree.
package commands

import (
	"context"

	"github.com/bureau-foundation/eventgraph/cmd/eventgraph/cli"
	"github.com/bureau-foundation/eventgraph/lib/engine"
)

// env is what every command closes over.
type env struct {
	ctx     context.Context
	out     cli.Output
	options []engine.Option
}

// Root returns the top-level eventgraph command. Long-running commands
// stop when ctx is cancelled. options are passed to every engine.Open.
func Root(ctx context.Context, out cli.Output, options ...engine.Option) *cli.Command {
	e := &env{ctx: ctx, out: out, options: options}
	return &cli.Command{
		Name:    "eventgraph",
		Summary: "Matrix event-graph store",
		Description: `eventgraph stores Matrix room events in an embedded key-value store and
maintains the indices needed to answer timeline, state, membership and
frontier queries. Federation commands fill gaps in the local graph from
remote servers and relay local events to them.`,
		Help: out.Stderr,
		Subcommands: []*cli.Command{
			ingestCommand(e),
			getCommand(e),
			timelineCommand(e),
			stateCommand(e),
			membersCommand(e),
			headsCommand(e),
			rebuildCommand(e),
			compactCommand(e),
			metricsCommand(e),
			acquireCommand(e),
			gossipCommand(e),
			versionCommand(e),
		},
	}
}
