// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/eventgraph/cmd/eventgraph/cli"
	"github.com/bureau-foundation/eventgraph/lib/engine"
)

type rebuildParams struct {
	engineParams
	cli.JSONOutput
}

func rebuildCommand(env *env) *cli.Command {
	var params rebuildParams
	return &cli.Command{
		Name:    "rebuild",
		Summary: "Re-derive a room's state indices with authorization checks",
		Description: `Replay a room's state events oldest first, checking each against the
state before it, and drop the state entries of events that fail. Present
state and joined members are rebuilt from what remains.`,
		Usage: "eventgraph rebuild [flags] <room-id>",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("rebuild", &params) },
		Run: func(args []string) error {
			room, err := roomArg("rebuild", args)
			if err != nil {
				return err
			}
			return env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				report, err := e.Rebuild(env.ctx, room)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(env.out, report); done {
					return err
				}
				env.out.Printf("%s: %d messages, %d state events, %d rejected, %d deleted, %d unreadable\n",
					room, report.Messages, report.States, report.Rejected, report.Deleted, report.Unreadable)
				return nil
			})
		},
	}
}

type compactParams struct {
	engineParams
	Schedule bool `flag:"schedule" desc:"keep running, compacting on store.compaction_schedule until interrupted"`
}

func compactCommand(env *env) *cli.Command {
	var params compactParams
	return &cli.Command{
		Name:    "compact",
		Summary: "Compact the store",
		Usage:   "eventgraph compact [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("compact", &params) },
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("compact: unexpected arguments %q", args)
			}
			return env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				if !params.Schedule {
					return e.Compact()
				}
				err := e.RunCompaction(env.ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

type metricsParams struct {
	engineParams
}

func metricsCommand(env *env) *cli.Command {
	var params metricsParams
	return &cli.Command{
		Name:    "metrics",
		Summary: "Print store and engine metrics in Prometheus text format",
		Usage:   "eventgraph metrics [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("metrics", &params) },
		Run: func(args []string) error {
			return env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				families, err := e.Registry().Gather()
				if err != nil {
					return err
				}
				encoder := expfmt.NewEncoder(env.out.Stdout, expfmt.FmtText)
				for _, family := range families {
					if err := encoder.Encode(family); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
