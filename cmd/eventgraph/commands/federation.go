// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/eventgraph/cmd/eventgraph/cli"
	"github.com/bureau-foundation/eventgraph/lib/engine"
	"github.com/bureau-foundation/eventgraph/lib/frontier"
)

type federationParams struct {
	engineParams
	cli.JSONOutput
}

type fetchSummary struct {
	EventID  string `json:"event_id"`
	Remote   string `json:"remote"`
	Source   string `json:"source"`
	State    string `json:"state"`
	Ingested int    `json:"ingested"`
	Error    string `json:"error,omitempty"`
}

func acquireCommand(env *env) *cli.Command {
	var params federationParams
	return &cli.Command{
		Name:    "acquire",
		Summary: "Fetch events missing from a room's graph",
		Description: `Fetch events that stored events cite but the store lacks, and events
past the local heads that remote servers report, until a round finds
nothing to fetch or the configured round limit is reached.`,
		Usage: "eventgraph acquire [flags] <room-id>",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("acquire", &params) },
		Run: func(args []string) error {
			room, err := roomArg("acquire", args)
			if err != nil {
				return err
			}
			return env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				report, err := e.Acquire(env.ctx, room)
				if err != nil {
					return err
				}
				var fetches []fetchSummary
				for _, fetch := range report.Fetches {
					summary := fetchSummary{
						EventID:  fetch.EventID.String(),
						Remote:   fetch.Remote.String(),
						Source:   fetch.Source.String(),
						State:    fetch.State.String(),
						Ingested: fetch.Ingested,
					}
					if fetch.Err != nil {
						summary.Error = fetch.Err.Error()
					}
					fetches = append(fetches, summary)
				}
				if done, err := params.EmitJSON(env.out, fetches); done {
					return err
				}
				for _, fetch := range fetches {
					env.out.Printf("%s\t%s\t%s\t%s\t%d\n", fetch.EventID, fetch.Remote, fetch.Source, fetch.State, fetch.Ingested)
				}
				env.out.Printf("%d rounds, %d accepted, %d rejected, %d timed out, %d events ingested\n",
					report.Rounds, report.Count(frontier.Accepted), report.Count(frontier.Rejected),
					report.Count(frontier.TimedOut), report.Ingested())
				return nil
			})
		},
	}
}

type sendSummary struct {
	Remote        string `json:"remote"`
	TransactionID string `json:"transaction_id"`
	PDUs          int    `json:"pdus"`
	State         string `json:"state"`
	Refused       int    `json:"refused"`
	Error         string `json:"error,omitempty"`
}

func gossipCommand(env *env) *cli.Command {
	var params federationParams
	return &cli.Command{
		Name:    "gossip",
		Summary: "Push a room's recent events to remote servers",
		Usage:   "eventgraph gossip [flags] <room-id>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("gossip", &params) },
		Run: func(args []string) error {
			room, err := roomArg("gossip", args)
			if err != nil {
				return err
			}
			return env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				report, err := e.Gossip(env.ctx, room)
				if err != nil {
					return err
				}
				var sends []sendSummary
				for _, send := range report.Sends {
					summary := sendSummary{
						Remote:        send.Remote.String(),
						TransactionID: send.Transaction.ID,
						PDUs:          len(send.Transaction.PDUs),
						State:         send.State.String(),
						Refused:       send.Refused(),
					}
					if send.Err != nil {
						summary.Error = send.Err.Error()
					}
					sends = append(sends, summary)
				}
				if done, err := params.EmitJSON(env.out, sends); done {
					return err
				}
				for _, send := range sends {
					env.out.Printf("%s\t%s\t%d pdus\t%s\t%d refused\n", send.Remote, send.TransactionID, send.PDUs, send.State, send.Refused)
				}
				env.out.Printf("%d remotes, %d transactions, %d pdus\n", report.Remotes, len(report.Sends), report.PDUs())
				return nil
			})
		},
	}
}
