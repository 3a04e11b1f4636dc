// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/eventgraph/cmd/eventgraph/cli"
	"github.com/bureau-foundation/eventgraph/lib/engine"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/query"
	"github.com/bureau-foundation/eventgraph/lib/ref"
	"github.com/bureau-foundation/eventgraph/lib/roomstate"
)

// eventSummary is one line of timeline or state output.
type eventSummary struct {
	Idx      uint64  `json:"idx"`
	EventID  string  `json:"event_id"`
	Type     string  `json:"type"`
	StateKey *string `json:"state_key,omitempty"`
	Sender   string  `json:"sender"`
	Depth    int64   `json:"depth"`
}

func summarize(idx event.Idx, ev *event.Event) eventSummary {
	return eventSummary{
		Idx:      uint64(idx),
		EventID:  ev.EventID.String(),
		Type:     string(ev.Type),
		StateKey: ev.StateKey,
		Sender:   ev.Sender.String(),
		Depth:    ev.Depth,
	}
}

func (env *env) printSummaries(summaries []eventSummary) {
	for _, s := range summaries {
		stateKey := ""
		if s.StateKey != nil {
			stateKey = fmt.Sprintf("%q", *s.StateKey)
		}
		env.out.Printf("%d\t%d\t%s\t%s\t%s\t%s\n", s.Idx, s.Depth, s.EventID, s.Type, stateKey, s.Sender)
	}
}

type getParams struct {
	engineParams
	Property string `flag:"property,p" desc:"print one property (e.g. content.body) instead of the event"`
}

func getCommand(env *env) *cli.Command {
	var params getParams
	return &cli.Command{
		Name:    "get",
		Summary: "Print a stored event",
		Usage:   "eventgraph get [flags] <event-id>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("get", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("get: expected one event ID argument, got %d", len(args))
			}
			eventID, err := ref.ParseEventID(args[0])
			if err != nil {
				return err
			}
			return env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				ev, idx, err := e.Event(eventID)
				if errors.Is(err, engine.ErrNotFound) {
					fmt.Fprintf(env.out.Stderr, "%s: not found\n", eventID)
					return &cli.ExitError{Code: 1}
				}
				if err != nil {
					return err
				}
				if params.Property != "" {
					value, err := e.Property(idx, params.Property)
					if err != nil {
						return err
					}
					env.out.Printf("%s\n", value)
					return nil
				}
				data, err := event.MarshalJSON(ev)
				if err != nil {
					return err
				}
				var indented bytes.Buffer
				if err := json.Indent(&indented, data, "", "  "); err != nil {
					return err
				}
				env.out.Printf("%s\n", indented.Bytes())
				return nil
			})
		},
	}
}

type timelineParams struct {
	engineParams
	cli.JSONOutput
	Type   string `flag:"type,t" desc:"only events of this type"`
	Filter string `flag:"filter,f" desc:"property filter, e.g. 'sender=@alice:example.org & content.msgtype!=m.notice'"`
	Limit  int    `flag:"limit,n" default:"50" desc:"maximum events to print (0 for all)"`
}

func timelineCommand(env *env) *cli.Command {
	var params timelineParams
	return &cli.Command{
		Name:    "timeline",
		Summary: "List a room's events, newest first",
		Usage:   "eventgraph timeline [flags] <room-id>",
		Examples: []cli.Example{
			{Description: "Last ten messages", Command: "eventgraph timeline -t m.room.message -n 10 '!room:example.org'"},
			{Description: "Events from one server", Command: "eventgraph timeline -f 'origin=example.org' '!room:example.org'"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("timeline", &params) },
		Run: func(args []string) error {
			room, err := roomArg("timeline", args)
			if err != nil {
				return err
			}
			q := engine.TimelineQuery{Room: room, Type: ref.EventType(params.Type), Limit: params.Limit}
			if params.Filter != "" {
				if q.Filter, err = query.Parse(params.Filter); err != nil {
					return fmt.Errorf("--filter: %w", err)
				}
			}

			var summaries []eventSummary
			err = env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				return e.Timeline(q, func(idx event.Idx, ev *event.Event) error {
					summaries = append(summaries, summarize(idx, ev))
					return nil
				})
			})
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.out, summaries); done {
				return err
			}
			env.printSummaries(summaries)
			return nil
		},
	}
}

type stateParams struct {
	engineParams
	cli.JSONOutput
	Type string `flag:"type,t" desc:"only state of this type"`
}

func stateCommand(env *env) *cli.Command {
	var params stateParams
	return &cli.Command{
		Name:    "state",
		Summary: "List a room's present state",
		Usage:   "eventgraph state [flags] <room-id>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("state", &params) },
		Run: func(args []string) error {
			room, err := roomArg("state", args)
			if err != nil {
				return err
			}
			var summaries []eventSummary
			err = env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				return e.State(room, ref.EventType(params.Type), func(_ roomstate.Slot, ev *event.Event) error {
					idx, err := e.Events().Index(ev.EventID)
					if err != nil {
						return err
					}
					summaries = append(summaries, summarize(idx, ev))
					return nil
				})
			})
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.out, summaries); done {
				return err
			}
			env.printSummaries(summaries)
			return nil
		},
	}
}

type membersParams struct {
	engineParams
	cli.JSONOutput
	Origin string `flag:"origin" desc:"only members on this server"`
}

type member struct {
	UserID string `json:"user_id"`
	Idx    uint64 `json:"idx"`
}

func membersCommand(env *env) *cli.Command {
	var params membersParams
	return &cli.Command{
		Name:    "members",
		Summary: "List a room's joined members by server",
		Usage:   "eventgraph members [flags] <room-id>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("members", &params) },
		Run: func(args []string) error {
			room, err := roomArg("members", args)
			if err != nil {
				return err
			}
			var origin ref.ServerName
			if params.Origin != "" {
				if origin, err = ref.ParseServerName(params.Origin); err != nil {
					return fmt.Errorf("--origin: %w", err)
				}
			}
			var members []member
			err = env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				return e.Members(room, origin, func(user ref.UserID, idx event.Idx) error {
					members = append(members, member{UserID: user.String(), Idx: uint64(idx)})
					return nil
				})
			})
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.out, members); done {
				return err
			}
			for _, m := range members {
				env.out.Printf("%s\t%d\n", m.UserID, m.Idx)
			}
			return nil
		},
	}
}

type headsParams struct {
	engineParams
	cli.JSONOutput
}

type head struct {
	EventID string `json:"event_id"`
	Idx     uint64 `json:"idx"`
}

func headsCommand(env *env) *cli.Command {
	var params headsParams
	return &cli.Command{
		Name:    "heads",
		Summary: "List a room's forward extremities",
		Usage:   "eventgraph heads [flags] <room-id>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("heads", &params) },
		Run: func(args []string) error {
			room, err := roomArg("heads", args)
			if err != nil {
				return err
			}
			var heads []head
			err = env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				found, err := e.Heads(room)
				for _, h := range found {
					heads = append(heads, head{EventID: h.EventID.String(), Idx: uint64(h.Idx)})
				}
				return err
			})
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.out, heads); done {
				return err
			}
			for _, h := range heads {
				env.out.Printf("%s\t%d\n", h.EventID, h.Idx)
			}
			return nil
		},
	}
}
