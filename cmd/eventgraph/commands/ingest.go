// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/eventgraph/cmd/eventgraph/cli"
	"github.com/bureau-foundation/eventgraph/lib/engine"
	"github.com/bureau-foundation/eventgraph/lib/indexer"
)

type ingestParams struct {
	engineParams
	cli.JSONOutput
	Delete  bool   `flag:"delete" desc:"remove the events' index entries instead of writing them"`
	Indices string `flag:"indices" default:"all" desc:"indices to maintain, e.g. \"state\" or \"event_idx,room_events\""`
}

type ingestResult struct {
	File    string `json:"file"`
	EventID string `json:"event_id"`
	Idx     uint64 `json:"idx"`
	Result  string `json:"result"`
}

func ingestCommand(env *env) *cli.Command {
	var params ingestParams
	return &cli.Command{
		Name:    "ingest",
		Summary: "Write federation-format events into the store",
		Description: `Read events from files (or "-" for stdin) and index them in order.
Each file holds one PDU object or an array of them; comments and
trailing commas are allowed. Events already stored are reported as
duplicates and skipped.`,
		Usage: "eventgraph ingest [flags] <file>...",
		Examples: []cli.Example{
			{Description: "Load a room fixture", Command: "eventgraph ingest --store ./db room.jsonc"},
			{Description: "Index only room state", Command: "eventgraph ingest --indices state events.json"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("ingest", &params) },
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("ingest: at least one file is required")
			}
			appendix, err := indexer.ParseAppendix(params.Indices)
			if err != nil {
				return fmt.Errorf("--indices: %w", err)
			}
			options := indexer.Options{Op: indexer.OpSet, Appendix: appendix}
			if params.Delete {
				options.Op = indexer.OpDelete
			}

			var results []ingestResult
			err = env.withEngine(&params.engineParams, func(e *engine.Engine) error {
				for _, path := range args {
					pdus, err := readPDUs(path)
					if err != nil {
						return err
					}
					for i, pdu := range pdus {
						ev, idx, err := e.IngestJSON(env.ctx, pdu, options)
						result := ingestResult{File: path, Idx: uint64(idx), Result: options.Op.String()}
						if ev != nil {
							result.EventID = ev.EventID.String()
						}
						switch {
						case errors.Is(err, engine.ErrDuplicate):
							result.Result = "duplicate"
						case err != nil:
							return fmt.Errorf("%s: event %d: %w", path, i, err)
						}
						results = append(results, result)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(env.out, results); done {
				return err
			}
			for _, result := range results {
				env.out.Printf("%d\t%s\t%s\n", result.Idx, result.EventID, result.Result)
			}
			return nil
		},
	}
}

// readPDUs reads a JSONC file holding one PDU or an array of PDUs.
func readPDUs(path string) ([]json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(jsonc.ToJSON(data))
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] != '[' {
		return []json.RawMessage{data}, nil
	}
	var pdus []json.RawMessage
	if err := json.Unmarshal(data, &pdus); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pdus, nil
}
