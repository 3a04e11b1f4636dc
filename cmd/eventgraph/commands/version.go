// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/eventgraph/cmd/eventgraph/cli"
	"github.com/bureau-foundation/eventgraph/lib/version"
)

func versionCommand(env *env) *cli.Command {
	var params struct {
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "version",
		Summary: "Print build information",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(args []string) error {
			build := version.Read()
			if done, err := params.EmitJSON(env.out, build); done {
				return err
			}
			env.out.Printf("eventgraph %s\n  Go: %s\n  Platform: %s\n", build, build.GoVersion, build.Platform)
			return nil
		},
	}
}
