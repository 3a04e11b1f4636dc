// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/eventgraph/cmd/eventgraph/cli"
	"github.com/bureau-foundation/eventgraph/lib/config"
	"github.com/bureau-foundation/eventgraph/lib/engine"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// engineParams are the flags every command that opens the store shares.
type engineParams struct {
	ConfigPath string `flag:"config,c" desc:"config file (default $EVENTGRAPH_CONFIG, else built-in defaults)"`
	StorePath  string `flag:"store" desc:"store directory, overriding store.path"`
	ServerName string `flag:"server-name" desc:"this server's name, overriding federation.server_name"`
	LogLevel   string `flag:"log-level" default:"warn" desc:"log level: debug, info, warn or error"`
}

func (p *engineParams) config() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case p.ConfigPath != "":
		cfg, err = config.LoadFile(p.ConfigPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if p.StorePath != "" {
		cfg.Store.Path = p.StorePath
		cfg.Store.InMemory = false
	}
	if p.ServerName != "" {
		cfg.Federation.ServerName = p.ServerName
	}
	return cfg, cfg.Validate()
}

// open loads the configuration and opens the engine. The caller closes it.
func (p *engineParams) open(env *env) (*engine.Engine, error) {
	cfg, err := p.config()
	if err != nil {
		return nil, err
	}
	level, err := cli.ParseLevel(p.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	logger := cli.NewLogger(env.out.Stderr, level)
	return engine.Open(cfg, logger, env.options...)
}

// withEngine opens the engine, runs fn and closes the engine, keeping
// fn's error when both fail.
func (env *env) withEngine(params *engineParams, fn func(*engine.Engine) error) (err error) {
	e, err := params.open(env)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.Close(); err == nil {
			err = closeErr
		}
	}()
	return fn(e)
}

func roomArg(command string, args []string) (ref.RoomID, error) {
	if len(args) != 1 {
		return ref.RoomID{}, fmt.Errorf("%s: expected one room ID argument, got %d", command, len(args))
	}
	return ref.ParseRoomID(args[0])
}
