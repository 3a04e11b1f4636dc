// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestBindFlags(t *testing.T) {
	type shared struct {
		Store string `flag:"store" desc:"store directory"`
	}
	type params struct {
		shared
		JSONOutput
		Type     string        `flag:"type,t" desc:"event type"`
		Limit    int           `flag:"limit,n" default:"50" desc:"limit"`
		Depth    int64         `flag:"depth" desc:"depth"`
		Rate     float64       `flag:"rate" default:"0.5" desc:"rate"`
		Timeout  time.Duration `flag:"timeout" default:"5s" desc:"timeout"`
		Servers  []string      `flag:"servers" desc:"servers"`
		Untagged string
	}

	var p params
	flagSet := FlagsFromParams("test", &p)
	if p.Limit != 50 || p.Timeout != 5*time.Second {
		t.Fatalf("after binding, limit %d timeout %v, want defaults 50 and 5s", p.Limit, p.Timeout)
	}
	err := flagSet.Parse([]string{"--store", "/tmp/db", "--json", "-t", "m.room.message", "--depth", "7", "--servers", "a.example,b.example"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Store != "/tmp/db" || !p.OutputJSON || p.Type != "m.room.message" || p.Depth != 7 {
		t.Errorf("parsed = %+v", p)
	}
	if p.Limit != 50 || p.Rate != 0.5 || p.Timeout != 5*time.Second {
		t.Errorf("defaults = limit %d rate %v timeout %v, want 50 0.5 5s", p.Limit, p.Rate, p.Timeout)
	}
	if len(p.Servers) != 2 || p.Servers[1] != "b.example" {
		t.Errorf("Servers = %v", p.Servers)
	}
}

type customFlags struct {
	value string
}

func (c *customFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.value, "custom", "x", "self-bound flag")
}

func TestBindFlags_FlagBinder(t *testing.T) {
	type params struct {
		Custom customFlags
	}
	var p params
	flagSet := FlagsFromParams("test", &p)
	if err := flagSet.Parse([]string{"--custom", "y"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Custom.value != "y" {
		t.Errorf("Custom.value = %q, want y", p.Custom.value)
	}
}

func TestBindFlags_Errors(t *testing.T) {
	type unsupported struct {
		Ch chan int `flag:"ch"`
	}
	type badDefault struct {
		N int `flag:"n" default:"many"`
	}
	tests := []struct {
		name   string
		params any
		want   string
	}{
		{"not a pointer", struct{}{}, "pointer to a struct"},
		{"unsupported type", &unsupported{}, "unsupported type"},
		{"bad default", &badDefault{}, "default for --n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := BindFlags(test.params, pflag.NewFlagSet("test", pflag.ContinueOnError))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("BindFlags error = %v, want it to contain %q", err, test.want)
			}
		})
	}
}

func TestEmitJSON(t *testing.T) {
	var stdout bytes.Buffer
	out := Output{Stdout: &stdout}

	var j JSONOutput
	if done, err := j.EmitJSON(out, []string{"a"}); done || err != nil {
		t.Fatalf("EmitJSON without --json = %v, %v", done, err)
	}

	j.OutputJSON = true
	var empty []string
	if done, err := j.EmitJSON(out, empty); !done || err != nil {
		t.Fatalf("EmitJSON with --json = %v, %v", done, err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "[]" {
		t.Errorf("EmitJSON(nil slice) wrote %q, want []", got)
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	if err != nil || level.String() != "DEBUG" {
		t.Errorf("ParseLevel(debug) = %v, %v", level, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) succeeded")
	}

	var buf bytes.Buffer
	NewLogger(&buf, level).Debug("probe", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"probe"`) {
		t.Errorf("non-terminal logger wrote %q, want JSON", buf.String())
	}
}
