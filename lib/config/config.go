// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/eventgraph/lib/codec"
	"github.com/bureau-foundation/eventgraph/lib/keys"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "EVENTGRAPH_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the engine.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	Store      StoreConfig      `yaml:"store"`
	Acquire    AcquireConfig    `yaml:"acquire"`
	Gossip     GossipConfig     `yaml:"gossip"`
	Federation FederationConfig `yaml:"federation"`
	Engine     EngineConfig     `yaml:"engine"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that can differ per environment.
type Overrides struct {
	Store *StoreOverrides `yaml:"store,omitempty"`
}

// StoreOverrides are the store fields an environment may override.
type StoreOverrides struct {
	Path string `yaml:"path,omitempty"`
	Sync *bool  `yaml:"sync,omitempty"`
}

// StoreConfig configures the pebble database.
type StoreConfig struct {
	// Path is the database directory.
	Path string `yaml:"path"`

	// InMemory keeps the database in memory; Path is ignored.
	InMemory bool `yaml:"in_memory"`

	// ColumnCacheSizes assigns block cache bytes per column name.
	// Columns not listed get DefaultColumnCacheSize. The database uses
	// one shared cache sized to the sum.
	ColumnCacheSizes map[string]int64 `yaml:"column_cache_sizes"`

	// DefaultColumnCacheSize is the cache share of unlisted columns.
	DefaultColumnCacheSize int64 `yaml:"default_column_cache_size"`

	// BloomBitsPerKey sets bloom filter density; 0 disables filters.
	BloomBitsPerKey int `yaml:"bloom_bits_per_key"`

	// Sync waits for the WAL to reach stable storage on every commit.
	Sync bool `yaml:"sync"`

	// Compression is the event body compression: "zstd", "lz4" or
	// "none".
	Compression string `yaml:"compression"`

	// CompactionSchedule is a cron expression; empty disables
	// scheduled compaction.
	CompactionSchedule string `yaml:"compaction_schedule"`
}

// AcquireConfig bounds the backfill and head fetch loops.
type AcquireConfig struct {
	// Width is the maximum number of outstanding fetches.
	Width int `yaml:"width"`

	// Viewport skips missing events whose citing event lies more than
	// this many depth units below the room's head. 0 disables the bound.
	Viewport int64 `yaml:"viewport"`

	// Rounds is the number of fetch rounds per acquire run.
	Rounds int `yaml:"rounds"`

	// Timeout bounds each fetch.
	Timeout Duration `yaml:"timeout"`

	// HeadDepthLowerBound discards remote heads shallower than this.
	HeadDepthLowerBound int64 `yaml:"head_depth_lower_bound"`

	// BackfillLimit is the number of events requested per backfill.
	BackfillLimit int `yaml:"backfill_limit"`
}

// GossipConfig bounds the gossip loop.
type GossipConfig struct {
	// Width is the maximum number of outstanding sends.
	Width int `yaml:"width"`

	// FanOut bounds how many referencing events are collected per head.
	FanOut int `yaml:"fan_out"`

	// BatchSize bounds the PDUs in one transaction.
	BatchSize int `yaml:"batch_size"`

	// ShortPoll is the completion poll interval below Width.
	ShortPoll Duration `yaml:"short_poll"`

	// LongPoll is the completion poll interval at Width.
	LongPoll Duration `yaml:"long_poll"`

	// Timeout bounds each send.
	Timeout Duration `yaml:"timeout"`
}

// FederationConfig configures the HTTP federation client.
type FederationConfig struct {
	// ServerName is this server's Matrix name.
	ServerName string `yaml:"server_name"`

	// RequestsPerSecond and Burst rate-limit requests per remote.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// Timeout bounds each HTTP request.
	Timeout Duration `yaml:"timeout"`
}

// EngineConfig configures the engine itself.
type EngineConfig struct {
	// LockStripes is the number of per-room ingest locks.
	LockStripes int `yaml:"lock_stripes"`

	// LookupWidth bounds the goroutines of one batched property lookup.
	LookupWidth int `yaml:"lookup_width"`

	// BodyCacheEntries sizes the decoded event body cache; 0 disables it.
	BodyCacheEntries int `yaml:"body_cache_entries"`
}

// Default returns the default configuration. Loading starts from these
// values so that a config file only needs to name what it changes.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Store: StoreConfig{
			Path:                   filepath.Join(homeDir, ".cache", "eventgraph", "db"),
			ColumnCacheSizes:       map[string]int64{"event_json": 64 << 20, "room_events": 16 << 20},
			DefaultColumnCacheSize: 4 << 20,
			BloomBitsPerKey:        10,
			Compression:            "zstd",
			CompactionSchedule:     "0 3 * * *",
		},
		Acquire: AcquireConfig{
			Width:               8,
			Viewport:            512,
			Rounds:              4,
			Timeout:             Duration(10 * time.Second),
			HeadDepthLowerBound: 0,
			BackfillLimit:       64,
		},
		Gossip: GossipConfig{
			Width:     4,
			FanOut:    8,
			BatchSize: 16,
			ShortPoll: Duration(50 * time.Millisecond),
			LongPoll:  Duration(2 * time.Second),
			Timeout:   Duration(15 * time.Second),
		},
		Federation: FederationConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Timeout:           Duration(20 * time.Second),
		},
		Engine: EngineConfig{
			LockStripes:      64,
			LookupWidth:      8,
			BodyCacheEntries: 4096,
		},
	}
}

// Load loads configuration from the file named by EVENTGRAPH_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your eventgraph.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies the
// environment overrides, expands path variables and validates the
// result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			sync := true
			overrides = &Overrides{Store: &StoreOverrides{Sync: &sync}}
		}
	}
	if overrides == nil || overrides.Store == nil {
		return
	}
	if overrides.Store.Path != "" {
		c.Store.Path = overrides.Store.Path
	}
	if overrides.Store.Sync != nil {
		c.Store.Sync = *overrides.Store.Sync
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in the store path.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"EVENTGRAPH_ROOT": os.Getenv("EVENTGRAPH_ROOT"),
	}
	c.Store.Path = expandVars(c.Store.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required unless store.in_memory is set"))
	}
	for name := range c.Store.ColumnCacheSizes {
		if _, err := keys.ParseColumn(name); err != nil {
			errs = append(errs, fmt.Errorf("store.column_cache_sizes: %w", err))
		}
	}
	if _, err := codec.ParseCompressionTag(c.Store.Compression); err != nil {
		errs = append(errs, fmt.Errorf("store.compression: %w", err))
	}
	if c.Store.CompactionSchedule != "" && !gronx.IsValid(c.Store.CompactionSchedule) {
		errs = append(errs, fmt.Errorf("store.compaction_schedule: invalid cron expression %q", c.Store.CompactionSchedule))
	}
	if c.Acquire.Width < 1 {
		errs = append(errs, errors.New("acquire.width must be at least 1"))
	}
	if c.Acquire.Rounds < 1 {
		errs = append(errs, errors.New("acquire.rounds must be at least 1"))
	}
	if c.Acquire.Timeout <= 0 {
		errs = append(errs, errors.New("acquire.timeout must be positive"))
	}
	if c.Gossip.Width < 1 {
		errs = append(errs, errors.New("gossip.width must be at least 1"))
	}
	if c.Gossip.ShortPoll <= 0 || c.Gossip.LongPoll < c.Gossip.ShortPoll {
		errs = append(errs, errors.New("gossip.short_poll must be positive and no longer than gossip.long_poll"))
	}
	if c.Engine.LockStripes < 1 {
		errs = append(errs, errors.New("engine.lock_stripes must be at least 1"))
	}
	if c.Federation.ServerName != "" {
		if _, err := ref.ParseServerName(c.Federation.ServerName); err != nil {
			errs = append(errs, fmt.Errorf("federation.server_name: %w", err))
		}
	}

	return errors.Join(errs...)
}

// TotalCacheSize sums the per-column cache shares.
func (c *Config) TotalCacheSize() int64 {
	var total int64
	for _, column := range keys.Columns() {
		size, ok := c.Store.ColumnCacheSizes[column.String()]
		if !ok {
			size = c.Store.DefaultColumnCacheSize
		}
		total += size
	}
	return total
}
