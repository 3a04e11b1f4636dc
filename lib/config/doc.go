// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the event
// graph engine.
//
// Configuration is loaded from a single file specified by either the
// EVENTGRAPH_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. Values absent from
// the file keep the defaults from [Default].
//
// The file may carry development, staging and production sections that
// override base values when [Config].Environment matches. Production
// defaults to synchronous commits.
//
// Durations are written as Go duration strings ("30s", "5m") and parsed
// during loading, so a malformed duration fails the load rather than the
// first fetch that needs it. ${HOME}, ${EVENTGRAPH_ROOT} and
// ${VAR:-default} are expanded in the store path.
//
// Key exports:
//
//   - [Config] -- Store, Acquire, Gossip, Federation and Engine sections
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
