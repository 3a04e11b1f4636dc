// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the eventgraph binary.
//
// [Version], [GitCommit] and [BuildTime] may be injected with
// -ldflags -X. When they are not, [Read] falls back to the VCS stamps
// the Go toolchain embeds (vcs.revision, vcs.time, vcs.modified).
package version
