// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package federation is the boundary between the event graph and remote
// homeservers.
//
// The frontier tracker consumes two capabilities: [Fetcher] pulls
// candidate events (a single event, a backfill page, or a server's
// current head) and [Sender] pushes a transaction of PDUs to one remote.
// Neither interface retries; retry policy belongs to the caller's next
// round.
//
// [Client] implements both against the federation v1 HTTP paths:
//
//	GET /_matrix/federation/v1/event/{eventId}
//	GET /_matrix/federation/v1/backfill/{roomId}?v=&limit=
//	GET /_matrix/federation/v1/make_join/{roomId}/{userId}
//	PUT /_matrix/federation/v1/send/{txnId}
//
// Requests to each remote are rate limited independently. Request
// signing is delegated to a [RequestAuthorizer]; the client itself has
// no key material.
package federation
