// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/eventgraph/lib/clock"
	"github.com/bureau-foundation/eventgraph/lib/event"
	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// FetchState is the lifecycle of one remote request. A request starts
// Idle, becomes Fetching when dispatched, and ends in exactly one of
// Accepted, Rejected or TimedOut.
type FetchState uint8

const (
	Idle FetchState = iota
	Fetching
	Accepted
	Rejected
	TimedOut
)

func (s FetchState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("fetch_state(%d)", uint8(s))
	}
}

// Terminal reports whether s is a final state.
func (s FetchState) Terminal() bool { return s >= Accepted }

// Source says why a fetch was scheduled.
type Source uint8

const (
	// SourceMissing: the event is cited but not known locally.
	SourceMissing Source = iota + 1
	// SourceHead: the event is a remote origin's current head.
	SourceHead
)

func (s Source) String() string {
	switch s {
	case SourceMissing:
		return "missing"
	case SourceHead:
		return "head"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Fetch records one request for one event from one remote.
type Fetch struct {
	Room    ref.RoomID
	EventID ref.EventID
	Remote  ref.ServerName
	Source  Source

	// Depth is the depth the event is expected near: one below the
	// citing event for missing events, the reported head depth for heads.
	Depth int64

	State    FetchState
	Started  time.Time
	Finished time.Time

	// Ingested counts events of the response written to the store,
	// including backfilled events other than EventID.
	Ingested int

	// Err is the reason for Rejected and TimedOut.
	Err error
}

// ErrRejected marks a remote failure or a candidate that failed
// validation. Use errors.As with *RejectedError for the reason.
var ErrRejected = errors.New("candidate rejected")

// RejectedError says why a fetch produced nothing usable.
type RejectedError struct {
	EventID ref.EventID
	Remote  ref.ServerName
	Reason  string
	Err     error
}

func (e *RejectedError) Error() string {
	message := fmt.Sprintf("%s from %s rejected: %s", e.EventID, e.Remote, e.Reason)
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *RejectedError) Unwrap() error { return e.Err }

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// ErrTimedOut marks a request abandoned after its timeout.
var ErrTimedOut = errors.New("request timed out")

// Verifier checks that a candidate event is authentic: that its ID
// matches its content and, where keys are available, that its
// signatures hold.
type Verifier interface {
	VerifyEvent(ctx context.Context, ev *event.Event) error
}

// ReferenceHashVerifier accepts events whose ID is the reference hash
// of their content. It checks no signatures.
type ReferenceHashVerifier struct{}

// VerifyEvent implements Verifier.
func (ReferenceHashVerifier) VerifyEvent(_ context.Context, ev *event.Event) error {
	return event.VerifyEventID(ev)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, ev *event.Event) error

// VerifyEvent implements Verifier.
func (f VerifierFunc) VerifyEvent(ctx context.Context, ev *event.Event) error { return f(ctx, ev) }

// validate parses one PDU and applies the structural and authenticity
// checks. Every failure is a *RejectedError.
func validate(ctx context.Context, verifier Verifier, raw []byte, remote ref.ServerName) (*event.Event, error) {
	ev, err := event.ParseJSON(raw)
	if err != nil {
		return nil, &RejectedError{Remote: remote, Reason: "unparseable pdu", Err: err}
	}
	if err := event.Conforms(ev).Err(ev); err != nil {
		return nil, &RejectedError{EventID: ev.EventID, Remote: remote, Reason: "does not conform", Err: err}
	}
	if err := verifier.VerifyEvent(ctx, ev); err != nil {
		return nil, &RejectedError{EventID: ev.EventID, Remote: remote, Reason: "verification failed", Err: err}
	}
	return ev, nil
}

// withTimeout runs fn under a context that is cancelled when timeout
// elapses on clk. It reports ErrTimedOut when the deadline won, and the
// parent's error when the parent was cancelled first. A non-positive
// timeout means none.
func withTimeout(ctx context.Context, clk clock.Clock, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		return err
	case <-clk.After(timeout):
		cancel()
		return ErrTimedOut
	case <-ctx.Done():
		return ctx.Err()
	}
}
