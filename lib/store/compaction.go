// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/bureau-foundation/eventgraph/lib/clock"
)

// retryDelay is how long the scheduler waits after failing to compute
// the next cron tick.
const retryDelay = 30 * time.Second

// ValidateSchedule reports whether schedule is a cron expression the
// compaction scheduler accepts.
func ValidateSchedule(schedule string) error {
	if !gronx.IsValid(schedule) {
		return fmt.Errorf("invalid compaction schedule %q", schedule)
	}
	return nil
}

// RunCompaction compacts the database at every tick of the cron
// schedule until ctx is cancelled. A failed compaction is logged and the
// scheduler waits for the next tick. Returns ctx.Err() on cancellation.
func (d *DB) RunCompaction(ctx context.Context, schedule string, clk clock.Clock) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}
	d.logger.Info("compaction scheduler started", "schedule", schedule)

	for {
		now := clk.Now()
		next, err := gronx.NextTickAfter(schedule, now, false)
		wait := next.Sub(now)
		if err != nil {
			d.logger.Error("computing next compaction tick failed", "schedule", schedule, "error", err)
			wait = retryDelay
		}

		select {
		case <-ctx.Done():
			d.logger.Info("compaction scheduler stopping")
			return ctx.Err()
		case <-clk.After(wait):
		}
		if err != nil {
			continue
		}

		started := clk.Now()
		if err := d.Compact(); err != nil {
			d.logger.Error("scheduled compaction failed", "error", err)
			continue
		}
		d.logger.Info("scheduled compaction finished", "duration", clk.Now().Sub(started))
	}
}
