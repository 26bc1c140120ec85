// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package trainer

import (
	"context"
	"time"

	"github.com/shelfwise/shelfwise/internal/logging"
)

// Scheduler runs training on a fixed interval under suture supervision. A
// failed run is logged and waits for the next tick; the runner itself never
// retries.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
}

// NewScheduler creates an interval scheduler for the runner.
func NewScheduler(runner *Runner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, interval: interval}
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", s.interval).
		Msg("training scheduler started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("training scheduler stopped")
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.runner.Train(ctx, Options{}); err != nil {
				logging.Error().Err(err).Msg("scheduled training run failed")
			}
		}
	}
}

func (s *Scheduler) String() string {
	return "trainer-scheduler"
}
