package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is the presence store's stale-row reaper.
type Sweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

// Run sweeps once per interval until ctx is done. A failed pass is logged and
// retried on the next tick.
func Run(ctx context.Context, s Sweeper, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func() {
		n, err := s.SweepStale(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("presence sweep failed")
			}
			return
		}
		if n > 0 {
			logger.Info().Int("count", n).Msg("marked stale users offline")
		}
	}

	sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
