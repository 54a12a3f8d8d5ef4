package core

// scheduler.go runs periodic maintenance for stored results.
//
// Each sweep:
//  1. Drops runs older than ResultTTL so their output can no longer be
//     downloaded and their memory is released
//  2. Purges history records older than HistoryRetention, if set
//
// The sweeper logs failures and keeps running; it stops when ctx is done.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when StartResultSweeper gets a non-positive interval.
const DefaultSweepInterval = time.Minute

// StartResultSweeper sweeps immediately and then every interval until ctx
// is cancelled. It blocks; run it in its own goroutine.
func (s *Service) StartResultSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("result sweeper started",
		"interval", interval,
		"result_ttl", s.cfg.ResultTTL,
		"history_retention", s.cfg.HistoryRetention,
	)

	s.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("result sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs one expiry and purge cycle.
func (s *Service) sweep(ctx context.Context) {
	start := time.Now()

	expired := s.expireResults(s.now().Add(-s.cfg.ResultTTL))
	if expired > 0 {
		slog.Info("expired run results", "runs_expired", expired)
	}

	if s.cfg.HistoryRetention > 0 {
		purged, err := s.history.Purge(ctx, s.now().Add(-s.cfg.HistoryRetention))
		if err != nil {
			slog.Error("history purge failed", "error", err)
		} else if purged > 0 {
			slog.Info("purged run history", "entries_purged", purged)
		}
	}

	slog.Debug("sweep completed", "duration_ms", time.Since(start).Milliseconds())
}

// expireResults removes runs created before cutoff and returns how many.
func (s *Service) expireResults(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, run := range s.runs {
		if run.CreatedAt.Before(cutoff) {
			delete(s.runs, id)
			expired++
		}
	}
	return expired
}
