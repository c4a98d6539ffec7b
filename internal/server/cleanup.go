package server

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes upload temp files older than maxAge and reports how many
// it removed. *store.Local implements it.
type Sweeper interface {
	SweepStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// CleanupConfig holds configuration for the cleanup job
type CleanupConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
	Sweeper  Sweeper
}

// StartCleanupJob sweeps once immediately and then every Interval until ctx
// is done. It blocks; run it in its own goroutine.
func StartCleanupJob(ctx context.Context, cfg CleanupConfig) {
	if cfg.Sweeper == nil || cfg.Interval <= 0 {
		slog.Info("cleanup disabled")
		return
	}

	slog.Info("cleanup starting",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runCleanup(ctx, cfg)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup shutting down")
			return
		case <-ticker.C:
			runCleanup(ctx, cfg)
		}
	}
}

func runCleanup(ctx context.Context, cfg CleanupConfig) int {
	start := time.Now()

	removed, err := cfg.Sweeper.SweepStale(ctx, cfg.MaxAge)
	if err != nil {
		slog.Warn("cleanup run failed", slog.Int("removed", removed), slog.Any("error", err))
		return removed
	}

	slog.Info("cleanup complete",
		slog.Int("removed", removed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return removed
}
