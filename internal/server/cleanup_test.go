package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	calls   atomic.Int32
	removed int
	err     error
}

func (c *countingSweeper) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	c.calls.Add(1)
	return c.removed, c.err
}

func TestRunCleanup(t *testing.T) {
	sw := &countingSweeper{removed: 3}
	if got := runCleanup(context.Background(), CleanupConfig{MaxAge: time.Hour, Sweeper: sw}); got != 3 {
		t.Errorf("Expected 3 removed, got %d", got)
	}

	sw.err = errors.New("permission denied")
	sw.removed = 1
	if got := runCleanup(context.Background(), CleanupConfig{MaxAge: time.Hour, Sweeper: sw}); got != 1 {
		t.Errorf("Expected partial count 1 on error, got %d", got)
	}
}

func TestStartCleanupJob_RunsUntilCancelled(t *testing.T) {
	sw := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		StartCleanupJob(ctx, CleanupConfig{Interval: 10 * time.Millisecond, MaxAge: time.Minute, Sweeper: sw})
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sw.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup job did not stop after cancel")
	}
	if sw.calls.Load() < 3 {
		t.Errorf("Expected at least 3 sweeps, got %d", sw.calls.Load())
	}
}

func TestStartCleanupJob_Disabled(t *testing.T) {
	// Returns immediately without a sweeper.
	StartCleanupJob(context.Background(), CleanupConfig{Interval: time.Millisecond})
}
