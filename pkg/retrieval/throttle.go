package retrieval

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const slowAcquireThreshold = 50 * time.Millisecond

// Throttle caps concurrent embedding computations process-wide. Queue depth
// and cumulative wait time are observable counters.
type Throttle struct {
	sem *semaphore.Weighted

	queueDepth  atomic.Int64
	acquires    atomic.Int64
	slowWaits   atomic.Int64
	totalWaitNs atomic.Int64
}

// NewThrottle builds a throttle allowing permits concurrent computations.
func NewThrottle(permits int64) *Throttle {
	return &Throttle{sem: semaphore.NewWeighted(permits)}
}

// Acquire blocks until a permit is available or ctx is done. Waits longer
// than 50 ms are logged.
func (t *Throttle) Acquire(ctx context.Context) error {
	t.queueDepth.Add(1)
	start := time.Now()

	err := t.sem.Acquire(ctx, 1)

	wait := time.Since(start)
	t.queueDepth.Add(-1)
	t.totalWaitNs.Add(int64(wait))
	if err != nil {
		return err
	}

	t.acquires.Add(1)
	if wait > slowAcquireThreshold {
		t.slowWaits.Add(1)
		slog.Warn("Slow embedding permit acquire", "wait", wait, "queue_depth", t.queueDepth.Load())
	}
	return nil
}

// Release returns a permit.
func (t *Throttle) Release() {
	t.sem.Release(1)
}

// Stats is a point-in-time snapshot of the throttle counters.
type Stats struct {
	QueueDepth int64
	Acquires   int64
	SlowWaits  int64
	TotalWait  time.Duration
}

// Snapshot reads the observable counters.
func (t *Throttle) Snapshot() Stats {
	return Stats{
		QueueDepth: t.queueDepth.Load(),
		Acquires:   t.acquires.Load(),
		SlowWaits:  t.slowWaits.Load(),
		TotalWait:  time.Duration(t.totalWaitNs.Load()),
	}
}
