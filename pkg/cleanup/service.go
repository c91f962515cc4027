// Package cleanup runs the session idle-decay loop: sessions idle past the
// configured window lose their history and ephemeral context while the
// session row itself survives, so a returning client keeps its id and title.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/umami-labs/brigade/pkg/metrics"
	"github.com/umami-labs/brigade/pkg/store"
)

// Service periodically decays idle sessions. Decay is idempotent and safe
// to run from multiple replicas.
type Service struct {
	store       store.Store
	idleTimeout time.Duration
	interval    time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	// now is injectable for tests.
	now func() time.Time
}

// NewService creates a new cleanup service.
func NewService(st store.Store, idleTimeout, interval time.Duration) *Service {
	if st == nil {
		panic("cleanup.NewService: store must not be nil")
	}
	return &Service{
		store:       st,
		idleTimeout: idleTimeout,
		interval:    interval,
		now:         time.Now,
	}
}

// Start launches the background decay loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"idle_timeout", s.idleTimeout, "interval", s.interval)
}

// Stop signals the decay loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.DecayOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.DecayOnce(ctx)
		}
	}
}

// DecayOnce clears history and context of every session idle since before
// the cutoff. Returns the number of decayed sessions.
func (s *Service) DecayOnce(ctx context.Context) int {
	cutoff := s.now().Add(-s.idleTimeout)
	count, err := s.store.DecayIdleSessions(ctx, cutoff)
	if err != nil {
		slog.Error("Idle decay failed", "error", err)
		return 0
	}
	if count > 0 {
		metrics.DecayedSessions.Add(float64(count))
		slog.Info("Idle sessions decayed", "count", count, "cutoff", cutoff)
	}
	return count
}
