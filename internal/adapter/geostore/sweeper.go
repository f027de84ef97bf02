package geostore

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/road-event-etl/internal/observability"
)

type expirer interface {
	DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error)
}

// Sweeper periodically deletes geometries whose event has ended, and
// open-ended geometries that have not been refreshed within staleAfter.
type Sweeper struct {
	store      expirer
	interval   time.Duration
	staleAfter time.Duration
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewSweeper creates a sweeper on the real clock.
func NewSweeper(store expirer, interval, staleAfter time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		interval:   interval,
		staleAfter: staleAfter,
		clock:      clockwork.NewRealClock(),
		metrics:    metrics,
		logger:     logger,
	}
}

// Run sweeps every interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_, _ = s.Sweep(ctx)
		}
	}
}

// Sweep runs one deletion pass and returns the number of rows removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	n, err := s.store.DeleteExpired(ctx, now, now.Add(-s.staleAfter))
	if err != nil {
		s.logger.Warn("geometry sweep failed", "error", err)
		return 0, err
	}
	s.metrics.GeometrySwept.Add(float64(n))
	if n > 0 {
		s.logger.Info("swept expired geometries", "deleted", n)
	}
	return n, nil
}
