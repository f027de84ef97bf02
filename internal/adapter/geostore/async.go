package geostore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
)

const writeTimeout = 5 * time.Second

type upserter interface {
	Upsert(ctx context.Context, rec domain.GeometryRecord) error
}

// AsyncWriter queues geometry writes and applies them on a background
// goroutine. Record never blocks: when the queue is full the write is
// dropped and counted. Store errors are logged and never reach the caller.
type AsyncWriter struct {
	store   upserter
	queue   chan domain.GeometryRecord
	done    chan struct{}
	metrics *observability.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewAsyncWriter starts a writer with a queue of the given size.
func NewAsyncWriter(store upserter, buffer int, metrics *observability.Metrics, logger *slog.Logger) *AsyncWriter {
	if buffer < 1 {
		buffer = 1
	}
	w := &AsyncWriter{
		store:   store,
		queue:   make(chan domain.GeometryRecord, buffer),
		done:    make(chan struct{}),
		metrics: metrics,
		logger:  logger,
	}
	go w.run()
	return w
}

// Record enqueues rec. It is safe for concurrent use.
func (w *AsyncWriter) Record(_ context.Context, rec domain.GeometryRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.metrics.GeometryWrites.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case w.queue <- rec:
	default:
		w.metrics.GeometryWrites.WithLabelValues("dropped").Inc()
		w.logger.Warn("geometry write queue full, dropping write", "event_id", rec.EventID)
	}
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for rec := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.store.Upsert(ctx, rec)
		cancel()
		if err != nil {
			w.metrics.GeometryWrites.WithLabelValues("error").Inc()
			w.logger.Warn("geometry write failed", "event_id", rec.EventID, "error", err)
			continue
		}
		w.metrics.GeometryWrites.WithLabelValues("success").Inc()
	}
}

// Close stops accepting writes and waits for queued ones to finish.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}
