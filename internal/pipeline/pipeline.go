package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
)

// Source fetches the current records of one upstream feed.
type Source interface {
	Name() string
	Meta() domain.SourceMeta
	Fetch(ctx context.Context) ([]domain.RawRecord, error)
}

// timeoutSource is implemented by sources that carry their own fetch
// deadline. The larger of it and Config.SourceTimeout applies.
type timeoutSource interface {
	Timeout() time.Duration
}

// Enricher refines event geometry for a whole cycle.
type Enricher interface {
	EnrichBatch(ctx context.Context, events []domain.Event) []domain.Event
}

// BatchLoader writes the events of a cycle to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.Event) error
}

// Config controls cycle timing and load retries.
type Config struct {
	Interval      time.Duration // time between cycle starts
	SourceTimeout time.Duration // fetch deadline; a source's own longer Timeout wins
	LoadAttempts  int
	LoadBackoff   time.Duration // first wait between load attempts, doubled up to 5s
}

// CycleStats summarizes one completed cycle.
type CycleStats struct {
	Sources       int
	FailedSources int
	Fetched       int
	Rejected      int
	Merged        int
	Events        int
	Duration      time.Duration
}

// Snapshot is the published result of the latest completed cycle. It is
// shared between readers and must not be modified.
type Snapshot struct {
	Events    []domain.Event
	Stats     CycleStats
	Legacy    []domain.NoteCount
	Unknown   []domain.NoteCount
	Coverage  []domain.SourceCoverage
	UpdatedAt time.Time
}

// Pipeline orchestrates the fetch-normalize-dedupe-enrich-load cycle.
type Pipeline struct {
	sources    []Source
	normalizer *domain.Normalizer
	enricher   Enricher    // nil skips enrichment
	loader     BatchLoader // nil skips loading
	cfg        Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
	snapshot   atomic.Pointer[Snapshot]
}

// New creates a Pipeline with the given stages and observability.
func New(sources []Source, n *domain.Normalizer, e Enricher, l BatchLoader, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if n == nil {
		n = domain.NewNormalizer(nil)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 20 * time.Second
	}
	if cfg.LoadAttempts <= 0 {
		cfg.LoadAttempts = 3
	}
	if cfg.LoadBackoff <= 0 {
		cfg.LoadBackoff = 200 * time.Millisecond
	}
	return &Pipeline{
		sources:    sources,
		normalizer: n,
		enricher:   e,
		loader:     l,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once the first cycle has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a cycle yet")
	}
	return nil
}

// Ready reports whether a cycle has completed.
func (p *Pipeline) Ready() bool { return p.ready.Load() }

// Snapshot returns the latest published cycle, or nil before the first one.
func (p *Pipeline) Snapshot() *Snapshot { return p.snapshot.Load() }

// Events returns the events of the latest cycle and when it was published.
func (p *Pipeline) Events() ([]domain.Event, time.Time) {
	s := p.snapshot.Load()
	if s == nil {
		return nil, time.Time{}
	}
	return s.Events, s.UpdatedAt
}

// Run executes a cycle immediately and then on every interval until the
// context is cancelled. A cycle still in flight when the next tick fires
// delays it; cycles never overlap.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "sources", len(p.sources), "interval", p.cfg.Interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunCycle(ctx); err != nil {
			p.logger.Info("pipeline stopping", "reason", err)
			return nil
		}
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle performs one full cycle and publishes its snapshot. Source,
// enrichment, and load failures are logged and counted; the only error
// returned is the context's when it ends mid-cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleStats, error) {
	start := time.Now()
	stats := CycleStats{Sources: len(p.sources)}

	batches := p.fetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	notes := domain.NewFieldNotes()
	normalizer := p.normalizer.WithNotes(notes)
	var events []domain.Event
	for i, src := range p.sources {
		b := batches[i]
		if b.err != nil {
			stats.FailedSources++
			continue
		}
		stats.Fetched += len(b.records)
		ok, rejected := p.normalize(normalizer, src.Meta(), b.records)
		events = append(events, ok...)
		stats.Rejected += rejected
	}
	p.recordNotes(notes)

	merged := domain.Deduplicate(events)
	stats.Merged = len(events) - len(merged)
	p.metrics.EventsMerged.Add(float64(stats.Merged))

	if p.enricher != nil {
		merged = p.enricher.EnrichBatch(ctx, merged)
		p.countEnrichment(merged)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	stats.Events = len(merged)
	stats.Duration = time.Since(start)
	p.snapshot.Store(&Snapshot{
		Events:    merged,
		Stats:     stats,
		Legacy:    notes.Legacy(),
		Unknown:   notes.Unknown(),
		Coverage:  notes.Coverage(),
		UpdatedAt: time.Now().UTC(),
	})

	if p.loader != nil && len(merged) > 0 {
		if err := p.load(ctx, merged); err != nil {
			p.logger.Error("load batch failed", "error", err, "batch_size", len(merged))
		} else {
			p.metrics.EventsProduced.Add(float64(len(merged)))
		}
	}

	p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	p.metrics.LastCycleEvents.Set(float64(stats.Events))
	p.ready.Store(true)
	p.logger.Info("cycle complete",
		"sources", stats.Sources,
		"failed_sources", stats.FailedSources,
		"fetched", stats.Fetched,
		"rejected", stats.Rejected,
		"merged", stats.Merged,
		"events", stats.Events,
		"duration", time.Since(start),
	)
	return stats, nil
}

type fetchResult struct {
	records []domain.RawRecord
	err     error
}

// fetchAll fetches every source concurrently. Results keep source order so
// merging stays deterministic.
func (p *Pipeline) fetchAll(ctx context.Context) []fetchResult {
	results := make([]fetchResult, len(p.sources))
	var g errgroup.Group
	for i, src := range p.sources {
		g.Go(func() error {
			results[i] = p.fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) fetch(ctx context.Context, src Source) fetchResult {
	name := src.Name()
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout(src))
	defer cancel()

	start := time.Now()
	records, err := src.Fetch(ctx)
	p.metrics.SourceFetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.SourceFetches.WithLabelValues(name, "error").Inc()
		p.logger.Warn("source fetch failed", "source", name, "error", err)
		return fetchResult{err: err}
	}
	p.metrics.SourceFetches.WithLabelValues(name, "success").Inc()
	p.metrics.RecordsFetched.WithLabelValues(name).Add(float64(len(records)))
	return fetchResult{records: records}
}

func (p *Pipeline) fetchTimeout(src Source) time.Duration {
	if ts, ok := src.(timeoutSource); ok {
		return max(p.cfg.SourceTimeout, ts.Timeout())
	}
	return p.cfg.SourceTimeout
}

// normalize converts one source's records, skipping rejected ones.
func (p *Pipeline) normalize(n *domain.Normalizer, meta domain.SourceMeta, records []domain.RawRecord) ([]domain.Event, int) {
	out := make([]domain.Event, 0, len(records))
	rejected := 0
	for _, rec := range records {
		ev, err := n.Normalize(rec, meta)
		if err != nil {
			rejected++
			reason := "invalid"
			var rej *domain.RejectedError
			if errors.As(err, &rej) {
				reason = rej.Reason.Error()
			}
			p.metrics.RecordsRejected.WithLabelValues(meta.Name, reason).Inc()
			p.logger.Debug("record rejected", "source", meta.Name, "error", err)
			continue
		}
		p.metrics.EventQuality.WithLabelValues(meta.Name).Observe(ev.Quality)
		out = append(out, ev)
	}
	if rejected > 0 {
		p.logger.Warn("records rejected", "source", meta.Name, "rejected", rejected, "total", len(records))
	}
	return out, rejected
}

func (p *Pipeline) recordNotes(notes *domain.FieldNotes) {
	for _, n := range notes.Legacy() {
		p.metrics.LegacyFields.WithLabelValues(n.Source, string(n.Field)).Add(float64(n.Count))
		p.logger.Info("legacy field in use", "source", n.Source, "field", n.Field, "name", n.Name, "count", n.Count)
	}
	for _, n := range notes.Unknown() {
		p.metrics.UnknownFields.WithLabelValues(n.Source).Add(float64(n.Count))
		p.logger.Debug("unrecognized field", "source", n.Source, "key", n.Name, "count", n.Count)
	}
	for _, c := range notes.Coverage() {
		p.metrics.FieldCoverage.WithLabelValues(c.Source).Set(c.Coverage)
		p.logger.Info("field coverage",
			"source", c.Source,
			"records", c.Records,
			"coverage", c.Coverage,
			"missing", c.Missing,
			"unmapped", len(c.Unmapped),
		)
	}
}

func (p *Pipeline) countEnrichment(events []domain.Event) {
	for _, ev := range events {
		result := "network"
		switch ev.GeometrySource {
		case domain.GeometrySourceOffset:
			result = "offset"
		case "", domain.GeometrySourceFeed:
			result = "unchanged"
		}
		p.metrics.GeometryEnriched.WithLabelValues(result).Inc()
	}
}

// load writes the batch, retrying with exponential backoff.
func (p *Pipeline) load(ctx context.Context, events []domain.Event) error {
	backoff := p.cfg.LoadBackoff
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 1; attempt <= p.cfg.LoadAttempts; attempt++ {
		if err = p.loader.LoadBatch(ctx, events); err == nil {
			return nil
		}
		if attempt == p.cfg.LoadAttempts {
			break
		}
		p.logger.Warn("load attempt failed", "attempt", attempt, "error", err)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
	return err
}
