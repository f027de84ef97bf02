package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "road_events"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	CycleDuration   prometheus.Histogram
	LastCycleEvents prometheus.Gauge

	// Source feed metrics.
	SourceFetches       *prometheus.CounterVec   // labels: source, outcome={success,error}
	SourceFetchDuration *prometheus.HistogramVec // labels: source
	RecordsFetched      *prometheus.CounterVec   // labels: source

	// Normalization and dedup metrics.
	RecordsRejected *prometheus.CounterVec   // labels: source, reason={missing-coordinates,missing-corridor}
	LegacyFields    *prometheus.CounterVec   // labels: source, field
	UnknownFields   *prometheus.CounterVec   // labels: source
	FieldCoverage   *prometheus.GaugeVec     // labels: source
	EventQuality    *prometheus.HistogramVec // labels: source
	EventsMerged    prometheus.Counter
	EventsProduced  prometheus.Counter

	// Enrichment metrics.
	GeometryEnriched   *prometheus.CounterVec // labels: result={network,offset,unchanged}
	RoadnetRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	RoadnetCache       *prometheus.CounterVec // labels: result={hit,miss}
	RoadnetAPIDuration prometheus.Histogram
	RoadnetEnabled     prometheus.Gauge

	// Geometry store metrics.
	GeometryWrites *prometheus.CounterVec // labels: outcome={success,error,dropped}
	GeometrySwept  prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-dedupe-enrich cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		LastCycleEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_events",
			Help:      "Number of canonical events published by the last cycle.",
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source feed fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Source feed fetch duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"source"}),
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Raw records decoded from source feeds.",
		}, []string{"source"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Raw records dropped by validation, by source and reason.",
		}, []string{"source", "reason"}),
		LegacyFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_fields_total",
			Help:      "Canonical fields resolved from non-standard source field names.",
		}, []string{"source", "field"}),
		UnknownFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_fields_total",
			Help:      "Unrecognized source field observations.",
		}, []string{"source"}),
		FieldCoverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_coverage_ratio",
			Help:      "Share of canonical fields a source filled in the last cycle.",
		}, []string{"source"}),
		EventQuality: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_quality_score",
			Help:      "Quality score of normalized events, from 0 to 1.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}, []string{"source"}),
		EventsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_merged_total",
			Help:      "Events folded into another event by deduplication.",
		}),
		EventsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_produced_total",
			Help:      "Events written to the sink topic.",
		}),
		GeometryEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometry_enriched_total",
			Help:      "Enrichment results by geometry provenance.",
		}, []string{"result"}),
		RoadnetRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roadnet_requests_total",
			Help:      "Road network API requests by outcome.",
		}, []string{"outcome"}),
		RoadnetCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roadnet_cache_total",
			Help:      "Road network cache lookups by result.",
		}, []string{"result"}),
		RoadnetAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "roadnet_api_duration_seconds",
			Help:      "Road network API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RoadnetEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roadnet_enabled",
			Help:      "1 when road network matching is enabled, 0 otherwise.",
		}),
		GeometryWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometry_writes_total",
			Help:      "Geometry store writes by outcome.",
		}, []string{"outcome"}),
		GeometrySwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometry_swept_total",
			Help:      "Expired geometry rows deleted by the sweeper.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.CycleDuration,
		m.LastCycleEvents,
		m.SourceFetches,
		m.SourceFetchDuration,
		m.RecordsFetched,
		m.RecordsRejected,
		m.LegacyFields,
		m.UnknownFields,
		m.FieldCoverage,
		m.EventQuality,
		m.EventsMerged,
		m.EventsProduced,
		m.GeometryEnriched,
		m.RoadnetRequests,
		m.RoadnetCache,
		m.RoadnetAPIDuration,
		m.RoadnetEnabled,
		m.GeometryWrites,
		m.GeometrySwept,
	}
}
