package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/road-event-etl/internal/adapter/feeds"
	"github.com/couchcryptid/road-event-etl/internal/adapter/geostore"
	"github.com/couchcryptid/road-event-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/road-event-etl/internal/adapter/kafka"
	"github.com/couchcryptid/road-event-etl/internal/adapter/roadnet"
	"github.com/couchcryptid/road-event-etl/internal/config"
	"github.com/couchcryptid/road-event-etl/internal/domain"
	"github.com/couchcryptid/road-event-etl/internal/observability"
	"github.com/couchcryptid/road-event-etl/internal/pipeline"
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := feeds.LoadCatalog(cfg.FeedsConfig)
	if err != nil {
		logger.Error("failed to load feed catalog", "path", cfg.FeedsConfig, "error", err)
		os.Exit(1)
	}
	httpSources := feeds.NewSources(catalog, logger)
	sources := make([]pipeline.Source, len(httpSources))
	for i, s := range httpSources {
		sources[i] = s
	}
	logger.Info("feed catalog loaded", "path", cfg.FeedsConfig, "sources", len(sources))

	store, err := geostore.Open(ctx, cfg.GeometryStoreDriver, cfg.GeometryStoreDSN)
	if err != nil {
		logger.Error("failed to open geometry store", "driver", cfg.GeometryStoreDriver, "error", err)
		os.Exit(1)
	}
	recorder := geostore.NewAsyncWriter(store, cfg.GeometryWriteBuffer, metrics, logger)
	sweeper := geostore.NewSweeper(store, cfg.GeometrySweepInterval, cfg.GeometryStaleAfter, metrics, logger)

	// Road-network matching is feature-flagged via ROADNET_URL; offsets apply either way.
	var network domain.RoadNetwork
	if cfg.RoadnetEnabled() {
		client := roadnet.NewClient(cfg.RoadnetName, cfg.RoadnetURL, roadnet.FieldMap{
			RouteNumber: cfg.RoadnetRouteNumberField,
			RoutePrefix: cfg.RoadnetRoutePrefixField,
			Direction:   cfg.RoadnetDirectionField,
			Ramp:        cfg.RoadnetRampField,
		}, cfg.RoadnetTimeout, metrics, logger)
		network = roadnet.NewCachedNetwork(client, cfg.RoadnetCacheSize, metrics)
		metrics.RoadnetEnabled.Set(1)
		logger.Info("road network matching enabled", "network", cfg.RoadnetName, "cache_size", cfg.RoadnetCacheSize)
	} else {
		logger.Info("road network matching disabled")
	}

	enricher := domain.NewEnricher(network, store, recorder, domain.EnricherConfig{
		BBoxPad:      cfg.EnrichBBoxPad,
		MaxMatchKm:   cfg.EnrichMaxMatchKm,
		OffsetMeters: cfg.EnrichOffsetMeters,
		Workers:      cfg.EnrichWorkers,
	}, logger)

	var (
		loader pipeline.BatchLoader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loader = writer
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka sink disabled")
	}

	p := pipeline.New(sources, domain.NewNormalizer(nil), enricher, loader, pipeline.Config{
		Interval:      cfg.CycleInterval,
		SourceTimeout: cfg.SourceTimeout,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{p, store}, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go sweeper.Run(ctx)

	// Start ETL pipeline.
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	recorder.Close()
	if err := store.Close(); err != nil {
		logger.Error("geometry store close error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// readiness requires a completed cycle and a reachable geometry store.
type readiness struct {
	pipeline *pipeline.Pipeline
	store    domain.GeometryStore
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.pipeline.CheckReadiness(ctx); err != nil {
		return err
	}
	return r.store.Ping(ctx)
}
