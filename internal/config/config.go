package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Ingestion cycle.
	CycleInterval time.Duration
	SourceTimeout time.Duration // minimum fetch deadline; a feed timeout that is longer wins
	FeedsConfig   string

	// Kafka sink.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Road network used for geometry matching. Matching is off when
	// RoadnetURL is empty; bidirectional offsets still apply.
	RoadnetURL              string
	RoadnetName             string
	RoadnetTimeout          time.Duration
	RoadnetCacheSize        int
	RoadnetRouteNumberField string
	RoadnetRoutePrefixField string
	RoadnetDirectionField   string
	RoadnetRampField        string

	// Enrichment tuning.
	EnrichWorkers      int
	EnrichBBoxPad      float64
	EnrichMaxMatchKm   float64
	EnrichOffsetMeters float64

	// Geometry store.
	GeometryStoreDriver   string
	GeometryStoreDSN      string
	GeometrySweepInterval time.Duration
	GeometryStaleAfter    time.Duration
	GeometryWriteBuffer   int
}

// RoadnetEnabled reports whether a road network is configured.
func (c *Config) RoadnetEnabled() bool { return c.RoadnetURL != "" }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedsConfig: sharedcfg.EnvOrDefault("FEEDS_CONFIG", "feeds.yaml"),

		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "road-events"),

		RoadnetURL:              os.Getenv("ROADNET_URL"),
		RoadnetName:             sharedcfg.EnvOrDefault("ROADNET_NAME", "Road Network"),
		RoadnetRouteNumberField: sharedcfg.EnvOrDefault("ROADNET_ROUTE_NUMBER_FIELD", "ROUTE_NUMBER"),
		RoadnetRoutePrefixField: envOrDefaultAllowEmpty("ROADNET_ROUTE_PREFIX_FIELD", "ROUTE_PREFIX"),
		RoadnetDirectionField:   envOrDefaultAllowEmpty("ROADNET_DIRECTION_FIELD", "DIRECTION"),
		RoadnetRampField:        envOrDefaultAllowEmpty("ROADNET_RAMP_FIELD", "IS_RAMP"),

		GeometryStoreDriver: sharedcfg.EnvOrDefault("GEOMETRY_STORE_DRIVER", "memory"),
		GeometryStoreDSN:    os.Getenv("GEOMETRY_STORE_DSN"),
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"CYCLE_INTERVAL", "5m", &cfg.CycleInterval},
		{"SOURCE_TIMEOUT", "20s", &cfg.SourceTimeout},
		{"ROADNET_TIMEOUT", "10s", &cfg.RoadnetTimeout},
		{"GEOMETRY_SWEEP_INTERVAL", "1h", &cfg.GeometrySweepInterval},
		{"GEOMETRY_STALE_AFTER", "72h", &cfg.GeometryStaleAfter},
	}
	for _, d := range durations {
		if *d.dest, err = parsePositiveDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"ROADNET_CACHE_SIZE", 500, &cfg.RoadnetCacheSize},
		{"ENRICH_WORKERS", 4, &cfg.EnrichWorkers},
		{"GEOMETRY_WRITE_BUFFER", 256, &cfg.GeometryWriteBuffer},
	}
	for _, n := range ints {
		if *n.dest, err = parsePositiveInt(n.key, n.def); err != nil {
			return nil, err
		}
	}

	floats := []struct {
		key  string
		def  float64
		dest *float64
	}{
		{"ENRICH_BBOX_PAD", 0.15, &cfg.EnrichBBoxPad},
		{"ENRICH_MAX_MATCH_KM", 50, &cfg.EnrichMaxMatchKm},
		{"ENRICH_OFFSET_METERS", 12, &cfg.EnrichOffsetMeters},
	}
	for _, f := range floats {
		if *f.dest, err = parsePositiveFloat(f.key, f.def); err != nil {
			return nil, err
		}
	}

	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", true); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if c.FeedsConfig == "" {
		return errors.New("FEEDS_CONFIG is required")
	}
	switch c.GeometryStoreDriver {
	case "memory":
	case "postgres", "mysql":
		if c.GeometryStoreDSN == "" {
			return fmt.Errorf("GEOMETRY_STORE_DSN is required for driver %s", c.GeometryStoreDriver)
		}
	default:
		return fmt.Errorf("invalid GEOMETRY_STORE_DRIVER %q", c.GeometryStoreDriver)
	}
	if c.RoadnetEnabled() && c.RoadnetRouteNumberField == "" {
		return errors.New("ROADNET_ROUTE_NUMBER_FIELD is required when ROADNET_URL is set")
	}
	return nil
}

// envOrDefaultAllowEmpty returns def only when key is unset, so an explicit
// empty value turns an optional column off.
func envOrDefaultAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
