package feeds

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Feed formats.
const (
	FormatWZDx = "wzdx"
	FormatJSON = "json"
	FormatXML  = "xml"
)

const envPrefix = "FEEDS_"

// Defaults apply to every feed that does not set its own value.
type Defaults struct {
	Timeout   time.Duration `koanf:"timeout"`
	Retries   int           `koanf:"retries"`
	UserAgent string        `koanf:"user_agent"`
}

// FeedConfig describes one upstream feed.
type FeedConfig struct {
	Name        string            `koanf:"name"`
	State       string            `koanf:"state"`
	URL         string            `koanf:"url"`
	Format      string            `koanf:"format"`
	RecordsPath string            `koanf:"records_path"` // dotted path to the record array
	Headers     map[string]string `koanf:"headers"`
	Timeout     time.Duration     `koanf:"timeout"` // per-request timeout and minimum fetch deadline
	Retries     *int              `koanf:"retries"` // nil takes the default; 0 disables retries
	Enabled     *bool             `koanf:"enabled"` // nil means enabled
}

// IsEnabled reports whether the feed should be polled.
func (f FeedConfig) IsEnabled() bool { return f.Enabled == nil || *f.Enabled }

// RetryCount returns the number of retries after the first attempt.
func (f FeedConfig) RetryCount() int {
	if f.Retries == nil {
		return 0
	}
	return *f.Retries
}

// Catalog is the feed list loaded from YAML.
type Catalog struct {
	Defaults Defaults     `koanf:"defaults"`
	Feeds    []FeedConfig `koanf:"feeds"`
}

func defaultCatalog() Catalog {
	return Catalog{
		Defaults: Defaults{
			Timeout:   20 * time.Second,
			Retries:   2,
			UserAgent: "road-event-etl/1.0",
		},
	}
}

// LoadCatalog reads the feed catalog from a YAML file. FEEDS_ environment
// variables override the defaults block, e.g. FEEDS_DEFAULTS_TIMEOUT=30s.
func LoadCatalog(path string) (*Catalog, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load feed catalog %s: %w", path, err)
	}

	// FEEDS_DEFAULTS_USER_AGENT -> defaults.user_agent
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load feed env overrides: %w", err)
	}

	cat := defaultCatalog()
	if err := k.UnmarshalWithConf("", &cat, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("parse feed catalog: %w", err)
	}
	if cat.Defaults.Retries < 0 {
		return nil, errors.New("feed catalog: default retries must be non-negative")
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	cat.applyDefaults()
	return &cat, nil
}

func (c *Catalog) validate() error {
	if len(c.Feeds) == 0 {
		return errors.New("feed catalog lists no feeds")
	}
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.Name == "" {
			return fmt.Errorf("feed %d: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("feed %s: duplicate name", f.Name)
		}
		seen[f.Name] = true
		if f.URL == "" {
			return fmt.Errorf("feed %s: url is required", f.Name)
		}
		switch strings.ToLower(f.Format) {
		case "", FormatWZDx, FormatJSON, FormatXML:
		default:
			return fmt.Errorf("feed %s: unknown format %q", f.Name, f.Format)
		}
		if f.Retries != nil && *f.Retries < 0 {
			return fmt.Errorf("feed %s: retries must be non-negative", f.Name)
		}
	}
	return nil
}

func (c *Catalog) applyDefaults() {
	for i := range c.Feeds {
		f := &c.Feeds[i]
		f.Format = strings.ToLower(f.Format)
		if f.Format == "" {
			f.Format = FormatWZDx
		}
		if f.Timeout <= 0 {
			f.Timeout = c.Defaults.Timeout
		}
		if f.Retries == nil {
			retries := c.Defaults.Retries
			f.Retries = &retries
		}
		if f.State == "" {
			f.State = strings.ToUpper(f.Name)
		}
	}
}

// Enabled returns the feeds that should be polled.
func (c *Catalog) Enabled() []FeedConfig {
	var out []FeedConfig
	for _, f := range c.Feeds {
		if f.IsEnabled() {
			out = append(out, f)
		}
	}
	return out
}
