package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	maxBodyBytes          = 64 << 20
)

// HTTPSource polls one feed URL and decodes it into raw records.
type HTTPSource struct {
	cfg        FeedConfig
	userAgent  string
	httpClient *http.Client
	initial    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
}

// NewHTTPSource creates a source for one catalog entry.
func NewHTTPSource(cfg FeedConfig, userAgent string, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		cfg:        cfg,
		userAgent:  userAgent,
		httpClient: newHTTPClient(cfg.Timeout),
		initial:    defaultInitialBackoff,
		maxBackoff: defaultMaxBackoff,
		logger:     logger.With("source", cfg.Name),
	}
}

// NewSources builds a source for every enabled feed in the catalog.
func NewSources(cat *Catalog, logger *slog.Logger) []*HTTPSource {
	enabled := cat.Enabled()
	out := make([]*HTTPSource, 0, len(enabled))
	for _, f := range enabled {
		out = append(out, NewHTTPSource(f, cat.Defaults.UserAgent, logger))
	}
	return out
}

// Name returns the feed name.
func (s *HTTPSource) Name() string { return s.cfg.Name }

// Meta describes the feed to the normalizer.
func (s *HTTPSource) Meta() domain.SourceMeta {
	return domain.SourceMeta{Name: s.cfg.Name, State: s.cfg.State, Format: s.cfg.Format}
}

// Timeout is the feed's own fetch deadline. The pipeline never cuts a fetch
// shorter than this.
func (s *HTTPSource) Timeout() time.Duration { return s.cfg.Timeout }

// Fetch downloads and decodes the feed, retrying transient failures.
func (s *HTTPSource) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	var body []byte
	attempt := 0
	err := retry(ctx, s.cfg.RetryCount()+1, s.initial, s.maxBackoff, func() error {
		attempt++
		b, err := s.get(ctx)
		if err != nil {
			s.logger.Debug("feed fetch attempt failed", "attempt", attempt, "error", err)
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.cfg.Name, err)
	}

	recs, err := Decode(bytes.NewReader(body), s.cfg.Format, s.cfg.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.cfg.Name, err)
	}
	return recs, nil
}

func (s *HTTPSource) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("create request: %w", err)}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	switch s.cfg.Format {
	case FormatXML:
		req.Header.Set("Accept", "application/xml, text/xml")
	default:
		req.Header.Set("Accept", "application/geo+json, application/json")
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		// Client errors other than rate limiting will not fix themselves.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, &permanentError{err}
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
