package repo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/miradorstack/incident-metrics/internal/config"
	"github.com/miradorstack/incident-metrics/internal/models"
)

// HTTPSource pulls the incident snapshot from a JSON feed.
type HTTPSource struct {
	baseURL       string
	incidentsPath string
	maxRetries    int
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewHTTPSource constructs a source targeting the configured feed.
func NewHTTPSource(cfg config.HTTPSource, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		incidentsPath: cfg.IncidentsPath,
		maxRetries:    cfg.MaxRetries,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Fetch downloads the snapshot. Transport errors and 5xx responses are retried
// up to maxRetries times with exponential backoff.
func (s *HTTPSource) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("incident feed client not initialised")
	}
	if s.baseURL == "" {
		return nil, fmt.Errorf("incident feed base URL not configured")
	}
	endpoint := s.resolvePath(s.incidentsPath)

	backoff := retry.WithMaxRetries(uint64(max(s.maxRetries, 0)), retry.NewExponential(100*time.Millisecond))

	var records []models.RawRecord
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		got, retryable, err := s.getRecords(ctx, endpoint)
		if err != nil {
			if !retryable {
				return err
			}
			s.logger.Warn("incident feed attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
			return retry.RetryableError(err)
		}
		records = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("incident feed request failed: %w", err)
	}
	return records, nil
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *HTTPSource) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// getRecords performs one request and reports whether a failure is retryable.
func (s *HTTPSource) getRecords(ctx context.Context, endpoint string) ([]models.RawRecord, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode >= http.StatusInternalServerError, fmt.Errorf("incident feed returned %s", resp.Status)
	}
	records, err := decodeRecords(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return records, false, nil
}
