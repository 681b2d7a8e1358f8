package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/logging"
)

// Browser-like headers. Several pricing pages serve a reduced document to
// clients with a default Go User-Agent.
var staticHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

const staticFetchTimeout = 20 * time.Second

// StaticStrategy fetches the provider page with a plain HTTP GET and scans
// the markup as text. It sees only server-rendered content; pages that load
// pricing client-side yield ErrKeywordMissing here and fall through to the
// rendered strategy.
type StaticStrategy struct {
	client *http.Client
	logger *logging.Logger
}

// NewStaticStrategy creates the static fetch strategy.
func NewStaticStrategy(logger *logging.Logger) *StaticStrategy {
	return &StaticStrategy{
		client: &http.Client{Timeout: staticFetchTimeout},
		logger: logger,
	}
}

// Name returns the strategy name.
func (s *StaticStrategy) Name() string { return "static" }

// Attempt fetches and scans the provider page.
func (s *StaticStrategy) Attempt(ctx context.Context, cfg config.ProviderConfig) (RawExtraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return RawExtraction{}, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range staticHeaders {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return RawExtraction{}, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return RawExtraction{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return RawExtraction{}, fmt.Errorf("failed to read body: %w", err)
	}

	text := stripTags(string(body))
	s.logger.Debug("Fetched page", "provider", cfg.Name, "strategy", s.Name(), "content_length", len(text))

	return extractFromText(text, cfg, s.Name())
}

// extractFromText applies the keyword gate and price extraction shared by
// both fetch strategies.
func extractFromText(text string, cfg config.ProviderConfig, strategy string) (RawExtraction, error) {
	if cfg.Keyword != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(cfg.Keyword)) {
		return RawExtraction{}, fmt.Errorf("%w: %q", ErrKeywordMissing, cfg.Keyword)
	}

	value, ok := extractPrice(text, cfg)
	if !ok {
		return RawExtraction{}, ErrNotFound
	}

	return RawExtraction{
		Provider: cfg.Name,
		Strategy: strategy,
		Value:    value,
		Currency: strings.ToUpper(cfg.Currency),
		Period:   strings.ToLower(cfg.BillingPeriod),
	}, nil
}
