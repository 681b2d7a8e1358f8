// Package rates fetches live fiat-to-USD conversion rates from redundant
// public endpoints.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/metrics"
)

const fetchTimeout = 10 * time.Second

// Endpoint is one rate API. URL contains a %s placeholder for the base
// currency code.
type Endpoint struct {
	Name string
	URL  string
}

// DefaultEndpoints are free rate APIs requiring no key, in failover order.
// The first endpoint returning a usable USD entry wins.
var DefaultEndpoints = []Endpoint{
	{Name: "exchangerate-api", URL: "https://api.exchangerate-api.com/v4/latest/%s"},
	{Name: "open-er-api", URL: "https://open.er-api.com/v6/latest/%s"},
	{Name: "frankfurter", URL: "https://api.frankfurter.app/latest?from=%s&to=USD"},
}

// Provider fetches conversion rates with per-run memoization: the first
// fetched rate for a base currency is reused for every conversion in the
// run, so one run never mixes two readings of the same pair.
type Provider struct {
	endpoints []Endpoint
	client    *http.Client
	logger    *logging.Logger

	mu    sync.Mutex
	cache map[string]decimal.Decimal
}

// NewProvider creates a rate provider over the given endpoints, or
// DefaultEndpoints when none are given.
func NewProvider(endpoints []Endpoint, logger *logging.Logger) *Provider {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	return &Provider{
		endpoints: endpoints,
		client:    &http.Client{Timeout: fetchTimeout},
		logger:    logger,
		cache:     make(map[string]decimal.Decimal),
	}
}

// Rate returns the conversion rate from baseCurrency to USD. Endpoints are
// tried in order; the first numeric USD rate wins. When every endpoint fails
// the error is returned and callers fail closed: no observation is produced
// from a stale or guessed rate.
func (p *Provider) Rate(ctx context.Context, baseCurrency string) (decimal.Decimal, error) {
	base := strings.ToUpper(baseCurrency)
	if base == "USD" {
		return decimal.NewFromInt(1), nil
	}

	p.mu.Lock()
	if rate, ok := p.cache[base]; ok {
		p.mu.Unlock()
		return rate, nil
	}
	p.mu.Unlock()

	for _, ep := range p.endpoints {
		url := fmt.Sprintf(ep.URL, base)
		p.logger.Debug("Fetching conversion rate", "endpoint", ep.Name, "base", base)

		rate, err := p.fetchRate(ctx, url)
		if err != nil {
			metrics.RateFetchesTotal.WithLabelValues(ep.Name, "failure").Inc()
			p.logger.Warn("Rate endpoint failed", "endpoint", ep.Name, "base", base, "error", err)
			continue
		}

		metrics.RateFetchesTotal.WithLabelValues(ep.Name, "success").Inc()
		p.logger.Info("Fetched conversion rate",
			"endpoint", ep.Name, "base", base, "rate", rate.String())

		p.mu.Lock()
		p.cache[base] = rate
		p.mu.Unlock()
		return rate, nil
	}

	return decimal.Zero, fmt.Errorf("%w: %s/USD", ErrRateUnavailable, base)
}

// fetchRate queries one endpoint and extracts the USD rate. The APIs differ
// in shape: some nest rates under "rates", one returns the mapping at the
// top level.
func (p *Provider) fetchRate(ctx context.Context, url string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch rate: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}

	if ratesRaw, ok := data["rates"]; ok {
		if ratesMap, ok := ratesRaw.(map[string]interface{}); ok {
			if rate, ok := numericRate(ratesMap["USD"]); ok {
				return rate, nil
			}
		}
	}
	if rate, ok := numericRate(data["USD"]); ok {
		return rate, nil
	}

	return decimal.Zero, ErrNoUSDRate
}

func numericRate(v interface{}) (decimal.Decimal, bool) {
	f, ok := v.(float64)
	if !ok || f <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}
