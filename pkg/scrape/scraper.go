package scrape

import (
	"context"
	"errors"
	"fmt"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/metrics"
)

// ProviderScraper owns one provider's ordered strategy chain and produces at
// most one canonical observation per run.
type ProviderScraper struct {
	cfg        config.ProviderConfig
	strategies []Strategy
	normalizer *Normalizer
	logger     *logging.Logger
}

// NewProviderScraper builds a scraper from the provider's configured strategy
// names. Unknown names were rejected at config validation.
func NewProviderScraper(cfg config.ProviderConfig, normalizer *Normalizer, logger *logging.Logger) *ProviderScraper {
	strategies := make([]Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		switch name {
		case "static":
			strategies = append(strategies, NewStaticStrategy(logger))
		case "rendered":
			strategies = append(strategies, NewRenderedStrategy(logger))
		}
	}

	return &ProviderScraper{
		cfg:        cfg,
		strategies: strategies,
		normalizer: normalizer,
		logger:     logger,
	}
}

// NewProviderScraperWithStrategies builds a scraper with an explicit strategy
// chain. Used by tests and by callers composing custom chains.
func NewProviderScraperWithStrategies(cfg config.ProviderConfig, strategies []Strategy, normalizer *Normalizer, logger *logging.Logger) *ProviderScraper {
	return &ProviderScraper{
		cfg:        cfg,
		strategies: strategies,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Provider returns the provider name.
func (s *ProviderScraper) Provider() string { return s.cfg.Name }

// Scrape tries each strategy in priority order and returns the first
// observation that survives normalization and the plausibility check. Later
// strategies are skipped once one succeeds. When every strategy fails it
// returns ErrNoObservation; the provider simply contributes nothing this run.
func (s *ProviderScraper) Scrape(ctx context.Context) (PriceObservation, error) {
	for _, strategy := range s.strategies {
		s.logger.Info("Attempting extraction",
			"provider", s.cfg.Name, "strategy", strategy.Name(), "url", s.cfg.URL)

		raw, err := strategy.Attempt(ctx, s.cfg)
		if err != nil {
			outcome := "error"
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrKeywordMissing) {
				outcome = "not_found"
			}
			metrics.ExtractionAttemptsTotal.WithLabelValues(s.cfg.Name, strategy.Name(), outcome).Inc()
			s.logger.Warn("Extraction attempt failed",
				"provider", s.cfg.Name, "strategy", strategy.Name(), "error", err)
			continue
		}

		obs, err := s.normalizer.Normalize(ctx, raw, s.cfg)
		if err != nil {
			// An implausible normalized value is treated identically to
			// not-found: advance to the next strategy.
			metrics.ExtractionAttemptsTotal.WithLabelValues(s.cfg.Name, strategy.Name(), "implausible").Inc()
			s.logger.Warn("Extraction discarded after normalization",
				"provider", s.cfg.Name, "strategy", strategy.Name(),
				"raw_value", raw.Value.StringFixed(2), "error", err)
			continue
		}

		metrics.ExtractionAttemptsTotal.WithLabelValues(s.cfg.Name, strategy.Name(), "success").Inc()
		metrics.ObservationsTotal.WithLabelValues(s.cfg.Name).Inc()
		priceF, _ := obs.Price.Float64()
		metrics.ProviderPriceUSD.WithLabelValues(s.cfg.Name).Set(priceF)

		s.logger.Info("Extraction succeeded",
			"provider", s.cfg.Name, "strategy", strategy.Name(),
			"raw_value", raw.Value.StringFixed(2),
			"canonical_price", obs.Price.StringFixed(2))

		return obs, nil
	}

	return PriceObservation{}, fmt.Errorf("%w: provider %s", ErrNoObservation, s.cfg.Name)
}
