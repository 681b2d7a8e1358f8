package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/logging"
)

// Billing period divisors. 730 hours per month is the agreed convention.
var (
	hoursPerMonth = decimal.NewFromInt(730)
	hoursPerDay   = decimal.NewFromInt(24)
)

// RateFunc returns the conversion rate from a base currency to USD. It must
// memoize per run: every conversion in one run uses the same rate.
type RateFunc func(ctx context.Context, baseCurrency string) (decimal.Decimal, error)

// Normalizer converts raw extractions into canonical USD/hr/GPU prices.
type Normalizer struct {
	rate   RateFunc
	logger *logging.Logger
}

// NewNormalizer creates a Normalizer. rate may be nil when every configured
// provider already prices in USD.
func NewNormalizer(rate RateFunc, logger *logging.Logger) *Normalizer {
	return &Normalizer{rate: rate, logger: logger}
}

// Normalize converts a raw extraction into a PriceObservation.
//
// Conversion order: billing period to hourly, currency to USD, then per-GPU
// division. Intermediate values are never rounded; rounding happens only at
// output boundaries so averaging observations later does not compound error.
//
// Returns ErrImplausible when the final canonical value falls outside the
// provider's canonical bounds; callers treat that identically to not-found.
func (n *Normalizer) Normalize(ctx context.Context, raw RawExtraction, cfg config.ProviderConfig) (PriceObservation, error) {
	hourly := raw.Value

	switch strings.ToLower(raw.Period) {
	case "", "hourly":
	case "daily":
		hourly = hourly.Div(hoursPerDay)
	case "monthly":
		hourly = hourly.Div(hoursPerMonth)
	default:
		return PriceObservation{}, fmt.Errorf("%w: %s", ErrUnknownPeriod, raw.Period)
	}

	if raw.Currency != "" && raw.Currency != "USD" {
		if n.rate == nil {
			return PriceObservation{}, fmt.Errorf("no rate provider for currency %s", raw.Currency)
		}
		rate, err := n.rate(ctx, raw.Currency)
		if err != nil {
			// Fail closed: no observation rather than a stale or guessed rate.
			return PriceObservation{}, fmt.Errorf("conversion rate for %s unavailable: %w", raw.Currency, err)
		}
		hourly = hourly.Mul(rate)
	}

	canonical := n.perGPU(hourly, cfg)

	f, _ := canonical.Float64()
	if !cfg.CanonicalBounds.Contains(f) {
		return PriceObservation{}, fmt.Errorf("%w: %s USD/hr not in [%v, %v]",
			ErrImplausible, canonical.StringFixed(2), cfg.CanonicalBounds.Min, cfg.CanonicalBounds.Max)
	}

	return PriceObservation{
		Provider:  cfg.Name,
		Price:     canonical,
		Timestamp: time.Now().UTC(),
		Strategy:  raw.Strategy,
		RawValue:  raw.Value,
	}, nil
}

// perGPU resolves the instance-price ambiguity. Some pages list an
// already-per-GPU rate next to a whole-instance rate in the same unit, so for
// multi-GPU providers the divided value is preferred, but when division lands
// outside the canonical window and the undivided value fits, the value is
// taken as already per-GPU. Borderline values where both interpretations fit
// resolve to the instance reading.
func (n *Normalizer) perGPU(hourly decimal.Decimal, cfg config.ProviderConfig) decimal.Decimal {
	if cfg.GPUsPerInstance <= 1 {
		return hourly
	}

	divided := hourly.Div(decimal.NewFromInt(int64(cfg.GPUsPerInstance)))

	df, _ := divided.Float64()
	hf, _ := hourly.Float64()
	if !cfg.CanonicalBounds.Contains(df) && cfg.CanonicalBounds.Contains(hf) {
		n.logger.Debug("Treating extracted value as already per-GPU",
			"provider", cfg.Name, "value", hourly.StringFixed(2))
		return hourly
	}

	return divided
}
