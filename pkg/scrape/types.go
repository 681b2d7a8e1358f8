// Package scrape implements per-provider price discovery: ordered extraction
// strategies, plausibility filtering and normalization into canonical
// USD/hr/GPU observations.
package scrape

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/config"
)

// RawExtraction is the result of one successful strategy attempt. The value
// is still in the provider's source currency and billing period.
type RawExtraction struct {
	Provider string
	Strategy string
	Value    decimal.Decimal
	Currency string
	Period   string
}

// PriceObservation is one provider's canonical price for one run. The price
// is always USD per hour per single GPU; all unit and currency conversion
// happens before construction, never after.
type PriceObservation struct {
	Provider  string
	Price     decimal.Decimal
	Timestamp time.Time

	// Provenance.
	Strategy string
	RawValue decimal.Decimal
}

// Strategy is one method of pulling a raw price for a provider. An attempt
// may fail with ErrNotFound (page reachable but no plausible number) or any
// transport error; both are non-fatal to the scraper.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, cfg config.ProviderConfig) (RawExtraction, error)
}
