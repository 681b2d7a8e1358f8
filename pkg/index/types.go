// Package index computes the composite H200 price index and guards its
// publication with a historical deviation gate.
package index

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/scrape"
)

// ComponentDetail describes one provider's contribution to the index.
type ComponentDetail struct {
	Provider             string          `json:"provider"`
	Type                 string          `json:"provider_type"`
	OriginalPrice        decimal.Decimal `json:"original_price"`
	EffectivePrice       decimal.Decimal `json:"effective_price"`
	DiscountRate         decimal.Decimal `json:"discount_rate"`
	RelativeWeight       decimal.Decimal `json:"relative_weight"`
	AbsoluteWeight       decimal.Decimal `json:"absolute_weight"`
	WeightedContribution decimal.Decimal `json:"weighted_contribution"`
}

// Snapshot is one run's composite price plus its contributing observations.
// Produced exactly once per run; immutable afterwards.
type Snapshot struct {
	Timestamp            time.Time
	IndexPrice           decimal.Decimal
	HyperscalerComponent decimal.Decimal
	NeocloudComponent    decimal.Decimal
	HyperscalerCount     int
	NeocloudCount        int
	Components           []ComponentDetail
	Observations         []scrape.PriceObservation
	Metadata             map[string]interface{}
}

// Decision is the outcome of one validation gate check. Never persisted;
// recomputed fresh each run from the stored history.
type Decision struct {
	Accepted     bool
	ReferenceAvg decimal.Decimal
	DeviationPct decimal.Decimal
	Tolerance    decimal.Decimal
	Reason       string
}
