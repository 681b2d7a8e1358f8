package index

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/metrics"
	"github.com/0x0shephard/h200/pkg/scrape"
)

// Aggregator blends per-provider observations into the composite index.
// Providers are grouped hyperscaler/neocloud; each group's component is a
// weighted mean of effective (discounted) prices and the final index blends
// the two components by the configured group weights.
type Aggregator struct {
	providers map[string]config.ProviderConfig
	cfg       config.IndexConfig
	logger    *logging.Logger
}

// NewAggregator creates an aggregator over the provider catalog.
func NewAggregator(providers []config.ProviderConfig, cfg config.IndexConfig, logger *logging.Logger) *Aggregator {
	byName := make(map[string]config.ProviderConfig, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}
	return &Aggregator{providers: byName, cfg: cfg, logger: logger}
}

// Aggregate computes a Snapshot from this run's observations. The aggregator
// tolerates a reduced contributor set: a group with no observations simply
// contributes zero weight and the other group carries the index.
func (a *Aggregator) Aggregate(observations []scrape.PriceObservation) (Snapshot, error) {
	if len(observations) == 0 {
		return Snapshot{}, ErrNoObservations
	}

	var (
		components  []ComponentDetail
		hyperObs    []ComponentDetail
		neoObs      []ComponentDetail
		one         = decimal.NewFromInt(1)
		hyperWeight = decimal.NewFromFloat(a.cfg.HyperscalerWeight)
		neoWeight   = decimal.NewFromFloat(a.cfg.NeocloudWeight)
	)

	for _, obs := range observations {
		pcfg, ok := a.providers[obs.Provider]
		if !ok {
			a.logger.Warn("Observation from unknown provider, skipping", "provider", obs.Provider)
			continue
		}

		discount := decimal.NewFromFloat(pcfg.DiscountRate)
		detail := ComponentDetail{
			Provider:       obs.Provider,
			Type:           strings.ToLower(pcfg.Type),
			OriginalPrice:  obs.Price,
			EffectivePrice: obs.Price.Mul(one.Sub(discount)),
			DiscountRate:   discount,
			RelativeWeight: decimal.NewFromFloat(pcfg.Weight),
		}

		if detail.Type == "hyperscaler" {
			hyperObs = append(hyperObs, detail)
		} else {
			neoObs = append(neoObs, detail)
		}
	}

	if len(hyperObs) == 0 && len(neoObs) == 0 {
		return Snapshot{}, ErrNoObservations
	}

	hyperComponent := weightedMean(hyperObs)
	neoComponent := weightedMean(neoObs)

	// Renormalize group weights when one side is empty.
	effHyper, effNeo := hyperWeight, neoWeight
	if len(hyperObs) == 0 {
		effHyper, effNeo = decimal.Zero, one
	} else if len(neoObs) == 0 {
		effHyper, effNeo = one, decimal.Zero
	}

	indexPrice := hyperComponent.Mul(effHyper).Add(neoComponent.Mul(effNeo))

	// Fill per-provider absolute weights and contributions for audit.
	finalize := func(group []ComponentDetail, groupWeight decimal.Decimal) {
		total := decimal.Zero
		for _, d := range group {
			total = total.Add(d.RelativeWeight)
		}
		// Weights are validated positive at startup; if a degenerate set
		// slips through anyway, fall back to equal weighting rather than
		// dividing by a non-positive total.
		if !total.IsPositive() {
			a.logger.Warn("Non-positive weight total in provider group, using equal weights")
			for i := range group {
				group[i].RelativeWeight = one
			}
			total = decimal.NewFromInt(int64(len(group)))
		}
		for i := range group {
			rel := group[i].RelativeWeight.Div(total)
			group[i].RelativeWeight = rel
			group[i].AbsoluteWeight = rel.Mul(groupWeight)
			group[i].WeightedContribution = group[i].EffectivePrice.Mul(group[i].AbsoluteWeight)
			components = append(components, group[i])
		}
	}
	if len(hyperObs) > 0 {
		finalize(hyperObs, effHyper)
	}
	if len(neoObs) > 0 {
		finalize(neoObs, effNeo)
	}

	snapshot := Snapshot{
		Timestamp:            time.Now().UTC(),
		IndexPrice:           indexPrice,
		HyperscalerComponent: hyperComponent,
		NeocloudComponent:    neoComponent,
		HyperscalerCount:     len(hyperObs),
		NeocloudCount:        len(neoObs),
		Components:           components,
		Observations:         observations,
		Metadata: map[string]interface{}{
			"weights": map[string]interface{}{
				"hyperscaler": a.cfg.HyperscalerWeight,
				"neocloud":    a.cfg.NeocloudWeight,
			},
		},
	}

	priceF, _ := indexPrice.Float64()
	metrics.IndexPriceUSD.Set(priceF)

	a.logger.Info("Computed index snapshot",
		"index_price", indexPrice.StringFixed(2),
		"hyperscaler_component", hyperComponent.StringFixed(4),
		"neocloud_component", neoComponent.StringFixed(4),
		"hyperscaler_count", len(hyperObs),
		"neocloud_count", len(neoObs))

	return snapshot, nil
}

// weightedMean computes the relative-weight mean of effective prices.
// Returns zero for an empty group.
func weightedMean(group []ComponentDetail) decimal.Decimal {
	if len(group) == 0 {
		return decimal.Zero
	}

	total := decimal.Zero
	weighted := decimal.Zero
	for _, d := range group {
		total = total.Add(d.RelativeWeight)
		weighted = weighted.Add(d.EffectivePrice.Mul(d.RelativeWeight))
	}
	if total.IsZero() {
		return decimal.Zero
	}
	return weighted.Div(total)
}
