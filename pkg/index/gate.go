package index

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/metrics"
)

// HistorySource yields previously published index prices, most recent first.
// The database publisher implements it; tests substitute fakes.
type HistorySource interface {
	RecentIndexPrices(ctx context.Context, limit int) ([]decimal.Decimal, error)
}

// Gate compares a proposed index price against recent history and rejects
// statistically implausible submissions.
//
// Policy notes, deliberately chosen and relied on by callers:
//   - With fewer than two historical records the gate accepts unconditionally
//     (bootstrap: no meaningful baseline exists yet).
//   - A history-retrieval error fails OPEN: the decision defaults to accepted
//     with a warning. Availability of the index is preferred over strict
//     outlier protection, so a transient store outage disables the guard for
//     that run.
type Gate struct {
	history   HistorySource
	tolerance decimal.Decimal
	logger    *logging.Logger
}

// NoHistory is a HistorySource with no records. Used when no store is
// configured; the gate bootstrap-accepts every run.
type NoHistory struct{}

func (NoHistory) RecentIndexPrices(ctx context.Context, limit int) ([]decimal.Decimal, error) {
	return nil, nil
}

// NewGate creates a validation gate. tolerance is fractional (0.25 = ±25%).
func NewGate(history HistorySource, tolerance float64, logger *logging.Logger) *Gate {
	return &Gate{
		history:   history,
		tolerance: decimal.NewFromFloat(tolerance),
		logger:    logger,
	}
}

// Validate checks newPrice against the mean of the last two published prices.
func (g *Gate) Validate(ctx context.Context, newPrice decimal.Decimal) Decision {
	recent, err := g.history.RecentIndexPrices(ctx, 2)
	if err != nil {
		g.logger.Warn("Price validation skipped: history unavailable, failing open", "error", err)
		metrics.ValidationDecisionsTotal.WithLabelValues("fail_open").Inc()
		return Decision{
			Accepted:  true,
			Tolerance: g.tolerance,
			Reason:    "history unavailable, fail-open policy",
		}
	}

	if len(recent) < 2 {
		g.logger.Info("Price validation skipped: insufficient history",
			"records", len(recent), "new_price", newPrice.StringFixed(2))
		metrics.ValidationDecisionsTotal.WithLabelValues("bootstrap").Inc()
		return Decision{
			Accepted:  true,
			Tolerance: g.tolerance,
			Reason:    "fewer than two historical records (bootstrap)",
		}
	}

	two := decimal.NewFromInt(2)
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	avg := recent[0].Add(recent[1]).Div(two)
	lower := avg.Mul(one.Sub(g.tolerance))
	upper := avg.Mul(one.Add(g.tolerance))

	deviationPct := newPrice.Sub(avg).Div(avg).Mul(hundred)
	accepted := newPrice.GreaterThanOrEqual(lower) && newPrice.LessThanOrEqual(upper)

	decision := Decision{
		Accepted:     accepted,
		ReferenceAvg: avg,
		DeviationPct: deviationPct,
		Tolerance:    g.tolerance,
	}

	if accepted {
		decision.Reason = "within tolerance of recent average"
		metrics.ValidationDecisionsTotal.WithLabelValues("accepted").Inc()
		g.logger.Info("Price validation passed",
			"new_price", newPrice.StringFixed(2),
			"reference_avg", avg.StringFixed(2),
			"deviation_pct", deviationPct.StringFixed(1),
			"bounds", lower.StringFixed(2)+" - "+upper.StringFixed(2))
	} else {
		decision.Reason = "deviation exceeds tolerance of recent average"
		metrics.ValidationDecisionsTotal.WithLabelValues("rejected").Inc()
		g.logger.Error("Price validation FAILED, snapshot will not be published",
			"new_price", newPrice.StringFixed(2),
			"reference_avg", avg.StringFixed(2),
			"deviation_pct", deviationPct.StringFixed(1),
			"bounds", lower.StringFixed(2)+" - "+upper.StringFixed(2))
	}

	return decision
}
