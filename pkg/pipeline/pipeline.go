// Package pipeline runs one end-to-end index cycle: scrape every enabled
// provider, aggregate, validate against recent history, and publish to the
// configured sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/index"
	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/publish"
	"github.com/0x0shephard/h200/pkg/publish/auditlog"
	"github.com/0x0shephard/h200/pkg/publish/oracle"
	"github.com/0x0shephard/h200/pkg/scrape"
)

// Scraper extracts one provider's price.
type Scraper interface {
	Provider() string
	Scrape(ctx context.Context) (scrape.PriceObservation, error)
}

// SnapshotSink persists a full index snapshot.
type SnapshotSink interface {
	Publish(ctx context.Context, snap index.Snapshot) (publish.Receipt, error)
}

// PriceSink writes asset/price pairs on-chain.
type PriceSink interface {
	Publish(ctx context.Context, updates []oracle.PriceUpdate) (publish.Receipt, error)
}

// OracleMeta identifies the contract and updater for audit records.
type OracleMeta struct {
	ContractAddress string
	Network         string
	UpdaterAddress  string
}

// Result is the outcome of one pipeline run. A rejected validation is a
// normal outcome, not an error; only publication failures surface as errors.
type Result struct {
	Snapshot  index.Snapshot
	Decision  index.Decision
	Published bool
	Receipts  []publish.Receipt
}

// Pipeline wires the stages of one run together. Stages run sequentially;
// there is no cross-run state beyond what the sinks persist.
type Pipeline struct {
	scrapers       []Scraper
	aggregator     *index.Aggregator
	gate           *index.Gate
	db             SnapshotSink
	oracle         PriceSink
	indexAssetID   common.Hash
	providerAssets map[string]common.Hash
	meta           OracleMeta
	audit          *auditlog.Log
	logger         *logging.Logger
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithDatabase attaches the database sink.
func WithDatabase(sink SnapshotSink) Option {
	return func(p *Pipeline) { p.db = sink }
}

// WithOracle attaches the on-chain sink. The index price is always published
// under indexAssetID; providerAssets maps provider names to their own asset
// ids for providers that are individually tracked on-chain.
func WithOracle(sink PriceSink, indexAssetID common.Hash, providerAssets map[string]common.Hash, meta OracleMeta, audit *auditlog.Log) Option {
	return func(p *Pipeline) {
		p.oracle = sink
		p.indexAssetID = indexAssetID
		p.providerAssets = providerAssets
		p.meta = meta
		p.audit = audit
	}
}

// New builds a pipeline over the given scrapers, aggregator and gate.
func New(scrapers []Scraper, aggregator *index.Aggregator, gate *index.Gate, logger *logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		scrapers:   scrapers,
		aggregator: aggregator,
		gate:       gate,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one full cycle. Provider failures are logged and skipped; the
// run proceeds with whatever observations succeeded. A validation rejection
// returns a Result with Published=false and a nil error.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	observations := p.collect(ctx)
	if len(observations) == 0 {
		return Result{}, index.ErrNoObservations
	}

	snap, err := p.aggregator.Aggregate(observations)
	if err != nil {
		return Result{}, fmt.Errorf("aggregation failed: %w", err)
	}

	decision := p.gate.Validate(ctx, snap.IndexPrice)
	result := Result{Snapshot: snap, Decision: decision}
	if !decision.Accepted {
		p.logger.Warn("Index price rejected by validation gate, skipping publication",
			"index_price", snap.IndexPrice.StringFixed(4),
			"reference_avg", decision.ReferenceAvg.StringFixed(4),
			"deviation_pct", decision.DeviationPct.StringFixed(2),
			"reason", decision.Reason)
		return result, nil
	}

	var errs []error

	if p.db != nil {
		receipt, err := p.db.Publish(ctx, snap)
		if err != nil {
			p.logger.Error("Database publication failed", "error", err)
			errs = append(errs, fmt.Errorf("database sink: %w", err))
		} else {
			result.Receipts = append(result.Receipts, receipt)
		}
	}

	if p.oracle != nil {
		receipt, err := p.publishOracle(ctx, snap)
		if err != nil {
			p.logger.Error("Oracle publication failed", "error", err)
			errs = append(errs, fmt.Errorf("oracle sink: %w", err))
		} else {
			result.Receipts = append(result.Receipts, receipt)
		}
	}

	result.Published = len(result.Receipts) > 0

	p.logger.Info("Pipeline run complete",
		"index_price", snap.IndexPrice.StringFixed(4),
		"providers", len(observations),
		"published", result.Published,
		"elapsed", time.Since(started).Round(time.Millisecond).String())

	return result, errors.Join(errs...)
}

// collect scrapes every provider in configuration order.
func (p *Pipeline) collect(ctx context.Context) []scrape.PriceObservation {
	observations := make([]scrape.PriceObservation, 0, len(p.scrapers))
	for _, s := range p.scrapers {
		obs, err := s.Scrape(ctx)
		if err != nil {
			p.logger.Warn("Provider scrape failed, continuing without it",
				"provider", s.Provider(), "error", err)
			continue
		}
		observations = append(observations, obs)
	}
	return observations
}

// publishOracle builds the on-chain update set and records the attempt in
// the audit log regardless of outcome.
func (p *Pipeline) publishOracle(ctx context.Context, snap index.Snapshot) (publish.Receipt, error) {
	updates := p.buildUpdates(snap)

	receipt, err := p.oracle.Publish(ctx, updates)
	p.recordAudit(snap.IndexPrice, receipt, err)
	return receipt, err
}

func (p *Pipeline) buildUpdates(snap index.Snapshot) []oracle.PriceUpdate {
	updates := []oracle.PriceUpdate{{AssetID: p.indexAssetID, Price: snap.IndexPrice}}
	for _, c := range snap.Components {
		id, ok := p.providerAssets[c.Provider]
		if !ok {
			continue
		}
		updates = append(updates, oracle.PriceUpdate{AssetID: id, Price: c.EffectivePrice})
	}
	return updates
}

func (p *Pipeline) recordAudit(price decimal.Decimal, receipt publish.Receipt, pubErr error) {
	if p.audit == nil {
		return
	}

	entry := auditlog.Entry{
		Timestamp:       time.Now().UTC(),
		Asset:           p.indexAssetID.Hex(),
		PriceUSD:        price.StringFixed(6),
		ContractAddress: p.meta.ContractAddress,
		Network:         p.meta.Network,
		UpdaterAddress:  p.meta.UpdaterAddress,
		Outcome:         "confirmed",
	}
	if pubErr != nil {
		entry.Outcome = "failed"
		if errors.Is(pubErr, oracle.ErrConfirmTimeout) {
			entry.Outcome = "timeout"
		}
		entry.Error = pubErr.Error()
	} else {
		entry.TxHash = receipt.Ref
		entry.BlockNumber = receipt.Block
		entry.GasUsed = receipt.GasUsed
	}

	if err := p.audit.Append(entry); err != nil {
		p.logger.Warn("Failed to write audit log entry", "error", err)
	}
}
