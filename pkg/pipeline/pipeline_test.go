package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/index"
	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/publish"
	"github.com/0x0shephard/h200/pkg/publish/auditlog"
	"github.com/0x0shephard/h200/pkg/publish/oracle"
	"github.com/0x0shephard/h200/pkg/scrape"
)

type fakeScraper struct {
	name  string
	price string
	err   error
}

func (f *fakeScraper) Provider() string { return f.name }

func (f *fakeScraper) Scrape(ctx context.Context) (scrape.PriceObservation, error) {
	if f.err != nil {
		return scrape.PriceObservation{}, f.err
	}
	return scrape.PriceObservation{
		Provider: f.name,
		Price:    decimal.RequireFromString(f.price),
	}, nil
}

type fakeSnapshotSink struct {
	calls int
	err   error
}

func (f *fakeSnapshotSink) Publish(ctx context.Context, snap index.Snapshot) (publish.Receipt, error) {
	f.calls++
	if f.err != nil {
		return publish.Receipt{}, f.err
	}
	return publish.Receipt{Sink: "database", Ref: "1"}, nil
}

type fakePriceSink struct {
	calls   int
	updates []oracle.PriceUpdate
	err     error
}

func (f *fakePriceSink) Publish(ctx context.Context, updates []oracle.PriceUpdate) (publish.Receipt, error) {
	f.calls++
	f.updates = updates
	if f.err != nil {
		return publish.Receipt{}, f.err
	}
	return publish.Receipt{Sink: "oracle", Ref: "0xabc", Block: 1, GasUsed: 90000}, nil
}

type fixedHistory struct {
	prices []decimal.Decimal
}

func (f *fixedHistory) RecentIndexPrices(ctx context.Context, limit int) ([]decimal.Decimal, error) {
	return f.prices, nil
}

var (
	indexAssetID = common.HexToHash("0x4d8595569ab5d2563e4c149c5de961d0e0732cd0560020b3474d281189c2571e")
	gcpAssetID   = common.HexToHash("0x0ba2d87db04ca970c41ab4334516ce12e74356d71ee96e228fb1ba5d519aaaf4")
)

func testPipeline(t *testing.T, history index.HistorySource, opts ...Option) (*Pipeline, []Scraper) {
	t.Helper()
	logger := logging.NewNoopLogger()

	providers := []config.ProviderConfig{
		{Name: "gcp", Type: "hyperscaler", Weight: 1.0},
		{Name: "crusoe", Type: "neocloud", Weight: 1.0},
	}
	scrapers := []Scraper{
		&fakeScraper{name: "gcp", price: "5.00"},
		&fakeScraper{name: "crusoe", price: "3.00"},
	}

	agg := index.NewAggregator(providers, config.IndexConfig{
		HyperscalerWeight: 0.5, NeocloudWeight: 0.5, Tolerance: 0.25,
	}, logger)
	gate := index.NewGate(history, 0.25, logger)

	return New(scrapers, agg, gate, logger, opts...), scrapers
}

func TestRun_PublishesToAllSinks(t *testing.T) {
	db := &fakeSnapshotSink{}
	chain := &fakePriceSink{}
	audit := auditlog.New(filepath.Join(t.TempDir(), "audit.json"))

	p, _ := testPipeline(t, index.NoHistory{},
		WithDatabase(db),
		WithOracle(chain, indexAssetID, map[string]common.Hash{"gcp": gcpAssetID}, OracleMeta{}, audit))

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Published)
	assert.Len(t, result.Receipts, 2)
	assert.Equal(t, 1, db.calls)
	assert.Equal(t, 1, chain.calls)

	// Index price is published under the index asset id; gcp additionally
	// under its own id. crusoe has no id configured and stays off-chain.
	require.Len(t, chain.updates, 2)
	assert.Equal(t, indexAssetID, chain.updates[0].AssetID)
	assert.True(t, chain.updates[0].Price.Equal(decimal.RequireFromString("4.00")))
	assert.Equal(t, gcpAssetID, chain.updates[1].AssetID)
	assert.True(t, chain.updates[1].Price.Equal(decimal.RequireFromString("5.00")))

	entries, err := audit.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "confirmed", entries[0].Outcome)
	assert.Equal(t, "0xabc", entries[0].TxHash)
}

func TestRun_RejectionSkipsPublication(t *testing.T) {
	db := &fakeSnapshotSink{}
	chain := &fakePriceSink{}

	// Recent history around 2.00; the computed index of 4.00 deviates far
	// beyond ±25% and must be rejected.
	history := &fixedHistory{prices: []decimal.Decimal{
		decimal.RequireFromString("2.00"),
		decimal.RequireFromString("2.10"),
	}}
	p, _ := testPipeline(t, history,
		WithDatabase(db),
		WithOracle(chain, indexAssetID, nil, OracleMeta{}, nil))

	result, err := p.Run(context.Background())
	require.NoError(t, err, "a rejection is a reported outcome, not an error")

	assert.False(t, result.Published)
	assert.False(t, result.Decision.Accepted)
	assert.Equal(t, 0, db.calls)
	assert.Equal(t, 0, chain.calls)
}

func TestRun_ProviderFailureSkipped(t *testing.T) {
	logger := logging.NewNoopLogger()
	providers := []config.ProviderConfig{
		{Name: "gcp", Type: "hyperscaler", Weight: 1.0},
		{Name: "crusoe", Type: "neocloud", Weight: 1.0},
	}
	scrapers := []Scraper{
		&fakeScraper{name: "gcp", err: errors.New("all strategies failed")},
		&fakeScraper{name: "crusoe", price: "3.00"},
	}
	agg := index.NewAggregator(providers, config.IndexConfig{
		HyperscalerWeight: 0.5, NeocloudWeight: 0.5, Tolerance: 0.25,
	}, logger)
	db := &fakeSnapshotSink{}

	p := New(scrapers, agg, index.NewGate(index.NoHistory{}, 0.25, logger), logger, WithDatabase(db))

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// The neocloud group carries the index alone.
	assert.True(t, result.Snapshot.IndexPrice.Equal(decimal.RequireFromString("3.00")))
	assert.Equal(t, 1, db.calls)
}

func TestRun_AllProvidersFailed(t *testing.T) {
	logger := logging.NewNoopLogger()
	scrapers := []Scraper{&fakeScraper{name: "gcp", err: errors.New("down")}}
	agg := index.NewAggregator(nil, config.IndexConfig{}, logger)

	p := New(scrapers, agg, index.NewGate(index.NoHistory{}, 0.25, logger), logger)

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, index.ErrNoObservations)
}

func TestRun_SinkFailureIsHardError(t *testing.T) {
	db := &fakeSnapshotSink{err: errors.New("connection refused")}
	chain := &fakePriceSink{}
	audit := auditlog.New(filepath.Join(t.TempDir(), "audit.json"))

	p, _ := testPipeline(t, index.NoHistory{},
		WithDatabase(db),
		WithOracle(chain, indexAssetID, nil, OracleMeta{}, audit))

	result, err := p.Run(context.Background())
	require.Error(t, err)

	// The other sink is still attempted; one failure does not cancel the run.
	assert.Equal(t, 1, chain.calls)
	assert.True(t, result.Published)
	assert.Len(t, result.Receipts, 1)
}

func TestRun_OracleFailureAudited(t *testing.T) {
	chain := &fakePriceSink{err: errors.New("nonce too low")}
	audit := auditlog.New(filepath.Join(t.TempDir(), "audit.json"))

	p, _ := testPipeline(t, index.NoHistory{},
		WithOracle(chain, indexAssetID, nil, OracleMeta{Network: "11155111"}, audit))

	_, err := p.Run(context.Background())
	require.Error(t, err)

	entries, err := audit.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Outcome)
	assert.Contains(t, entries[0].Error, "nonce too low")
}
