// Package db publishes index snapshots to the Postgres store and serves the
// validation gate's price history from the same tables.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/index"
	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/metrics"
	"github.com/0x0shephard/h200/pkg/publish"
)

// Querier is the subset of pgx.Conn the publisher needs. Narrow on purpose:
// tests substitute a fake, production passes *pgx.Conn or *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Publisher writes snapshots to the relational store.
type Publisher struct {
	q             Querier
	indexTable    string
	providerTable string
	logger        *logging.Logger
}

// NewPublisher creates a database publisher. Table names come from validated
// configuration, never from user input.
func NewPublisher(q Querier, indexTable, providerTable string, logger *logging.Logger) *Publisher {
	return &Publisher{
		q:             q,
		indexTable:    indexTable,
		providerTable: providerTable,
		logger:        logger,
	}
}

// Publish inserts the snapshot row and then its per-provider observation
// rows. The two phases are deliberately asymmetric: a snapshot insert
// failure aborts the whole publication, while observation-row failures are
// logged as warnings and leave the committed snapshot standing. The store
// may hold a snapshot without observations, never observations without a
// snapshot.
func (p *Publisher) Publish(ctx context.Context, snap index.Snapshot) (publish.Receipt, error) {
	start := time.Now()

	metadata, err := json.Marshal(metadataFor(snap))
	if err != nil {
		return publish.Receipt{}, fmt.Errorf("failed to encode snapshot metadata: %w", err)
	}

	insertSnapshot := fmt.Sprintf(`INSERT INTO %s
		(timestamp, index_price, hyperscaler_component, neocloud_component, hyperscaler_count, neocloud_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`, p.indexTable)

	var indexID int64
	err = p.q.QueryRow(ctx, insertSnapshot,
		snap.Timestamp,
		storageRound(snap.IndexPrice),
		storageRound(snap.HyperscalerComponent),
		storageRound(snap.NeocloudComponent),
		snap.HyperscalerCount,
		snap.NeocloudCount,
		metadata,
	).Scan(&indexID)
	if err != nil {
		metrics.ObservePublication("database", start, err)
		return publish.Receipt{}, fmt.Errorf("failed to insert index snapshot: %w", err)
	}

	p.logger.Info("Inserted index snapshot",
		"id", indexID, "index_price", snap.IndexPrice.StringFixed(2))

	p.insertComponents(ctx, indexID, snap)

	metrics.ObservePublication("database", start, nil)
	return publish.Receipt{
		Sink:      "database",
		Ref:       strconv.FormatInt(indexID, 10),
		Timestamp: time.Now().UTC(),
	}, nil
}

// insertComponents writes one row per contributing provider. Failures here
// never roll back the snapshot row.
func (p *Publisher) insertComponents(ctx context.Context, indexID int64, snap index.Snapshot) {
	insertRow := fmt.Sprintf(`INSERT INTO %s
		(index_id, timestamp, provider_name, provider_type, original_price, effective_price, discount_rate, relative_weight, absolute_weight, weighted_contribution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, p.providerTable)

	inserted := 0
	for _, c := range snap.Components {
		_, err := p.q.Exec(ctx, insertRow,
			indexID,
			snap.Timestamp,
			c.Provider,
			c.Type,
			storageRound(c.OriginalPrice),
			storageRound(c.EffectivePrice),
			storageRound(c.DiscountRate),
			storageRound(c.RelativeWeight),
			storageRound(c.AbsoluteWeight),
			storageRound(c.WeightedContribution),
		)
		if err != nil {
			p.logger.Warn("Failed to insert provider observation row, snapshot row stands",
				"index_id", indexID, "provider", c.Provider, "error", err)
			continue
		}
		inserted++
	}

	p.logger.Info("Inserted provider observation rows",
		"index_id", indexID, "inserted", inserted, "total", len(snap.Components))
}

// RecentIndexPrices implements index.HistorySource on the same store the
// publisher writes to.
func (p *Publisher) RecentIndexPrices(ctx context.Context, limit int) ([]decimal.Decimal, error) {
	query := fmt.Sprintf(
		`SELECT index_price FROM %s ORDER BY created_at DESC LIMIT $1`, p.indexTable)

	rows, err := p.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query index history: %w", err)
	}
	defer rows.Close()

	var prices []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan index price: %w", err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed index price %q: %w", raw, err)
		}
		prices = append(prices, price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index history: %w", err)
	}

	return prices, nil
}

// storageRound rounds a money value to the 4-digit storage precision. Only
// output boundaries round; upstream math stays exact.
func storageRound(d decimal.Decimal) string {
	return d.Round(4).String()
}

func metadataFor(snap index.Snapshot) map[string]interface{} {
	metadata := make(map[string]interface{}, len(snap.Metadata)+1)
	for k, v := range snap.Metadata {
		metadata[k] = v
	}
	metadata["components"] = snap.Components
	return metadata
}
