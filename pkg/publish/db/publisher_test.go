package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0shephard/h200/pkg/index"
	"github.com/0x0shephard/h200/pkg/logging"
)

type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*int64); ok {
		*p = r.id
	}
	return nil
}

type fakeRows struct {
	values []string
	pos    int
	err    error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	if p, ok := dest[0].(*string); ok {
		*p = r.values[r.pos-1]
	}
	return nil
}
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeQuerier struct {
	rowErr    error
	execErr   error
	queryErr  error
	rows      *fakeRows
	execCalls int
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execCalls++
	return pgconn.CommandTag{}, q.execErr
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{id: 42, err: q.rowErr}
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if q.queryErr != nil {
		return nil, q.queryErr
	}
	return q.rows, nil
}

func testSnapshot() index.Snapshot {
	return index.Snapshot{
		Timestamp:            time.Now().UTC(),
		IndexPrice:           decimal.RequireFromString("4.62"),
		HyperscalerComponent: decimal.RequireFromString("5.50"),
		NeocloudComponent:    decimal.RequireFromString("3.75"),
		HyperscalerCount:     1,
		NeocloudCount:        1,
		Components: []index.ComponentDetail{
			{Provider: "gcp", Type: "hyperscaler"},
			{Provider: "crusoe", Type: "neocloud"},
		},
	}
}

func TestPublish_InsertsSnapshotAndComponents(t *testing.T) {
	q := &fakeQuerier{}
	p := NewPublisher(q, "h200_index_prices", "h200_provider_prices", logging.NewNoopLogger())

	receipt, err := p.Publish(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "database", receipt.Sink)
	assert.Equal(t, "42", receipt.Ref)
	assert.Equal(t, 2, q.execCalls, "one observation row per component")
}

func TestPublish_SnapshotFailureAborts(t *testing.T) {
	q := &fakeQuerier{rowErr: errors.New("relation does not exist")}
	p := NewPublisher(q, "h200_index_prices", "h200_provider_prices", logging.NewNoopLogger())

	_, err := p.Publish(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Equal(t, 0, q.execCalls, "no observation rows without a snapshot row")
}

func TestPublish_ComponentFailureLeavesSnapshotStanding(t *testing.T) {
	q := &fakeQuerier{execErr: errors.New("constraint violation")}
	p := NewPublisher(q, "h200_index_prices", "h200_provider_prices", logging.NewNoopLogger())

	receipt, err := p.Publish(context.Background(), testSnapshot())
	require.NoError(t, err, "observation-row failures must not fail the publication")
	assert.Equal(t, "42", receipt.Ref)
	assert.Equal(t, 2, q.execCalls, "every component row is still attempted")
}

func TestRecentIndexPrices(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{values: []string{"4.2000", "4.0000"}}}
	p := NewPublisher(q, "h200_index_prices", "h200_provider_prices", logging.NewNoopLogger())

	prices, err := p.RecentIndexPrices(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.True(t, prices[0].Equal(decimal.RequireFromString("4.2")))
	assert.True(t, prices[1].Equal(decimal.RequireFromString("4.0")))
}

func TestRecentIndexPrices_QueryError(t *testing.T) {
	q := &fakeQuerier{queryErr: errors.New("connection refused")}
	p := NewPublisher(q, "h200_index_prices", "h200_provider_prices", logging.NewNoopLogger())

	_, err := p.RecentIndexPrices(context.Background(), 2)
	assert.Error(t, err)
}

func TestStorageRound(t *testing.T) {
	assert.Equal(t, "4.6254", storageRound(decimal.RequireFromString("4.62539")))
	assert.Equal(t, "3.5", storageRound(decimal.RequireFromString("3.50")))
}
