package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0shephard/h200/pkg/logging"
)

func TestStaticStrategy_ExtractsFromServerRenderedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Write([]byte(`<html><body>
			<h1>GPU Cloud Pricing</h1>
			<table><tr><td>NVIDIA H200</td><td>$3.79/hr</td></tr></table>
		</body></html>`))
	}))
	defer srv.Close()

	cfg := usdProvider()
	cfg.URL = srv.URL
	cfg.BillingPeriod = "hourly"

	raw, err := NewStaticStrategy(logging.NewNoopLogger()).Attempt(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "static", raw.Strategy)
	assert.True(t, raw.Value.Equal(decimal.RequireFromString("3.79")))
	assert.Equal(t, "USD", raw.Currency)
	assert.Equal(t, "hourly", raw.Period)
}

func TestStaticStrategy_KeywordMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>H100 pricing $2.49/hr</body></html>`))
	}))
	defer srv.Close()

	cfg := usdProvider()
	cfg.URL = srv.URL

	_, err := NewStaticStrategy(logging.NewNoopLogger()).Attempt(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrKeywordMissing)
}

func TestStaticStrategy_Non200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := usdProvider()
	cfg.URL = srv.URL

	_, err := NewStaticStrategy(logging.NewNoopLogger()).Attempt(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestStaticStrategy_KeywordPresentButNoPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>H200 coming soon, contact sales</body></html>`))
	}))
	defer srv.Close()

	cfg := usdProvider()
	cfg.URL = srv.URL

	_, err := NewStaticStrategy(logging.NewNoopLogger()).Attempt(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNotFound)
}
