package profitability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func summaryServer(t *testing.T, calls *atomic.Int64, summaries map[string]Summary) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		// Path: /wallets/{address}/profitability/summary
		parts := strings.Split(r.URL.Path, "/")
		require.Len(t, parts, 5)
		address := parts[2]

		s, ok := summaries[address]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(s))
	}))
}

func newTestClient(t *testing.T, url string, now func() time.Time) *Client {
	t.Helper()
	return New(Options{
		BaseURL:  url,
		APIKey:   "test-key",
		Criteria: DefaultCriteria(),
		CacheTTL: time.Hour,
		Logger:   zerolog.Nop(),
		Now:      now,
	})
}

func TestValidate(t *testing.T) {
	var calls atomic.Int64
	srv := summaryServer(t, &calls, map[string]Summary{
		"0xgood": {RealizedProfitUSD: 12_000, RealizedProfitPct: 34.5, TradeCount: 120},
		"0xpoor": {RealizedProfitUSD: 100, RealizedProfitPct: 1.2, TradeCount: 80},
		"0xthin": {RealizedProfitUSD: 5_000, RealizedProfitPct: 50, TradeCount: 2},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	ctx := context.Background()

	ok, err := c.Validate(ctx, "0xgood")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Validate(ctx, "0xpoor")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.Validate(ctx, "0xthin")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = c.Validate(ctx, "0xmissing")
	require.Error(t, err)
}

func TestValidate_CachesVerdict(t *testing.T) {
	var calls atomic.Int64
	srv := summaryServer(t, &calls, map[string]Summary{
		"0xgood": {RealizedProfitUSD: 12_000, RealizedProfitPct: 34.5, TradeCount: 120},
	})
	defer srv.Close()

	clock := time.UnixMilli(0)
	c := newTestClient(t, srv.URL, func() time.Time { return clock })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.Validate(ctx, "0xgood")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, int64(1), calls.Load())

	// Expired entries are refetched.
	clock = clock.Add(2 * time.Hour)
	ok, err := c.Validate(ctx, "0xgood")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), calls.Load())
}

func TestWalletSummary(t *testing.T) {
	var calls atomic.Int64
	srv := summaryServer(t, &calls, map[string]Summary{
		"0xgood": {RealizedProfitUSD: 9_999.5, RealizedProfitPct: 12.25, TradeCount: 42},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	s, err := c.WalletSummary(context.Background(), "0xgood")
	require.NoError(t, err)
	require.Equal(t, 9_999.5, s.RealizedProfitUSD)
	require.Equal(t, 12.25, s.RealizedProfitPct)
	require.Equal(t, 42, s.TradeCount)
}
