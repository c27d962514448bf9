package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/lifecycle"
	"whale-allocator/internal/scoring"
	"whale-allocator/internal/storage/memory"
)

type fixture struct {
	store   *memory.WhaleStore
	history *memory.ScoreHistoryStore
	manager *lifecycle.Manager
	srv     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewWhaleStore()
	history := memory.NewScoreHistoryStore()
	manager := lifecycle.NewManager(lifecycle.Options{
		Store:   store,
		History: history,
		Engine:  scoring.NewEngine(scoring.DefaultWeights()),
		Config:  lifecycle.Config{MinTrades: 20, MinTokens: 5},
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.UnixMilli(50_000) },
	})

	s := NewServer(Options{
		Store:     store,
		History:   history,
		Lifecycle: manager,
		Mode:      "TEST",
		Logger:    zerolog.Nop(),
	})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{store: store, history: history, manager: manager, srv: srv}
}

// seedWhale creates a record and a qualifying 20-trade history across 5
// tokens, then evaluates it into the given status's neighborhood.
func (f *fixture) seedWhale(t *testing.T, address string, trades int) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.store.Create(ctx, &domain.WhaleRecord{
		Address: address,
		Status:  domain.StatusAdaptiveCandidate,
	}))
	for i := 0; i < trades; i++ {
		pnl := 50.0
		require.NoError(t, f.store.AppendTrade(ctx, address, &domain.Trade{
			Token:     fmt.Sprintf("0xtok%d", i%5),
			Side:      domain.SideBuy,
			Amount:    1,
			ValueUSD:  1000,
			Timestamp: int64(1000 + i),
			TxHash:    fmt.Sprintf("0xtx%d", i),
			PnlUSD:    &pnl,
		}))
	}
	_, err := f.manager.Evaluate(ctx, address)
	require.NoError(t, err)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)
	f.seedWhale(t, "0xactive", 20)
	f.seedWhale(t, "0xshort", 3)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/status", &status))
	require.Equal(t, "TEST", status.Mode)
	require.Equal(t, 1, status.Active)
	require.Equal(t, 1, status.Discarded)
}

func TestListWhales(t *testing.T) {
	f := newFixture(t)
	f.seedWhale(t, "0xactive", 20)
	f.seedWhale(t, "0xshort", 3)

	var list ListResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/whales", &list))
	require.Equal(t, string(domain.StatusActive), list.Status)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "0xactive", list.Whales[0].Address)

	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/whales?status=DISCARDED", &list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, "0xshort", list.Whales[0].Address)

	require.Equal(t, http.StatusBadRequest, getJSON(t, f.srv.URL+"/whales?status=BOGUS", nil))
}

func TestWhaleDetails(t *testing.T) {
	f := newFixture(t)
	f.seedWhale(t, "0xactive", 20)

	var details DetailsResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/whales/0xactive", &details))
	require.Equal(t, "0xactive", details.Whale.Address)
	require.Equal(t, domain.StatusActive, details.Whale.Status)
	require.Equal(t, 20, details.TradeCount)
	require.NotEmpty(t, details.History)
	require.Equal(t, scoring.Version, details.History[0].Version)

	require.Equal(t, http.StatusNotFound, getJSON(t, f.srv.URL+"/whales/0xmissing", nil))
}

func TestRescan(t *testing.T) {
	f := newFixture(t)
	f.seedWhale(t, "0xshort", 3)
	f.seedWhale(t, "0xactive", 20)

	var rec domain.WhaleRecord
	require.Equal(t, http.StatusOK, postJSON(t, f.srv.URL+"/rescan/0xshort", &rec))
	require.Equal(t, domain.StatusAdaptiveCandidate, rec.Status)

	// Only discarded whales can be rescanned.
	require.Equal(t, http.StatusConflict, postJSON(t, f.srv.URL+"/rescan/0xactive", nil))
	require.Equal(t, http.StatusNotFound, postJSON(t, f.srv.URL+"/rescan/0xmissing", nil))
}

func TestRecalculate(t *testing.T) {
	f := newFixture(t)
	f.seedWhale(t, "0xactive", 20)
	f.seedWhale(t, "0xshort", 3)

	var result lifecycle.SweepResult
	require.Equal(t, http.StatusOK, postJSON(t, f.srv.URL+"/recalculate", &result))
	require.Equal(t, 2, result.Evaluated)
	require.Equal(t, 1, result.Active)
	require.Equal(t, 1, result.Discarded)
	require.Equal(t, 0, result.Failed)
}
