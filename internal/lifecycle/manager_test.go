package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/scoring"
	"whale-allocator/internal/storage"
	"whale-allocator/internal/storage/memory"
)

func newManager(t *testing.T, store storage.WhaleStore) *Manager {
	t.Helper()
	return NewManager(Options{
		Store:   store,
		History: memory.NewScoreHistoryStore(),
		Engine:  scoring.NewEngine(scoring.DefaultWeights()),
		Config:  Config{MinTrades: 20, MinTokens: 5},
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.UnixMilli(50_000) },
	})
}

// seedWhale creates a record and appends trades spread across tokenCount
// distinct tokens, all closed with positive pnl.
func seedWhale(t *testing.T, store storage.WhaleStore, address string, tradeCount, tokenCount int) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, address); err != nil {
		require.NoError(t, store.Create(ctx, &domain.WhaleRecord{
			Address: address, Status: domain.StatusAdaptiveCandidate, CreatedAt: 1000,
		}))
	}

	existing, err := store.TradeCount(ctx, address)
	require.NoError(t, err)

	for i := existing; i < tradeCount; i++ {
		pnl := 50.0
		tr := &domain.Trade{
			Token:     fmt.Sprintf("0xtok%d", i%tokenCount),
			Side:      domain.SideBuy,
			Amount:    1,
			ValueUSD:  1000,
			PnlUSD:    &pnl,
			Timestamp: int64(1000 + i),
			TxHash:    fmt.Sprintf("0xhash%d", i),
			TxIndex:   0,
		}
		require.NoError(t, store.AppendTrade(ctx, address, tr))
	}
}

func TestEvaluate_Gate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		trades     int
		tokens     int
		wantStatus domain.Status
	}{
		{"below both minimums", 10, 3, domain.StatusDiscarded},
		{"enough tokens but 19 trades", 19, 6, domain.StatusDiscarded},
		{"enough trades but 4 tokens", 25, 4, domain.StatusDiscarded},
		{"exactly at both minimums", 20, 5, domain.StatusActive},
		{"well above both minimums", 40, 8, domain.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewWhaleStore()
			m := newManager(t, store)
			seedWhale(t, store, "0xwhale", tt.trades, tt.tokens)

			rec, err := m.Evaluate(ctx, "0xwhale")
			require.NoError(t, err)
			require.Equal(t, tt.wantStatus, rec.Status)

			if tt.wantStatus == domain.StatusDiscarded {
				require.NotEmpty(t, rec.DiscardedReason)
			} else {
				require.Empty(t, rec.DiscardedReason)
				require.Greater(t, rec.Score.Value, 0.0)
			}
			require.Equal(t, scoring.Version, rec.Score.Version)
		})
	}
}

func TestEvaluate_PromotesOnceGateIsMet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWhaleStore()
	m := newManager(t, store)

	seedWhale(t, store, "0xwhale", 19, 6)
	rec, err := m.Evaluate(ctx, "0xwhale")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDiscarded, rec.Status)

	// One more trade crosses the gate.
	seedWhale(t, store, "0xwhale", 20, 6)
	rec, err = m.Evaluate(ctx, "0xwhale")
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, rec.Status)
}

func TestEvaluate_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWhaleStore()
	m := newManager(t, store)
	seedWhale(t, store, "0xwhale", 30, 6)

	first, err := m.Evaluate(ctx, "0xwhale")
	require.NoError(t, err)
	second, err := m.Evaluate(ctx, "0xwhale")
	require.NoError(t, err)

	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.Score.Value, second.Score.Value)
	// The write sequence still advances on every recompute.
	require.Equal(t, first.ScoreSeq+1, second.ScoreSeq)
}

func TestOnTradeIngested_CandidateGrace(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWhaleStore()
	m := newManager(t, store)

	// An immature candidate is watched, not judged.
	seedWhale(t, store, "0xwhale", 5, 2)
	require.NoError(t, m.OnTradeIngested(ctx, "0xwhale"))

	rec, err := store.Get(ctx, "0xwhale")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAdaptiveCandidate, rec.Status)

	// At maturity the gate applies.
	seedWhale(t, store, "0xwhale", 20, 3)
	require.NoError(t, m.OnTradeIngested(ctx, "0xwhale"))

	rec, err = store.Get(ctx, "0xwhale")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDiscarded, rec.Status)
}

func TestRescan(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWhaleStore()
	m := newManager(t, store)

	seedWhale(t, store, "0xwhale", 25, 3)
	rec, err := m.Evaluate(ctx, "0xwhale")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDiscarded, rec.Status)

	// Rescan lands in observation, never directly active.
	require.NoError(t, m.Rescan(ctx, "0xwhale"))
	rec2, err := store.Get(ctx, "0xwhale")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAdaptiveCandidate, rec2.Status)

	// Only discarded whales can be rescanned.
	err = m.Rescan(ctx, "0xwhale")
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	err = m.Rescan(ctx, "0xnobody")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecalculateAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWhaleStore()
	m := newManager(t, store)

	seedWhale(t, store, "0xgood", 30, 6)
	seedWhale(t, store, "0xthin", 5, 2)
	seedWhale(t, store, "0xnarrow", 25, 3)

	result, err := m.RecalculateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.Evaluated)
	require.Equal(t, 1, result.Active)
	require.Equal(t, 2, result.Discarded)
	require.Equal(t, 0, result.Failed)

	active, err := store.ListByStatus(ctx, domain.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "0xgood", active[0].Address)
}

func TestEvaluate_WritesScoreHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWhaleStore()
	history := memory.NewScoreHistoryStore()
	m := NewManager(Options{
		Store:   store,
		History: history,
		Engine:  scoring.NewEngine(scoring.DefaultWeights()),
		Config:  Config{MinTrades: 20, MinTokens: 5},
		Logger:  zerolog.Nop(),
	})

	seedWhale(t, store, "0xwhale", 22, 6)
	_, err := m.Evaluate(ctx, "0xwhale")
	require.NoError(t, err)
	_, err = m.Evaluate(ctx, "0xwhale")
	require.NoError(t, err)

	snaps, err := history.GetByAddress(ctx, "0xwhale")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, 22, snaps[0].TradeCount)
	require.Equal(t, 6, snaps[0].TokenCount)
	require.Equal(t, domain.StatusActive, snaps[0].Status)
}
