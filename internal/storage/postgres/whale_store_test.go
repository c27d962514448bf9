package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/storage"
)

func TestWhaleStore_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := NewWhaleStore(pool)

	rec := &domain.WhaleRecord{
		Address:   "0xwhale1",
		Status:    domain.StatusAdaptiveCandidate,
		CreatedAt: 1000,
	}

	t.Run("create and get", func(t *testing.T) {
		_, err := s.Get(ctx, "0xwhale1")
		require.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Get(ctx, "0xwhale1")
		require.NoError(t, err)
		require.Equal(t, domain.StatusAdaptiveCandidate, got.Status)
		require.Equal(t, int64(0), got.ScoreSeq)

		require.ErrorIs(t, s.Create(ctx, rec), storage.ErrDuplicateKey)
	})

	t.Run("append trade idempotency", func(t *testing.T) {
		tr := &domain.Trade{
			Token: "0xtok", Side: domain.SideBuy, Amount: 2, ValueUSD: 1500,
			PnlUSD: ptr(120.0), Timestamp: 2000, TxHash: "0xhash1", BlockNumber: 10, TxIndex: 1,
		}
		require.NoError(t, s.AppendTrade(ctx, "0xwhale1", tr))
		require.ErrorIs(t, s.AppendTrade(ctx, "0xwhale1", tr), storage.ErrDuplicateKey)

		// Same hash with a different block ref is the same on-chain trade.
		confirmed := *tr
		confirmed.BlockNumber = 11
		confirmed.TxIndex = 4
		require.ErrorIs(t, s.AppendTrade(ctx, "0xwhale1", &confirmed), storage.ErrDuplicateKey)

		tr2 := *tr
		tr2.TxHash = "0xhash2"
		tr2.TxIndex = 2
		tr2.PnlUSD = nil
		require.NoError(t, s.AppendTrade(ctx, "0xwhale1", &tr2))

		require.ErrorIs(t, s.AppendTrade(ctx, "0xnobody", tr), storage.ErrNotFound)

		trades, err := s.Trades(ctx, "0xwhale1")
		require.NoError(t, err)
		require.Len(t, trades, 2)
		require.NotNil(t, trades[0].PnlUSD)
		require.Equal(t, 120.0, *trades[0].PnlUSD)
		require.Nil(t, trades[1].PnlUSD)

		n, err := s.TradeCount(ctx, "0xwhale1")
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("status and listing", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, &domain.WhaleRecord{
			Address: "0xwhale2", Status: domain.StatusAdaptiveCandidate, CreatedAt: 1100,
		}))

		require.NoError(t, s.SetStatus(ctx, "0xwhale1", domain.StatusActive, ""))
		require.NoError(t, s.SetStatus(ctx, "0xwhale2", domain.StatusDiscarded, "fewer than 20 trades (2)"))
		require.ErrorIs(t, s.SetStatus(ctx, "0xnobody", domain.StatusActive, ""), storage.ErrNotFound)

		active, err := s.ListByStatus(ctx, domain.StatusActive)
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, "0xwhale1", active[0].Address)

		discarded, err := s.ListByStatus(ctx, domain.StatusDiscarded)
		require.NoError(t, err)
		require.Len(t, discarded, 1)
		require.Equal(t, "fewer than 20 trades (2)", discarded[0].DiscardedReason)

		addrs, err := s.Addresses(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"0xwhale1", "0xwhale2"}, addrs)
	})

	t.Run("compare and set score", func(t *testing.T) {
		score := domain.Score{Value: 77.5, Version: "2.0", ComputedAt: 9000}
		require.NoError(t, s.CompareAndSetScore(ctx, "0xwhale1", 0, score))

		got, err := s.Get(ctx, "0xwhale1")
		require.NoError(t, err)
		require.Equal(t, score, got.Score)
		require.Equal(t, int64(1), got.ScoreSeq)
		require.Equal(t, int64(9000), got.LastScannedAt)

		err = s.CompareAndSetScore(ctx, "0xwhale1", 0, domain.Score{Value: 1, Version: "2.0"})
		require.ErrorIs(t, err, storage.ErrVersionConflict)

		err = s.CompareAndSetScore(ctx, "0xnobody", 0, score)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}
