package clickhouse

import (
	"context"
	"fmt"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/storage"
)

// ScoreHistoryStore implements storage.ScoreHistoryStore using ClickHouse.
// MergeTree does not enforce uniqueness; the table is a pure append-only
// audit trail keyed by (address, computed_at).
type ScoreHistoryStore struct {
	conn *Conn
}

// NewScoreHistoryStore creates a new ScoreHistoryStore.
func NewScoreHistoryStore(conn *Conn) *ScoreHistoryStore {
	return &ScoreHistoryStore{conn: conn}
}

var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// Insert appends a snapshot.
func (s *ScoreHistoryStore) Insert(ctx context.Context, snap *domain.ScoreSnapshot) error {
	if snap == nil || snap.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO score_history (
			address, value, version, seq, trade_count, token_count, closed_count,
			win_rate, risk_multiplier, realized_pnl_usd, roi_percent, status, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		snap.Address,
		snap.Value,
		snap.Version,
		snap.Seq,
		int32(snap.TradeCount),
		int32(snap.TokenCount),
		int32(snap.ClosedCount),
		snap.WinRate,
		snap.RiskMultiplier,
		snap.RealizedPnlUSD,
		snap.ROIPercent,
		string(snap.Status),
		snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert score snapshot: %w", err)
	}
	return nil
}

// GetByAddress retrieves all snapshots for an address, oldest first.
func (s *ScoreHistoryStore) GetByAddress(ctx context.Context, address string) ([]*domain.ScoreSnapshot, error) {
	query := `
		SELECT address, value, version, seq, trade_count, token_count, closed_count,
		       win_rate, risk_multiplier, realized_pnl_usd, roi_percent, status, computed_at
		FROM score_history
		WHERE address = ?
		ORDER BY computed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get score history: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.ScoreSnapshot
	for rows.Next() {
		var (
			snap                                domain.ScoreSnapshot
			tradeCount, tokenCount, closedCount int32
			status                              string
		)
		err := rows.Scan(
			&snap.Address,
			&snap.Value,
			&snap.Version,
			&snap.Seq,
			&tradeCount,
			&tokenCount,
			&closedCount,
			&snap.WinRate,
			&snap.RiskMultiplier,
			&snap.RealizedPnlUSD,
			&snap.ROIPercent,
			&status,
			&snap.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score snapshot row: %w", err)
		}
		snap.TradeCount = int(tradeCount)
		snap.TokenCount = int(tokenCount)
		snap.ClosedCount = int(closedCount)
		snap.Status = domain.Status(status)
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score snapshot rows: %w", err)
	}

	return snaps, nil
}
