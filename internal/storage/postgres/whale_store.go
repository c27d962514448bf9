package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/storage"
)

// WhaleStore implements storage.WhaleStore using PostgreSQL. Per-address
// serialization of score writes comes from the score_seq guard; trade
// idempotency from the (address, tx_hash, tx_index) unique constraint.
type WhaleStore struct {
	pool *Pool
}

// NewWhaleStore creates a new WhaleStore.
func NewWhaleStore(pool *Pool) *WhaleStore {
	return &WhaleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WhaleStore = (*WhaleStore)(nil)

const pgErrForeignKeyViolation = "23503"

// wrapStoreErr maps retriable connection failures to ErrUnavailable so
// ingestion can retry with the same dedup key.
func wrapStoreErr(op string, err error) error {
	if pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Get retrieves a whale record by address. Returns ErrNotFound if not exists.
func (s *WhaleStore) Get(ctx context.Context, address string) (*domain.WhaleRecord, error) {
	query := `
		SELECT address, status, discarded_reason, score_value, score_version,
		       score_seq, score_computed_at, last_scanned_at, created_at
		FROM whales
		WHERE address = $1
	`

	rec, err := scanWhale(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapStoreErr("get whale", err)
	}
	return rec, nil
}

// Create adds a new whale record. Returns ErrDuplicateKey if the address exists.
func (s *WhaleStore) Create(ctx context.Context, w *domain.WhaleRecord) error {
	if w == nil || w.Address == "" || !w.Status.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO whales (
			address, status, discarded_reason, score_value, score_version,
			score_seq, score_computed_at, last_scanned_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		w.Address,
		w.Status,
		w.DiscardedReason,
		w.Score.Value,
		w.Score.Version,
		w.ScoreSeq,
		w.Score.ComputedAt,
		w.LastScannedAt,
		w.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return wrapStoreErr("create whale", err)
	}
	return nil
}

// AppendTrade appends a trade, idempotent on (address, tx_hash, tx_index).
func (s *WhaleStore) AppendTrade(ctx context.Context, address string, t *domain.Trade) error {
	if t == nil || address == "" || t.TxHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO whale_trades (
			address, token, side, amount, value_usd, pnl_usd,
			timestamp, tx_hash, block_number, tx_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		address,
		t.Token,
		t.Side,
		t.Amount,
		t.ValueUSD,
		t.PnlUSD,
		t.Timestamp,
		t.TxHash,
		t.BlockNumber,
		t.TxIndex,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrForeignKeyViolation {
			return storage.ErrNotFound
		}
		return wrapStoreErr("append trade", err)
	}
	return nil
}

// Trades retrieves the full trade history for an address in ingestion order.
func (s *WhaleStore) Trades(ctx context.Context, address string) ([]*domain.Trade, error) {
	if _, err := s.Get(ctx, address); err != nil {
		return nil, err
	}

	query := `
		SELECT token, side, amount, value_usd, pnl_usd,
		       timestamp, tx_hash, block_number, tx_index
		FROM whale_trades
		WHERE address = $1
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, wrapStoreErr("get trades", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// TradeCount returns the number of ingested trades for an address.
func (s *WhaleStore) TradeCount(ctx context.Context, address string) (int, error) {
	if _, err := s.Get(ctx, address); err != nil {
		return 0, err
	}

	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM whale_trades WHERE address = $1`, address,
	).Scan(&count)
	if err != nil {
		return 0, wrapStoreErr("count trades", err)
	}
	return count, nil
}

// SetStatus updates a whale's status and discard reason.
func (s *WhaleStore) SetStatus(ctx context.Context, address string, status domain.Status, reason string) error {
	if !status.Valid() {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE whales SET status = $2, discarded_reason = $3 WHERE address = $1`,
		address, status, reason,
	)
	if err != nil {
		return wrapStoreErr("set status", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByStatus retrieves all whales with the given status, score descending.
func (s *WhaleStore) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.WhaleRecord, error) {
	query := `
		SELECT address, status, discarded_reason, score_value, score_version,
		       score_seq, score_computed_at, last_scanned_at, created_at
		FROM whales
		WHERE status = $1
		ORDER BY score_value DESC, address ASC
	`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, wrapStoreErr("list whales by status", err)
	}
	defer rows.Close()

	var whales []*domain.WhaleRecord
	for rows.Next() {
		rec, err := scanWhale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan whale row: %w", err)
		}
		whales = append(whales, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate whale rows: %w", err)
	}
	return whales, nil
}

// Addresses retrieves every tracked address.
func (s *WhaleStore) Addresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM whales ORDER BY address ASC`)
	if err != nil {
		return nil, wrapStoreErr("list addresses", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan address row: %w", err)
		}
		addrs = append(addrs, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate address rows: %w", err)
	}
	return addrs, nil
}

// CompareAndSetScore writes a recomputed score guarded by score_seq.
func (s *WhaleStore) CompareAndSetScore(ctx context.Context, address string, expectedSeq int64, score domain.Score) error {
	query := `
		UPDATE whales
		SET score_value = $3, score_version = $4, score_computed_at = $5,
		    score_seq = score_seq + 1, last_scanned_at = $5
		WHERE address = $1 AND score_seq = $2
	`

	tag, err := s.pool.Exec(ctx, query,
		address, expectedSeq, score.Value, score.Version, score.ComputedAt,
	)
	if err != nil {
		return wrapStoreErr("compare and set score", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, address); err != nil {
			return err
		}
		return storage.ErrVersionConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanWhale scans a single whale row.
func scanWhale(row rowScanner) (*domain.WhaleRecord, error) {
	var rec domain.WhaleRecord
	err := row.Scan(
		&rec.Address,
		&rec.Status,
		&rec.DiscardedReason,
		&rec.Score.Value,
		&rec.Score.Version,
		&rec.ScoreSeq,
		&rec.Score.ComputedAt,
		&rec.LastScannedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade
		err := rows.Scan(
			&t.Token,
			&t.Side,
			&t.Amount,
			&t.ValueUSD,
			&t.PnlUSD,
			&t.Timestamp,
			&t.TxHash,
			&t.BlockNumber,
			&t.TxIndex,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
