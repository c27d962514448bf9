package storage

import (
	"context"

	"whale-allocator/internal/domain"
)

// WhaleStore provides access to whale records and their trade histories.
// Trade history is append-only per address; records are never deleted, a
// discard is a status flag. Implementations serialize updates per address.
type WhaleStore interface {
	// Get retrieves a whale record by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.WhaleRecord, error)

	// Create adds a new whale record. Returns ErrDuplicateKey if the address exists.
	Create(ctx context.Context, w *domain.WhaleRecord) error

	// AppendTrade appends a trade to the address's history. Idempotent on the
	// trade's dedup key: returns ErrDuplicateKey if already ingested.
	// Returns ErrNotFound if the whale record does not exist.
	AppendTrade(ctx context.Context, address string, t *domain.Trade) error

	// Trades retrieves the full trade history for an address in ingestion order.
	Trades(ctx context.Context, address string) ([]*domain.Trade, error)

	// TradeCount returns the number of ingested trades for an address.
	TradeCount(ctx context.Context, address string) (int, error)

	// SetStatus updates a whale's status and discard reason.
	SetStatus(ctx context.Context, address string, status domain.Status, reason string) error

	// ListByStatus retrieves all whales with the given status, score descending.
	ListByStatus(ctx context.Context, status domain.Status) ([]*domain.WhaleRecord, error)

	// Addresses retrieves every tracked address, for sweeps.
	Addresses(ctx context.Context) ([]string, error)

	// CompareAndSetScore writes a recomputed score if the stored sequence
	// still equals expectedSeq, incrementing the sequence and stamping
	// LastScannedAt. Returns ErrVersionConflict on a lost race.
	CompareAndSetScore(ctx context.Context, address string, expectedSeq int64, score domain.Score) error
}

// ScoreHistoryStore is an append-only audit trail of score recomputations.
type ScoreHistoryStore interface {
	// Insert appends a snapshot.
	Insert(ctx context.Context, s *domain.ScoreSnapshot) error

	// GetByAddress retrieves all snapshots for an address, oldest first.
	GetByAddress(ctx context.Context, address string) ([]*domain.ScoreSnapshot, error)
}
