// Package memory provides in-memory store implementations for tests and
// ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/storage"
)

// WhaleStore is an in-memory implementation of storage.WhaleStore.
type WhaleStore struct {
	mu      sync.RWMutex
	records map[string]*domain.WhaleRecord
	trades  map[string][]*domain.Trade
	seen    map[string]map[string]struct{} // address -> dedup keys
}

// NewWhaleStore creates a new in-memory whale store.
func NewWhaleStore() *WhaleStore {
	return &WhaleStore{
		records: make(map[string]*domain.WhaleRecord),
		trades:  make(map[string][]*domain.Trade),
		seen:    make(map[string]map[string]struct{}),
	}
}

var _ storage.WhaleStore = (*WhaleStore)(nil)

// Get retrieves a whale record by address. Returns ErrNotFound if not exists.
func (s *WhaleStore) Get(_ context.Context, address string) (*domain.WhaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *rec
	return &copy, nil
}

// Create adds a new whale record. Returns ErrDuplicateKey if the address exists.
func (s *WhaleStore) Create(_ context.Context, w *domain.WhaleRecord) error {
	if w == nil || w.Address == "" || !w.Status.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[w.Address]; exists {
		return storage.ErrDuplicateKey
	}
	copy := *w
	s.records[w.Address] = &copy
	s.seen[w.Address] = make(map[string]struct{})
	return nil
}

// AppendTrade appends a trade to the address's history, idempotent on the
// trade's dedup key.
func (s *WhaleStore) AppendTrade(_ context.Context, address string, t *domain.Trade) error {
	if t == nil || address == "" || t.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[address]; !exists {
		return storage.ErrNotFound
	}

	key := t.DedupKey()
	if _, dup := s.seen[address][key]; dup {
		return storage.ErrDuplicateKey
	}
	s.seen[address][key] = struct{}{}

	copy := *t
	if t.PnlUSD != nil {
		pnl := *t.PnlUSD
		copy.PnlUSD = &pnl
	}
	s.trades[address] = append(s.trades[address], &copy)
	return nil
}

// Trades retrieves the full trade history for an address in ingestion order.
func (s *WhaleStore) Trades(_ context.Context, address string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.records[address]; !exists {
		return nil, storage.ErrNotFound
	}

	result := make([]*domain.Trade, 0, len(s.trades[address]))
	for _, t := range s.trades[address] {
		copy := *t
		if t.PnlUSD != nil {
			pnl := *t.PnlUSD
			copy.PnlUSD = &pnl
		}
		result = append(result, &copy)
	}
	return result, nil
}

// TradeCount returns the number of ingested trades for an address.
func (s *WhaleStore) TradeCount(_ context.Context, address string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.records[address]; !exists {
		return 0, storage.ErrNotFound
	}
	return len(s.trades[address]), nil
}

// SetStatus updates a whale's status and discard reason.
func (s *WhaleStore) SetStatus(_ context.Context, address string, status domain.Status, reason string) error {
	if !status.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[address]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Status = status
	rec.DiscardedReason = reason
	return nil
}

// ListByStatus retrieves all whales with the given status, score descending.
func (s *WhaleStore) ListByStatus(_ context.Context, status domain.Status) ([]*domain.WhaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WhaleRecord
	for _, rec := range s.records {
		if rec.Status == status {
			copy := *rec
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Score.Value != result[j].Score.Value {
			return result[i].Score.Value > result[j].Score.Value
		}
		return result[i].Address < result[j].Address
	})

	return result, nil
}

// Addresses retrieves every tracked address, sorted for deterministic sweeps.
func (s *WhaleStore) Addresses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.records))
	for addr := range s.records {
		result = append(result, addr)
	}
	sort.Strings(result)
	return result, nil
}

// CompareAndSetScore writes a recomputed score if the stored sequence still
// equals expectedSeq.
func (s *WhaleStore) CompareAndSetScore(_ context.Context, address string, expectedSeq int64, score domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[address]
	if !ok {
		return storage.ErrNotFound
	}
	if rec.ScoreSeq != expectedSeq {
		return storage.ErrVersionConflict
	}
	rec.Score = score
	rec.ScoreSeq++
	rec.LastScannedAt = score.ComputedAt
	return nil
}
