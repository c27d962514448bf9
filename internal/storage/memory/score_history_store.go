package memory

import (
	"context"
	"sort"
	"sync"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/storage"
)

// ScoreHistoryStore is an in-memory implementation of storage.ScoreHistoryStore.
type ScoreHistoryStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.ScoreSnapshot
}

// NewScoreHistoryStore creates a new in-memory score history store.
func NewScoreHistoryStore() *ScoreHistoryStore {
	return &ScoreHistoryStore{
		data: make(map[string][]*domain.ScoreSnapshot),
	}
}

var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// Insert appends a snapshot.
func (s *ScoreHistoryStore) Insert(_ context.Context, snap *domain.ScoreSnapshot) error {
	if snap == nil || snap.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *snap
	s.data[snap.Address] = append(s.data[snap.Address], &copy)
	return nil
}

// GetByAddress retrieves all snapshots for an address, oldest first.
func (s *ScoreHistoryStore) GetByAddress(_ context.Context, address string) ([]*domain.ScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ScoreSnapshot, 0, len(s.data[address]))
	for _, snap := range s.data[address] {
		copy := *snap
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ComputedAt < result[j].ComputedAt
	})

	return result, nil
}
