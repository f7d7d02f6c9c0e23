package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/anamnesis/pkg/domain"
)

// RecordStore implements ports.RecordStore in memory.
// Useful for tests and for deployments that only need the live transcript.
type RecordStore struct {
	mu     sync.RWMutex
	byUser map[string][]domain.Record
}

// NewRecordStore creates an empty in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{byUser: make(map[string][]domain.Record)}
}

// Save appends the record to its user's history.
func (s *RecordStore) Save(ctx context.Context, record domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[record.UserID] = append(s.byUser[record.UserID], record)
	return nil
}

// ListByUser returns up to limit records, newest first.
func (s *RecordStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Record, error) {
	s.mu.RLock()
	records := slices.Clone(s.byUser[userID])
	s.mu.RUnlock()

	slices.SortStableFunc(records, func(a, b domain.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// All returns every stored record in insertion order.
func (s *RecordStore) All() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Record
	for _, recs := range s.byUser {
		out = append(out, recs...)
	}
	return out
}
