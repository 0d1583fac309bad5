package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	byAccnt map[string][]*Record // commit order
}

// NewMemoryStore creates an in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byAccnt: make(map[string][]*Record),
	}
}

func (s *MemoryStore) Append(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.byAccnt[r.AccountID] = append(s.byAccnt[r.AccountID], &cp)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, accountID, afterID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byAccnt[accountID]

	start := 0
	if afterID != "" {
		found := false
		for i, r := range all {
			if r.ID == afterID {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, ErrNotFound
		}
	}

	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	result := make([]*Record, 0, end-start)
	for _, r := range all[start:end] {
		cp := *r
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) Window(ctx context.Context, accountID string, since time.Time) (int, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var total float64
	for _, r := range s.byAccnt[accountID] {
		if !r.CreatedAt.Before(since) {
			count++
			total += r.Amount
		}
	}
	return count, total, nil
}
