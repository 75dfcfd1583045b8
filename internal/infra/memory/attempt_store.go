package memory

import (
	"context"
	"sync"

	"history-ranking-service/internal/domain"
)

// AttemptStore is an in-memory append-only attempt log.
type AttemptStore struct {
	mu      sync.RWMutex
	records []domain.AttemptRecord
}

func NewAttemptStore(seed ...domain.AttemptRecord) *AttemptStore {
	return &AttemptStore{records: append([]domain.AttemptRecord(nil), seed...)}
}

func (s *AttemptStore) FetchAttempts(_ context.Context, questionIDs []domain.QuestionID) ([]domain.AttemptRecord, error) {
	wanted := make(map[domain.QuestionID]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AttemptRecord, 0)
	for _, r := range s.records {
		if _, ok := wanted[r.QuestionID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *AttemptStore) AppendAttempts(_ context.Context, records []domain.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// Len reports how many attempts are stored.
func (s *AttemptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
