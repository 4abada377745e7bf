package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

// TranscriptStore is an in-memory domain.TranscriptStore.
// It is NOT persistent and is only suitable for development / tests.
type TranscriptStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{
		records: make(map[string][]byte),
	}
}

func (s *TranscriptStore) GetRecord(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.records[key]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *TranscriptStore) PutRecord(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = append([]byte(nil), data...)
	return nil
}

func (s *TranscriptStore) DeleteRecord(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// Len returns the number of stored records.
func (s *TranscriptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
