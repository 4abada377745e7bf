// Package pebble keeps transcript records in an embedded Pebble database.
package pebble

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

const keyPrefix = "transcript:"

type TranscriptStore struct {
	db *pebble.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*TranscriptStore, error) {
	observability.Logger().Info("opening pebble db", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db %s: %w", path, err)
	}
	return &TranscriptStore{db: db}, nil
}

func (s *TranscriptStore) Close() error {
	return s.db.Close()
}

func (s *TranscriptStore) GetRecord(_ context.Context, key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(keyPrefix + key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("pebble get %s: %w", key, err)
	}
	defer closer.Close()

	// val is only valid until closer is closed
	return append([]byte(nil), val...), nil
}

func (s *TranscriptStore) PutRecord(_ context.Context, key string, data []byte) error {
	if err := s.db.Set([]byte(keyPrefix+key), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", key, err)
	}
	return nil
}

func (s *TranscriptStore) DeleteRecord(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(keyPrefix+key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete %s: %w", key, err)
	}
	return nil
}
