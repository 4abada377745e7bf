// Package redis keeps transcript records in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

const keyPrefix = "finassist:transcript:"

type Options struct {
	Addr     string
	Password string
	DB       int
}

type TranscriptStore struct {
	client *redis.Client
}

// NewTranscriptStore connects and pings the server.
func NewTranscriptStore(ctx context.Context, opts Options) (*TranscriptStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &TranscriptStore{client: client}, nil
}

// NewTranscriptStoreFromClient wraps an existing client.
func NewTranscriptStoreFromClient(client *redis.Client) *TranscriptStore {
	return &TranscriptStore{client: client}
}

func (s *TranscriptStore) Close() error {
	return s.client.Close()
}

func (s *TranscriptStore) GetRecord(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// PutRecord stores without expiry; transcripts live until cleared.
func (s *TranscriptStore) PutRecord(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *TranscriptStore) DeleteRecord(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
