package redis_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/PabloGalante/finance-assistant/internal/adapters/storage/redis"
	"github.com/PabloGalante/finance-assistant/internal/domain"
)

// Runs against a real server: FINASSIST_TEST_REDIS_ADDR=localhost:6379 go test ./...
func TestTranscriptRecords(t *testing.T) {
	addr := os.Getenv("FINASSIST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FINASSIST_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	s, err := redisstore.NewTranscriptStore(ctx, redisstore.Options{Addr: addr})
	require.NoError(t, err)
	defer s.Close()

	key := "chat_messages_" + uuid.NewString()
	t.Cleanup(func() { _ = s.DeleteRecord(context.Background(), key) })

	_, err = s.GetRecord(ctx, key)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	require.NoError(t, s.PutRecord(ctx, key, []byte(`{"messages":[]}`)))
	got, err := s.GetRecord(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"messages":[]}`, string(got))

	require.NoError(t, s.DeleteRecord(ctx, key))
	_, err = s.GetRecord(ctx, key)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestUnreachableServerFailsFast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := redisstore.NewTranscriptStore(ctx, redisstore.Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
