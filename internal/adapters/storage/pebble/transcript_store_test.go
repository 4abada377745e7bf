package pebble_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/finance-assistant/internal/adapters/storage/pebble"
	"github.com/PabloGalante/finance-assistant/internal/domain"
)

func TestTranscriptRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	s, err := pebble.Open(path)
	require.NoError(t, err)

	_, err = s.GetRecord(ctx, "chat_messages_u1")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	require.NoError(t, s.PutRecord(ctx, "chat_messages_u1", []byte(`{"messages":[]}`)))
	require.NoError(t, s.PutRecord(ctx, "chat_messages_u1", []byte(`{"messages":[1]}`)))

	got, err := s.GetRecord(ctx, "chat_messages_u1")
	require.NoError(t, err)
	assert.Equal(t, `{"messages":[1]}`, string(got))

	// records survive a reopen
	require.NoError(t, s.Close())
	s, err = pebble.Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err = s.GetRecord(ctx, "chat_messages_u1")
	require.NoError(t, err)
	assert.Equal(t, `{"messages":[1]}`, string(got))

	require.NoError(t, s.DeleteRecord(ctx, "chat_messages_u1"))
	require.NoError(t, s.DeleteRecord(ctx, "never_written"))
	_, err = s.GetRecord(ctx, "chat_messages_u1")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}
