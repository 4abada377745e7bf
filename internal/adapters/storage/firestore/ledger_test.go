package firestore_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsstore "github.com/PabloGalante/finance-assistant/internal/adapters/storage/firestore"
	"github.com/PabloGalante/finance-assistant/internal/domain"
)

// Runs against the emulator: FIRESTORE_EMULATOR_HOST=localhost:8080 go test ./...
func newEmulatorStore(t *testing.T) *fsstore.Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	s, err := fsstore.NewStore(context.Background(), "finance-assistant-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddExpensesIsAllOrNothing(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	user := domain.UserID("u-" + uuid.NewString())

	first, err := s.AddExpenses(ctx, user, []domain.Item{
		{Description: "Coffee", Amount: 12, Currency: "USD", Date: "2024-03-05"},
	})
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NotEmpty(t, first[0].ID)

	// the second item collides, so the first must not land either
	_, err = s.AddExpenses(ctx, user, []domain.Item{
		{Description: "Taxi", Amount: 30, Currency: "USD", Date: "2024-03-06"},
		{ID: first[0].ID, Description: "Coffee again", Amount: 5, Currency: "USD", Date: "2024-03-06"},
	})
	require.Error(t, err)

	items, err := s.ListExpenses(ctx, user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Coffee", items[0].Description)
}

func TestDeleteExpensesRemovesMatches(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	user := domain.UserID("u-" + uuid.NewString())

	_, err := s.AddExpenses(ctx, user, []domain.Item{
		{Description: "Coffee", Amount: 12, Currency: "USD", Date: "2024-03-05"},
		{Description: "Coffee beans", Amount: 20, Currency: "USD", Date: "2024-03-07"},
		{Description: "Taxi", Amount: 30, Currency: "USD", Date: "2024-03-06"},
	})
	require.NoError(t, err)

	n, err := s.DeleteExpenses(ctx, user, domain.ExpenseFilter{DescriptionContains: "coffee"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := s.ListExpenses(ctx, user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Taxi", items[0].Description)
}

func TestInvalidItemIDIsRejected(t *testing.T) {
	s := newEmulatorStore(t)

	_, err := s.AddExpenses(context.Background(), "u1", []domain.Item{
		{ID: "a/b", Description: "Coffee", Amount: 12, Currency: "USD", Date: "2024-03-05"},
	})
	assert.Error(t, err)
}
