package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

type userLedger struct {
	expenses      []domain.Item
	embeddings    map[string][]float32
	budgets       []domain.Budget
	subscriptions []domain.Subscription
	accounts      []domain.Account
	netWorth      []domain.NetWorthSnapshot
}

// LedgerStore is an in-memory domain.LedgerStore.
type LedgerStore struct {
	mu    sync.RWMutex
	users map[domain.UserID]*userLedger
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		users: make(map[domain.UserID]*userLedger),
	}
}

// user must be called with mu held for writing.
func (s *LedgerStore) user(id domain.UserID) *userLedger {
	l, ok := s.users[id]
	if !ok {
		l = &userLedger{embeddings: make(map[string][]float32)}
		s.users[id] = l
	}
	return l
}

func (s *LedgerStore) AddExpenses(_ context.Context, userID domain.UserID, items []domain.Item) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.user(userID)
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		l.expenses = append(l.expenses, it)
		out = append(out, it)
	}
	return out, nil
}

func (s *LedgerStore) ListExpenses(_ context.Context, userID domain.UserID) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.users[userID]
	if !ok {
		return []domain.Item{}, nil
	}
	return append([]domain.Item(nil), l.expenses...), nil
}

func (s *LedgerStore) DeleteExpenses(_ context.Context, userID domain.UserID, filter domain.ExpenseFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.users[userID]
	if !ok {
		return 0, nil
	}

	kept := l.expenses[:0]
	deleted := 0
	for _, it := range l.expenses {
		if filter.Match(it) {
			delete(l.embeddings, it.ID)
			deleted++
			continue
		}
		kept = append(kept, it)
	}
	l.expenses = kept
	return deleted, nil
}

func (s *LedgerStore) SaveEmbedding(_ context.Context, userID domain.UserID, itemID string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user(userID).embeddings[itemID] = append([]float32(nil), vector...)
	return nil
}

// Embedding returns the stored vector for an item, if any.
func (s *LedgerStore) Embedding(userID domain.UserID, itemID string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	v, ok := l.embeddings[itemID]
	return v, ok
}

func (s *LedgerStore) AddBudget(_ context.Context, userID domain.UserID, b domain.Budget) (domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	l := s.user(userID)
	l.budgets = append(l.budgets, b)
	return b, nil
}

func (s *LedgerStore) ListBudgets(_ context.Context, userID domain.UserID) ([]domain.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.users[userID]
	if !ok {
		return []domain.Budget{}, nil
	}
	return append([]domain.Budget(nil), l.budgets...), nil
}

// PutSubscription seeds a subscription; subscriptions are managed outside the assistant.
func (s *LedgerStore) PutSubscription(userID domain.UserID, sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	l := s.user(userID)
	l.subscriptions = append(l.subscriptions, sub)
}

func (s *LedgerStore) ListSubscriptions(_ context.Context, userID domain.UserID) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.users[userID]
	if !ok {
		return []domain.Subscription{}, nil
	}
	return append([]domain.Subscription(nil), l.subscriptions...), nil
}

// PutAccount seeds an account; accounts are managed outside the assistant.
func (s *LedgerStore) PutAccount(userID domain.UserID, acc domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	l := s.user(userID)
	l.accounts = append(l.accounts, acc)
}

func (s *LedgerStore) ListAccounts(_ context.Context, userID domain.UserID) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.users[userID]
	if !ok {
		return []domain.Account{}, nil
	}
	return append([]domain.Account(nil), l.accounts...), nil
}

func (s *LedgerStore) AppendNetWorth(_ context.Context, snap domain.NetWorthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.user(snap.UserID)
	for i := range l.netWorth {
		if l.netWorth[i].Period == snap.Period {
			l.netWorth[i] = snap
			return nil
		}
	}
	l.netWorth = append(l.netWorth, snap)
	slices.SortFunc(l.netWorth, func(a, b domain.NetWorthSnapshot) int {
		return strings.Compare(string(a.Period), string(b.Period))
	})
	return nil
}

// ListNetWorth returns the last `limit` snapshots, oldest first.
// If limit <= 0, returns all.
func (s *LedgerStore) ListNetWorth(_ context.Context, userID domain.UserID, limit int) ([]domain.NetWorthSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.users[userID]
	if !ok {
		return []domain.NetWorthSnapshot{}, nil
	}

	snaps := l.netWorth
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[len(snaps)-limit:]
	}
	return append([]domain.NetWorthSnapshot(nil), snaps...), nil
}

func (s *LedgerStore) ListUsers(_ context.Context) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserID, 0, len(s.users))
	for id, l := range s.users {
		if len(l.accounts) > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}
