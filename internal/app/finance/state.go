// Package finance keeps the in-memory financial collections the UI reads,
// refetched from the ledger on demand.
package finance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

// Snapshot is the current view of one user's data.
type Snapshot struct {
	Expenses      []domain.Item         `json:"expenses"`
	Budgets       []domain.BudgetStatus `json:"budgets"`
	Subscriptions []domain.Subscription `json:"subscriptions"`
	LoadedAt      time.Time             `json:"loadedAt"`
}

// State implements domain.FinanceReloader. Each reload replaces one
// collection wholesale, so repeated and concurrent reloads are harmless.
type State struct {
	ledger domain.LedgerStore
	now    func() time.Time

	mu    sync.RWMutex
	users map[domain.UserID]*Snapshot
}

func NewState(ledger domain.LedgerStore) *State {
	return &State{
		ledger: ledger,
		now:    time.Now,
		users:  make(map[domain.UserID]*Snapshot),
	}
}

func (s *State) ReloadExpenses(ctx context.Context, userID domain.UserID) error {
	items, err := s.ledger.ListExpenses(ctx, userID)
	if err != nil {
		return fmt.Errorf("reload expenses: %w", err)
	}
	sortExpenses(items)

	s.update(userID, func(snap *Snapshot) { snap.Expenses = items })
	return nil
}

// ReloadBudgets recomputes each budget's spent amount from the ledger's
// expenses rather than from the cached collection.
func (s *State) ReloadBudgets(ctx context.Context, userID domain.UserID) error {
	budgets, err := s.ledger.ListBudgets(ctx, userID)
	if err != nil {
		return fmt.Errorf("reload budgets: %w", err)
	}
	items, err := s.ledger.ListExpenses(ctx, userID)
	if err != nil {
		return fmt.Errorf("reload budgets: %w", err)
	}

	statuses := make([]domain.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		statuses = append(statuses, BudgetStatusOf(b, items))
	}

	s.update(userID, func(snap *Snapshot) { snap.Budgets = statuses })
	return nil
}

func (s *State) ReloadSubscriptions(ctx context.Context, userID domain.UserID) error {
	subs, err := s.ledger.ListSubscriptions(ctx, userID)
	if err != nil {
		return fmt.Errorf("reload subscriptions: %w", err)
	}

	s.update(userID, func(snap *Snapshot) { snap.Subscriptions = subs })
	return nil
}

// RefreshAll reloads every collection concurrently; it backs the manual refresh.
func (s *State) RefreshAll(ctx context.Context, userID domain.UserID) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ReloadExpenses(gctx, userID) })
	g.Go(func() error { return s.ReloadBudgets(gctx, userID) })
	g.Go(func() error { return s.ReloadSubscriptions(gctx, userID) })
	return g.Wait()
}

// Snapshot returns a copy of the user's current collections.
// ok is false when nothing has been loaded yet.
func (s *State) Snapshot(userID domain.UserID) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.users[userID]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Expenses:      append([]domain.Item(nil), snap.Expenses...),
		Budgets:       append([]domain.BudgetStatus(nil), snap.Budgets...),
		Subscriptions: append([]domain.Subscription(nil), snap.Subscriptions...),
		LoadedAt:      snap.LoadedAt,
	}, true
}

// Forget drops the cached collections of a user (sign-out).
func (s *State) Forget(userID domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

func (s *State) update(userID domain.UserID, fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.users[userID]
	if !ok {
		snap = &Snapshot{}
		s.users[userID] = snap
	}
	fn(snap)
	snap.LoadedAt = s.now()
}

// BudgetStatusOf sums the expenses matching the budget's category and period.
func BudgetStatusOf(b domain.Budget, items []domain.Item) domain.BudgetStatus {
	var spent float64
	for _, it := range items {
		if it.Category != b.Category || !b.Period.Contains(it.Date) {
			continue
		}
		if b.Currency != "" && it.Currency != "" && it.Currency != b.Currency {
			continue
		}
		spent += it.Amount
	}
	return domain.BudgetStatus{
		Budget:    b,
		Spent:     spent,
		Remaining: b.Amount - spent,
	}
}

// newest first, ties by description for a stable order
func sortExpenses(items []domain.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date > items[j].Date
		}
		return items[i].Description < items[j].Description
	})
}
