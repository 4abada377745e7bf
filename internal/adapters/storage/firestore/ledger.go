package firestore

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/PabloGalante/finance-assistant/internal/domain"
)

const (
	colExpenses      = "expenses"
	colBudgets       = "budgets"
	colSubscriptions = "subscriptions"
	colAccounts      = "accounts"
	colNetWorth      = "networth"
)

// listAll decodes every document of q. setID receives the document ID.
func listAll[T any](ctx context.Context, q firestore.Query, op string, setID func(*T, string)) ([]T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []T{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore %s: %w", op, err)
		}

		var v T
		if err := snap.DataTo(&v); err != nil {
			return nil, fmt.Errorf("firestore %s decode: %w", op, err)
		}
		if setID != nil {
			setID(&v, snap.Ref.ID)
		}
		out = append(out, v)
	}
	return out, nil
}

// ─────────────────────────────────────────
// LedgerStore implementation
// ─────────────────────────────────────────

// AddExpenses writes all items in one transaction: either every item is
// stored or none is. An item whose ID already exists fails the whole call.
func (s *Store) AddExpenses(ctx context.Context, userID domain.UserID, items []domain.Item) ([]domain.Item, error) {
	col := s.userCol(userID, colExpenses)

	// refs are fixed before the transaction so a retry writes the same IDs
	out := make([]domain.Item, 0, len(items))
	refs := make([]*firestore.DocumentRef, 0, len(items))
	for _, it := range items {
		ref := col.NewDoc()
		if it.ID != "" {
			ref = col.Doc(it.ID)
			if ref == nil {
				return nil, fmt.Errorf("firestore AddExpenses: invalid item ID %q", it.ID)
			}
		}
		it.ID = ref.ID
		refs = append(refs, ref)
		out = append(out, it)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, ref := range refs {
			if err := tx.Create(ref, out[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("firestore AddExpenses: %w", err)
	}
	return out, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID domain.UserID) ([]domain.Item, error) {
	return listAll(ctx, s.userCol(userID, colExpenses).Query, "ListExpenses",
		func(it *domain.Item, id string) { it.ID = id })
}

// DeleteExpenses removes every matching expense in one transaction.
func (s *Store) DeleteExpenses(ctx context.Context, userID domain.UserID, filter domain.ExpenseFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}

	col := s.userCol(userID, colExpenses)
	var deleted int
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = 0
		snaps, err := tx.Documents(col.Query).GetAll()
		if err != nil {
			return err
		}

		refs := make([]*firestore.DocumentRef, 0, len(snaps))
		for _, snap := range snaps {
			var it domain.Item
			if err := snap.DataTo(&it); err != nil {
				return err
			}
			it.ID = snap.Ref.ID
			if filter.Match(it) {
				refs = append(refs, snap.Ref)
			}
		}
		for _, ref := range refs {
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}
		deleted = len(refs)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("firestore DeleteExpenses: %w", err)
	}
	return deleted, nil
}

func (s *Store) SaveEmbedding(ctx context.Context, userID domain.UserID, itemID string, vector []float32) error {
	_, err := s.userCol(userID, colExpenses).Doc(itemID).Update(ctx, []firestore.Update{
		{Path: "embedding", Value: firestore.Vector32(vector)},
	})
	if err != nil {
		return fmt.Errorf("firestore SaveEmbedding: %w", err)
	}
	return nil
}

func (s *Store) AddBudget(ctx context.Context, userID domain.UserID, b domain.Budget) (domain.Budget, error) {
	ref := s.userCol(userID, colBudgets).NewDoc()
	b.ID = ref.ID
	if _, err := ref.Set(ctx, b); err != nil {
		return domain.Budget{}, fmt.Errorf("firestore AddBudget: %w", err)
	}
	return b, nil
}

func (s *Store) ListBudgets(ctx context.Context, userID domain.UserID) ([]domain.Budget, error) {
	return listAll(ctx, s.userCol(userID, colBudgets).Query, "ListBudgets",
		func(b *domain.Budget, id string) { b.ID = id })
}

func (s *Store) ListSubscriptions(ctx context.Context, userID domain.UserID) ([]domain.Subscription, error) {
	return listAll(ctx, s.userCol(userID, colSubscriptions).Query, "ListSubscriptions",
		func(sub *domain.Subscription, id string) { sub.ID = id })
}

func (s *Store) ListAccounts(ctx context.Context, userID domain.UserID) ([]domain.Account, error) {
	return listAll(ctx, s.userCol(userID, colAccounts).Query, "ListAccounts",
		func(a *domain.Account, id string) { a.ID = id })
}

// AppendNetWorth keys snapshots by period, so a rerun overwrites.
func (s *Store) AppendNetWorth(ctx context.Context, snap domain.NetWorthSnapshot) error {
	_, err := s.userCol(snap.UserID, colNetWorth).Doc(string(snap.Period)).Set(ctx, snap)
	if err != nil {
		return fmt.Errorf("firestore AppendNetWorth: %w", err)
	}
	return nil
}

// ListNetWorth returns the last `limit` snapshots, oldest first.
// If limit <= 0, returns all.
func (s *Store) ListNetWorth(ctx context.Context, userID domain.UserID, limit int) ([]domain.NetWorthSnapshot, error) {
	q := s.userCol(userID, colNetWorth).OrderBy("period", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	out, err := listAll[domain.NetWorthSnapshot](ctx, q, "ListNetWorth", nil)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// ListUsers finds users through their account documents; the parent user
// documents need not exist.
func (s *Store) ListUsers(ctx context.Context) ([]domain.UserID, error) {
	iter := s.client.CollectionGroup(colAccounts).Documents(ctx)
	defer iter.Stop()

	seen := make(map[domain.UserID]bool)
	var out []domain.UserID
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListUsers: %w", err)
		}
		userDoc := snap.Ref.Parent.Parent
		if userDoc == nil {
			continue
		}
		id := domain.UserID(userDoc.ID)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}
