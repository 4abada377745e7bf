// Package networth computes the monthly net-worth snapshot of every user:
// asset balances minus liability balances, kept in the ledger.
package networth

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

const defaultHistoryLimit = 12

// Service holds the logic of computing and reading net-worth snapshots
type Service struct {
	ledger   domain.LedgerStore
	currency string
	now      func() time.Time
}

// NewService creates a net-worth service. Only accounts held in currency
// are counted.
func NewService(ledger domain.LedgerStore, currency string) *Service {
	return &Service{
		ledger:   ledger,
		currency: strings.ToUpper(currency),
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ClosingPeriod is the month a run at t records. A run on the first day of a
// month closes the previous month.
func ClosingPeriod(t time.Time) domain.Period {
	if t.Day() == 1 {
		return domain.PeriodOf(t.AddDate(0, 0, -1))
	}
	return domain.PeriodOf(t)
}

// Compute builds the snapshot of one user without storing it.
func (s *Service) Compute(ctx context.Context, userID domain.UserID) (domain.NetWorthSnapshot, error) {
	now := s.now()
	snap := domain.NetWorthSnapshot{
		UserID:    userID,
		Period:    ClosingPeriod(now),
		Currency:  s.currency,
		CreatedAt: now,
	}

	accounts, err := s.ledger.ListAccounts(ctx, userID)
	if err != nil {
		return snap, fmt.Errorf("listing accounts: %w", err)
	}

	log := observability.LoggerFromContext(ctx).With(zap.String("user_id", string(userID)))
	for _, acc := range accounts {
		if !strings.EqualFold(acc.Currency, s.currency) {
			log.Warn("account skipped, currency differs",
				zap.String("account_id", acc.ID),
				zap.String("currency", acc.Currency))
			continue
		}
		switch acc.Kind {
		case domain.AccountAsset:
			snap.Assets += acc.Balance
		case domain.AccountLiability:
			snap.Liabilities += math.Abs(acc.Balance)
		}
	}
	snap.NetWorth = snap.Assets - snap.Liabilities
	return snap, nil
}

// RunOnce records the closing snapshot of every user. A user who already has
// a snapshot for the period is skipped, so reruns are harmless. Failures of
// one user do not stop the others; the count of recorded snapshots is
// returned with the first error.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	users, err := s.ledger.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}

	log := observability.LoggerFromContext(ctx)
	var (
		recorded int
		firstErr error
	)
	for _, userID := range users {
		ok, err := s.RunUser(ctx, userID)
		if err != nil {
			log.Error("net worth snapshot failed", zap.String("user_id", string(userID)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			recorded++
		}
	}

	log.Info("net worth run completed", zap.Int("users", len(users)), zap.Int("recorded", recorded))
	return recorded, firstErr
}

// RunUser records the closing snapshot of one user. It reports false when
// the period was already recorded.
func (s *Service) RunUser(ctx context.Context, userID domain.UserID) (bool, error) {
	snap, err := s.Compute(ctx, userID)
	if err != nil {
		return false, err
	}

	last, err := s.ledger.ListNetWorth(ctx, userID, 1)
	if err != nil {
		return false, fmt.Errorf("reading last snapshot: %w", err)
	}
	if len(last) > 0 && last[0].Period == snap.Period {
		return false, nil
	}

	if err := s.ledger.AppendNetWorth(ctx, snap); err != nil {
		return false, fmt.Errorf("storing snapshot: %w", err)
	}
	return true, nil
}

// History returns the last `limit` snapshots of a user, oldest first.
// If limit <= 0, a reasonable default value is used.
func (s *Service) History(ctx context.Context, userID domain.UserID, limit int) ([]domain.NetWorthSnapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.ledger.ListNetWorth(ctx, userID, limit)
}
