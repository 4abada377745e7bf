package effects

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/finance-assistant/internal/app/interpret"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

// ExpensesPath is where the UI lists expenses.
const ExpensesPath = "/expenses"

// Outcome is what the UI should do after a turn. Every field is optional.
type Outcome struct {
	Notification *domain.PendingNotification
	PeriodChange *domain.Period
	Navigate     *domain.Navigation
}

// Empty reports whether there is nothing for the UI to do.
func (o Outcome) Empty() bool {
	return o.Notification == nil && o.PeriodChange == nil && o.Navigate == nil
}

type collection string

const (
	collectionExpenses      collection = "expenses"
	collectionBudgets       collection = "budgets"
	collectionSubscriptions collection = "subscriptions"
)

// reloadRules lists what each event kind invalidates. Budget "spent"
// aggregates derive from expenses, so expense changes reload both.
var reloadRules = map[interpret.Kind][]collection{
	interpret.KindExpensesCreated: {collectionExpenses, collectionBudgets},
	interpret.KindExpensesDeleted: {collectionExpenses, collectionBudgets},
	interpret.KindBudgetCreated:   {collectionBudgets},
}

type Coordinator struct {
	finance       domain.FinanceReloader
	metrics       *observability.Metrics
	navigateDelay time.Duration
}

func NewCoordinator(finance domain.FinanceReloader, metrics *observability.Metrics, navigateDelay time.Duration) *Coordinator {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Coordinator{
		finance:       finance,
		metrics:       metrics,
		navigateDelay: navigateDelay,
	}
}

// Apply runs the reloads for ev and builds the UI outcome. Reload failures
// are logged and swallowed; they never fail the turn.
func (c *Coordinator) Apply(ctx context.Context, userID domain.UserID, ev *interpret.Event, current domain.Period) Outcome {
	if ev == nil {
		return Outcome{}
	}

	log := observability.LoggerFromContext(ctx).With(
		zap.String("user_id", string(userID)),
		zap.String("event", string(ev.Kind)),
	)

	c.reload(ctx, log, userID, reloadRules[ev.Kind])

	if ev.Kind != interpret.KindExpensesCreated || ev.Created == nil {
		return Outcome{}
	}

	out := Outcome{
		Notification: buildNotification(ev.Created),
		Navigate: &domain.Navigation{
			Path:  ExpensesPath,
			Delay: c.navigateDelay,
		},
	}

	if target, ok := domain.PeriodOfDate(ev.Created.EarliestDate); ok && !current.IsAll() && target != current {
		out.PeriodChange = &target
	}

	log.Info("expenses created",
		zap.Int("count", out.Notification.Count),
		zap.Float64("total", out.Notification.Total),
		zap.Bool("period_change", out.PeriodChange != nil),
	)
	return out
}

// reload issues the reloads concurrently and waits for all of them.
func (c *Coordinator) reload(ctx context.Context, log *zap.Logger, userID domain.UserID, targets []collection) {
	if c.finance == nil || len(targets) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, target := range targets {
		g.Go(func() error {
			if err := c.reloadOne(gctx, userID, target); err != nil {
				c.metrics.ReloadFailures.WithLabelValues(string(target)).Inc()
				log.Warn("reload failed", zap.String("collection", string(target)), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) reloadOne(ctx context.Context, userID domain.UserID, target collection) error {
	switch target {
	case collectionExpenses:
		return c.finance.ReloadExpenses(ctx, userID)
	case collectionBudgets:
		return c.finance.ReloadBudgets(ctx, userID)
	case collectionSubscriptions:
		return c.finance.ReloadSubscriptions(ctx, userID)
	}
	return nil
}

func buildNotification(created *interpret.ExpensesCreated) *domain.PendingNotification {
	shown := created.Items
	if len(shown) > domain.MaxNotificationItems {
		shown = shown[:domain.MaxNotificationItems]
	}
	return &domain.PendingNotification{
		Kind:         domain.NotificationExpensesCreated,
		Count:        len(created.Items),
		Total:        created.Total,
		Currency:     created.Currency,
		Items:        append([]domain.Item(nil), shown...),
		EarliestDate: created.EarliestDate,
	}
}
