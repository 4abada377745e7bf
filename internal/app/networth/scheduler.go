package networth

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/observability"
)

// retryAfter is how long the scheduler waits when the next tick cannot be computed.
const retryAfter = 30 * time.Second

// Scheduler runs a Service on a cron expression.
type Scheduler struct {
	svc  *Service
	expr string
	now  func() time.Time
}

func NewScheduler(svc *Service, expr string) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q", expr)
	}
	return &Scheduler{svc: svc, expr: expr, now: time.Now}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

// Run blocks until ctx is done, running the job at every tick. Runs are
// sequential; a slow run delays the next tick rather than overlapping it.
func (s *Scheduler) Run(ctx context.Context) {
	log := observability.Logger().With(zap.String("job", "networth"), zap.String("cron", s.expr))
	log.Info("net worth scheduler started")

	for {
		next, err := s.Next(s.now().UTC())
		wait := retryAfter
		if err != nil {
			log.Error("computing next tick failed", zap.Error(err))
		} else {
			wait = time.Until(next)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("net worth scheduler stopping")
			return
		case <-timer.C:
		}
		if err != nil {
			continue
		}

		if _, err := s.svc.RunOnce(ctx); err != nil {
			log.Warn("net worth run finished with errors", zap.Error(err))
		}
	}
}
