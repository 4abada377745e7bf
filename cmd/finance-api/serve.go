package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpadapter "github.com/PabloGalante/finance-assistant/internal/adapters/http"
	"github.com/PabloGalante/finance-assistant/internal/app/conversation"
	"github.com/PabloGalante/finance-assistant/internal/app/effects"
	"github.com/PabloGalante/finance-assistant/internal/app/finance"
	"github.com/PabloGalante/finance-assistant/internal/app/history"
	"github.com/PabloGalante/finance-assistant/internal/app/networth"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

const shutdownTimeout = 15 * time.Second

var noScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the net worth scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the monthly net worth job in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := observability.Logger()
	metrics := observability.NewMetrics()

	stores, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	model, err := newModel(ctx, cfg, stores.ledger, metrics)
	if err != nil {
		return err
	}

	financeState := finance.NewState(stores.ledger)
	historyStore := history.NewStore(stores.transcripts, metrics, history.WithWriteTimeout(cfg.WriteTimeout))
	// queued transcript writes finish before the stores close
	defer historyStore.Close()

	coordinator := effects.NewCoordinator(financeState, metrics, cfg.NavigateDelay)
	conv := conversation.NewService(model, historyStore, coordinator, metrics,
		conversation.WithModelTimeout(cfg.ModelTimeout))

	netWorth := networth.NewService(stores.ledger, cfg.NetWorthCurrency)
	schedDone := make(chan struct{})
	if noScheduler {
		close(schedDone)
	} else {
		sched, err := networth.NewScheduler(netWorth, cfg.NetWorthCron)
		if err != nil {
			return err
		}
		go func() {
			defer close(schedDone)
			sched.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httpadapter.NewServer(httpadapter.Deps{
			Conversation:   conv,
			Finance:        financeState,
			NetWorth:       netWorth,
			Metrics:        metrics,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("finance api listening", zap.String("addr", srv.Addr), zap.String("mode", string(cfg.Mode)))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		<-schedDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	<-schedDone
	return nil
}
