package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PabloGalante/finance-assistant/internal/app/networth"
	"github.com/PabloGalante/finance-assistant/internal/domain"
	"github.com/PabloGalante/finance-assistant/internal/observability"
)

var netWorthUser string

var netWorthCmd = &cobra.Command{
	Use:   "networth",
	Short: "Record the closing net worth snapshot once and exit",
	Long: `Computes assets minus liabilities for the closing month and stores one
snapshot per user. A user whose month is already recorded is skipped.

Without --user every user holding an account is processed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stores, err := openBackends(ctx, cfg)
		if err != nil {
			return err
		}
		defer stores.Close()

		svc := networth.NewService(stores.ledger, cfg.NetWorthCurrency)
		log := observability.Logger()

		if netWorthUser != "" {
			recorded, err := svc.RunUser(ctx, domain.UserID(netWorthUser))
			if err != nil {
				return fmt.Errorf("net worth for %s: %w", netWorthUser, err)
			}
			log.Info("net worth done", zap.String("user_id", netWorthUser), zap.Bool("recorded", recorded))
			return nil
		}

		n, err := svc.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("net worth run: %w", err)
		}
		log.Info("net worth done", zap.Int("recorded", n))
		return nil
	},
}

func init() {
	netWorthCmd.Flags().StringVar(&netWorthUser, "user", "", "only process this user ID")
}
