package bootstrap

import (
	"context"
	"log/slog"

	"coupon-settlement/internal/pkg/config"
	"coupon-settlement/internal/usecase/commands"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
)

var SweeperModule = fx.Module("sweeper",
	fx.Invoke(StartSweeper),
)

// StartSweeper runs the reservation expiry sweep on a fixed interval. Lazy
// expiry in the ledger keeps correctness between runs; the sweep settles the
// stored status and trims forgotten tokens.
func StartSweeper(lc fx.Lifecycle, cfg config.Config, cmds commands.SettlementCommands, logger *slog.Logger) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Quota.SweepInterval),
		gocron.NewTask(func() {
			if _, sweepErr := cmds.ExpireAbandoned(context.Background()); sweepErr != nil {
				logger.Error("reservation sweep failed", "error", sweepErr)
			}
		}),
	)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			scheduler.Start()
			logger.Info("reservation sweeper started", "interval", cfg.Quota.SweepInterval)
			return nil
		},
		OnStop: func(_ context.Context) error {
			return scheduler.Shutdown()
		},
	})
	return nil
}
