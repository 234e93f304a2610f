package components

import (
	"log/slog"
	"time"

	"coupon-settlement/internal/pkg/clock"
	"coupon-settlement/internal/pkg/config"
	"coupon-settlement/internal/quota"
	"coupon-settlement/internal/usecase"
	"coupon-settlement/internal/usecase/commands"
	"coupon-settlement/internal/usecase/queries"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseBaseOption,
	usecaseQueriesModule,
	usecaseValidatorsModule,
	usecaseCommandsModule,
)

var usecaseBaseOption = fx.Provide(
	clock.NewRealClock,
	NewDayLocation,
	NewQuotaLedger,
	func(l *quota.Ledger) commands.QuotaLedger { return l },
	func(l *quota.Ledger) queries.QuotaCounters { return l },
)

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		commands.NewSettlementUseCase,
	),
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		queries.NewReservationQueries,
		queries.NewStatsQueries,
	),
)

var usecaseValidatorsModule = fx.Module("usecase/validators",
	fx.Provide(
		usecase.NewTokenValidator,
	),
)

// NewDayLocation resolves the store's operating timezone; per-user-per-day
// counters reset at its midnight.
func NewDayLocation(cfg config.Config) (*time.Location, error) {
	return cfg.Quota.DayLocation()
}

func NewQuotaLedger(cfg config.Config, clk clock.Clock, loc *time.Location, logger *slog.Logger) *quota.Ledger {
	return quota.NewLedger(clk, cfg.Quota.ReservationTTL, loc, logger)
}
