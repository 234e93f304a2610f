package components

import (
	"context"
	"log/slog"
	"time"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/settlement"
	"coupon-settlement/internal/infra/memstore"
	"coupon-settlement/internal/infra/pgstore"
	"coupon-settlement/internal/pkg/clock"
	"coupon-settlement/internal/pkg/config"
	"coupon-settlement/internal/pkg/errs"
	"coupon-settlement/internal/quota"
	"coupon-settlement/internal/usecase/commands"
	"coupon-settlement/internal/usecase/queries"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

// CouponStore, ReservationStore and UsageStore are the full store surfaces
// the app wires; both the memstore and pgstore implementations satisfy them.
type CouponStore interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	All(ctx context.Context) ([]*coupon.Coupon, error)
}

type ReservationStore interface {
	Create(ctx context.Context, res *settlement.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*settlement.Reservation, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, code string, key uuid.UUID) (*settlement.Reservation, error)
	Update(ctx context.Context, res *settlement.Reservation) error
	MarkExpiredBefore(ctx context.Context, now time.Time) (int, error)
	ListActive(ctx context.Context) ([]*settlement.Reservation, error)
}

type UsageStore interface {
	Append(ctx context.Context, rec settlement.UsageRecord) error
	CountByCoupon(ctx context.Context, code string) (int, error)
	CountByUser(ctx context.Context, code string, userID uuid.UUID) (int, error)
	CountByUserBetween(ctx context.Context, code string, userID uuid.UUID, from, to time.Time) (int, error)
	ListAll(ctx context.Context) ([]settlement.UsageRecord, error)
}

var PersistenceModule = fx.Module("persistence",
	fx.Provide(
		NewStores,
		func(s CouponStore) commands.CouponRepository { return s },
		func(s CouponStore) queries.CouponReader { return s },
		func(s ReservationStore) commands.ReservationRepository { return s },
		func(s ReservationStore) queries.ReservationReader { return s },
		func(s UsageStore) commands.UsageRecordRepository { return s },
		func(s UsageStore) queries.UsageReader { return s },
	),
	fx.Invoke(HydrateQuotaLedger),
)

// NewStores selects the persistence backend: Postgres by default, in-memory
// stores when DB_DISABLED=true.
func NewStores(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, logger *slog.Logger) (CouponStore, ReservationStore, UsageStore, error) {
	if cfg.DB.Disabled {
		coupons := memstore.NewCouponStore(logger)
		if cfg.Coupon.SeedFile != "" {
			seeded, err := memstore.LoadSeedFile(cfg.Coupon.SeedFile)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, c := range seeded {
				coupons.Put(c)
			}
			logger.Info("coupon registry seeded", "coupons", len(seeded), "file", cfg.Coupon.SeedFile)
		}
		return coupons, memstore.NewReservationStore(clk, logger), memstore.NewUsageStore(), nil
	}

	ctx := context.Background()
	pool, err := pgstore.NewPool(ctx, cfg.DB.BuildDSN())
	if err != nil {
		return nil, nil, nil, errs.Wrap(err, "connecting to database")
	}
	if err := pgstore.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pgstore.NewCouponStore(pool, logger),
		pgstore.NewReservationStore(pool, logger),
		pgstore.NewUsageStore(pool, logger),
		nil
}

// HydrateQuotaLedger rebuilds the in-memory counters at startup: used counts
// from the usage trail, reserved counts from reservations still holding a
// slot.
func HydrateQuotaLedger(
	ledger *quota.Ledger,
	usage UsageStore,
	reservations ReservationStore,
	loc *time.Location,
	logger *slog.Logger,
) error {
	ctx := context.Background()

	records, err := usage.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		ledger.Seed(rec.CouponCode.String(), rec.UserID, clock.DayKey(rec.CommittedAt, loc), 1)
	}

	active, err := reservations.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, res := range active {
		ledger.Restore(res.CouponCode().String(), res.ID(), res.UserID(), res.CreatedAt(), res.ExpiresAt())
	}

	logger.Info("quota ledger hydrated",
		"usage_records", len(records), "active_reservations", len(active))
	return nil
}
