//go:build unit

package queries_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"
	"coupon-settlement/internal/domain/settlement"
	"coupon-settlement/internal/infra/memstore"
	"coupon-settlement/internal/pkg/clock"
	"coupon-settlement/internal/quota"
	"coupon-settlement/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statsStart = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type statsFixture struct {
	clk     *clock.MockClock
	coupons *memstore.CouponStore
	usage   *memstore.UsageStore
	ledger  *quota.Ledger
	stats   queries.StatsQueries
}

func newStatsFixture(t *testing.T) *statsFixture {
	t.Helper()
	clk := clock.NewMockClock(statsStart)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &statsFixture{
		clk:     clk,
		coupons: memstore.NewCouponStore(logger),
		usage:   memstore.NewUsageStore(),
		ledger:  quota.NewLedger(clk, 15*time.Minute, time.UTC, logger),
	}
	f.stats = queries.NewStatsQueries(f.coupons, f.usage, f.ledger, clk, time.UTC)
	return f
}

func (f *statsFixture) addCoupon(t *testing.T, limits coupon.Limits) {
	t.Helper()
	d, err := coupon.NewPercentageDiscount(decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	c, err := coupon.NewCoupon(coupon.NewCouponParams{
		ID:         uuid.New(),
		Code:       "SAVE10",
		Discount:   d,
		ValidFrom:  statsStart.Add(-24 * time.Hour),
		ValidUntil: statsStart.Add(24 * time.Hour),
		IsActive:   true,
		Limits:     limits,
	})
	require.NoError(t, err)
	f.coupons.Put(c)
}

func (f *statsFixture) recordUsage(t *testing.T, userID uuid.UUID, at time.Time) {
	t.Helper()
	code, err := coupon.NewCode("SAVE10")
	require.NoError(t, err)
	err = f.usage.Append(context.Background(), settlement.UsageRecord{
		CouponCode:     code,
		UserID:         userID,
		OrderID:        uuid.New(),
		DiscountAmount: money.MustNew(50),
		CommittedAt:    at,
	})
	require.NoError(t, err)
}

func statsIntPtr(n int) *int { return &n }

func TestCouponStats(t *testing.T) {
	ctx := context.Background()

	t.Run("aggregates usage and in-flight holds", func(t *testing.T) {
		f := newStatsFixture(t)
		f.addCoupon(t, coupon.Limits{Total: statsIntPtr(10)})

		f.recordUsage(t, uuid.New(), statsStart)
		f.recordUsage(t, uuid.New(), statsStart)
		_, err := f.ledger.TryReserve("SAVE10", uuid.New(), quota.Limits{})
		require.NoError(t, err)

		view, err := f.stats.CouponStats(ctx, "SAVE10")
		require.NoError(t, err)
		assert.Equal(t, 2, view.TotalUsage)
		assert.Equal(t, 1, view.ActiveReservations)
		require.NotNil(t, view.RemainingTotal)
		assert.Equal(t, 7, *view.RemainingTotal)
		require.NotNil(t, view.UsagePercentage)
		assert.InDelta(t, 20.0, *view.UsagePercentage, 0.001)
	})

	t.Run("no total limit leaves derived fields nil", func(t *testing.T) {
		f := newStatsFixture(t)
		f.addCoupon(t, coupon.Limits{})

		view, err := f.stats.CouponStats(ctx, "SAVE10")
		require.NoError(t, err)
		assert.Nil(t, view.TotalLimit)
		assert.Nil(t, view.RemainingTotal)
		assert.Nil(t, view.UsagePercentage)
	})

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		f := newStatsFixture(t)
		f.addCoupon(t, coupon.Limits{})

		view, err := f.stats.CouponStats(ctx, "save10")
		require.NoError(t, err)
		assert.Equal(t, "SAVE10", view.Code)
	})

	t.Run("unknown coupon", func(t *testing.T) {
		f := newStatsFixture(t)
		_, err := f.stats.CouponStats(ctx, "NOPE99")
		assert.ErrorIs(t, err, queries.ErrCouponNotFound)
	})
}

func TestUserStats(t *testing.T) {
	ctx := context.Background()

	t.Run("splits total from today", func(t *testing.T) {
		f := newStatsFixture(t)
		f.addCoupon(t, coupon.Limits{PerUser: statsIntPtr(5), PerUserPerDay: statsIntPtr(2)})
		user := uuid.New()

		f.recordUsage(t, user, statsStart.Add(-48*time.Hour))
		f.recordUsage(t, user, statsStart)
		f.recordUsage(t, uuid.New(), statsStart)

		view, err := f.stats.UserStats(ctx, "SAVE10", user)
		require.NoError(t, err)
		assert.Equal(t, 2, view.TotalUsage)
		assert.Equal(t, 1, view.TodayUsage)
		require.NotNil(t, view.RemainingUsage)
		assert.Equal(t, 3, *view.RemainingUsage)
		require.NotNil(t, view.RemainingToday)
		assert.Equal(t, 1, *view.RemainingToday)
	})

	t.Run("in-flight holds reduce remaining", func(t *testing.T) {
		f := newStatsFixture(t)
		f.addCoupon(t, coupon.Limits{PerUser: statsIntPtr(2)})
		user := uuid.New()

		_, err := f.ledger.TryReserve("SAVE10", user, quota.Limits{})
		require.NoError(t, err)

		view, err := f.stats.UserStats(ctx, "SAVE10", user)
		require.NoError(t, err)
		require.NotNil(t, view.RemainingUsage)
		assert.Equal(t, 1, *view.RemainingUsage)
	})

	t.Run("remaining clamps at zero", func(t *testing.T) {
		f := newStatsFixture(t)
		f.addCoupon(t, coupon.Limits{PerUser: statsIntPtr(1)})
		user := uuid.New()

		f.recordUsage(t, user, statsStart)
		_, err := f.ledger.TryReserve("SAVE10", user, quota.Limits{})
		require.NoError(t, err)

		view, err := f.stats.UserStats(ctx, "SAVE10", user)
		require.NoError(t, err)
		require.NotNil(t, view.RemainingUsage)
		assert.Equal(t, 0, *view.RemainingUsage)
	})
}
