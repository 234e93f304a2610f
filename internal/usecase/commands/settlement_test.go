//go:build unit

package commands_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"
	"coupon-settlement/internal/domain/settlement"
	"coupon-settlement/internal/handler/dto/request"
	"coupon-settlement/internal/infra/memstore"
	"coupon-settlement/internal/pkg/clock"
	"coupon-settlement/internal/quota"
	"coupon-settlement/internal/usecase/commands"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reservationTTL = 15 * time.Minute

var testStart = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clk          *clock.MockClock
	coupons      *memstore.CouponStore
	reservations *memstore.ReservationStore
	usage        *memstore.UsageStore
	ledger       *quota.Ledger
	cmds         commands.SettlementCommands
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMockClock(testStart)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		clk:          clk,
		coupons:      memstore.NewCouponStore(logger),
		reservations: memstore.NewReservationStore(clk, logger),
		usage:        memstore.NewUsageStore(),
		ledger:       quota.NewLedger(clk, reservationTTL, time.UTC, logger),
	}
	f.cmds = commands.NewSettlementUseCase(f.coupons, f.reservations, f.usage, f.ledger, clk)
	return f
}

func (f *fixture) addCoupon(t *testing.T, mutate func(*coupon.NewCouponParams)) *coupon.Coupon {
	t.Helper()
	maxDiscount := money.MustNew(50)
	d, err := coupon.NewPercentageDiscount(decimal.NewFromInt(10), &maxDiscount)
	require.NoError(t, err)

	p := coupon.NewCouponParams{
		ID:         uuid.New(),
		Code:       "SAVE10",
		Discount:   d,
		ValidFrom:  testStart.Add(-24 * time.Hour),
		ValidUntil: testStart.Add(24 * time.Hour),
		IsActive:   true,
	}
	if mutate != nil {
		mutate(&p)
	}
	c, err := coupon.NewCoupon(p)
	require.NoError(t, err)
	f.coupons.Put(c)
	return c
}

func applyReq(code string, amount int64) request.ApplyCouponRequest {
	return request.ApplyCouponRequest{
		Code:        code,
		OrderAmount: amount,
		OrderType:   "product",
	}
}

func intPtr(n int) *int { return &n }

func rejectionReason(t *testing.T, err error) coupon.ReasonCode {
	t.Helper()
	var rejection *commands.RejectionError
	require.ErrorAs(t, err, &rejection)
	return rejection.Reason
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("eligible coupon previews the discount", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)

		result, err := f.cmds.Validate(ctx, applyReq("SAVE10", 1000), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, "SAVE10", result.Coupon.Code)
		assert.Equal(t, int64(50), result.DiscountAmount)
		assert.Equal(t, int64(950), result.FinalAmount)
	})

	t.Run("unknown code", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.cmds.Validate(ctx, applyReq("NOPE99", 1000), uuid.New())
		assert.Equal(t, coupon.ReasonNotFound, rejectionReason(t, err))
	})

	t.Run("malformed code maps to not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.cmds.Validate(ctx, applyReq("??", 1000), uuid.New())
		assert.Equal(t, coupon.ReasonNotFound, rejectionReason(t, err))
	})

	t.Run("inactive coupon", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, func(p *coupon.NewCouponParams) { p.IsActive = false })

		_, err := f.cmds.Validate(ctx, applyReq("SAVE10", 1000), uuid.New())
		assert.Equal(t, coupon.ReasonInactive, rejectionReason(t, err))
	})

	t.Run("never consumes quota", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, func(p *coupon.NewCouponParams) {
			p.Limits = coupon.Limits{Total: intPtr(1)}
		})

		for i := 0; i < 5; i++ {
			_, err := f.cmds.Validate(ctx, applyReq("SAVE10", 1000), uuid.New())
			require.NoError(t, err)
		}
		assert.Equal(t, quota.CounterView{}, f.ledger.GlobalCounters("SAVE10"))

		// The single slot is still available after all those previews.
		_, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		assert.NoError(t, err)
	})
}

func TestReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a reservation and holds the slot", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)
		user := uuid.New()

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, uuid.New())
		require.NoError(t, err)
		assert.False(t, result.IsReplayed)
		assert.Equal(t, "SAVE10", result.Reservation.CouponCode)
		assert.Equal(t, string(settlement.StatusReserved), result.Reservation.Status)
		assert.Equal(t, int64(50), result.Reservation.DiscountAmount)
		assert.Equal(t, testStart.Add(reservationTTL), result.Reservation.ExpiresAt)

		assert.Equal(t, quota.CounterView{Reserved: 1}, f.ledger.GlobalCounters("SAVE10"))

		stored, err := f.reservations.FindByID(ctx, result.Reservation.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusReserved, stored.Status())
	})

	t.Run("same key replays the same reservation", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)
		user := uuid.New()
		key := uuid.New()

		first, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, key)
		require.NoError(t, err)

		second, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, key)
		require.NoError(t, err)
		assert.True(t, second.IsReplayed)
		assert.Empty(t, cmp.Diff(first.Reservation, second.Reservation))

		// The replay must not take another slot.
		assert.Equal(t, quota.CounterView{Reserved: 1}, f.ledger.GlobalCounters("SAVE10"))
	})

	t.Run("same key with a different request conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)
		user := uuid.New()
		key := uuid.New()

		_, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, key)
		require.NoError(t, err)

		_, err = f.cmds.Reserve(ctx, applyReq("SAVE10", 2000), user, key)
		assert.ErrorIs(t, err, commands.ErrDuplicateReservation)
	})

	t.Run("quota rejections carry the violated dimension", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, func(p *coupon.NewCouponParams) {
			p.Limits = coupon.Limits{Total: intPtr(1)}
		})
		_, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)

		_, err = f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		assert.Equal(t, coupon.ReasonGlobalLimit, rejectionReason(t, err))
	})

	t.Run("per-user limit", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, func(p *coupon.NewCouponParams) {
			p.Limits = coupon.Limits{PerUser: intPtr(1)}
		})
		user := uuid.New()
		_, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, uuid.New())
		require.NoError(t, err)

		_, err = f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, uuid.New())
		assert.Equal(t, coupon.ReasonUserLimit, rejectionReason(t, err))

		// A different user still gets a slot.
		_, err = f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		assert.NoError(t, err)
	})

	t.Run("daily limit", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, func(p *coupon.NewCouponParams) {
			p.Limits = coupon.Limits{PerUserPerDay: intPtr(1)}
		})
		user := uuid.New()
		_, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, uuid.New())
		require.NoError(t, err)

		_, err = f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, uuid.New())
		assert.Equal(t, coupon.ReasonDailyLimit, rejectionReason(t, err))
	})

	t.Run("expired reservation frees its slot", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, func(p *coupon.NewCouponParams) {
			p.Limits = coupon.Limits{Total: intPtr(1)}
		})
		_, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)

		_, err = f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.Error(t, err)

		f.clk.Add(reservationTTL + time.Second)
		_, err = f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		assert.NoError(t, err)
	})

	t.Run("key of an expired reservation is reusable", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)
		user := uuid.New()
		key := uuid.New()

		first, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, key)
		require.NoError(t, err)

		f.clk.Add(reservationTTL + time.Second)
		second, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, key)
		require.NoError(t, err)
		assert.False(t, second.IsReplayed)
		assert.NotEqual(t, first.Reservation.ID, second.Reservation.ID)
	})

	t.Run("rejected reserve takes no slot", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, func(p *coupon.NewCouponParams) {
			p.MinOrderAmount = money.MustNew(5000)
		})
		_, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		assert.Equal(t, coupon.ReasonMinOrderNotMet, rejectionReason(t, err))
		assert.Equal(t, quota.CounterView{}, f.ledger.GlobalCounters("SAVE10"))
	})
}

func TestCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("settles the reservation and records usage", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)
		user := uuid.New()
		orderID := uuid.New()

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), user, uuid.New())
		require.NoError(t, err)

		require.NoError(t, f.cmds.Commit(ctx, result.Reservation.ID, orderID))

		assert.Equal(t, quota.CounterView{Used: 1}, f.ledger.GlobalCounters("SAVE10"))

		stored, err := f.reservations.FindByID(ctx, result.Reservation.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusCommitted, stored.Status())
		require.NotNil(t, stored.OrderID())
		assert.Equal(t, orderID, *stored.OrderID())

		records, err := f.usage.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, user, records[0].UserID)
		assert.Equal(t, orderID, records[0].OrderID)
		assert.Equal(t, int64(50), records[0].DiscountAmount.MinorUnits())
	})

	t.Run("repeated commit appends usage only once", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)

		require.NoError(t, f.cmds.Commit(ctx, result.Reservation.ID, uuid.New()))
		require.NoError(t, f.cmds.Commit(ctx, result.Reservation.ID, uuid.New()))

		records, err := f.usage.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Equal(t, quota.CounterView{Used: 1}, f.ledger.GlobalCounters("SAVE10"))
	})

	t.Run("unknown reservation", func(t *testing.T) {
		f := newFixture(t)
		err := f.cmds.Commit(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, commands.ErrReservationNotFound)
	})

	t.Run("released reservation conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, f.cmds.Release(ctx, result.Reservation.ID))

		err = f.cmds.Commit(ctx, result.Reservation.ID, uuid.New())
		assert.ErrorIs(t, err, commands.ErrReservationTerminal)
	})

	t.Run("expired reservation conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)

		f.clk.Add(reservationTTL + time.Second)
		err = f.cmds.Commit(ctx, result.Reservation.ID, uuid.New())
		assert.ErrorIs(t, err, commands.ErrReservationTerminal)
		assert.Equal(t, quota.CounterView{}, f.ledger.GlobalCounters("SAVE10"))
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("frees the slot", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, func(p *coupon.NewCouponParams) {
			p.Limits = coupon.Limits{Total: intPtr(1)}
		})

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, f.cmds.Release(ctx, result.Reservation.ID))

		stored, err := f.reservations.FindByID(ctx, result.Reservation.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusReleased, stored.Status())

		_, err = f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		assert.NoError(t, err)
	})

	t.Run("repeated release is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, f.cmds.Release(ctx, result.Reservation.ID))
		assert.NoError(t, f.cmds.Release(ctx, result.Reservation.ID))
	})

	t.Run("committed reservation conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, f.cmds.Commit(ctx, result.Reservation.ID, uuid.New()))

		err = f.cmds.Release(ctx, result.Reservation.ID)
		assert.ErrorIs(t, err, commands.ErrReservationTerminal)
	})

	t.Run("expired reservation is a no-op and settles the stored status", func(t *testing.T) {
		f := newFixture(t)
		f.addCoupon(t, nil)

		result, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
		require.NoError(t, err)

		f.clk.Add(reservationTTL + time.Second)
		require.NoError(t, f.cmds.Release(ctx, result.Reservation.ID))

		stored, err := f.reservations.FindByID(ctx, result.Reservation.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusExpired, stored.Status())
	})

	t.Run("unknown reservation", func(t *testing.T) {
		f := newFixture(t)
		err := f.cmds.Release(ctx, uuid.New())
		assert.ErrorIs(t, err, commands.ErrReservationNotFound)
	})
}

func TestExpireAbandoned(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.addCoupon(t, nil)

	overdue, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
	require.NoError(t, err)

	f.clk.Add(reservationTTL + time.Second)
	fresh, err := f.cmds.Reserve(ctx, applyReq("SAVE10", 1000), uuid.New(), uuid.New())
	require.NoError(t, err)

	expired, err := f.cmds.ExpireAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	stored, err := f.reservations.FindByID(ctx, overdue.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusExpired, stored.Status())

	stored, err = f.reservations.FindByID(ctx, fresh.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusReserved, stored.Status())
}
