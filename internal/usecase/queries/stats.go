package queries

import (
	"context"
	"time"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/infra"
	"coupon-settlement/internal/pkg/clock"
	"coupon-settlement/internal/pkg/errs"
	"coupon-settlement/internal/quota"

	"github.com/google/uuid"
)

var ErrCouponNotFound = errs.New("coupon not found")

// CouponStatsView aggregates global consumption of one coupon. Limit-derived
// fields are nil when the coupon carries no total limit.
type CouponStatsView struct {
	Code               string   `json:"code"`
	TotalUsage         int      `json:"total_usage"`
	ActiveReservations int      `json:"active_reservations"`
	TotalLimit         *int     `json:"total_limit,omitempty"`
	RemainingTotal     *int     `json:"remaining_total,omitempty"`
	UsagePercentage    *float64 `json:"usage_percentage,omitempty"`
}

// UserStatsView is one user's consumption of one coupon, including the
// current-day bucket.
type UserStatsView struct {
	Code           string `json:"code"`
	TotalUsage     int    `json:"total_usage"`
	RemainingUsage *int   `json:"remaining_usage,omitempty"`
	TodayUsage     int    `json:"today_usage"`
	RemainingToday *int   `json:"remaining_today,omitempty"`
}

type CouponReader interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

type UsageReader interface {
	CountByCoupon(ctx context.Context, code string) (int, error)
	CountByUser(ctx context.Context, code string, userID uuid.UUID) (int, error)
	CountByUserBetween(ctx context.Context, code string, userID uuid.UUID, from, to time.Time) (int, error)
}

// QuotaCounters is the live counter surface of the quota ledger.
type QuotaCounters interface {
	GlobalCounters(code string) quota.CounterView
	UserCounters(code string, userID uuid.UUID) (user quota.CounterView, today quota.CounterView)
}

type StatsQueries interface {
	CouponStats(ctx context.Context, code string) (*CouponStatsView, error)
	UserStats(ctx context.Context, code string, userID uuid.UUID) (*UserStatsView, error)
}

type statsQueriesImpl struct {
	couponReader CouponReader
	usageReader  UsageReader
	counters     QuotaCounters
	clock        clock.Clock
	dayLoc       *time.Location
}

func NewStatsQueries(
	couponReader CouponReader,
	usageReader UsageReader,
	counters QuotaCounters,
	clk clock.Clock,
	dayLoc *time.Location,
) StatsQueries {
	return &statsQueriesImpl{
		couponReader: couponReader,
		usageReader:  usageReader,
		counters:     counters,
		clock:        clk,
		dayLoc:       dayLoc,
	}
}

func (q *statsQueriesImpl) CouponStats(ctx context.Context, code string) (*CouponStatsView, error) {
	c, err := q.findCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	total, err := q.usageReader.CountByCoupon(ctx, c.Code().String())
	if err != nil {
		return nil, errs.Wrap(err, "counting coupon usage")
	}
	live := q.counters.GlobalCounters(c.Code().String())

	view := &CouponStatsView{
		Code:               c.Code().String(),
		TotalUsage:         total,
		ActiveReservations: live.Reserved,
	}
	if limit := c.UsageLimits().Total; limit != nil {
		view.TotalLimit = limit
		view.RemainingTotal = remaining(*limit, total, live.Reserved)
		if *limit > 0 {
			pct := float64(total) / float64(*limit) * 100
			view.UsagePercentage = &pct
		}
	}
	return view, nil
}

func (q *statsQueriesImpl) UserStats(ctx context.Context, code string, userID uuid.UUID) (*UserStatsView, error) {
	c, err := q.findCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	total, err := q.usageReader.CountByUser(ctx, c.Code().String(), userID)
	if err != nil {
		return nil, errs.Wrap(err, "counting user usage")
	}

	dayStart, dayEnd := q.todayWindow()
	today, err := q.usageReader.CountByUserBetween(ctx, c.Code().String(), userID, dayStart, dayEnd)
	if err != nil {
		return nil, errs.Wrap(err, "counting user usage for today")
	}

	liveUser, liveToday := q.counters.UserCounters(c.Code().String(), userID)

	view := &UserStatsView{
		Code:       c.Code().String(),
		TotalUsage: total,
		TodayUsage: today,
	}
	if limit := c.UsageLimits().PerUser; limit != nil {
		view.RemainingUsage = remaining(*limit, total, liveUser.Reserved)
	}
	if limit := c.UsageLimits().PerUserPerDay; limit != nil {
		view.RemainingToday = remaining(*limit, today, liveToday.Reserved)
	}
	return view, nil
}

func (q *statsQueriesImpl) findCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	normalized, err := coupon.NewCode(code)
	if err != nil {
		return nil, ErrCouponNotFound
	}
	c, err := q.couponReader.FindByCode(ctx, normalized.String())
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, errs.Mark(err, ErrCouponNotFound)
	}
	return c, nil
}

func (q *statsQueriesImpl) todayWindow() (time.Time, time.Time) {
	now := q.clock.Now().In(q.dayLoc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, q.dayLoc)
	return start, start.AddDate(0, 0, 1)
}

// remaining clamps limit minus consumed minus in-flight at zero. In-flight
// reservations count against availability even though they are not yet usage.
func remaining(limit, used, reserved int) *int {
	r := limit - used - reserved
	if r < 0 {
		r = 0
	}
	return &r
}
