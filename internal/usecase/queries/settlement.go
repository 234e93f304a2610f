package queries

import (
	"context"
	"time"

	"coupon-settlement/internal/domain/settlement"
	"coupon-settlement/internal/infra"
	"coupon-settlement/internal/pkg/clock"
	"coupon-settlement/internal/pkg/errs"

	"github.com/google/uuid"
)

var ErrReservationNotFound = errs.New("reservation not found")

// ReservationView is the read model returned to the checkout flow. Status is
// the effective status: a reservation past its TTL reads as expired even if
// the sweep has not visited it yet.
type ReservationView struct {
	ID             uuid.UUID  `json:"id"`
	CouponCode     string     `json:"coupon_code"`
	UserID         uuid.UUID  `json:"user_id"`
	OrderAmount    int64      `json:"order_amount"`
	DiscountAmount int64      `json:"discount_amount"`
	OrderType      string     `json:"order_type"`
	Status         string     `json:"status"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

type ReservationReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*settlement.Reservation, error)
}

type ReservationQueries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ReservationView, error)
}

type reservationQueriesImpl struct {
	reader ReservationReader
	clock  clock.Clock
}

func NewReservationQueries(reader ReservationReader, clk clock.Clock) ReservationQueries {
	return &reservationQueriesImpl{reader: reader, clock: clk}
}

func (q *reservationQueriesImpl) GetByID(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	res, err := q.reader.FindByID(ctx, id)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, errs.Mark(err, ErrReservationNotFound)
	}
	return NewReservationView(res, q.clock.Now()), nil
}

func NewReservationView(res *settlement.Reservation, now time.Time) *ReservationView {
	return &ReservationView{
		ID:             res.ID(),
		CouponCode:     res.CouponCode().String(),
		UserID:         res.UserID(),
		OrderAmount:    res.OrderAmount().MinorUnits(),
		DiscountAmount: res.DiscountAmount().MinorUnits(),
		OrderType:      res.OrderType().String(),
		Status:         string(res.EffectiveStatus(now)),
		OrderID:        res.OrderID(),
		CreatedAt:      res.CreatedAt(),
		ExpiresAt:      res.ExpiresAt(),
	}
}
