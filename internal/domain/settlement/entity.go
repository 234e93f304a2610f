package settlement

import (
	"errors"
	"time"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"

	"github.com/google/uuid"
)

var (
	ErrAlreadyTerminal = errors.New("reservation already in a terminal state")
	ErrNotReserved     = errors.New("reservation is not in reserved state")
)

type Status string

const (
	StatusReserved  Status = "reserved"
	StatusCommitted Status = "committed"
	StatusReleased  Status = "released"
	StatusExpired   Status = "expired"
)

func (s Status) IsTerminal() bool {
	return s == StatusCommitted || s == StatusReleased || s == StatusExpired
}

// Reservation is a TTL-bounded hold on coupon quota pending order completion.
// State machine: reserved → {committed | released | expired}; terminal states
// are absorbing.
type Reservation struct {
	id             uuid.UUID
	couponCode     coupon.Code
	userID         uuid.UUID
	orderAmount    money.Money
	discountAmount money.Money
	orderType      coupon.OrderType
	status         Status
	idempotencyKey uuid.UUID
	requestHash    string
	orderID        *uuid.UUID
	createdAt      time.Time
	expiresAt      time.Time
}

func NewReservation(
	id uuid.UUID,
	code coupon.Code,
	userID uuid.UUID,
	orderAmount, discountAmount money.Money,
	orderType coupon.OrderType,
	idempotencyKey uuid.UUID,
	requestHash string,
	now time.Time,
	ttl time.Duration,
) *Reservation {
	return &Reservation{
		id:             id,
		couponCode:     code,
		userID:         userID,
		orderAmount:    orderAmount,
		discountAmount: discountAmount,
		orderType:      orderType,
		status:         StatusReserved,
		idempotencyKey: idempotencyKey,
		requestHash:    requestHash,
		createdAt:      now,
		expiresAt:      now.Add(ttl),
	}
}

func ReconstructReservation(
	id uuid.UUID,
	code coupon.Code,
	userID uuid.UUID,
	orderAmount, discountAmount money.Money,
	orderType coupon.OrderType,
	status Status,
	idempotencyKey uuid.UUID,
	requestHash string,
	orderID *uuid.UUID,
	createdAt, expiresAt time.Time,
) *Reservation {
	return &Reservation{
		id:             id,
		couponCode:     code,
		userID:         userID,
		orderAmount:    orderAmount,
		discountAmount: discountAmount,
		orderType:      orderType,
		status:         status,
		idempotencyKey: idempotencyKey,
		requestHash:    requestHash,
		orderID:        orderID,
		createdAt:      createdAt,
		expiresAt:      expiresAt,
	}
}

// HasExpired reports whether the TTL has passed. Expiry is lazy: a reservation
// past its TTL no longer counts toward limits even before the sweep marks it.
func (r *Reservation) HasExpired(now time.Time) bool {
	return r.status == StatusReserved && now.After(r.expiresAt)
}

// EffectiveStatus folds lazy expiry into the stored status.
func (r *Reservation) EffectiveStatus(now time.Time) Status {
	if r.HasExpired(now) {
		return StatusExpired
	}
	return r.status
}

// Commit transitions reserved → committed. Committing an already committed
// reservation is a no-op; any other terminal state is a conflict.
func (r *Reservation) Commit(orderID uuid.UUID, now time.Time) error {
	switch r.EffectiveStatus(now) {
	case StatusCommitted:
		return nil
	case StatusReserved:
		r.status = StatusCommitted
		r.orderID = &orderID
		return nil
	default:
		return ErrAlreadyTerminal
	}
}

// Release transitions reserved → released. Released and expired are
// equivalent for quota purposes, so releasing either is a no-op.
func (r *Reservation) Release(now time.Time) error {
	switch r.EffectiveStatus(now) {
	case StatusReleased, StatusExpired:
		return nil
	case StatusReserved:
		r.status = StatusReleased
		return nil
	default:
		return ErrAlreadyTerminal
	}
}

// MarkExpired is the sweep-side transition for an overdue reservation.
func (r *Reservation) MarkExpired() error {
	if r.status != StatusReserved {
		return ErrNotReserved
	}
	r.status = StatusExpired
	return nil
}

func (r *Reservation) ID() uuid.UUID               { return r.id }
func (r *Reservation) CouponCode() coupon.Code     { return r.couponCode }
func (r *Reservation) UserID() uuid.UUID           { return r.userID }
func (r *Reservation) OrderAmount() money.Money    { return r.orderAmount }
func (r *Reservation) DiscountAmount() money.Money { return r.discountAmount }
func (r *Reservation) OrderType() coupon.OrderType { return r.orderType }
func (r *Reservation) Status() Status              { return r.status }
func (r *Reservation) IdempotencyKey() uuid.UUID   { return r.idempotencyKey }
func (r *Reservation) RequestHash() string         { return r.requestHash }
func (r *Reservation) OrderID() *uuid.UUID         { return r.orderID }
func (r *Reservation) CreatedAt() time.Time        { return r.createdAt }
func (r *Reservation) ExpiresAt() time.Time        { return r.expiresAt }
