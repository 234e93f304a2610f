package coupon

import (
	"errors"
	"time"

	"coupon-settlement/internal/domain/money"

	"github.com/google/uuid"
)

var (
	ErrInvalidValidityWindow = errors.New("validFrom must not be after validUntil")
	ErrNegativeUsageLimit    = errors.New("usage limits must be non-negative")
)

// Limits are the optional usage quotas of a coupon. A nil limit is unlimited.
type Limits struct {
	Total         *int
	PerUser       *int
	PerUserPerDay *int
}

// Coupon is an immutable-per-version coupon definition, looked up by code.
type Coupon struct {
	id                   uuid.UUID
	code                 Code
	description          string
	discount             Discount
	minOrderAmount       money.Money
	validFrom            time.Time
	validUntil           time.Time
	isActive             bool
	limits               Limits
	applicableProducts   []string
	applicableCategories []string
	applicableUsers      []uuid.UUID
	excludeUsers         []uuid.UUID
}

type NewCouponParams struct {
	ID                   uuid.UUID
	Code                 string
	Description          string
	Discount             Discount
	MinOrderAmount       money.Money
	ValidFrom            time.Time
	ValidUntil           time.Time
	IsActive             bool
	Limits               Limits
	ApplicableProducts   []string
	ApplicableCategories []string
	ApplicableUsers      []uuid.UUID
	ExcludeUsers         []uuid.UUID
}

func NewCoupon(p NewCouponParams) (*Coupon, error) {
	code, err := NewCode(p.Code)
	if err != nil {
		return nil, err
	}

	if p.ValidFrom.After(p.ValidUntil) {
		return nil, ErrInvalidValidityWindow
	}

	for _, limit := range []*int{p.Limits.Total, p.Limits.PerUser, p.Limits.PerUserPerDay} {
		if limit != nil && *limit < 0 {
			return nil, ErrNegativeUsageLimit
		}
	}

	return &Coupon{
		id:                   p.ID,
		code:                 code,
		description:          p.Description,
		discount:             p.Discount,
		minOrderAmount:       p.MinOrderAmount,
		validFrom:            p.ValidFrom,
		validUntil:           p.ValidUntil,
		isActive:             p.IsActive,
		limits:               p.Limits,
		applicableProducts:   p.ApplicableProducts,
		applicableCategories: p.ApplicableCategories,
		applicableUsers:      p.ApplicableUsers,
		excludeUsers:         p.ExcludeUsers,
	}, nil
}

// IsWithinWindow reports whether t falls inside the inclusive validity window.
func (c *Coupon) IsWithinWindow(t time.Time) bool {
	return !t.Before(c.validFrom) && !t.After(c.validUntil)
}

func (c *Coupon) ID() uuid.UUID                  { return c.id }
func (c *Coupon) Code() Code                     { return c.code }
func (c *Coupon) Description() string            { return c.description }
func (c *Coupon) Discount() Discount             { return c.discount }
func (c *Coupon) MinOrderAmount() money.Money    { return c.minOrderAmount }
func (c *Coupon) ValidFrom() time.Time           { return c.validFrom }
func (c *Coupon) ValidUntil() time.Time          { return c.validUntil }
func (c *Coupon) IsActive() bool                 { return c.isActive }
func (c *Coupon) UsageLimits() Limits            { return c.limits }
func (c *Coupon) ApplicableProducts() []string   { return c.applicableProducts }
func (c *Coupon) ApplicableCategories() []string { return c.applicableCategories }
func (c *Coupon) ApplicableUsers() []uuid.UUID   { return c.applicableUsers }
func (c *Coupon) ExcludeUsers() []uuid.UUID      { return c.excludeUsers }
