package memstore

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"
	"coupon-settlement/internal/pkg/errs"
)

type couponSeed struct {
	ID                   string          `json:"id,omitempty"`
	Code                 string          `json:"code"`
	Description          string          `json:"description,omitempty"`
	DiscountType         string          `json:"discount_type"`
	DiscountValue        decimal.Decimal `json:"discount_value"`
	MaxDiscount          *int64          `json:"max_discount,omitempty"`
	MinOrderAmount       int64           `json:"min_order_amount,omitempty"`
	ValidFrom            time.Time       `json:"valid_from"`
	ValidUntil           time.Time       `json:"valid_until"`
	IsActive             bool            `json:"is_active"`
	TotalLimit           *int            `json:"total_limit,omitempty"`
	PerUserLimit         *int            `json:"per_user_limit,omitempty"`
	PerUserDayLimit      *int            `json:"per_user_day_limit,omitempty"`
	ApplicableProducts   []string        `json:"applicable_products,omitempty"`
	ApplicableCategories []string        `json:"applicable_categories,omitempty"`
	ApplicableUsers      []uuid.UUID     `json:"applicable_users,omitempty"`
	ExcludeUsers         []uuid.UUID     `json:"exclude_users,omitempty"`
}

// LoadSeedFile parses a JSON array of coupon definitions, used to populate
// the in-memory registry when no database is configured.
func LoadSeedFile(path string) ([]*coupon.Coupon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, "reading coupon seed file")
	}

	var seeds []couponSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, errs.Wrap(err, "parsing coupon seed file")
	}

	coupons := make([]*coupon.Coupon, 0, len(seeds))
	for _, seed := range seeds {
		c, err := seed.toCoupon()
		if err != nil {
			return nil, errs.Wrap(err, "invalid coupon seed "+seed.Code)
		}
		coupons = append(coupons, c)
	}
	return coupons, nil
}

func (s couponSeed) toCoupon() (*coupon.Coupon, error) {
	id := uuid.New()
	if s.ID != "" {
		parsed, err := uuid.Parse(s.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	dt, err := coupon.NewDiscountType(s.DiscountType)
	if err != nil {
		return nil, err
	}
	var maxDiscount *money.Money
	if s.MaxDiscount != nil {
		m, err := money.New(*s.MaxDiscount)
		if err != nil {
			return nil, err
		}
		maxDiscount = &m
	}
	discount, err := coupon.NewDiscount(dt, s.DiscountValue, maxDiscount)
	if err != nil {
		return nil, err
	}
	minOrder, err := money.New(s.MinOrderAmount)
	if err != nil {
		return nil, err
	}

	return coupon.NewCoupon(coupon.NewCouponParams{
		ID:             id,
		Code:           s.Code,
		Description:    s.Description,
		Discount:       discount,
		MinOrderAmount: minOrder,
		ValidFrom:      s.ValidFrom,
		ValidUntil:     s.ValidUntil,
		IsActive:       s.IsActive,
		Limits: coupon.Limits{
			Total:         s.TotalLimit,
			PerUser:       s.PerUserLimit,
			PerUserPerDay: s.PerUserDayLimit,
		},
		ApplicableProducts:   s.ApplicableProducts,
		ApplicableCategories: s.ApplicableCategories,
		ApplicableUsers:      s.ApplicableUsers,
		ExcludeUsers:         s.ExcludeUsers,
	})
}
