package pgstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"
	"coupon-settlement/internal/infra"
)

const couponColumns = `id, code, description, discount_type, discount_value, max_discount,
	min_order_amount, valid_from, valid_until, is_active,
	total_limit, per_user_limit, per_user_day_limit,
	applicable_products, applicable_categories, applicable_users, exclude_users`

const findCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

const listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons`

type CouponStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCouponStore(pool *pgxpool.Pool, logger *slog.Logger) *CouponStore {
	return &CouponStore{pool: pool, logger: logger}
}

func (s *CouponStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := s.pool.Query(ctx, findCouponByCodeSQL, code)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "querying coupon", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, s.scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(s.logger, infra.KindNotFound, "coupon not found", nil)
		}
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "scanning coupon", err)
	}
	return c, nil
}

func (s *CouponStore) All(ctx context.Context) ([]*coupon.Coupon, error) {
	rows, err := s.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "listing coupons", err)
	}

	coupons, err := pgx.CollectRows(rows, s.scanCoupon)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "scanning coupons", err)
	}
	return coupons, nil
}

func (s *CouponStore) scanCoupon(row pgx.CollectableRow) (*coupon.Coupon, error) {
	var (
		id                   uuid.UUID
		code                 string
		description          string
		discountType         string
		discountValue        decimal.Decimal
		maxDiscount          *int64
		minOrderAmount       int64
		validFrom            time.Time
		validUntil           time.Time
		isActive             bool
		totalLimit           *int
		perUserLimit         *int
		perUserDayLimit      *int
		applicableProducts   []string
		applicableCategories []string
		applicableUsers      []uuid.UUID
		excludeUsers         []uuid.UUID
	)
	err := row.Scan(
		&id, &code, &description, &discountType, &discountValue, &maxDiscount,
		&minOrderAmount, &validFrom, &validUntil, &isActive,
		&totalLimit, &perUserLimit, &perUserDayLimit,
		&applicableProducts, &applicableCategories, &applicableUsers, &excludeUsers,
	)
	if err != nil {
		return nil, err
	}

	dt, err := coupon.NewDiscountType(discountType)
	if err != nil {
		return nil, err
	}
	var maxMoney *money.Money
	if maxDiscount != nil {
		m, err := money.New(*maxDiscount)
		if err != nil {
			return nil, err
		}
		maxMoney = &m
	}
	discount, err := coupon.NewDiscount(dt, discountValue, maxMoney)
	if err != nil {
		return nil, err
	}
	minOrder, err := money.New(minOrderAmount)
	if err != nil {
		return nil, err
	}

	return coupon.NewCoupon(coupon.NewCouponParams{
		ID:             id,
		Code:           code,
		Description:    description,
		Discount:       discount,
		MinOrderAmount: minOrder,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
		IsActive:       isActive,
		Limits: coupon.Limits{
			Total:         totalLimit,
			PerUser:       perUserLimit,
			PerUserPerDay: perUserDayLimit,
		},
		ApplicableProducts:   applicableProducts,
		ApplicableCategories: applicableCategories,
		ApplicableUsers:      applicableUsers,
		ExcludeUsers:         excludeUsers,
	})
}
