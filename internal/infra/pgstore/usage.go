package pgstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"
	"coupon-settlement/internal/domain/settlement"
	"coupon-settlement/internal/infra"
)

const (
	appendUsageSQL = `INSERT INTO usage_records (coupon_code, user_id, order_id, discount_amount, committed_at)
		VALUES ($1, $2, $3, $4, $5)`

	countByCouponSQL = `SELECT COUNT(*) FROM usage_records WHERE coupon_code = $1`

	countByUserSQL = `SELECT COUNT(*) FROM usage_records WHERE coupon_code = $1 AND user_id = $2`

	countByUserBetweenSQL = `SELECT COUNT(*) FROM usage_records
		WHERE coupon_code = $1 AND user_id = $2 AND committed_at >= $3 AND committed_at < $4`

	listUsageSQL = `SELECT coupon_code, user_id, order_id, discount_amount, committed_at FROM usage_records`
)

type UsageStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewUsageStore(pool *pgxpool.Pool, logger *slog.Logger) *UsageStore {
	return &UsageStore{pool: pool, logger: logger}
}

func (s *UsageStore) Append(ctx context.Context, rec settlement.UsageRecord) error {
	_, err := s.pool.Exec(ctx, appendUsageSQL,
		rec.CouponCode.String(), rec.UserID, rec.OrderID,
		rec.DiscountAmount.MinorUnits(), rec.CommittedAt,
	)
	if err != nil {
		return infra.WrapRepoErr(s.logger, infra.KindDBFailure, "appending usage record", err)
	}
	return nil
}

func (s *UsageStore) CountByCoupon(ctx context.Context, code string) (int, error) {
	return s.count(ctx, countByCouponSQL, code)
}

func (s *UsageStore) CountByUser(ctx context.Context, code string, userID uuid.UUID) (int, error) {
	return s.count(ctx, countByUserSQL, code, userID)
}

func (s *UsageStore) CountByUserBetween(ctx context.Context, code string, userID uuid.UUID, from, to time.Time) (int, error) {
	return s.count(ctx, countByUserBetweenSQL, code, userID, from, to)
}

func (s *UsageStore) ListAll(ctx context.Context) ([]settlement.UsageRecord, error) {
	rows, err := s.pool.Query(ctx, listUsageSQL)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "listing usage records", err)
	}

	records, err := pgx.CollectRows(rows, scanUsageRecord)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "scanning usage records", err)
	}
	return records, nil
}

func (s *UsageStore) count(ctx context.Context, sql string, args ...any) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "counting usage records", err)
	}
	return n, nil
}

func scanUsageRecord(row pgx.CollectableRow) (settlement.UsageRecord, error) {
	var (
		rec    settlement.UsageRecord
		code   string
		amount int64
	)
	err := row.Scan(&code, &rec.UserID, &rec.OrderID, &amount, &rec.CommittedAt)
	if err != nil {
		return rec, err
	}

	couponCode, err := coupon.NewCode(code)
	if err != nil {
		return rec, err
	}
	discount, err := money.New(amount)
	if err != nil {
		return rec, err
	}
	rec.CouponCode = couponCode
	rec.DiscountAmount = discount
	return rec, nil
}
