package pgstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"
	"coupon-settlement/internal/domain/settlement"
	"coupon-settlement/internal/infra"
)

const reservationColumns = `id, coupon_code, user_id, order_amount, discount_amount,
	order_type, status, idempotency_key, request_hash, order_id, created_at, expires_at`

const (
	createReservationSQL = `INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	findReservationByIDSQL = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	findReservationByIdemSQL = `SELECT ` + reservationColumns + ` FROM reservations
		WHERE user_id = $1 AND coupon_code = $2 AND idempotency_key = $3
		ORDER BY created_at DESC LIMIT 1`

	updateReservationSQL = `UPDATE reservations
		SET status = $2, order_id = $3 WHERE id = $1`

	markExpiredSQL = `UPDATE reservations
		SET status = 'expired' WHERE status = 'reserved' AND expires_at < $1`

	listActiveReservationsSQL = `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = 'reserved'`
)

// uniqueViolation is the Postgres error code for duplicate key violations.
const uniqueViolation = "23505"

type ReservationStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewReservationStore(pool *pgxpool.Pool, logger *slog.Logger) *ReservationStore {
	return &ReservationStore{pool: pool, logger: logger}
}

func (s *ReservationStore) Create(ctx context.Context, res *settlement.Reservation) error {
	_, err := s.pool.Exec(ctx, createReservationSQL,
		res.ID(), res.CouponCode().String(), res.UserID(),
		res.OrderAmount().MinorUnits(), res.DiscountAmount().MinorUnits(),
		res.OrderType().String(), string(res.Status()),
		res.IdempotencyKey(), res.RequestHash(), res.OrderID(),
		res.CreatedAt(), res.ExpiresAt(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return infra.WrapRepoErr(s.logger, infra.KindDuplicateKey, "idempotency key already used", err)
		}
		return infra.WrapRepoErr(s.logger, infra.KindDBFailure, "creating reservation", err)
	}
	return nil
}

func (s *ReservationStore) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Reservation, error) {
	rows, err := s.pool.Query(ctx, findReservationByIDSQL, id)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "querying reservation", err)
	}
	return s.collectOne(rows)
}

func (s *ReservationStore) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, code string, key uuid.UUID) (*settlement.Reservation, error) {
	rows, err := s.pool.Query(ctx, findReservationByIdemSQL, userID, code, key)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "querying reservation", err)
	}
	return s.collectOne(rows)
}

func (s *ReservationStore) Update(ctx context.Context, res *settlement.Reservation) error {
	tag, err := s.pool.Exec(ctx, updateReservationSQL, res.ID(), string(res.Status()), res.OrderID())
	if err != nil {
		return infra.WrapRepoErr(s.logger, infra.KindDBFailure, "updating reservation", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr(s.logger, infra.KindNotFound, "reservation not found", nil)
	}
	return nil
}

func (s *ReservationStore) MarkExpiredBefore(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, markExpiredSQL, now)
	if err != nil {
		return 0, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "expiring reservations", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *ReservationStore) ListActive(ctx context.Context) ([]*settlement.Reservation, error) {
	rows, err := s.pool.Query(ctx, listActiveReservationsSQL)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "listing active reservations", err)
	}

	reservations, err := pgx.CollectRows(rows, scanReservation)
	if err != nil {
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "scanning reservations", err)
	}
	return reservations, nil
}

func (s *ReservationStore) collectOne(rows pgx.Rows) (*settlement.Reservation, error) {
	res, err := pgx.CollectExactlyOneRow(rows, scanReservation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(s.logger, infra.KindNotFound, "reservation not found", nil)
		}
		return nil, infra.WrapRepoErr(s.logger, infra.KindDBFailure, "scanning reservation", err)
	}
	return res, nil
}

func scanReservation(row pgx.CollectableRow) (*settlement.Reservation, error) {
	var (
		id             uuid.UUID
		code           string
		userID         uuid.UUID
		orderAmount    int64
		discountAmount int64
		orderType      string
		status         string
		idempotencyKey uuid.UUID
		requestHash    string
		orderID        *uuid.UUID
		createdAt      time.Time
		expiresAt      time.Time
	)
	err := row.Scan(
		&id, &code, &userID, &orderAmount, &discountAmount,
		&orderType, &status, &idempotencyKey, &requestHash,
		&orderID, &createdAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	couponCode, err := coupon.NewCode(code)
	if err != nil {
		return nil, err
	}
	ot, err := coupon.NewOrderType(orderType)
	if err != nil {
		return nil, err
	}
	amount, err := money.New(orderAmount)
	if err != nil {
		return nil, err
	}
	discount, err := money.New(discountAmount)
	if err != nil {
		return nil, err
	}

	return settlement.ReconstructReservation(
		id, couponCode, userID, amount, discount, ot,
		settlement.Status(status), idempotencyKey, requestHash,
		orderID, createdAt, expiresAt,
	), nil
}
