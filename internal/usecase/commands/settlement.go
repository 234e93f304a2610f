package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"
	"coupon-settlement/internal/domain/settlement"
	reqdto "coupon-settlement/internal/handler/dto/request"
	"coupon-settlement/internal/infra"
	"coupon-settlement/internal/pkg/clock"
	"coupon-settlement/internal/pkg/errs"
	"coupon-settlement/internal/quota"
	"coupon-settlement/internal/usecase/queries"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest          = errs.New("invalid request")
	ErrReservationNotFound     = errs.New("reservation not found")
	ErrReservationTerminal     = errs.New("reservation already settled")
	ErrDuplicateReservation    = errs.New("idempotency key reused with a different request")
	ErrQuotaStateMismatch      = errs.New("quota ledger out of sync with reservation store")
	ErrDatabaseOperationFailed = errs.New("database operation failed")
)

// RejectionError is a business rejection of a coupon: the request was well
// formed but the coupon cannot be applied. Carries the machine-readable
// reason the checkout flow surfaces to the shopper.
type RejectionError struct {
	Reason coupon.ReasonCode
}

func (e *RejectionError) Error() string {
	return "coupon rejected: " + string(e.Reason)
}

// CouponSummary is the preview-facing subset of a coupon definition.
type CouponSummary struct {
	Code           string
	Description    string
	DiscountType   string
	DiscountValue  string
	MinOrderAmount int64
}

// ValidationResult is the read-only answer to "would this coupon apply".
type ValidationResult struct {
	Coupon         CouponSummary
	DiscountAmount int64
	FinalAmount    int64
}

type ReserveResult struct {
	Reservation *queries.ReservationView
	IsReplayed  bool
}

type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, res *settlement.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*settlement.Reservation, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, code string, key uuid.UUID) (*settlement.Reservation, error)
	Update(ctx context.Context, res *settlement.Reservation) error
	MarkExpiredBefore(ctx context.Context, now time.Time) (int, error)
}

type UsageRecordRepository interface {
	Append(ctx context.Context, rec settlement.UsageRecord) error
}

// QuotaLedger is the single authority over quota counters. Reserve, Commit
// and Release go through it before anything is persisted.
type QuotaLedger interface {
	TTL() time.Duration
	TryReserve(code string, userID uuid.UUID, limits quota.Limits) (uuid.UUID, error)
	Commit(token uuid.UUID) error
	Release(token uuid.UUID) error
	SweepExpired() int
}

type SettlementCommands interface {
	Validate(ctx context.Context, req reqdto.ApplyCouponRequest, userID uuid.UUID) (*ValidationResult, error)
	Reserve(ctx context.Context, req reqdto.ApplyCouponRequest, userID uuid.UUID, idempotencyKey uuid.UUID) (*ReserveResult, error)
	Commit(ctx context.Context, reservationID, orderID uuid.UUID) error
	Release(ctx context.Context, reservationID uuid.UUID) error
	ExpireAbandoned(ctx context.Context) (int, error)
}

type settlementUseCaseImpl struct {
	couponRepo      CouponRepository
	reservationRepo ReservationRepository
	usageRepo       UsageRecordRepository
	ledger          QuotaLedger
	clock           clock.Clock
}

func NewSettlementUseCase(
	couponRepo CouponRepository,
	reservationRepo ReservationRepository,
	usageRepo UsageRecordRepository,
	ledger QuotaLedger,
	clk clock.Clock,
) SettlementCommands {
	return &settlementUseCaseImpl{
		couponRepo:      couponRepo,
		reservationRepo: reservationRepo,
		usageRepo:       usageRepo,
		ledger:          ledger,
		clock:           clk,
	}
}

func (s *settlementUseCaseImpl) Validate(
	ctx context.Context,
	req reqdto.ApplyCouponRequest,
	userID uuid.UUID,
) (*ValidationResult, error) {
	// Read-only preview: the quota ledger is never consulted here, so a
	// positive answer can still lose to quota exhaustion at reserve time.
	c, order, discount, err := s.evaluate(ctx, req, userID)
	if err != nil {
		return nil, err
	}

	return &ValidationResult{
		Coupon: CouponSummary{
			Code:           c.Code().String(),
			Description:    c.Description(),
			DiscountType:   string(c.Discount().Type()),
			DiscountValue:  c.Discount().Value().String(),
			MinOrderAmount: c.MinOrderAmount().MinorUnits(),
		},
		DiscountAmount: discount.MinorUnits(),
		FinalAmount:    order.OrderAmount.MinorUnits() - discount.MinorUnits(),
	}, nil
}

func (s *settlementUseCaseImpl) Reserve(
	ctx context.Context,
	req reqdto.ApplyCouponRequest,
	userID uuid.UUID,
	idempotencyKey uuid.UUID,
) (*ReserveResult, error) {
	code, err := coupon.NewCode(req.Code)
	if err != nil {
		return nil, &RejectionError{Reason: coupon.ReasonNotFound}
	}
	requestHash := calculateRequestHash(req)

	replayed, err := s.handleIdempotency(ctx, userID, code, idempotencyKey, requestHash)
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		return &ReserveResult{Reservation: replayed, IsReplayed: true}, nil
	}

	return s.createNewReservation(ctx, req, userID, code, idempotencyKey, requestHash)
}

// handleIdempotency returns the prior reservation's view when the same key
// already produced one that still stands. A key whose reservation expired or
// was released no longer pins a result; the retry starts over.
func (s *settlementUseCaseImpl) handleIdempotency(
	ctx context.Context,
	userID uuid.UUID,
	code coupon.Code,
	idempotencyKey uuid.UUID,
	requestHash string,
) (*queries.ReservationView, error) {
	existing, err := s.reservationRepo.FindByIdempotencyKey(ctx, userID, code.String(), idempotencyKey)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, nil
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	if existing.RequestHash() != requestHash {
		return nil, ErrDuplicateReservation
	}

	now := s.clock.Now()
	switch existing.EffectiveStatus(now) {
	case settlement.StatusReserved, settlement.StatusCommitted:
		return queries.NewReservationView(existing, now), nil
	default:
		// Settle a lazily-expired row now so its idempotency key is free
		// for the insert below, not only after the next sweep.
		if existing.Status() == settlement.StatusReserved {
			s.settleExpired(ctx, existing)
		}
		return nil, nil
	}
}

func (s *settlementUseCaseImpl) createNewReservation(
	ctx context.Context,
	req reqdto.ApplyCouponRequest,
	userID uuid.UUID,
	code coupon.Code,
	idempotencyKey uuid.UUID,
	requestHash string,
) (*ReserveResult, error) {
	c, order, discount, err := s.evaluate(ctx, req, userID)
	if err != nil {
		return nil, err
	}

	token, err := s.ledger.TryReserve(code.String(), userID, quotaLimits(c))
	if err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			return nil, &RejectionError{Reason: limitReason(exceeded.Dimension)}
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	now := s.clock.Now()
	res := settlement.NewReservation(
		token,
		c.Code(),
		userID,
		order.OrderAmount,
		discount,
		order.OrderType,
		idempotencyKey,
		requestHash,
		now,
		s.ledger.TTL(),
	)

	if err := s.reservationRepo.Create(ctx, res); err != nil {
		// The slot was taken but the hold cannot be persisted; give it back.
		if releaseErr := s.ledger.Release(token); releaseErr != nil {
			slog.Error("failed to release quota after persist failure",
				"reservation_id", token, "error", releaseErr)
		}
		if infra.IsKind(err, infra.KindDuplicateKey) {
			// Lost a race against a concurrent request with the same key.
			replayed, replayErr := s.handleIdempotency(ctx, userID, code, idempotencyKey, requestHash)
			if replayErr != nil {
				return nil, replayErr
			}
			if replayed != nil {
				return &ReserveResult{Reservation: replayed, IsReplayed: true}, nil
			}
			return nil, ErrDuplicateReservation
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	return &ReserveResult{Reservation: queries.NewReservationView(res, now)}, nil
}

func (s *settlementUseCaseImpl) Commit(ctx context.Context, reservationID, orderID uuid.UUID) error {
	res, err := s.findReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	switch res.EffectiveStatus(now) {
	case settlement.StatusCommitted:
		return nil
	case settlement.StatusReleased, settlement.StatusExpired:
		return ErrReservationTerminal
	}

	if err := res.Commit(orderID, now); err != nil {
		return errs.Mark(err, ErrReservationTerminal)
	}

	if err := s.ledger.Commit(res.ID()); err != nil {
		if errors.Is(err, quota.ErrTokenNotActive) {
			return ErrReservationTerminal
		}
		return errs.Mark(err, ErrQuotaStateMismatch)
	}

	if err := s.reservationRepo.Update(ctx, res); err != nil {
		slog.Error("reservation committed in ledger but store update failed",
			"reservation_id", res.ID(), "error", err)
		return errs.Mark(err, ErrDatabaseOperationFailed)
	}

	rec := settlement.UsageRecord{
		CouponCode:     res.CouponCode(),
		UserID:         res.UserID(),
		OrderID:        orderID,
		DiscountAmount: res.DiscountAmount(),
		CommittedAt:    now,
	}
	if err := s.usageRepo.Append(ctx, rec); err != nil {
		slog.Error("failed to append usage record",
			"reservation_id", res.ID(), "error", err)
		return errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return nil
}

func (s *settlementUseCaseImpl) Release(ctx context.Context, reservationID uuid.UUID) error {
	res, err := s.findReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	switch res.EffectiveStatus(now) {
	case settlement.StatusReleased:
		return nil
	case settlement.StatusCommitted:
		return ErrReservationTerminal
	case settlement.StatusExpired:
		// Expiry already freed the quota; settle the stored status if the
		// sweep has not caught up.
		if res.Status() == settlement.StatusReserved {
			s.settleExpired(ctx, res)
		}
		return nil
	}

	if err := res.Release(now); err != nil {
		return errs.Mark(err, ErrReservationTerminal)
	}
	if err := s.ledger.Release(res.ID()); err != nil {
		return errs.Mark(err, ErrQuotaStateMismatch)
	}
	if err := s.reservationRepo.Update(ctx, res); err != nil {
		return errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return nil
}

// ExpireAbandoned frees quota held by overdue reservations and settles their
// stored status. Runs on a schedule; lazy expiry covers the gaps between runs.
func (s *settlementUseCaseImpl) ExpireAbandoned(ctx context.Context) (int, error) {
	swept := s.ledger.SweepExpired()

	expired, err := s.reservationRepo.MarkExpiredBefore(ctx, s.clock.Now())
	if err != nil {
		return 0, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	if swept > 0 || expired > 0 {
		slog.Info("expired abandoned reservations",
			"holds_swept", swept, "reservations_marked", expired)
	}
	return expired, nil
}

// evaluate runs the shared read path of Validate and Reserve: coupon lookup,
// the eligibility chain, and the discount computation.
func (s *settlementUseCaseImpl) evaluate(
	ctx context.Context,
	req reqdto.ApplyCouponRequest,
	userID uuid.UUID,
) (*coupon.Coupon, coupon.OrderContext, money.Money, error) {
	order, err := req.ToOrderContext(userID)
	if err != nil {
		return nil, coupon.OrderContext{}, 0, errs.Mark(err, ErrInvalidRequest)
	}

	code, err := coupon.NewCode(req.Code)
	if err != nil {
		return nil, coupon.OrderContext{}, 0, &RejectionError{Reason: coupon.ReasonNotFound}
	}

	c, err := s.couponRepo.FindByCode(ctx, code.String())
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, coupon.OrderContext{}, 0, &RejectionError{Reason: coupon.ReasonNotFound}
		}
		return nil, coupon.OrderContext{}, 0, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	if ok, reason := c.Eligibility(s.clock.Now(), order); !ok {
		return nil, coupon.OrderContext{}, 0, &RejectionError{Reason: reason}
	}

	return c, order, coupon.ComputeDiscount(c, order.OrderAmount), nil
}

func (s *settlementUseCaseImpl) findReservation(ctx context.Context, id uuid.UUID) (*settlement.Reservation, error) {
	res, err := s.reservationRepo.FindByID(ctx, id)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}
	return res, nil
}

func (s *settlementUseCaseImpl) settleExpired(ctx context.Context, res *settlement.Reservation) {
	if err := res.MarkExpired(); err != nil {
		return
	}
	if err := s.reservationRepo.Update(ctx, res); err != nil {
		slog.Warn("failed to persist expired reservation status",
			"reservation_id", res.ID(), "error", err)
	}
}

func quotaLimits(c *coupon.Coupon) quota.Limits {
	limits := c.UsageLimits()
	return quota.Limits{
		Total:         limits.Total,
		PerUser:       limits.PerUser,
		PerUserPerDay: limits.PerUserPerDay,
	}
}

func limitReason(dim quota.Dimension) coupon.ReasonCode {
	switch dim {
	case quota.DimensionPerUser:
		return coupon.ReasonUserLimit
	case quota.DimensionPerUserPerDay:
		return coupon.ReasonDailyLimit
	default:
		return coupon.ReasonGlobalLimit
	}
}

func calculateRequestHash(req reqdto.ApplyCouponRequest) string {
	data, _ := json.Marshal(req)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
