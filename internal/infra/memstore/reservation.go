package memstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"coupon-settlement/internal/domain/settlement"
	"coupon-settlement/internal/infra"
	"coupon-settlement/internal/pkg/clock"

	"github.com/google/uuid"
)

type idemKey struct {
	userID uuid.UUID
	code   string
	key    uuid.UUID
}

// ReservationStore keeps reservations by ID with a unique index on
// (user, coupon, idempotency key), mirroring the partial unique index the
// Postgres store enforces for live reservations.
type ReservationStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*settlement.Reservation
	byIdem map[idemKey]uuid.UUID
	clock  clock.Clock
	logger *slog.Logger
}

func NewReservationStore(clk clock.Clock, logger *slog.Logger) *ReservationStore {
	return &ReservationStore{
		byID:   make(map[uuid.UUID]*settlement.Reservation),
		byIdem: make(map[idemKey]uuid.UUID),
		clock:  clk,
		logger: logger,
	}
}

func (s *ReservationStore) Create(ctx context.Context, res *settlement.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ik := idemKey{userID: res.UserID(), code: res.CouponCode().String(), key: res.IdempotencyKey()}
	if priorID, ok := s.byIdem[ik]; ok {
		prior := s.byID[priorID]
		switch prior.EffectiveStatus(s.clock.Now()) {
		case settlement.StatusReserved, settlement.StatusCommitted:
			return infra.WrapRepoErr(s.logger, infra.KindDuplicateKey, "idempotency key already used", nil)
		}
		// Expired or released: the key is free again.
	}

	s.byID[res.ID()] = cloneReservation(res)
	s.byIdem[ik] = res.ID()
	return nil
}

func (s *ReservationStore) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.byID[id]
	if !ok {
		return nil, infra.WrapRepoErr(s.logger, infra.KindNotFound, "reservation not found", nil)
	}
	return cloneReservation(res), nil
}

func (s *ReservationStore) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, code string, key uuid.UUID) (*settlement.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdem[idemKey{userID: userID, code: code, key: key}]
	if !ok {
		return nil, infra.WrapRepoErr(s.logger, infra.KindNotFound, "reservation not found", nil)
	}
	return cloneReservation(s.byID[id]), nil
}

func (s *ReservationStore) Update(ctx context.Context, res *settlement.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[res.ID()]; !ok {
		return infra.WrapRepoErr(s.logger, infra.KindNotFound, "reservation not found", nil)
	}
	s.byID[res.ID()] = cloneReservation(res)
	return nil
}

func (s *ReservationStore) MarkExpiredBefore(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, res := range s.byID {
		if res.Status() == settlement.StatusReserved && now.After(res.ExpiresAt()) {
			updated := cloneReservation(res)
			if err := updated.MarkExpired(); err != nil {
				continue
			}
			s.byID[id] = updated
			expired++
		}
	}
	return expired, nil
}

// ListActive returns reservations still stored as reserved, used at startup
// to restore quota holds into the ledger.
func (s *ReservationStore) ListActive(ctx context.Context) ([]*settlement.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*settlement.Reservation
	for _, res := range s.byID {
		if res.Status() == settlement.StatusReserved {
			out = append(out, cloneReservation(res))
		}
	}
	return out, nil
}

// cloneReservation snapshots an entity so callers never share mutable state
// with the store.
func cloneReservation(res *settlement.Reservation) *settlement.Reservation {
	var orderID *uuid.UUID
	if id := res.OrderID(); id != nil {
		v := *id
		orderID = &v
	}
	return settlement.ReconstructReservation(
		res.ID(),
		res.CouponCode(),
		res.UserID(),
		res.OrderAmount(),
		res.DiscountAmount(),
		res.OrderType(),
		res.Status(),
		res.IdempotencyKey(),
		res.RequestHash(),
		orderID,
		res.CreatedAt(),
		res.ExpiresAt(),
	)
}
