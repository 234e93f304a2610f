package memstore

import (
	"context"
	"sync"
	"time"

	"coupon-settlement/internal/domain/settlement"

	"github.com/google/uuid"
)

// UsageStore is the append-only usage trail. Records are never mutated or
// deleted, so reads only need the lock for the slice header.
type UsageStore struct {
	mu      sync.RWMutex
	records []settlement.UsageRecord
}

func NewUsageStore() *UsageStore {
	return &UsageStore{}
}

func (s *UsageStore) Append(ctx context.Context, rec settlement.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *UsageStore) CountByCoupon(ctx context.Context, code string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.CouponCode.String() == code {
			n++
		}
	}
	return n, nil
}

func (s *UsageStore) CountByUser(ctx context.Context, code string, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.CouponCode.String() == code && rec.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *UsageStore) CountByUserBetween(ctx context.Context, code string, userID uuid.UUID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.CouponCode.String() == code && rec.UserID == userID &&
			!rec.CommittedAt.Before(from) && rec.CommittedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// ListAll returns every record, used at startup to rebuild used counters.
func (s *UsageStore) ListAll(ctx context.Context) ([]settlement.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]settlement.UsageRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}
