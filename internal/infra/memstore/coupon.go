// Package memstore provides in-memory repository implementations backing the
// database-less deployment mode. All stores are safe for concurrent use.
package memstore

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/infra"
)

type CouponStore struct {
	mu     sync.RWMutex
	byCode map[string]*coupon.Coupon
	logger *slog.Logger
}

func NewCouponStore(logger *slog.Logger) *CouponStore {
	return &CouponStore{
		byCode: make(map[string]*coupon.Coupon),
		logger: logger,
	}
}

// Put registers or replaces a coupon definition. Coupons are immutable once
// loaded; Put exists for seeding and tests.
func (s *CouponStore) Put(c *coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCode[c.Code().String()] = c
}

func (s *CouponStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, infra.WrapRepoErr(s.logger, infra.KindNotFound, "coupon not found", nil)
	}
	return c, nil
}

// All returns every loaded coupon.
func (s *CouponStore) All(ctx context.Context) ([]*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*coupon.Coupon, 0, len(s.byCode))
	for _, c := range s.byCode {
		out = append(out, c)
	}
	return out, nil
}
