package settlement

import (
	"time"

	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"

	"github.com/google/uuid"
)

// UsageRecord is the durable, append-only audit trail of committed
// redemptions. Written once on Commit, never mutated.
type UsageRecord struct {
	CouponCode     coupon.Code
	UserID         uuid.UUID
	OrderID        uuid.UUID
	DiscountAmount money.Money
	CommittedAt    time.Time
}
