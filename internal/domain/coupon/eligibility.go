package coupon

import (
	"time"

	"coupon-settlement/internal/domain/money"

	"github.com/google/uuid"
)

// ReasonCode is the machine-readable rejection vocabulary surfaced to the
// checkout flow.
type ReasonCode string

const (
	ReasonNotFound       ReasonCode = "NOT_FOUND"
	ReasonInactive       ReasonCode = "INACTIVE"
	ReasonOutOfWindow    ReasonCode = "OUT_OF_WINDOW"
	ReasonExcluded       ReasonCode = "EXCLUDED"
	ReasonMinOrderNotMet ReasonCode = "MIN_ORDER_NOT_MET"
	ReasonNotApplicable  ReasonCode = "NOT_APPLICABLE"
	ReasonGlobalLimit    ReasonCode = "GLOBAL_LIMIT"
	ReasonUserLimit      ReasonCode = "USER_LIMIT"
	ReasonDailyLimit     ReasonCode = "DAILY_LIMIT"
)

// OrderContext is the order-side input to an eligibility check, supplied by
// the cart pipeline.
type OrderContext struct {
	UserID      uuid.UUID
	OrderAmount money.Money
	OrderType   OrderType
	Items       []OrderItem
}

// Eligibility checks the coupon against the order. Checks run in a fixed
// precedence order so the caller always sees the most relevant reason:
// active → window → excluded → allow-listed users → min order → item match.
func (c *Coupon) Eligibility(now time.Time, order OrderContext) (bool, ReasonCode) {
	if !c.isActive {
		return false, ReasonInactive
	}
	if !c.IsWithinWindow(now) {
		return false, ReasonOutOfWindow
	}
	if containsUser(c.excludeUsers, order.UserID) {
		return false, ReasonExcluded
	}
	if len(c.applicableUsers) > 0 && !containsUser(c.applicableUsers, order.UserID) {
		return false, ReasonExcluded
	}
	if order.OrderAmount.LessThan(c.minOrderAmount) {
		return false, ReasonMinOrderNotMet
	}
	if !c.appliesToItems(order.Items) {
		return false, ReasonNotApplicable
	}
	return true, ""
}

// appliesToItems reports whether at least one order item matches the coupon's
// allow-lists. Empty lists mean every item qualifies.
func (c *Coupon) appliesToItems(items []OrderItem) bool {
	if len(c.applicableProducts) == 0 && len(c.applicableCategories) == 0 {
		return true
	}
	for _, item := range items {
		for _, p := range c.applicableProducts {
			if item.ProductID == p {
				return true
			}
		}
		for _, cat := range c.applicableCategories {
			if item.CategoryID == cat {
				return true
			}
		}
	}
	return false
}

func containsUser(users []uuid.UUID, id uuid.UUID) bool {
	for _, u := range users {
		if u == id {
			return true
		}
	}
	return false
}
