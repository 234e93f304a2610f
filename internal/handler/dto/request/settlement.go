package request

import (
	"coupon-settlement/internal/domain/coupon"
	"coupon-settlement/internal/domain/money"

	"github.com/google/uuid"
)

type OrderItem struct {
	ProductID  string `json:"product_id" binding:"required"`
	CategoryID string `json:"category_id" binding:"required"`
}

type ApplyCouponRequest struct {
	Code        string      `json:"code" binding:"required"`
	OrderAmount int64       `json:"order_amount" binding:"required,gt=0"`
	OrderType   string      `json:"order_type" binding:"required,oneof=product subscription"`
	Items       []OrderItem `json:"items,omitempty"`
}

// ToOrderContext converts the request into the domain order snapshot the
// eligibility chain evaluates against.
func (r ApplyCouponRequest) ToOrderContext(userID uuid.UUID) (coupon.OrderContext, error) {
	amount, err := money.New(r.OrderAmount)
	if err != nil {
		return coupon.OrderContext{}, err
	}
	orderType, err := coupon.NewOrderType(r.OrderType)
	if err != nil {
		return coupon.OrderContext{}, err
	}

	items := make([]coupon.OrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, coupon.OrderItem{ProductID: it.ProductID, CategoryID: it.CategoryID})
	}

	return coupon.OrderContext{
		UserID:      userID,
		OrderAmount: amount,
		OrderType:   orderType,
		Items:       items,
	}, nil
}

type CommitSettlementRequest struct {
	ReservationID uuid.UUID `json:"reservation_id" binding:"required"`
	OrderID       uuid.UUID `json:"order_id" binding:"required"`
}

type ReleaseSettlementRequest struct {
	ReservationID uuid.UUID `json:"reservation_id" binding:"required"`
}
