package response

import (
	"time"

	"coupon-settlement/internal/usecase/commands"
	"coupon-settlement/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type CouponSummaryResponse struct {
	Code           string `json:"code"`
	Description    string `json:"description,omitempty"`
	DiscountType   string `json:"discountType"`
	DiscountValue  string `json:"discountValue"`
	MinOrderAmount int64  `json:"minOrderAmount"`
}

type ValidationResponse struct {
	Success    bool                   `json:"success"`
	Discount   int64                  `json:"discount"`
	Final      int64                  `json:"finalAmount"`
	Coupon     *CouponSummaryResponse `json:"coupon,omitempty"`
	Message    string                 `json:"message,omitempty"`
	ReasonCode string                 `json:"reasonCode,omitempty"`
}

type ReservationResponse struct {
	ID             uuid.UUID  `json:"id"`
	CouponCode     string     `json:"couponCode"`
	UserID         uuid.UUID  `json:"userId"`
	OrderAmount    int64      `json:"orderAmount"`
	DiscountAmount int64      `json:"discountAmount"`
	OrderType      string     `json:"orderType"`
	Status         string     `json:"status"`
	OrderID        *uuid.UUID `json:"orderId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	Replayed       bool       `json:"replayed"`
}

func FromValidationResult(result *commands.ValidationResult) *ValidationResponse {
	var summary CouponSummaryResponse
	_ = copier.Copy(&summary, result.Coupon)
	return &ValidationResponse{
		Success:  true,
		Discount: result.DiscountAmount,
		Final:    result.FinalAmount,
		Coupon:   &summary,
	}
}

// RejectedValidation is the non-exceptional "coupon cannot be applied" answer
// to a validate preview.
func RejectedValidation(message, reasonCode string) *ValidationResponse {
	return &ValidationResponse{
		Success:    false,
		Message:    message,
		ReasonCode: reasonCode,
	}
}

func FromReservationView(view *queries.ReservationView, replayed bool) *ReservationResponse {
	var resp ReservationResponse
	_ = copier.Copy(&resp, view)
	resp.Replayed = replayed
	return &resp
}
