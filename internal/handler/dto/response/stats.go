package response

import (
	"coupon-settlement/internal/usecase/queries"

	"github.com/jinzhu/copier"
)

type CouponStatsResponse struct {
	Code               string   `json:"code"`
	TotalUsage         int      `json:"totalUsage"`
	ActiveReservations int      `json:"activeReservations"`
	TotalLimit         *int     `json:"totalLimit,omitempty"`
	RemainingTotal     *int     `json:"remainingTotal,omitempty"`
	UsagePercentage    *float64 `json:"usagePercentage,omitempty"`
}

type UserStatsResponse struct {
	Code           string `json:"code"`
	TotalUsage     int    `json:"totalUsage"`
	RemainingUsage *int   `json:"remainingUsage,omitempty"`
	TodayUsage     int    `json:"todayUsage"`
	RemainingToday *int   `json:"remainingToday,omitempty"`
}

func FromCouponStatsView(view *queries.CouponStatsView) *CouponStatsResponse {
	var resp CouponStatsResponse
	_ = copier.Copy(&resp, view)
	return &resp
}

func FromUserStatsView(view *queries.UserStatsView) *UserStatsResponse {
	var resp UserStatsResponse
	_ = copier.Copy(&resp, view)
	return &resp
}
