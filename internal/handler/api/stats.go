package api

import (
	"errors"
	"net/http"

	resdto "coupon-settlement/internal/handler/dto/response"
	"coupon-settlement/internal/handler/httperr"
	"coupon-settlement/internal/handler/middleware"
	"coupon-settlement/internal/usecase/queries"

	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	q queries.StatsQueries
}

func NewStatsHandler(q queries.StatsQueries) *StatsHandler {
	return &StatsHandler{q: q}
}

// @Summary Coupon statistics
// @Description Global usage counters for one coupon
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Param code path string true "Coupon code"
// @Success 200 {object} resdto.CouponStatsResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /coupons/{code}/stats [get]
func (h *StatsHandler) CouponStats(c *gin.Context) {
	view, err := h.q.CouponStats(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.abortStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromCouponStatsView(view))
}

// @Summary My coupon statistics
// @Description The calling user's usage counters for one coupon
// @Tags stats
// @Produce json
// @Security BearerAuth
// @Param code path string true "Coupon code"
// @Success 200 {object} resdto.UserStatsResponse
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /coupons/{code}/stats/me [get]
func (h *StatsHandler) MyStats(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusUnauthorized, errors.New("missing user context"), "Unauthorized", nil)
		return
	}

	view, err := h.q.UserStats(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		h.abortStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromUserStatsView(view))
}

func (h *StatsHandler) abortStatsError(c *gin.Context, err error) {
	if errors.Is(err, queries.ErrCouponNotFound) {
		httperr.AbortWithError(c, http.StatusNotFound, err, "Coupon not found", nil)
		return
	}
	httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
}
