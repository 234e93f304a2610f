package api

import (
	"errors"
	"net/http"

	"coupon-settlement/internal/domain/coupon"

	reqdto "coupon-settlement/internal/handler/dto/request"
	resdto "coupon-settlement/internal/handler/dto/response"
	"coupon-settlement/internal/handler/httperr"
	"coupon-settlement/internal/handler/middleware"
	"coupon-settlement/internal/pkg/jwt"
	"coupon-settlement/internal/usecase/commands"
	"coupon-settlement/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SettlementHandler struct {
	cmds commands.SettlementCommands
	q    queries.ReservationQueries
}

func NewSettlementHandler(cmds commands.SettlementCommands, q queries.ReservationQueries) *SettlementHandler {
	return &SettlementHandler{cmds: cmds, q: q}
}

// @Summary Validate coupon
// @Description Preview whether a coupon applies to an order, without holding quota
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.ApplyCouponRequest true "Order context"
// @Success 200 {object} resdto.ValidationResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /settlement/validate [post]
func (h *SettlementHandler) Validate(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusUnauthorized, errors.New("missing user context"), "Unauthorized", nil)
		return
	}
	var req reqdto.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request format", nil)
		return
	}

	result, err := h.cmds.Validate(c.Request.Context(), req, userID)
	if err != nil {
		var rejection *commands.RejectionError
		if errors.As(err, &rejection) {
			// A preview rejection is an answer, not an error.
			c.JSON(http.StatusOK, resdto.RejectedValidation(rejection.Error(), string(rejection.Reason)))
			return
		}
		h.abortCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromValidationResult(result))
}

// @Summary Reserve coupon quota
// @Description Hold a quota slot for an order pending payment
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string true "Idempotency key for duplicate prevention"
// @Param request body reqdto.ApplyCouponRequest true "Order context"
// @Success 201 {object} resdto.ReservationResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /settlement/reserve [post]
func (h *SettlementHandler) Reserve(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusUnauthorized, errors.New("missing user context"), "Unauthorized", nil)
		return
	}
	idempotencyKey, err := uuid.Parse(c.GetHeader("Idempotency-Key"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Idempotency-Key header must be a UUID", nil)
		return
	}
	var req reqdto.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request format", nil)
		return
	}

	result, err := h.cmds.Reserve(c.Request.Context(), req, userID, idempotencyKey)
	if err != nil {
		h.abortCommandError(c, err)
		return
	}

	status := http.StatusCreated
	if result.IsReplayed {
		status = http.StatusOK
	}
	c.JSON(status, resdto.FromReservationView(result.Reservation, result.IsReplayed))
}

// @Summary Commit reservation
// @Description Convert a held reservation into a committed redemption
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.CommitSettlementRequest true "Reservation and order"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /settlement/commit [post]
func (h *SettlementHandler) Commit(c *gin.Context) {
	var req reqdto.CommitSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request format", nil)
		return
	}

	if err := h.cmds.Commit(c.Request.Context(), req.ReservationID, req.OrderID); err != nil {
		h.abortCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary Release reservation
// @Description Give back a held quota slot
// @Tags settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.ReleaseSettlementRequest true "Reservation"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /settlement/release [post]
func (h *SettlementHandler) Release(c *gin.Context) {
	var req reqdto.ReleaseSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request format", nil)
		return
	}

	if err := h.cmds.Release(c.Request.Context(), req.ReservationID); err != nil {
		h.abortCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary Get reservation
// @Description Get a reservation by ID; owners see their own, admins see all
// @Tags settlement
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} resdto.ReservationResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /settlement/reservations/{id} [get]
func (h *SettlementHandler) GetReservation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return
	}

	view, err := h.q.GetByID(c.Request.Context(), id)
	if err != nil {
		httperr.AbortWithError(c, http.StatusNotFound, err, "Reservation not found", nil)
		return
	}

	userID, _ := middleware.GetUserID(c)
	role, _ := middleware.GetUserRole(c)
	if view.UserID != userID && role != jwt.RoleAdmin {
		// Do not leak other users' reservations.
		httperr.AbortWithError(c, http.StatusNotFound, queries.ErrReservationNotFound, "Reservation not found", nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromReservationView(view, false))
}

func (h *SettlementHandler) abortCommandError(c *gin.Context, err error) {
	var rejection *commands.RejectionError
	switch {
	case errors.As(err, &rejection):
		status := http.StatusUnprocessableEntity
		switch rejection.Reason {
		case coupon.ReasonNotFound:
			status = http.StatusNotFound
		case coupon.ReasonGlobalLimit, coupon.ReasonUserLimit, coupon.ReasonDailyLimit:
			status = http.StatusConflict
		}
		httperr.AbortWithReason(c, status, err, "Coupon cannot be applied", string(rejection.Reason))
	case errors.Is(err, commands.ErrReservationNotFound):
		httperr.AbortWithError(c, http.StatusNotFound, err, "Reservation not found", nil)
	case errors.Is(err, commands.ErrReservationTerminal):
		httperr.AbortWithError(c, http.StatusConflict, err, "Reservation already settled", nil)
	case errors.Is(err, commands.ErrDuplicateReservation):
		httperr.AbortWithError(c, http.StatusConflict, err, "Idempotency key reused with different parameters", nil)
	case errors.Is(err, commands.ErrInvalidRequest):
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
	default:
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
	}
}
