package v1

import (
	"net/http"

	"github.com/subplane/subplane/internal/api/dto"
	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/service"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

func NewSubscriptionHandler(
	service service.SubscriptionService,
	log *logger.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
		log:     log,
	}
}

// @Summary Create a subscription
// @Description Create a subscription for the authenticated user on the given plan
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param subscription body dto.CreateSubscriptionRequest true "Subscription configuration"
// @Success 201 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /subscriptions [post]
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateSubscription(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get the current subscription
// @Description Get the authenticated user's subscription
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /subscriptions/current [get]
func (h *SubscriptionHandler) GetCurrentSubscription(c *gin.Context) {
	resp, err := h.service.GetCurrentSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Request a plan change
// @Description Change the authenticated user's plan or billing interval
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param change body dto.PlanChangeRequest true "Requested plan and interval"
// @Success 200 {object} dto.PlanChangeResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /subscriptions/change [post]
func (h *SubscriptionHandler) RequestPlanChange(c *gin.Context) {
	var req dto.PlanChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.RequestPlanChange(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel at period end
// @Description Schedule the authenticated user's subscription to cancel at the period boundary
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param cancellation body dto.CancelSubscriptionRequest false "Cancellation reason"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /subscriptions/cancel [post]
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	var req dto.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CancelAtPeriodEnd(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Reactivate a cancelling subscription
// @Description Undo a pending cancellation before the period boundary
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /subscriptions/reactivate [post]
func (h *SubscriptionHandler) ReactivateSubscription(c *gin.Context) {
	resp, err := h.service.Reactivate(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel a subscription immediately
// @Description Cancel any user's subscription immediately with a prorated final invoice
// @Tags Admin
// @Accept json
// @Produce json
// @Param cancellation body dto.AdminCancelSubscriptionRequest true "Target user and reason"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 403 {object} ierr.ErrorResponse
// @Router /admin/subscriptions/cancel [post]
func (h *SubscriptionHandler) AdminCancelSubscription(c *gin.Context) {
	var req dto.AdminCancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CancelImmediately(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
