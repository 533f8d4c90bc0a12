package v1

import (
	"io"
	"net/http"

	ierr "github.com/subplane/subplane/internal/errors"
	"github.com/subplane/subplane/internal/logger"
	"github.com/subplane/subplane/internal/service"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "Stripe-Signature"

// WebhookHandler receives billing provider event deliveries
type WebhookHandler struct {
	reconciler service.ReconcilerService
	log        *logger.Logger
}

func NewWebhookHandler(
	reconciler service.ReconcilerService,
	log *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		log:        log,
	}
}

// @Summary Handle billing provider webhook events
// @Description Verify, deduplicate and apply a provider event delivery
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Webhook signature"
// @Success 200 {object} service.Ack
// @Failure 401 {object} ierr.ErrorResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/billing [post]
func (h *WebhookHandler) HandleBillingWebhook(c *gin.Context) {
	// the signature covers the raw bytes, so the body must not go through
	// any binding before verification
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Unable to read request body").
			Mark(ierr.ErrValidation))
		return
	}

	signature := c.GetHeader(signatureHeader)
	if signature == "" {
		c.Error(ierr.NewError("missing signature header").
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrSignature))
		return
	}

	ack, err := h.reconciler.Ingest(c.Request.Context(), payload, signature)
	if err != nil {
		h.log.Warnw("webhook delivery rejected",
			"error", err,
		)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ack)
}
