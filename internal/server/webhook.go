package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/natidev-sh/natiweb/internal/auditcontext"
	obsctx "github.com/natidev-sh/natiweb/internal/observability/context"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
)

const (
	headerStripeSignature = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 20
)

// @Summary      Payments Webhook
// @Description  Verify and apply a payments processor event
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header  string  true  "Signature"
// @Success      200  {object}  map[string]bool
// @Router       /api/webhooks/stripe [post]
func (s *Server) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := obsctx.WithActor(c.Request.Context(), obsctx.ActorTypeWebhook, paymentdomain.ProviderStripe)
	ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
	ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())

	err = s.paymentSvc.IngestWebhook(ctx, payload, c.GetHeader(headerStripeSignature))
	switch {
	case err == nil:
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		s.log.Info("webhook event already processed")
	default:
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
