package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
)

type createCheckoutRequest struct {
	Plan       string `json:"plan"`
	CouponCode string `json:"couponCode"`
}

// @Summary      Create Checkout Session
// @Description  Start a subscription checkout for the caller
// @Tags         checkout
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body createCheckoutRequest true "Plan and optional coupon"
// @Success      200  {object}  paymentdomain.CheckoutSession
// @Router       /api/checkout [post]
func (s *Server) CreateCheckout(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.paymentSvc.CreateCheckoutSession(c.Request.Context(), paymentdomain.CheckoutRequest{
		UserID:     principal.UserID,
		Email:      principal.Email,
		Plan:       req.Plan,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
