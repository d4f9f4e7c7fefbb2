package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
)

type createCouponRequest struct {
	Code             string  `json:"code"`
	DiscountType     string  `json:"discount_type"`
	DiscountValue    float64 `json:"discount_value"`
	Duration         string  `json:"duration"`
	DurationInMonths *int64  `json:"duration_in_months"`
	MaxRedemptions   *int64  `json:"max_redemptions"`
	ExpiresAt        *string `json:"expires_at"`
}

type deactivateCouponRequest struct {
	PromoCodeID string       `json:"promo_code_id"`
	CouponDBID  snowflake.ID `json:"coupon_db_id"`
}

type userDetailsRequest struct {
	UserID string `json:"userId"`
}

type updateUserRequest struct {
	UserID             string  `json:"userId"`
	Role               *string `json:"role"`
	SubscriptionStatus *string `json:"subscription_status"`
}

type userStatusRequest struct {
	UserID       string `json:"userId"`
	Action       string `json:"action"`
	DurationDays *int   `json:"durationDays"`
}

// @Summary      List Coupons
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  []coupondomain.Coupon
// @Router       /api/admin/coupons [get]
func (s *Server) ListCoupons(c *gin.Context) {
	coupons, err := s.couponSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if coupons == nil {
		coupons = []coupondomain.Coupon{}
	}
	c.JSON(http.StatusOK, gin.H{"data": coupons})
}

// @Summary      Create Coupon
// @Description  Create a processor coupon with a promotion code and mirror it locally
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body createCouponRequest true "Coupon"
// @Success      200  {object}  coupondomain.Coupon
// @Router       /api/admin/coupons [post]
func (s *Server) CreateCoupon(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil && strings.TrimSpace(*req.ExpiresAt) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ExpiresAt))
		if err != nil {
			AbortWithError(c, newValidationError("expires_at", "invalid_expires_at", "expires_at must be RFC3339"))
			return
		}
		expiresAt = &parsed
	}

	coupon, err := s.couponSvc.Create(c.Request.Context(), principal.UserID, coupondomain.CreateRequest{
		Code:             req.Code,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		Duration:         req.Duration,
		DurationInMonths: req.DurationInMonths,
		MaxRedemptions:   req.MaxRedemptions,
		ExpiresAt:        expiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, coupon)
}

// @Summary      Deactivate Coupon
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body deactivateCouponRequest true "Coupon"
// @Success      200  {object}  coupondomain.Coupon
// @Router       /api/admin/coupons/deactivate [post]
func (s *Server) DeactivateCoupon(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req deactivateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PromoCodeID) == "" {
		AbortWithError(c, newValidationError("promo_code_id", "required", "promo_code_id is required"))
		return
	}
	if req.CouponDBID == 0 {
		AbortWithError(c, newValidationError("coupon_db_id", "required", "coupon_db_id is required"))
		return
	}

	coupon, err := s.couponSvc.Deactivate(c.Request.Context(), principal.UserID, req.PromoCodeID, req.CouponDBID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, coupon)
}

// @Summary      List Profiles
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  []profiledomain.Profile
// @Router       /api/admin/profiles [get]
func (s *Server) ListProfiles(c *gin.Context) {
	profiles, err := s.adminSvc.ListProfiles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profiles})
}

// @Summary      User Details
// @Description  Identity provider account, profile and keys for one user
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body userDetailsRequest true "User"
// @Success      200  {object}  admin.UserDetails
// @Router       /api/admin/users/details [post]
func (s *Server) GetUserDetails(c *gin.Context) {
	var req userDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	details, err := s.adminSvc.GetUserDetails(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// @Summary      Update User
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body updateUserRequest true "Fields to change"
// @Success      200  {object}  profiledomain.Profile
// @Router       /api/admin/users/update [post]
func (s *Server) UpdateUserDetails(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.adminSvc.UpdateUserDetails(c.Request.Context(), req.UserID, profiledomain.Update{
		Role:               req.Role,
		SubscriptionStatus: req.SubscriptionStatus,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// @Summary      Manage User Status
// @Description  Ban, suspend or unban an account at the identity provider
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body userStatusRequest true "Action"
// @Success      200  {object}  identity.User
// @Router       /api/admin/users/status [post]
func (s *Server) ManageUserStatus(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req userStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.adminSvc.ManageUserStatus(c.Request.Context(), principal.UserID, req.UserID, req.Action, req.DurationDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
