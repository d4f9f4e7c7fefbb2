package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/natidev-sh/natiweb/internal/audit/domain"
	"github.com/natidev-sh/natiweb/internal/clock"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{2,31}$`)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     coupondomain.Repository
	Gateway  paymentdomain.Gateway
	AuditSvc auditdomain.Service
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     coupondomain.Repository
	gateway  paymentdomain.Gateway
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func NewService(p Params) coupondomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("coupon.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		gateway:  p.Gateway,
		auditSvc: p.AuditSvc,
		clock:    c,
	}
}

func (s *Service) Create(ctx context.Context, actorID string, req coupondomain.CreateRequest) (*coupondomain.Coupon, error) {
	now := s.clock.Now()
	req, err := normalizeCreate(req, now)
	if err != nil {
		return nil, err
	}

	coupon, err := s.reservePending(ctx, actorID, req, now)
	if err != nil {
		return nil, err
	}

	processorCouponID, err := s.gateway.CreateCoupon(ctx, couponParams(req), idempotencyKey(coupon.ID, "coupon"))
	if err != nil {
		s.log.Warn("processor coupon creation failed", zap.String("code", coupon.Code), zap.Error(err))
		return nil, err
	}
	promoCodeID, err := s.gateway.CreatePromotionCode(ctx, paymentdomain.PromotionCodeParams{
		CouponID:       processorCouponID,
		Code:           coupon.Code,
		MaxRedemptions: req.MaxRedemptions,
		ExpiresAt:      req.ExpiresAt,
	}, idempotencyKey(coupon.ID, "promotion_code"))
	if err != nil {
		s.log.Warn("processor promotion code creation failed", zap.String("code", coupon.Code), zap.Error(err))
		return nil, err
	}

	activatedAt := s.clock.Now()
	if err := s.repo.Activate(ctx, s.db, coupon.ID, processorCouponID, promoCodeID, activatedAt); err != nil {
		s.log.Error("activating coupon failed; retry reuses processor objects",
			zap.String("code", coupon.Code),
			zap.String("coupon_id", processorCouponID),
			zap.String("promo_code_id", promoCodeID),
			zap.Error(err),
		)
		return nil, err
	}
	coupon.CouponID = &processorCouponID
	coupon.PromoCodeID = &promoCodeID
	coupon.Status = coupondomain.StatusActive
	coupon.IsActive = true
	coupon.UpdatedAt = activatedAt

	s.audit(ctx, "coupon.create", coupon, map[string]any{
		"code":           coupon.Code,
		"discount_type":  coupon.DiscountType,
		"discount_value": coupon.DiscountValue,
		"duration":       coupon.Duration,
	})
	return coupon, nil
}

// reservePending inserts the pending row, or resumes an earlier attempt for
// the same definition that never reached active.
func (s *Service) reservePending(ctx context.Context, actorID string, req coupondomain.CreateRequest, now time.Time) (*coupondomain.Coupon, error) {
	existing, err := s.repo.FindByCode(ctx, s.db, req.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == coupondomain.StatusPending && sameDefinition(existing, req) {
			s.log.Info("resuming pending coupon", zap.String("code", existing.Code))
			return existing, nil
		}
		return nil, coupondomain.ErrCodeExists
	}

	coupon := &coupondomain.Coupon{
		ID:               s.genID.Generate(),
		Code:             req.Code,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		Duration:         req.Duration,
		DurationInMonths: req.DurationInMonths,
		MaxRedemptions:   req.MaxRedemptions,
		ExpiresAt:        req.ExpiresAt,
		IsActive:         false,
		Status:           coupondomain.StatusPending,
		CreatedBy:        actorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, coupon); err != nil {
		if again, findErr := s.repo.FindByCode(ctx, s.db, req.Code); findErr == nil && again != nil {
			return nil, coupondomain.ErrCodeExists
		}
		return nil, err
	}
	return coupon, nil
}

func (s *Service) Deactivate(ctx context.Context, actorID string, promoCodeID string, couponDBID snowflake.ID) (*coupondomain.Coupon, error) {
	promoCodeID = strings.TrimSpace(promoCodeID)
	if promoCodeID == "" || couponDBID == 0 {
		return nil, coupondomain.ErrNotFound
	}
	coupon, err := s.repo.FindByID(ctx, s.db, couponDBID)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, coupondomain.ErrNotFound
	}
	if coupon.PromoCodeID == nil {
		return nil, coupondomain.ErrNotActivated
	}
	if *coupon.PromoCodeID != promoCodeID {
		return nil, coupondomain.ErrPromoCodeMismatch
	}
	if !coupon.IsActive {
		return coupon, nil
	}

	if err := s.gateway.SetPromotionCodeActive(ctx, promoCodeID, false); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.repo.Deactivate(ctx, s.db, coupon.ID, now); err != nil {
		return nil, err
	}
	coupon.IsActive = false
	coupon.UpdatedAt = now

	s.audit(ctx, "coupon.deactivate", coupon, map[string]any{
		"code":          coupon.Code,
		"promo_code_id": promoCodeID,
		"actor_id":      actorID,
	})
	return coupon, nil
}

func (s *Service) List(ctx context.Context) ([]coupondomain.Coupon, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) audit(ctx context.Context, action string, coupon *coupondomain.Coupon, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := coupon.ID.String()
	if err := s.auditSvc.AuditLog(ctx, action, "coupon", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeCreate(req coupondomain.CreateRequest, now time.Time) (coupondomain.CreateRequest, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if !codePattern.MatchString(req.Code) {
		return req, coupondomain.ErrInvalidCode
	}

	req.DiscountType = strings.ToLower(strings.TrimSpace(req.DiscountType))
	switch req.DiscountType {
	case coupondomain.DiscountPercentage:
		if req.DiscountValue > 100 {
			return req, coupondomain.ErrInvalidDiscountValue
		}
	case coupondomain.DiscountFixed:
	default:
		return req, coupondomain.ErrInvalidDiscountType
	}
	if math.IsNaN(req.DiscountValue) || math.IsInf(req.DiscountValue, 0) || req.DiscountValue <= 0 {
		return req, coupondomain.ErrInvalidDiscountValue
	}

	req.Duration = strings.ToLower(strings.TrimSpace(req.Duration))
	switch req.Duration {
	case coupondomain.DurationRepeating:
		if req.DurationInMonths == nil || *req.DurationInMonths <= 0 {
			return req, coupondomain.ErrMonthsRequired
		}
	case coupondomain.DurationOnce, coupondomain.DurationForever:
		req.DurationInMonths = nil
	default:
		return req, coupondomain.ErrInvalidDuration
	}

	if req.MaxRedemptions != nil && *req.MaxRedemptions <= 0 {
		return req, coupondomain.ErrInvalidRedemptions
	}
	if req.ExpiresAt != nil {
		expires := req.ExpiresAt.UTC()
		if !expires.After(now) {
			return req, coupondomain.ErrInvalidExpiry
		}
		req.ExpiresAt = &expires
	}
	return req, nil
}

func couponParams(req coupondomain.CreateRequest) paymentdomain.CouponParams {
	params := paymentdomain.CouponParams{
		Name:             req.Code,
		Duration:         req.Duration,
		DurationInMonths: req.DurationInMonths,
		MaxRedemptions:   req.MaxRedemptions,
		RedeemBy:         req.ExpiresAt,
	}
	switch req.DiscountType {
	case coupondomain.DiscountPercentage:
		percent := req.DiscountValue
		params.PercentOff = &percent
	case coupondomain.DiscountFixed:
		cents := int64(math.Round(req.DiscountValue * 100))
		params.AmountOffCents = &cents
		params.Currency = "usd"
	}
	return params
}

func sameDefinition(existing *coupondomain.Coupon, req coupondomain.CreateRequest) bool {
	return existing.DiscountType == req.DiscountType &&
		existing.DiscountValue == req.DiscountValue &&
		existing.Duration == req.Duration &&
		equalInt(existing.DurationInMonths, req.DurationInMonths) &&
		equalInt(existing.MaxRedemptions, req.MaxRedemptions)
}

func equalInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idempotencyKey(id snowflake.ID, object string) string {
	return fmt.Sprintf("natiweb-coupon-%s-%s", id.String(), object)
}

