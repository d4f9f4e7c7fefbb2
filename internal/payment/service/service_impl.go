package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/natidev-sh/natiweb/internal/audit/domain"
	"github.com/natidev-sh/natiweb/internal/clock"
	"github.com/natidev-sh/natiweb/internal/config"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	resultProcessed = "processed"
	resultDuplicate = "duplicate"
	resultIgnored   = "ignored"
	resultInvalid   = "invalid"
	resultFailed    = "failed"
	resultRejected  = "rejected"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     paymentdomain.Repository
	Gateway  paymentdomain.Gateway
	Profiles profiledomain.Repository
	Coupons  coupondomain.Repository
	AuditSvc auditdomain.Service
	Cfg      config.Config
	Metrics  *metrics.Metrics `optional:"true"`
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     paymentdomain.Repository
	gateway  paymentdomain.Gateway
	profiles profiledomain.Repository
	coupons  coupondomain.Repository
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
	clock    clock.Clock

	siteURL string
	prices  map[string]string
}

func NewService(p Params) paymentdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		gateway:  p.Gateway,
		profiles: p.Profiles,
		coupons:  p.Coupons,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		clock:    c,
		siteURL:  strings.TrimRight(p.Cfg.SiteURL, "/"),
		prices: map[string]string{
			paymentdomain.PlanMonthly: strings.TrimSpace(p.Cfg.Stripe.MonthlyPriceID),
			paymentdomain.PlanYearly:  strings.TrimSpace(p.Cfg.Stripe.YearlyPriceID),
		},
	}
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.gateway.ConstructEvent(payload, signatureHeader)
	if err != nil {
		s.metrics.IncWebhookEvent("unknown", resultRejected)
		return err
	}
	if event == nil || strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		s.metrics.IncWebhookEvent("unknown", resultRejected)
		return paymentdomain.ErrInvalidEvent
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		s.metrics.IncWebhookEvent(event.Type, resultFailed)
		return fmt.Errorf("record webhook event: %w", err)
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, paymentdomain.ProviderStripe, event.ID)
		if err != nil {
			s.metrics.IncWebhookEvent(event.Type, resultFailed)
			return fmt.Errorf("load webhook event: %w", err)
		}
		if stored == nil {
			s.metrics.IncWebhookEvent(event.Type, resultFailed)
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.metrics.IncWebhookEvent(event.Type, resultDuplicate)
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	result := resultProcessed
	if err := s.processEvent(ctx, event); err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrEventIgnored):
			result = resultIgnored
		case malformed(err):
			// Redelivery cannot repair a signed payload, so it is finalized.
			result = resultInvalid
			s.log.Warn("webhook event is malformed, acknowledging without changes",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
		default:
			s.metrics.IncWebhookEvent(event.Type, resultFailed)
			s.log.Warn("webhook processing failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
			return err
		}
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		s.metrics.IncWebhookEvent(event.Type, resultFailed)
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	s.metrics.IncWebhookEvent(event.Type, result)
	return nil
}

func malformed(err error) bool {
	return errors.Is(err, paymentdomain.ErrInvalidEvent) ||
		errors.Is(err, paymentdomain.ErrInvalidPayload) ||
		errors.Is(err, paymentdomain.ErrInvalidCustomer)
}

func (s *Service) processEvent(ctx context.Context, event *paymentdomain.Event) error {
	switch event.Type {
	case paymentdomain.EventCheckoutSessionCompleted:
		return s.completeCheckout(ctx, event)
	case paymentdomain.EventSubscriptionUpdated, paymentdomain.EventSubscriptionDeleted:
		return s.syncSubscription(ctx, event)
	default:
		return paymentdomain.ErrEventIgnored
	}
}

// completeCheckout links the processor customer to the profile and mirrors
// the subscription, which is re-read from the processor by id.
func (s *Service) completeCheckout(ctx context.Context, event *paymentdomain.Event) error {
	checkout, err := s.gateway.ParseCompletedCheckout(event)
	if err != nil {
		return err
	}
	if checkout.UserID == "" || checkout.CustomerID == "" || checkout.SubscriptionID == "" {
		return paymentdomain.ErrInvalidEvent
	}

	sub, err := s.gateway.GetSubscription(ctx, checkout.SubscriptionID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.profiles.SetPaymentsCustomerIDIfEmpty(ctx, tx, checkout.UserID, checkout.CustomerID, now); err != nil {
			return fmt.Errorf("link payments customer: %w", err)
		}
		rows, err := s.profiles.ApplySubscription(ctx, tx, checkout.UserID, subscriptionState(sub), now)
		if err != nil {
			return fmt.Errorf("apply subscription: %w", err)
		}
		if rows == 0 {
			return paymentdomain.ErrProfileNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, event, checkout.UserID, sub)
	return nil
}

func (s *Service) syncSubscription(ctx context.Context, event *paymentdomain.Event) error {
	sub, err := s.gateway.ParseSubscription(event)
	if err != nil {
		return err
	}
	if sub.CustomerID == "" {
		return paymentdomain.ErrInvalidCustomer
	}

	profile, err := s.profiles.FindByPaymentsCustomerID(ctx, s.db, sub.CustomerID)
	if err != nil {
		return fmt.Errorf("find profile by customer: %w", err)
	}
	if profile == nil {
		return paymentdomain.ErrProfileNotFound
	}

	if _, err := s.profiles.ApplySubscription(ctx, s.db, profile.ID, subscriptionState(sub), s.clock.Now()); err != nil {
		return fmt.Errorf("apply subscription: %w", err)
	}
	s.audit(ctx, event, profile.ID, sub)
	return nil
}

func (s *Service) audit(ctx context.Context, event *paymentdomain.Event, profileID string, sub *paymentdomain.Subscription) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"event_id":        event.ID,
		"event_type":      event.Type,
		"subscription_id": sub.ID,
		"status":          sub.Status,
		"plan_id":         sub.PriceID,
	}
	if err := s.auditSvc.AuditLog(ctx, "subscription.sync", "profile", &profileID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}

func (s *Service) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	plan := strings.ToLower(strings.TrimSpace(req.Plan))
	priceID, ok := s.prices[plan]
	if !ok {
		return nil, paymentdomain.ErrInvalidPlan
	}
	if priceID == "" {
		s.log.Error("checkout price not configured", zap.String("plan", plan))
		return nil, paymentdomain.ErrInvalidConfig
	}

	params := paymentdomain.CheckoutSessionParams{
		PriceID:           priceID,
		CustomerEmail:     strings.TrimSpace(req.Email),
		ClientReferenceID: req.UserID,
		SuccessURL:        s.siteURL + "/dashboard?checkout=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.siteURL + "/pricing?checkout=cancelled",
		Metadata: map[string]string{
			"user_id": req.UserID,
			"plan":    plan,
		},
	}

	if code := strings.ToUpper(strings.TrimSpace(req.CouponCode)); code != "" {
		coupon, err := s.coupons.FindActiveByCode(ctx, s.db, code, s.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("find coupon: %w", err)
		}
		if coupon == nil || coupon.PromoCodeID == nil {
			return nil, paymentdomain.ErrInvalidCoupon
		}
		params.PromotionCodeID = *coupon.PromoCodeID
	}

	profile, err := s.profiles.FindByID(ctx, s.db, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	if profile != nil && profile.PaymentsCustomerID != nil && *profile.PaymentsCustomerID != "" {
		params.CustomerID = *profile.PaymentsCustomerID
		params.CustomerEmail = ""
	}

	return s.gateway.CreateCheckoutSession(ctx, params)
}

func subscriptionState(sub *paymentdomain.Subscription) profiledomain.SubscriptionState {
	state := profiledomain.SubscriptionState{
		Status: sub.Status,
		PlanID: sub.PriceID,
	}
	if sub.CurrentPeriodEnd != nil {
		end := sub.CurrentPeriodEnd.UTC()
		state.EndsAt = &end
	}
	return state
}
