package domain

import (
	"context"
	"errors"
)

type Service interface {
	IngestWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// CheckoutRequest is a caller's request to start a subscription checkout.
type CheckoutRequest struct {
	UserID     string
	Email      string
	Plan       string
	CouponCode string
}

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrInvalidCustomer       = errors.New("invalid_customer")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrProfileNotFound       = errors.New("profile_not_found")
	ErrInvalidPlan           = errors.New("invalid_plan")
	ErrInvalidCoupon         = errors.New("invalid_coupon")
)
