package domain

import (
	"context"
	"encoding/json"
	"time"
)

const ProviderStripe = "stripe"

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

// Event is a verified processor event. Object is the raw data.object.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// Subscription is the slice of a processor subscription mirrored onto
// profiles.
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	PriceID          string
	CurrentPeriodEnd *time.Time
}

// CompletedCheckout is the parsed data.object of checkout.session.completed.
type CompletedCheckout struct {
	SessionID      string
	UserID         string
	CustomerID     string
	SubscriptionID string
}

type CheckoutSessionParams struct {
	PriceID           string
	CustomerID        string
	CustomerEmail     string
	ClientReferenceID string
	PromotionCodeID   string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type CouponParams struct {
	Name             string
	PercentOff       *float64
	AmountOffCents   *int64
	Currency         string
	Duration         string
	DurationInMonths *int64
	MaxRedemptions   *int64
	RedeemBy         *time.Time
}

type PromotionCodeParams struct {
	CouponID       string
	Code           string
	MaxRedemptions *int64
	ExpiresAt      *time.Time
}

// Gateway is the payments processor as seen by the workflows.
type Gateway interface {
	ConstructEvent(payload []byte, signatureHeader string) (*Event, error)
	ParseCompletedCheckout(event *Event) (*CompletedCheckout, error)
	ParseSubscription(event *Event) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	CreateCoupon(ctx context.Context, params CouponParams, idempotencyKey string) (string, error)
	CreatePromotionCode(ctx context.Context, params PromotionCodeParams, idempotencyKey string) (string, error)
	SetPromotionCodeActive(ctx context.Context, promotionCodeID string, active bool) error
}
