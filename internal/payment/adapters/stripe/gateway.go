package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/natidev-sh/natiweb/internal/config"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	"github.com/natidev-sh/natiweb/internal/observability/tracing"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
	"github.com/natidev-sh/natiweb/internal/upstream"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serviceName = "payments"

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Gateway implements paymentdomain.Gateway over the Stripe API.
type Gateway struct {
	api           *client.API
	webhookSecret string
	log           *zap.Logger
	metrics       *metrics.Metrics
}

func NewGateway(p Params) paymentdomain.Gateway {
	timeout := p.Cfg.Stripe.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	backends := stripego.NewBackends(tracing.WrapHTTPClient(&http.Client{Timeout: timeout}, serviceName))
	return newGateway(client.New(p.Cfg.Stripe.SecretKey, backends), p.Cfg.Stripe.WebhookSecret, p.Log, p.Metrics)
}

func newGateway(api *client.API, webhookSecret string, log *zap.Logger, m *metrics.Metrics) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		api:           api,
		webhookSecret: strings.TrimSpace(webhookSecret),
		log:           log.Named("payment.stripe"),
		metrics:       m,
	}
}

func (g *Gateway) ConstructEvent(payload []byte, signatureHeader string) (*paymentdomain.Event, error) {
	if g.webhookSecret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, paymentdomain.ErrInvalidSignature
	}
	if strings.TrimSpace(event.ID) == "" || event.Type == "" || event.Data == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return &paymentdomain.Event{
		ID:     event.ID,
		Type:   string(event.Type),
		Object: event.Data.Raw,
	}, nil
}

func (g *Gateway) ParseCompletedCheckout(event *paymentdomain.Event) (*paymentdomain.CompletedCheckout, error) {
	if event == nil || len(event.Object) == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}
	var session stripego.CheckoutSession
	if err := json.Unmarshal(event.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	out := &paymentdomain.CompletedCheckout{
		SessionID: session.ID,
		UserID:    strings.TrimSpace(session.Metadata["user_id"]),
	}
	if out.UserID == "" {
		out.UserID = strings.TrimSpace(session.ClientReferenceID)
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	return out, nil
}

func (g *Gateway) ParseSubscription(event *paymentdomain.Event) (*paymentdomain.Subscription, error) {
	if event == nil || len(event.Object) == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}
	var sub stripego.Subscription
	if err := json.Unmarshal(event.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return toSubscription(&sub), nil
}

func (g *Gateway) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.Subscription, error) {
	params := &stripego.SubscriptionParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, g.wrap("subscription_get", err)
	}
	return toSubscription(sub), nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutSessionParams) (*paymentdomain.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{
		Mode: stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(req.PriceID),
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(req.ClientReferenceID),
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripego.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(req.CustomerEmail)
	}
	if req.PromotionCodeID != "" {
		params.Discounts = []*stripego.CheckoutSessionDiscountParams{
			{PromotionCode: stripego.String(req.PromotionCodeID)},
		}
	} else {
		params.AllowPromotionCodes = stripego.Bool(true)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.wrap("checkout_session_create", err)
	}
	return &paymentdomain.CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

func (g *Gateway) CreateCoupon(ctx context.Context, req paymentdomain.CouponParams, idempotencyKey string) (string, error) {
	params := &stripego.CouponParams{
		Duration: stripego.String(req.Duration),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	if req.Name != "" {
		params.Name = stripego.String(req.Name)
	}
	if req.PercentOff != nil {
		params.PercentOff = stripego.Float64(*req.PercentOff)
	}
	if req.AmountOffCents != nil {
		params.AmountOff = stripego.Int64(*req.AmountOffCents)
		currency := req.Currency
		if currency == "" {
			currency = string(stripego.CurrencyUSD)
		}
		params.Currency = stripego.String(currency)
	}
	if req.DurationInMonths != nil {
		params.DurationInMonths = stripego.Int64(*req.DurationInMonths)
	}
	if req.MaxRedemptions != nil {
		params.MaxRedemptions = stripego.Int64(*req.MaxRedemptions)
	}
	if req.RedeemBy != nil {
		params.RedeemBy = stripego.Int64(req.RedeemBy.Unix())
	}

	coupon, err := g.api.Coupons.New(params)
	if err != nil {
		return "", g.wrap("coupon_create", err)
	}
	return coupon.ID, nil
}

func (g *Gateway) CreatePromotionCode(ctx context.Context, req paymentdomain.PromotionCodeParams, idempotencyKey string) (string, error) {
	params := &stripego.PromotionCodeParams{
		Coupon: stripego.String(req.CouponID),
		Code:   stripego.String(req.Code),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	if req.MaxRedemptions != nil {
		params.MaxRedemptions = stripego.Int64(*req.MaxRedemptions)
	}
	if req.ExpiresAt != nil {
		params.ExpiresAt = stripego.Int64(req.ExpiresAt.Unix())
	}

	promo, err := g.api.PromotionCodes.New(params)
	if err != nil {
		return "", g.wrap("promotion_code_create", err)
	}
	return promo.ID, nil
}

func (g *Gateway) SetPromotionCodeActive(ctx context.Context, promotionCodeID string, active bool) error {
	params := &stripego.PromotionCodeParams{Active: stripego.Bool(active)}
	params.Context = ctx
	if _, err := g.api.PromotionCodes.Update(promotionCodeID, params); err != nil {
		return g.wrap("promotion_code_update", err)
	}
	return nil
}

func (g *Gateway) wrap(operation string, err error) error {
	g.metrics.IncUpstreamFailure(serviceName, operation)
	out := &upstream.Error{Service: serviceName, Operation: operation, Err: err}
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		out.Status = stripeErr.HTTPStatusCode
		out.Body = stripeErr.Msg
	}
	g.log.Warn("payments request failed",
		zap.String("operation", operation),
		zap.Int("status", out.Status),
		zap.Error(err),
	)
	return out
}

func toSubscription(sub *stripego.Subscription) *paymentdomain.Subscription {
	out := &paymentdomain.Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &end
	}
	return out
}
