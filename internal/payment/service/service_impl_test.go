package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/natidev-sh/natiweb/internal/clock"
	"github.com/natidev-sh/natiweb/internal/config"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	couponrepo "github.com/natidev-sh/natiweb/internal/coupon/repository"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
	"github.com/natidev-sh/natiweb/internal/payment/repository"
	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	profilerepo "github.com/natidev-sh/natiweb/internal/profile/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const userID = "0b8f3a52-1f55-4a8e-9d0c-2f3f8d7f1a01"

var periodEnd = time.Date(2026, 11, 14, 0, 0, 0, 0, time.UTC)

type fakeGateway struct {
	paymentdomain.Gateway
	events        map[string]*paymentdomain.Event
	checkouts     map[string]*paymentdomain.CompletedCheckout
	subscriptions map[string]*paymentdomain.Subscription
	fetched       []string
	sessions      []paymentdomain.CheckoutSessionParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		events:        map[string]*paymentdomain.Event{},
		checkouts:     map[string]*paymentdomain.CompletedCheckout{},
		subscriptions: map[string]*paymentdomain.Subscription{},
	}
}

func (f *fakeGateway) ConstructEvent(payload []byte, signatureHeader string) (*paymentdomain.Event, error) {
	event, ok := f.events[signatureHeader]
	if !ok {
		return nil, paymentdomain.ErrInvalidSignature
	}
	return event, nil
}

func (f *fakeGateway) ParseCompletedCheckout(event *paymentdomain.Event) (*paymentdomain.CompletedCheckout, error) {
	checkout, ok := f.checkouts[event.ID]
	if !ok {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return checkout, nil
}

func (f *fakeGateway) ParseSubscription(event *paymentdomain.Event) (*paymentdomain.Subscription, error) {
	var sub paymentdomain.Subscription
	if err := json.Unmarshal(event.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return &sub, nil
}

func (f *fakeGateway) GetSubscription(ctx context.Context, id string) (*paymentdomain.Subscription, error) {
	f.fetched = append(f.fetched, id)
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", id)
	}
	return sub, nil
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, params paymentdomain.CheckoutSessionParams) (*paymentdomain.CheckoutSession, error) {
	f.sessions = append(f.sessions, params)
	return &paymentdomain.CheckoutSession{SessionID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func setupPaymentDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&paymentdomain.EventRecord{}, &profiledomain.Profile{}, &coupondomain.Coupon{}))
	return db
}

func newPaymentService(t *testing.T, db *gorm.DB, gw *fakeGateway) *Service {
	t.Helper()
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	cfg := config.Config{SiteURL: "https://nati.dev/"}
	cfg.Stripe.MonthlyPriceID = "price_monthly"
	return NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Gateway:  gw,
		Profiles: profilerepo.Provide(),
		Coupons:  couponrepo.Provide(),
		Cfg:      cfg,
		Clock:    clock.Fixed{T: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)},
	}).(*Service)
}

func seedProfile(t *testing.T, db *gorm.DB, customerID *string) {
	t.Helper()
	require.NoError(t, db.Create(&profiledomain.Profile{
		ID:                 userID,
		Role:               profiledomain.RoleUser,
		PaymentsCustomerID: customerID,
	}).Error)
}

func loadProfile(t *testing.T, db *gorm.DB) *profiledomain.Profile {
	t.Helper()
	profile, err := profilerepo.Provide().FindByID(context.Background(), db, userID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	return profile
}

func strp(v string) *string { return &v }

func addCheckoutEvent(gw *fakeGateway, header, eventID string) {
	gw.events[header] = &paymentdomain.Event{ID: eventID, Type: paymentdomain.EventCheckoutSessionCompleted}
	gw.checkouts[eventID] = &paymentdomain.CompletedCheckout{
		SessionID:      "cs_1",
		UserID:         userID,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	}
	gw.subscriptions["sub_1"] = &paymentdomain.Subscription{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           "active",
		PriceID:          "price_monthly",
		CurrentPeriodEnd: &periodEnd,
	}
}

func TestIngestWebhookRejectsBadSignatureWithoutWrites(t *testing.T) {
	db := setupPaymentDB(t)
	svc := newPaymentService(t, db, newFakeGateway())

	err := svc.IngestWebhook(context.Background(), []byte(`{}`), "forged")
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	var count int64
	require.NoError(t, db.Model(&paymentdomain.EventRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestCheckoutCompletedLinksCustomer(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	addCheckoutEvent(gw, "sig", "evt_1")
	seedProfile(t, db, nil)
	svc := newPaymentService(t, db, gw)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "sig"))

	profile := loadProfile(t, db)
	require.NotNil(t, profile.PaymentsCustomerID)
	assert.Equal(t, "cus_1", *profile.PaymentsCustomerID)
	require.NotNil(t, profile.SubscriptionStatus)
	assert.Equal(t, "active", *profile.SubscriptionStatus)
	require.NotNil(t, profile.PlanID)
	assert.Equal(t, "price_monthly", *profile.PlanID)
	require.NotNil(t, profile.SubscriptionEndsAt)
	assert.True(t, periodEnd.Equal(*profile.SubscriptionEndsAt))
	assert.Equal(t, []string{"sub_1"}, gw.fetched)

	record, err := repository.Provide().FindEvent(context.Background(), db, paymentdomain.ProviderStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotNil(t, record.ProcessedAt)
}

func TestIngestCheckoutKeepsExistingCustomer(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	addCheckoutEvent(gw, "sig", "evt_1")
	seedProfile(t, db, strp("cus_original"))
	svc := newPaymentService(t, db, gw)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"))

	profile := loadProfile(t, db)
	assert.Equal(t, "cus_original", *profile.PaymentsCustomerID)
	assert.Equal(t, "active", *profile.SubscriptionStatus)
}

func TestIngestDuplicateDeliveryIsReported(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	addCheckoutEvent(gw, "sig", "evt_1")
	seedProfile(t, db, nil)
	svc := newPaymentService(t, db, gw)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"))
	err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig")
	require.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
	assert.Len(t, gw.fetched, 1)
}

func TestIngestCheckoutMissingFieldsIsFinalized(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	addCheckoutEvent(gw, "sig", "evt_1")
	gw.checkouts["evt_1"].SubscriptionID = ""
	seedProfile(t, db, nil)
	svc := newPaymentService(t, db, gw)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"))
	assert.Empty(t, gw.fetched)

	profile := loadProfile(t, db)
	assert.Nil(t, profile.PaymentsCustomerID)
	assert.Nil(t, profile.SubscriptionStatus)

	record, err := repository.Provide().FindEvent(context.Background(), db, paymentdomain.ProviderStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotNil(t, record.ProcessedAt)

	err = svc.IngestWebhook(context.Background(), []byte(`{}`), "sig")
	require.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
}

func TestIngestUndecodableObjectIsFinalized(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	gw.events["sig"] = &paymentdomain.Event{ID: "evt_5", Type: paymentdomain.EventSubscriptionUpdated, Object: []byte(`not json`)}
	seedProfile(t, db, strp("cus_1"))
	svc := newPaymentService(t, db, gw)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"))

	record, err := repository.Provide().FindEvent(context.Background(), db, paymentdomain.ProviderStripe, "evt_5")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotNil(t, record.ProcessedAt)
	assert.Nil(t, loadProfile(t, db).SubscriptionStatus)
}

func TestIngestDistinctEventsWithSameStateConverge(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	object, err := json.Marshal(paymentdomain.Subscription{ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_monthly", CurrentPeriodEnd: &periodEnd})
	require.NoError(t, err)
	gw.events["sig_a"] = &paymentdomain.Event{ID: "evt_a", Type: paymentdomain.EventSubscriptionUpdated, Object: object}
	gw.events["sig_b"] = &paymentdomain.Event{ID: "evt_b", Type: paymentdomain.EventSubscriptionUpdated, Object: object}
	seedProfile(t, db, strp("cus_1"))
	svc := newPaymentService(t, db, gw)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig_a"))
	first := loadProfile(t, db)
	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig_b"))
	second := loadProfile(t, db)

	require.NotNil(t, first.SubscriptionStatus)
	require.NotNil(t, second.SubscriptionStatus)
	assert.Equal(t, *first.SubscriptionStatus, *second.SubscriptionStatus)
	require.NotNil(t, first.PlanID)
	require.NotNil(t, second.PlanID)
	assert.Equal(t, *first.PlanID, *second.PlanID)
	require.NotNil(t, first.SubscriptionEndsAt)
	require.NotNil(t, second.SubscriptionEndsAt)
	assert.True(t, first.SubscriptionEndsAt.Equal(*second.SubscriptionEndsAt))

	var processed int64
	require.NoError(t, db.Model(&paymentdomain.EventRecord{}).Where("processed_at IS NOT NULL").Count(&processed).Error)
	assert.Equal(t, int64(2), processed)
}

func TestIngestRedispatchesRecordedButUnprocessedEvent(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	addCheckoutEvent(gw, "sig", "evt_1")
	seedProfile(t, db, nil)
	svc := newPaymentService(t, db, gw)

	// A previous delivery stored the event and stopped before dispatch.
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	inserted, err := repository.Provide().InsertEvent(context.Background(), db, &paymentdomain.EventRecord{
		ID:              node.Generate(),
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       paymentdomain.EventCheckoutSessionCompleted,
		Payload:         []byte(`{}`),
		ReceivedAt:      time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"))

	profile := loadProfile(t, db)
	require.NotNil(t, profile.PaymentsCustomerID)
	assert.Equal(t, "cus_1", *profile.PaymentsCustomerID)
	require.NotNil(t, profile.SubscriptionStatus)
	assert.Equal(t, "active", *profile.SubscriptionStatus)
	require.NotNil(t, profile.PlanID)
	assert.Equal(t, "price_monthly", *profile.PlanID)
	require.NotNil(t, profile.SubscriptionEndsAt)
	assert.True(t, periodEnd.Equal(*profile.SubscriptionEndsAt))
	assert.Equal(t, []string{"sub_1"}, gw.fetched)

	var count int64
	require.NoError(t, db.Model(&paymentdomain.EventRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	record, err := repository.Provide().FindEvent(context.Background(), db, paymentdomain.ProviderStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotNil(t, record.ProcessedAt)
}

func TestIngestCheckoutUnknownProfile(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	addCheckoutEvent(gw, "sig", "evt_1")
	svc := newPaymentService(t, db, gw)

	err := svc.IngestWebhook(context.Background(), []byte(`{}`), "sig")
	require.ErrorIs(t, err, paymentdomain.ErrProfileNotFound)

	record, err := repository.Provide().FindEvent(context.Background(), db, paymentdomain.ProviderStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Nil(t, record.ProcessedAt)
}

func TestIngestSubscriptionDeletedOverwritesState(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	object, err := json.Marshal(paymentdomain.Subscription{ID: "sub_1", CustomerID: "cus_1", Status: "canceled", PriceID: "price_yearly"})
	require.NoError(t, err)
	gw.events["sig"] = &paymentdomain.Event{ID: "evt_2", Type: paymentdomain.EventSubscriptionDeleted, Object: object}
	seedProfile(t, db, strp("cus_1"))
	svc := newPaymentService(t, db, gw)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"))

	profile := loadProfile(t, db)
	assert.Equal(t, "canceled", *profile.SubscriptionStatus)
	assert.Equal(t, "price_yearly", *profile.PlanID)
	assert.Nil(t, profile.SubscriptionEndsAt)
}

func TestIngestSubscriptionUpdatedUnknownCustomer(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	object, err := json.Marshal(paymentdomain.Subscription{ID: "sub_1", CustomerID: "cus_missing", Status: "active"})
	require.NoError(t, err)
	gw.events["sig"] = &paymentdomain.Event{ID: "evt_3", Type: paymentdomain.EventSubscriptionUpdated, Object: object}
	svc := newPaymentService(t, db, gw)

	err = svc.IngestWebhook(context.Background(), []byte(`{}`), "sig")
	require.ErrorIs(t, err, paymentdomain.ErrProfileNotFound)
}

func TestIngestIgnoresOtherEventTypes(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	gw.events["sig"] = &paymentdomain.Event{ID: "evt_4", Type: "invoice.paid"}
	svc := newPaymentService(t, db, gw)

	require.NoError(t, svc.IngestWebhook(context.Background(), []byte(`{}`), "sig"))

	record, err := repository.Provide().FindEvent(context.Background(), db, paymentdomain.ProviderStripe, "evt_4")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotNil(t, record.ProcessedAt)
}

func TestCreateCheckoutSession(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	svc := newPaymentService(t, db, gw)

	session, err := svc.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{
		UserID: userID,
		Email:  "dev@nati.dev",
		Plan:   "Monthly",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test", session.SessionID)

	require.Len(t, gw.sessions, 1)
	params := gw.sessions[0]
	assert.Equal(t, "price_monthly", params.PriceID)
	assert.Equal(t, userID, params.ClientReferenceID)
	assert.Equal(t, userID, params.Metadata["user_id"])
	assert.Equal(t, "dev@nati.dev", params.CustomerEmail)
	assert.Empty(t, params.CustomerID)
	assert.Equal(t, "https://nati.dev/pricing?checkout=cancelled", params.CancelURL)
	assert.True(t, strings.HasPrefix(params.SuccessURL, "https://nati.dev/dashboard?checkout=success"))
}

func TestCreateCheckoutSessionReusesCustomerAndCoupon(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	seedProfile(t, db, strp("cus_9"))
	require.NoError(t, db.Create(&coupondomain.Coupon{
		ID:            snowflake.ID(7),
		Code:          "LAUNCH",
		PromoCodeID:   strp("promo_launch"),
		DiscountType:  coupondomain.DiscountPercentage,
		DiscountValue: 20,
		Duration:      coupondomain.DurationOnce,
		IsActive:      true,
		Status:        coupondomain.StatusActive,
		CreatedBy:     userID,
	}).Error)
	svc := newPaymentService(t, db, gw)

	_, err := svc.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{
		UserID:     userID,
		Email:      "dev@nati.dev",
		Plan:       "monthly",
		CouponCode: " launch ",
	})
	require.NoError(t, err)
	params := gw.sessions[0]
	assert.Equal(t, "cus_9", params.CustomerID)
	assert.Equal(t, "promo_launch", params.PromotionCodeID)
}

func TestCreateCheckoutSessionErrors(t *testing.T) {
	db := setupPaymentDB(t)
	gw := newFakeGateway()
	svc := newPaymentService(t, db, gw)
	ctx := context.Background()

	_, err := svc.CreateCheckoutSession(ctx, paymentdomain.CheckoutRequest{UserID: userID, Plan: "weekly"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidPlan)

	_, err = svc.CreateCheckoutSession(ctx, paymentdomain.CheckoutRequest{UserID: userID, Plan: "yearly"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	_, err = svc.CreateCheckoutSession(ctx, paymentdomain.CheckoutRequest{UserID: userID, Plan: "monthly", CouponCode: "NOPE"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidCoupon)
	assert.Empty(t, gw.sessions)
}
