package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/natidev-sh/natiweb/internal/clock"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	"github.com/natidev-sh/natiweb/internal/coupon/repository"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const adminID = "6f1c2b1e-8a53-4a0a-9a53-4c1f1b2f7d10"

type fakeGateway struct {
	paymentdomain.Gateway
	couponKeys  []string
	promoKeys   []string
	coupons     []paymentdomain.CouponParams
	promoErr    error
	activeCalls []string
	activeErr   error
}

func (f *fakeGateway) CreateCoupon(ctx context.Context, params paymentdomain.CouponParams, key string) (string, error) {
	f.couponKeys = append(f.couponKeys, key)
	f.coupons = append(f.coupons, params)
	return "co_" + key, nil
}

func (f *fakeGateway) CreatePromotionCode(ctx context.Context, params paymentdomain.PromotionCodeParams, key string) (string, error) {
	f.promoKeys = append(f.promoKeys, key)
	if f.promoErr != nil {
		return "", f.promoErr
	}
	return "promo_" + params.Code, nil
}

func (f *fakeGateway) SetPromotionCodeActive(ctx context.Context, id string, active bool) error {
	f.activeCalls = append(f.activeCalls, fmt.Sprintf("%s:%t", id, active))
	return f.activeErr
}

func setupCouponDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&coupondomain.Coupon{}))
	return db
}

func newCouponService(t *testing.T, db *gorm.DB, gw *fakeGateway) *Service {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Gateway: gw,
		Clock:   clock.Fixed{T: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)},
	}).(*Service)
}

func int64p(v int64) *int64 { return &v }

func TestCreateActivatesCoupon(t *testing.T) {
	db := setupCouponDB(t)
	gw := &fakeGateway{}
	svc := newCouponService(t, db, gw)

	coupon, err := svc.Create(context.Background(), adminID, coupondomain.CreateRequest{
		Code:          "  launch25 ",
		DiscountType:  "percentage",
		DiscountValue: 25,
		Duration:      "once",
	})
	require.NoError(t, err)
	assert.Equal(t, "LAUNCH25", coupon.Code)
	assert.Equal(t, coupondomain.StatusActive, coupon.Status)
	assert.True(t, coupon.IsActive)
	require.NotNil(t, coupon.PromoCodeID)
	assert.Equal(t, "promo_LAUNCH25", *coupon.PromoCodeID)

	require.Len(t, gw.coupons, 1)
	require.NotNil(t, gw.coupons[0].PercentOff)
	assert.Equal(t, 25.0, *gw.coupons[0].PercentOff)
	assert.Contains(t, gw.couponKeys[0], coupon.ID.String())

	stored, err := repository.Provide().FindByCode(context.Background(), db, "LAUNCH25")
	require.NoError(t, err)
	assert.Equal(t, coupondomain.StatusActive, stored.Status)
	assert.True(t, stored.IsActive)
}

func TestCreateFixedDiscountUsesCents(t *testing.T) {
	db := setupCouponDB(t)
	gw := &fakeGateway{}
	svc := newCouponService(t, db, gw)

	_, err := svc.Create(context.Background(), adminID, coupondomain.CreateRequest{
		Code:             "FIVEOFF",
		DiscountType:     "fixed",
		DiscountValue:    5.5,
		Duration:         "repeating",
		DurationInMonths: int64p(3),
	})
	require.NoError(t, err)
	require.NotNil(t, gw.coupons[0].AmountOffCents)
	assert.Equal(t, int64(550), *gw.coupons[0].AmountOffCents)
	assert.Equal(t, int64(3), *gw.coupons[0].DurationInMonths)
}

func TestCreateValidation(t *testing.T) {
	cases := map[string]struct {
		req  coupondomain.CreateRequest
		want error
	}{
		"bad code":        {coupondomain.CreateRequest{Code: "x!", DiscountType: "fixed", DiscountValue: 1, Duration: "once"}, coupondomain.ErrInvalidCode},
		"bad type":        {coupondomain.CreateRequest{Code: "ABC", DiscountType: "bogo", DiscountValue: 1, Duration: "once"}, coupondomain.ErrInvalidDiscountType},
		"over 100":        {coupondomain.CreateRequest{Code: "ABC", DiscountType: "percentage", DiscountValue: 101, Duration: "once"}, coupondomain.ErrInvalidDiscountValue},
		"zero value":      {coupondomain.CreateRequest{Code: "ABC", DiscountType: "fixed", DiscountValue: 0, Duration: "once"}, coupondomain.ErrInvalidDiscountValue},
		"bad duration":    {coupondomain.CreateRequest{Code: "ABC", DiscountType: "fixed", DiscountValue: 1, Duration: "weekly"}, coupondomain.ErrInvalidDuration},
		"months missing":  {coupondomain.CreateRequest{Code: "ABC", DiscountType: "fixed", DiscountValue: 1, Duration: "repeating"}, coupondomain.ErrMonthsRequired},
		"bad redemptions": {coupondomain.CreateRequest{Code: "ABC", DiscountType: "fixed", DiscountValue: 1, Duration: "once", MaxRedemptions: int64p(0)}, coupondomain.ErrInvalidRedemptions},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			db := setupCouponDB(t)
			gw := &fakeGateway{}
			svc := newCouponService(t, db, gw)

			_, err := svc.Create(context.Background(), adminID, tc.req)
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, gw.couponKeys)
		})
	}
}

func TestCreateDuplicateCodeMakesNoExternalCall(t *testing.T) {
	db := setupCouponDB(t)
	gw := &fakeGateway{}
	svc := newCouponService(t, db, gw)
	req := coupondomain.CreateRequest{Code: "DUP", DiscountType: "fixed", DiscountValue: 2, Duration: "once"}

	_, err := svc.Create(context.Background(), adminID, req)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), adminID, req)
	require.ErrorIs(t, err, coupondomain.ErrCodeExists)
	assert.Len(t, gw.couponKeys, 1)
}

func TestCreateRetryReusesIdempotencyKeys(t *testing.T) {
	db := setupCouponDB(t)
	gw := &fakeGateway{promoErr: errors.New("processor unavailable")}
	svc := newCouponService(t, db, gw)
	req := coupondomain.CreateRequest{Code: "RETRY", DiscountType: "percentage", DiscountValue: 10, Duration: "forever"}

	_, err := svc.Create(context.Background(), adminID, req)
	require.Error(t, err)

	stored, err := repository.Provide().FindByCode(context.Background(), db, "RETRY")
	require.NoError(t, err)
	assert.Equal(t, coupondomain.StatusPending, stored.Status)
	assert.False(t, stored.IsActive)

	gw.promoErr = nil
	coupon, err := svc.Create(context.Background(), adminID, req)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, coupon.ID)
	require.Len(t, gw.couponKeys, 2)
	assert.Equal(t, gw.couponKeys[0], gw.couponKeys[1])
	assert.Equal(t, gw.promoKeys[0], gw.promoKeys[1])
}

func TestDeactivateIsIdempotent(t *testing.T) {
	db := setupCouponDB(t)
	gw := &fakeGateway{}
	svc := newCouponService(t, db, gw)

	coupon, err := svc.Create(context.Background(), adminID, coupondomain.CreateRequest{Code: "BYE", DiscountType: "fixed", DiscountValue: 1, Duration: "once"})
	require.NoError(t, err)

	got, err := svc.Deactivate(context.Background(), adminID, *coupon.PromoCodeID, coupon.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = svc.Deactivate(context.Background(), adminID, *coupon.PromoCodeID, coupon.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, []string{"promo_BYE:false"}, gw.activeCalls)
}

func TestDeactivateProcessorFailureKeepsLocalActive(t *testing.T) {
	db := setupCouponDB(t)
	gw := &fakeGateway{}
	svc := newCouponService(t, db, gw)

	coupon, err := svc.Create(context.Background(), adminID, coupondomain.CreateRequest{Code: "KEEP", DiscountType: "fixed", DiscountValue: 1, Duration: "once"})
	require.NoError(t, err)

	gw.activeErr = errors.New("processor unavailable")
	_, err = svc.Deactivate(context.Background(), adminID, *coupon.PromoCodeID, coupon.ID)
	require.Error(t, err)

	stored, err := repository.Provide().FindByID(context.Background(), db, coupon.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestDeactivateChecksPromoCode(t *testing.T) {
	db := setupCouponDB(t)
	gw := &fakeGateway{}
	svc := newCouponService(t, db, gw)

	coupon, err := svc.Create(context.Background(), adminID, coupondomain.CreateRequest{Code: "MATCH", DiscountType: "fixed", DiscountValue: 1, Duration: "once"})
	require.NoError(t, err)

	_, err = svc.Deactivate(context.Background(), adminID, "promo_other", coupon.ID)
	require.ErrorIs(t, err, coupondomain.ErrPromoCodeMismatch)

	_, err = svc.Deactivate(context.Background(), adminID, "promo_x", snowflake.ID(42))
	require.ErrorIs(t, err, coupondomain.ErrNotFound)
}
