package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() coupondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, coupon *coupondomain.Coupon) error {
	return db.WithContext(ctx).Create(coupon).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*coupondomain.Coupon, error) {
	return r.take(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*coupondomain.Coupon, error) {
	return r.take(db.WithContext(ctx).Where("code = ?", code))
}

func (r *repo) FindActiveByCode(ctx context.Context, db *gorm.DB, code string, now time.Time) (*coupondomain.Coupon, error) {
	return r.take(db.WithContext(ctx).
		Where("code = ? AND is_active = ? AND status = ?", code, true, coupondomain.StatusActive).
		Where("(expires_at IS NULL OR expires_at > ?)", now))
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, couponID, promoCodeID string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&coupondomain.Coupon{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"coupon_id":     couponID,
			"promo_code_id": promoCodeID,
			"status":        coupondomain.StatusActive,
			"is_active":     true,
			"updated_at":    now,
		}).Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).
		Model(&coupondomain.Coupon{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": now,
		}).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]coupondomain.Coupon, error) {
	var coupons []coupondomain.Coupon
	if err := db.WithContext(ctx).Order("created_at DESC").Find(&coupons).Error; err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repo) ListStalePending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]coupondomain.Coupon, error) {
	if limit <= 0 {
		limit = 50
	}
	var coupons []coupondomain.Coupon
	if err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", coupondomain.StatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&coupons).Error; err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repo) take(query *gorm.DB) (*coupondomain.Coupon, error) {
	var coupon coupondomain.Coupon
	err := query.Take(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}
