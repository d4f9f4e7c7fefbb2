package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"

	DurationOnce      = "once"
	DurationRepeating = "repeating"
	DurationForever   = "forever"

	StatusPending = "pending"
	StatusActive  = "active"
)

// Coupon mirrors a processor coupon and its promotion code. Rows start
// pending and become active once both processor objects exist; they are
// only ever soft-deactivated.
type Coupon struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	Code             string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	PromoCodeID      *string      `json:"promo_code_id" gorm:"type:text"`
	CouponID         *string      `json:"coupon_id" gorm:"type:text"`
	DiscountType     string       `json:"discount_type" gorm:"type:text;not null"`
	DiscountValue    float64      `json:"discount_value" gorm:"not null"`
	Duration         string       `json:"duration" gorm:"type:text;not null"`
	DurationInMonths *int64       `json:"duration_in_months"`
	MaxRedemptions   *int64       `json:"max_redemptions"`
	ExpiresAt        *time.Time   `json:"expires_at"`
	IsActive         bool         `json:"is_active" gorm:"not null"`
	Status           string       `json:"status" gorm:"type:text;not null"`
	CreatedBy        string       `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (Coupon) TableName() string { return "coupons" }

// CreateRequest is an operator's coupon definition.
type CreateRequest struct {
	Code             string
	DiscountType     string
	DiscountValue    float64
	Duration         string
	DurationInMonths *int64
	MaxRedemptions   *int64
	ExpiresAt        *time.Time
}

type Service interface {
	Create(ctx context.Context, actorID string, req CreateRequest) (*Coupon, error)
	Deactivate(ctx context.Context, actorID string, promoCodeID string, couponDBID snowflake.ID) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Coupon, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Coupon, error)
	FindActiveByCode(ctx context.Context, db *gorm.DB, code string, now time.Time) (*Coupon, error)
	Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, couponID, promoCodeID string, now time.Time) error
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	List(ctx context.Context, db *gorm.DB) ([]Coupon, error)
	ListStalePending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Coupon, error)
}

var (
	ErrInvalidCode          = errors.New("invalid_code")
	ErrInvalidDiscountType  = errors.New("invalid_discount_type")
	ErrInvalidDiscountValue = errors.New("invalid_discount_value")
	ErrInvalidDuration      = errors.New("invalid_duration")
	ErrMonthsRequired       = errors.New("duration_in_months_required")
	ErrInvalidRedemptions   = errors.New("invalid_max_redemptions")
	ErrInvalidExpiry        = errors.New("invalid_expires_at")
	ErrCodeExists           = errors.New("code_exists")
	ErrNotFound             = errors.New("coupon_not_found")
	ErrPromoCodeMismatch    = errors.New("promo_code_mismatch")
	ErrNotActivated         = errors.New("coupon_not_activated")
)
