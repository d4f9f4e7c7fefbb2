package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrNotFound    = errors.New("profile_not_found")
	ErrInvalidRole = errors.New("invalid_role")
)

// Profile mirrors an identity-provider user with its role and subscription
// state. Rows are created on first sign-in and never deleted.
type Profile struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:uuid"`
	Role               string     `json:"role" gorm:"type:text;not null;default:'user'"`
	SubscriptionStatus *string    `json:"subscription_status" gorm:"type:text"`
	PlanID             *string    `json:"plan_id" gorm:"type:text"`
	PaymentsCustomerID *string    `json:"payments_customer_id" gorm:"type:text;uniqueIndex"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// SubscriptionState is the processor-owned part of a profile. Reconciliation
// overwrites it wholesale.
type SubscriptionState struct {
	Status string
	PlanID string
	EndsAt *time.Time
}

// Update carries an admin edit; nil fields stay untouched.
type Update struct {
	Role               *string
	SubscriptionStatus *string
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Profile, error)
	FindByPaymentsCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*Profile, error)
	List(ctx context.Context, db *gorm.DB) ([]Profile, error)
	EnsureExists(ctx context.Context, db *gorm.DB, id string, role string, now time.Time) error
	// SetPaymentsCustomerIDIfEmpty never overwrites an existing customer id.
	SetPaymentsCustomerIDIfEmpty(ctx context.Context, db *gorm.DB, id string, customerID string, now time.Time) error
	ApplySubscription(ctx context.Context, db *gorm.DB, id string, state SubscriptionState, now time.Time) (int64, error)
	ApplyUpdate(ctx context.Context, db *gorm.DB, id string, update Update, now time.Time) (int64, error)
}
