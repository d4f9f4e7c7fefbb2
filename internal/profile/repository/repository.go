package repository

import (
	"context"
	"errors"
	"time"

	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() profiledomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*profiledomain.Profile, error) {
	var profile profiledomain.Profile
	err := db.WithContext(ctx).Where("id = ?", id).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) FindByPaymentsCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*profiledomain.Profile, error) {
	var profile profiledomain.Profile
	err := db.WithContext(ctx).Where("payments_customer_id = ?", customerID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]profiledomain.Profile, error) {
	var profiles []profiledomain.Profile
	if err := db.WithContext(ctx).Order("created_at DESC").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *repo) EnsureExists(ctx context.Context, db *gorm.DB, id string, role string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO profiles (id, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		id,
		role,
		now,
		now,
	).Error
}

func (r *repo) SetPaymentsCustomerIDIfEmpty(ctx context.Context, db *gorm.DB, id string, customerID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE profiles
		 SET payments_customer_id = ?, updated_at = ?
		 WHERE id = ? AND payments_customer_id IS NULL`,
		customerID,
		now,
		id,
	).Error
}

func (r *repo) ApplySubscription(ctx context.Context, db *gorm.DB, id string, state profiledomain.SubscriptionState, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE profiles
		 SET subscription_status = ?, plan_id = ?, subscription_ends_at = ?, updated_at = ?
		 WHERE id = ?`,
		nullable(state.Status),
		nullable(state.PlanID),
		state.EndsAt,
		now,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ApplyUpdate(ctx context.Context, db *gorm.DB, id string, update profiledomain.Update, now time.Time) (int64, error) {
	updates := map[string]any{"updated_at": now}
	if update.Role != nil {
		updates["role"] = *update.Role
	}
	if update.SubscriptionStatus != nil {
		updates["subscription_status"] = nullable(*update.SubscriptionStatus)
	}
	result := db.WithContext(ctx).
		Model(&profiledomain.Profile{}).
		Where("id = ?", id).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
