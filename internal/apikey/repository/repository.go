package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/natidev-sh/natiweb/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Create(key).Error
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, userID string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	if err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) OwnedKeys(ctx context.Context, db *gorm.DB, userID string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var owned []string
	if err := db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("user_id = ? AND api_key IN ?", userID, keys).
		Pluck("api_key", &owned).Error; err != nil {
		return nil, err
	}
	return owned, nil
}

func (r *repo) InsertIssuance(ctx context.Context, db *gorm.DB, issuance *apikeydomain.KeyIssuance) error {
	return db.WithContext(ctx).Create(issuance).Error
}

func (r *repo) TransitionIssuance(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	from, to apikeydomain.IssuanceStatus,
	apiKeyID *snowflake.ID,
	lastError string,
	now time.Time,
) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if apiKeyID != nil {
		updates["api_key_id"] = *apiKeyID
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	result := db.WithContext(ctx).
		Model(&apikeydomain.KeyIssuance{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) RecordSweepFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&apikeydomain.KeyIssuance{}).
		Where("id = ? AND status = ?", id, apikeydomain.IssuancePending).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
			"last_error":      lastError,
			"updated_at":      now,
		}).Error
}

func (r *repo) ListStaleIssuances(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]apikeydomain.KeyIssuance, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []apikeydomain.KeyIssuance
	if err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", apikeydomain.IssuancePending, before).
		Where("last_attempt_at IS NULL OR last_attempt_at < ?", before).
		Order("attempts ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
