package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	Latest(ctx context.Context, db *gorm.DB, userID string) (*APIKey, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]APIKey, error)
	OwnedKeys(ctx context.Context, db *gorm.DB, userID string, keys []string) ([]string, error)

	InsertIssuance(ctx context.Context, db *gorm.DB, issuance *KeyIssuance) error
	// TransitionIssuance moves an issuance out of from; it reports false when
	// the row was no longer in that status.
	TransitionIssuance(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to IssuanceStatus, apiKeyID *snowflake.ID, lastError string, now time.Time) (bool, error)
	// RecordSweepFailure bumps the attempt count of a pending issuance.
	RecordSweepFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error
	ListStaleIssuances(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]KeyIssuance, error)
}
