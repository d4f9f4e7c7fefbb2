package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// APIKey is an issued metered key. Records are immutable and a user may own
// many; the most recent one is the user's current key.
type APIKey struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID    string         `json:"user_id" gorm:"type:uuid;not null;index"`
	APIKey    string         `json:"api_key" gorm:"column:api_key;type:text;not null;uniqueIndex"`
	KeyInfo   datatypes.JSON `json:"key_info" gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
}

func (APIKey) TableName() string { return "api_keys" }

type IssuanceStatus string

const (
	IssuancePending     IssuanceStatus = "pending"
	IssuanceConfirmed   IssuanceStatus = "confirmed"
	IssuanceCompensated IssuanceStatus = "compensated"
	IssuanceAbandoned   IssuanceStatus = "abandoned"
	IssuanceFailed      IssuanceStatus = "failed"
)

// KeyIssuance is written before the gateway creates a key so an upstream key
// without a local record can always be found again by its alias. Abandoned
// issuances never produced an upstream key; failed ones exhausted the sweep's
// delete attempts and need an operator.
type KeyIssuance struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	UserID        string         `gorm:"type:uuid;not null"`
	KeyAlias      string         `gorm:"type:text;not null;uniqueIndex"`
	Status        IssuanceStatus `gorm:"type:text;not null"`
	APIKeyID      *snowflake.ID
	LastError     *string `gorm:"type:text"`
	Attempts      int     `gorm:"not null;default:0"`
	LastAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (KeyIssuance) TableName() string { return "key_issuances" }

// SweepResult summarises one compensation pass.
type SweepResult struct {
	Scanned     int
	Compensated int
	Failed      int
	GaveUp      int
}

type Service interface {
	// Issue provisions a metered end user and a fresh key for userID and
	// returns the gateway's key info verbatim.
	Issue(ctx context.Context, userID string, metadata map[string]any) (json.RawMessage, error)
	// Usage returns gateway info for keys, all of which must belong to userID.
	Usage(ctx context.Context, userID string, keys []string) ([]json.RawMessage, error)
	Latest(ctx context.Context, userID string) (*APIKey, error)
	Owns(ctx context.Context, userID string, key string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]APIKey, error)
	// CompensateStale deletes upstream keys of issuances left pending since
	// before the cutoff. Rows not attempted since the cutoff come first, fewest
	// attempts first, so rows that keep failing cannot starve newer ones.
	CompensateStale(ctx context.Context, before time.Time, limit int) (SweepResult, error)
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrKeysRequired    = errors.New("keys_required")
	ErrKeyNotOwned     = errors.New("key_not_owned")
	ErrNotFound        = errors.New("api_key_not_found")
	ErrPersistence     = errors.New("persistence_failed")
	ErrInvalidMetadata = errors.New("invalid_metadata")
)
