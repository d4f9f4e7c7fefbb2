package metering

import (
	"encoding/json"
	"time"
)

// CreateKeyRequest describes a new virtual key.
type CreateKeyRequest struct {
	UserID             string
	MaxBudgetDollars   float64
	BudgetDurationDays int
	Tier               string
	Alias              string
	Metadata           map[string]any
}

// CreatedKey is the gateway's answer to a key generation. Raw is the body
// exactly as returned.
type CreatedKey struct {
	Key   string
	Alias string
	Raw   json.RawMessage
}

// BudgetInfo is the spend snapshot of one key.
type BudgetInfo struct {
	Spend         float64
	MaxBudget     float64
	BudgetResetAt *time.Time
	Raw           json.RawMessage
}

type endUserRequest struct {
	UserID         string  `json:"user_id"`
	MaxBudget      float64 `json:"max_budget"`
	BudgetDuration string  `json:"budget_duration"`
}

type generateKeyRequest struct {
	UserID         string         `json:"user_id"`
	MaxBudget      float64        `json:"max_budget"`
	BudgetDuration string         `json:"budget_duration"`
	BudgetID       string         `json:"budget_id,omitempty"`
	KeyAlias       string         `json:"key_alias,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type generateKeyResponse struct {
	Key      string `json:"key"`
	KeyAlias string `json:"key_alias"`
}

type keyInfoRequest struct {
	Keys []string `json:"keys"`
}

type keyInfoListResponse struct {
	Info []json.RawMessage `json:"info"`
}

type keyInfoResponse struct {
	Key  string      `json:"key"`
	Info keyInfoBody `json:"info"`
}

type keyInfoBody struct {
	Spend         float64  `json:"spend"`
	MaxBudget     *float64 `json:"max_budget"`
	BudgetResetAt *string  `json:"budget_reset_at"`
}

type deleteKeysRequest struct {
	KeyAliases []string `json:"key_aliases"`
}
