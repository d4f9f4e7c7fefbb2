// Package credit reports metered spend to callers in credits.
package credit

import (
	"context"
	"errors"
	"strings"
	"time"

	apikeydomain "github.com/natidev-sh/natiweb/internal/apikey/domain"
	"github.com/natidev-sh/natiweb/internal/credits"
	"github.com/natidev-sh/natiweb/internal/metering"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrNoKey          = errors.New("no_api_key")
	ErrAPIKeyRequired = errors.New("api_key_required")
	ErrKeyNotOwned    = errors.New("key_not_owned")
)

// Status is computed per request from the gateway and never cached.
type Status struct {
	UsedCredits      int64      `json:"usedCredits"`
	TotalCredits     int64      `json:"totalCredits"`
	RemainingCredits int64      `json:"remainingCredits"`
	BudgetResetDate  *time.Time `json:"budgetResetDate"`
	HasKey           bool       `json:"hasKey"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Keys     apikeydomain.Service
	Metering metering.Gateway
}

type Service struct {
	log      *zap.Logger
	keys     apikeydomain.Service
	metering metering.Gateway
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("credit.service"),
		keys:     p.Keys,
		metering: p.Metering,
	}
}

// ForUser reports on the caller's most recent key.
func (s *Service) ForUser(ctx context.Context, userID string) (*Status, error) {
	key, err := s.keys.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, apikeydomain.ErrNotFound) {
			return nil, ErrNoKey
		}
		return nil, err
	}
	return s.status(ctx, key.APIKey)
}

// ForOwnedKey reports on an explicit key after checking it belongs to the
// caller.
func (s *Service) ForOwnedKey(ctx context.Context, userID string, apiKey string) (*Status, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	owned, err := s.keys.Owns(ctx, userID, apiKey)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ErrKeyNotOwned
	}
	return s.status(ctx, apiKey)
}

// ForAPIKey reports on a key presented as its own credential.
func (s *Service) ForAPIKey(ctx context.Context, apiKey string) (*Status, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	return s.status(ctx, apiKey)
}

func (s *Service) status(ctx context.Context, apiKey string) (*Status, error) {
	info, err := s.metering.GetUserInfo(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	used, err := credits.ToCredits(info.Spend)
	if err != nil {
		s.log.Warn("gateway reported invalid spend", zap.Float64("spend", info.Spend))
		return nil, err
	}
	total, err := credits.ToCredits(info.MaxBudget)
	if err != nil {
		s.log.Warn("gateway reported invalid budget", zap.Float64("max_budget", info.MaxBudget))
		return nil, err
	}
	return &Status{
		UsedCredits:      used,
		TotalCredits:     total,
		RemainingCredits: max(total-used, 0),
		BudgetResetDate:  info.BudgetResetAt,
		HasKey:           true,
	}, nil
}
