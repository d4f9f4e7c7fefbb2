package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	apikeydomain "github.com/natidev-sh/natiweb/internal/apikey/domain"
	"github.com/natidev-sh/natiweb/internal/clock"
	"github.com/natidev-sh/natiweb/internal/credits"
	"github.com/natidev-sh/natiweb/internal/metering"
	"github.com/natidev-sh/natiweb/internal/observability/logger"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	"github.com/natidev-sh/natiweb/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxMetadataEntries = 32
	aliasPrefix        = "natiweb-"
	maxSweepAttempts   = 10
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     apikeydomain.Repository
	Metering metering.Gateway
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     apikeydomain.Repository
	metering metering.Gateway
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func New(p Params) apikeydomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("apikey.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		metering: p.Metering,
		clock:    c,
		metrics:  p.Metrics,
	}
}

func (s *Service) Issue(ctx context.Context, userID string, metadata map[string]any) (json.RawMessage, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apikeydomain.ErrInvalidUser
	}
	if len(metadata) > maxMetadataEntries {
		return nil, apikeydomain.ErrInvalidMetadata
	}

	log := logger.FromContext(ctx).Named("apikey.service").With(zap.String("user_id", userID))
	now := s.clock.Now()
	issuance := &apikeydomain.KeyIssuance{
		ID:        s.genID.Generate(),
		UserID:    userID,
		KeyAlias:  aliasPrefix + uuid.NewString(),
		Status:    apikeydomain.IssuancePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertIssuance(ctx, s.db, issuance); err != nil {
		s.metrics.IncKeyIssuance("persist_error")
		return nil, fmt.Errorf("%w: record issuance: %v", apikeydomain.ErrPersistence, err)
	}

	budget := credits.DefaultBudget()
	if err := s.metering.RegisterEndUser(ctx, userID, budget, credits.DefaultBudgetDurationDays); err != nil {
		s.metrics.IncKeyIssuance("upstream_error")
		log.Warn("end user registration failed", zap.Error(err))
		s.abandon(ctx, issuance, err)
		return nil, err
	}

	created, err := s.metering.CreateVirtualKey(ctx, metering.CreateKeyRequest{
		UserID:             userID,
		MaxBudgetDollars:   budget,
		BudgetDurationDays: credits.DefaultBudgetDurationDays,
		Tier:               credits.DefaultBudgetTier,
		Alias:              issuance.KeyAlias,
		Metadata:           withIssuanceMetadata(metadata, issuance),
	})
	if err != nil {
		s.metrics.IncKeyIssuance("upstream_error")
		log.Warn("key generation failed", zap.Error(err))
		// Without a response the key may still exist upstream; leave it to the sweep.
		if upErr, ok := upstream.As(err); ok && upErr.Status != 0 {
			s.abandon(ctx, issuance, err)
		}
		return nil, err
	}

	record := &apikeydomain.APIKey{
		ID:        s.genID.Generate(),
		UserID:    userID,
		APIKey:    created.Key,
		KeyInfo:   datatypes.JSON(created.Raw),
		CreatedAt: s.clock.Now(),
	}
	if err := s.persist(ctx, issuance, record); err != nil {
		s.metrics.IncKeyIssuance("persist_error")
		log.Error("persisting issued key failed; compensating", zap.String("key_alias", issuance.KeyAlias), zap.Error(err))
		s.compensate(ctx, issuance, err)
		return nil, fmt.Errorf("%w: store api key: %v", apikeydomain.ErrPersistence, err)
	}

	s.metrics.IncKeyIssuance("issued")
	log.Info("api key issued", zap.String("api_key_id", record.ID.String()))
	return created.Raw, nil
}

func (s *Service) persist(ctx context.Context, issuance *apikeydomain.KeyIssuance, record *apikeydomain.APIKey) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, record); err != nil {
			return err
		}
		ok, err := s.repo.TransitionIssuance(ctx, tx, issuance.ID, apikeydomain.IssuancePending, apikeydomain.IssuanceConfirmed, &record.ID, "", record.CreatedAt)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("issuance no longer pending")
		}
		return nil
	})
}

// compensate deletes the just-created upstream key. Failures leave the
// issuance pending for the sweep.
func (s *Service) compensate(ctx context.Context, issuance *apikeydomain.KeyIssuance, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.metering.DeleteKeys(ctx, []string{issuance.KeyAlias}); err != nil {
		s.log.Warn("immediate compensation failed; left for sweep",
			zap.String("key_alias", issuance.KeyAlias),
			zap.Error(err),
		)
		return
	}
	if _, err := s.repo.TransitionIssuance(ctx, s.db, issuance.ID, apikeydomain.IssuancePending, apikeydomain.IssuanceCompensated, nil, cause.Error(), s.clock.Now()); err != nil {
		s.log.Warn("marking issuance compensated failed", zap.String("key_alias", issuance.KeyAlias), zap.Error(err))
		return
	}
	s.metrics.AddCompensated(1)
}

// abandon closes an issuance whose key the gateway never created.
func (s *Service) abandon(ctx context.Context, issuance *apikeydomain.KeyIssuance, cause error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.repo.TransitionIssuance(ctx, s.db, issuance.ID, apikeydomain.IssuancePending, apikeydomain.IssuanceAbandoned, nil, cause.Error(), s.clock.Now()); err != nil {
		s.log.Warn("marking issuance abandoned failed", zap.String("key_alias", issuance.KeyAlias), zap.Error(err))
	}
}

func (s *Service) Usage(ctx context.Context, userID string, keys []string) ([]json.RawMessage, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apikeydomain.ErrInvalidUser
	}
	keys = normalizeKeys(keys)
	if len(keys) == 0 {
		return nil, apikeydomain.ErrKeysRequired
	}

	owned, err := s.repo.OwnedKeys(ctx, s.db, userID, keys)
	if err != nil {
		return nil, err
	}
	if len(owned) != len(keys) {
		return nil, apikeydomain.ErrKeyNotOwned
	}

	info, err := s.metering.GetKeyInfo(ctx, keys)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Service) Latest(ctx context.Context, userID string) (*apikeydomain.APIKey, error) {
	key, err := s.repo.Latest(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, apikeydomain.ErrNotFound
	}
	return key, nil
}

func (s *Service) Owns(ctx context.Context, userID string, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	owned, err := s.repo.OwnedKeys(ctx, s.db, userID, []string{key})
	if err != nil {
		return false, err
	}
	return len(owned) == 1, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]apikeydomain.APIKey, error) {
	return s.repo.ListByUser(ctx, s.db, userID)
}

func (s *Service) CompensateStale(ctx context.Context, before time.Time, limit int) (apikeydomain.SweepResult, error) {
	var result apikeydomain.SweepResult
	stale, err := s.repo.ListStaleIssuances(ctx, s.db, before, limit)
	if err != nil {
		return result, err
	}
	result.Scanned = len(stale)

	for _, issuance := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.metering.DeleteKeys(ctx, []string{issuance.KeyAlias}); err != nil {
			result.Failed++
			if s.recordSweepFailure(ctx, issuance, err) {
				result.GaveUp++
			}
			continue
		}
		ok, err := s.repo.TransitionIssuance(ctx, s.db, issuance.ID, apikeydomain.IssuancePending, apikeydomain.IssuanceCompensated, nil, "swept", s.clock.Now())
		if err != nil {
			result.Failed++
			s.log.Warn("sweep transition failed", zap.String("key_alias", issuance.KeyAlias), zap.Error(err))
			continue
		}
		if ok {
			result.Compensated++
		}
	}
	s.metrics.AddCompensated(result.Compensated)
	return result, nil
}

// recordSweepFailure counts a failed delete and reports whether the issuance
// was moved to failed after its last allowed attempt.
func (s *Service) recordSweepFailure(ctx context.Context, issuance apikeydomain.KeyIssuance, cause error) bool {
	now := s.clock.Now()
	fields := []zap.Field{
		zap.String("key_alias", issuance.KeyAlias),
		zap.String("user_id", issuance.UserID),
		zap.Int("attempts", issuance.Attempts+1),
		zap.Error(cause),
	}
	if issuance.Attempts+1 >= maxSweepAttempts {
		ok, err := s.repo.TransitionIssuance(ctx, s.db, issuance.ID, apikeydomain.IssuancePending, apikeydomain.IssuanceFailed, nil, cause.Error(), now)
		if err != nil {
			s.log.Warn("moving issuance to failed errored", append(fields, zap.NamedError("transition_error", err))...)
			return false
		}
		if ok {
			s.metrics.IncKeyIssuance("compensation_failed")
			s.log.Error("sweep gave up deleting upstream key; remove it manually", fields...)
		}
		return ok
	}
	if err := s.repo.RecordSweepFailure(ctx, s.db, issuance.ID, cause.Error(), now); err != nil {
		s.log.Warn("recording sweep failure failed", append(fields, zap.NamedError("record_error", err))...)
	}
	s.log.Warn("sweep delete failed", fields...)
	return false
}

func withIssuanceMetadata(metadata map[string]any, issuance *apikeydomain.KeyIssuance) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	for key, value := range metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = value
	}
	out["issuance_id"] = issuance.ID.String()
	out["key_alias"] = issuance.KeyAlias
	return out
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
