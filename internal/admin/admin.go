// Package admin holds operator workflows over profiles and identity-provider
// accounts. Callers must already hold the admin role.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	apikeydomain "github.com/natidev-sh/natiweb/internal/apikey/domain"
	auditdomain "github.com/natidev-sh/natiweb/internal/audit/domain"
	"github.com/natidev-sh/natiweb/internal/clock"
	"github.com/natidev-sh/natiweb/internal/identity"
	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ActionBan     = "ban"
	ActionSuspend = "suspend"
	ActionUnban   = "unban"

	DefaultSuspendDays = 7
	recentAuditLimit   = 20

	// banForever is roughly a century, the provider's idiom for indefinite.
	banForever = "876000h"
	banLifted  = "none"
)

var (
	ErrUserIDRequired  = errors.New("user_id_required")
	ErrInvalidUserID   = errors.New("invalid_user_id")
	ErrNoUpdates       = errors.New("no_updates")
	ErrInvalidAction   = errors.New("invalid_action")
	ErrSelfTarget      = errors.New("self_target")
	ErrInvalidDuration = errors.New("invalid_duration")
)

// UserDetails is what an operator sees for one account.
type UserDetails struct {
	User        *identity.User          `json:"user"`
	Profile     *profiledomain.Profile  `json:"profile"`
	APIKeys     []apikeydomain.APIKey   `json:"apiKeys"`
	RecentAudit []*auditdomain.AuditLog `json:"recentAudit"`
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Profiles profiledomain.Repository
	Keys     apikeydomain.Service
	Identity identity.Admin
	AuditSvc auditdomain.Service
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	profiles profiledomain.Repository
	keys     apikeydomain.Service
	identity identity.Admin
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("admin.service"),
		profiles: p.Profiles,
		keys:     p.Keys,
		identity: p.Identity,
		auditSvc: p.AuditSvc,
		clock:    c,
	}
}

func (s *Service) ListProfiles(ctx context.Context) ([]profiledomain.Profile, error) {
	profiles, err := s.profiles.List(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if profiles == nil {
		profiles = []profiledomain.Profile{}
	}
	return profiles, nil
}

func (s *Service) GetUserDetails(ctx context.Context, userID string) (*UserDetails, error) {
	userID, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}

	user, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []apikeydomain.APIKey{}
	}
	return &UserDetails{User: user, Profile: profile, APIKeys: keys, RecentAudit: s.recentAudit(ctx, userID)}, nil
}

// recentAudit covers both operator actions and subscription syncs, which
// share the user id as target. A failing lookup degrades to an empty list.
func (s *Service) recentAudit(ctx context.Context, userID string) []*auditdomain.AuditLog {
	entries := []*auditdomain.AuditLog{}
	if s.auditSvc == nil {
		return entries
	}
	found, err := s.auditSvc.List(ctx, auditdomain.ListFilter{TargetID: userID, Limit: recentAuditLimit})
	if err != nil {
		s.log.Warn("load audit history failed", zap.String("user_id", userID), zap.Error(err))
		return entries
	}
	return append(entries, found...)
}

func (s *Service) UpdateUserDetails(ctx context.Context, userID string, update profiledomain.Update) (*profiledomain.Profile, error) {
	userID, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	if update.Role == nil && update.SubscriptionStatus == nil {
		return nil, ErrNoUpdates
	}
	if update.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*update.Role))
		if !profiledomain.ValidRole(role) {
			return nil, profiledomain.ErrInvalidRole
		}
		update.Role = &role
	}
	if update.SubscriptionStatus != nil {
		status := strings.TrimSpace(*update.SubscriptionStatus)
		update.SubscriptionStatus = &status
	}

	rows, err := s.profiles.ApplyUpdate(ctx, s.db, userID, update, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if rows == 0 {
		return nil, profiledomain.ErrNotFound
	}
	profile, err := s.profiles.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("reload profile: %w", err)
	}
	if profile == nil {
		return nil, profiledomain.ErrNotFound
	}

	metadata := map[string]any{}
	if update.Role != nil {
		metadata["role"] = *update.Role
	}
	if update.SubscriptionStatus != nil {
		metadata["subscription_status"] = *update.SubscriptionStatus
	}
	s.audit(ctx, "user.update", userID, metadata)
	return profile, nil
}

// ManageUserStatus bans, suspends or unbans an account at the identity
// provider. Operators cannot target themselves.
func (s *Service) ManageUserStatus(ctx context.Context, actorID string, userID string, action string, durationDays *int) (*identity.User, error) {
	userID, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(strings.TrimSpace(actorID), userID) {
		return nil, ErrSelfTarget
	}

	action = strings.ToLower(strings.TrimSpace(action))
	var duration string
	metadata := map[string]any{"action": action}
	switch action {
	case ActionBan:
		duration = banForever
	case ActionSuspend:
		days := DefaultSuspendDays
		if durationDays != nil {
			days = *durationDays
		}
		if days <= 0 {
			return nil, ErrInvalidDuration
		}
		duration = fmt.Sprintf("%dh", days*24)
		metadata["duration_days"] = days
	case ActionUnban:
		duration = banLifted
	default:
		return nil, ErrInvalidAction
	}

	user, err := s.identity.SetBanDuration(ctx, userID, duration)
	if err != nil {
		return nil, err
	}
	s.log.Info("user status changed",
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.String("ban_duration", duration),
	)
	s.audit(ctx, "user."+action, userID, metadata)
	return user, nil
}

func (s *Service) audit(ctx context.Context, action string, userID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, action, "user", &userID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func parseUserID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUserIDRequired
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrInvalidUserID
	}
	return id.String(), nil
}
