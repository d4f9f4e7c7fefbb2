package authorization

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Profiles profiledomain.Repository
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	profiles profiledomain.Repository
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		profiles: p.Profiles,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID string, role string) error {
	userID = strings.TrimSpace(userID)
	if _, err := uuid.Parse(userID); err != nil {
		return ErrInvalidActor
	}
	if !profiledomain.ValidRole(role) {
		return ErrInvalidRole
	}

	profile, err := s.profiles.FindByID(ctx, s.db, userID)
	if err != nil {
		return fmt.Errorf("load profile role: %w", err)
	}
	if profile == nil {
		s.log.Debug("authorization denied: no profile", zap.String("user_id", userID), zap.String("role", role))
		return ErrForbidden
	}
	if profile.Role != role {
		s.log.Debug("authorization denied",
			zap.String("user_id", userID),
			zap.String("role", role),
			zap.String("actual_role", profile.Role),
		)
		return ErrForbidden
	}
	return nil
}
