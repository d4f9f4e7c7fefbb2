package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/natidev-sh/natiweb/internal/clock"
	"github.com/natidev-sh/natiweb/internal/config"
	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidAdminID = errors.New("invalid_bootstrap_admin_id")

// EnsureAdminProfile makes userID an admin, creating its profile when the
// user has not signed in yet. Running it again is a no-op.
func EnsureAdminProfile(ctx context.Context, db *gorm.DB, profiles profiledomain.Repository, userID string, clk clock.Clock) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return ErrInvalidAdminID
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := clk.Now()
		if err := profiles.EnsureExists(ctx, tx, id.String(), profiledomain.RoleAdmin, now); err != nil {
			return err
		}
		profile, err := profiles.FindByID(ctx, tx, id.String())
		if err != nil {
			return err
		}
		if profile == nil {
			return profiledomain.ErrNotFound
		}
		if profile.Role == profiledomain.RoleAdmin {
			return nil
		}
		role := profiledomain.RoleAdmin
		_, err = profiles.ApplyUpdate(ctx, tx, id.String(), profiledomain.Update{Role: &role}, now)
		return err
	})
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Cfg      config.Config
	Log      *zap.Logger
	Profiles profiledomain.Repository
	Clock    clock.Clock
}

// Run seeds the bootstrap admin when one is configured.
func Run(p Params) error {
	userID := strings.TrimSpace(p.Cfg.Bootstrap.AdminUserID)
	if userID == "" {
		return nil
	}
	if err := EnsureAdminProfile(context.Background(), p.DB, p.Profiles, userID, p.Clock); err != nil {
		return err
	}
	p.Log.Info("bootstrap admin profile ensured", zap.String("user_id", userID))
	return nil
}

var Module = fx.Module("seed",
	fx.Invoke(Run),
)
