// @title           natiweb API
// @version         1.0
// @description     Credits, keys, subscriptions and admin operations for the Nati website

// @BasePath  /api
// @Schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/natidev-sh/natiweb/internal/admin"
	"github.com/natidev-sh/natiweb/internal/apikey"
	"github.com/natidev-sh/natiweb/internal/audit"
	"github.com/natidev-sh/natiweb/internal/authorization"
	"github.com/natidev-sh/natiweb/internal/clock"
	"github.com/natidev-sh/natiweb/internal/config"
	"github.com/natidev-sh/natiweb/internal/coupon"
	"github.com/natidev-sh/natiweb/internal/credit"
	"github.com/natidev-sh/natiweb/internal/identity"
	"github.com/natidev-sh/natiweb/internal/metering"
	"github.com/natidev-sh/natiweb/internal/migration"
	"github.com/natidev-sh/natiweb/internal/observability"
	"github.com/natidev-sh/natiweb/internal/payment"
	"github.com/natidev-sh/natiweb/internal/profile"
	"github.com/natidev-sh/natiweb/internal/reconcile"
	"github.com/natidev-sh/natiweb/internal/seed"
	"github.com/natidev-sh/natiweb/internal/server"
	"github.com/natidev-sh/natiweb/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
			return migration.RunMigrations(conn, log)
		}),

		metering.Module,
		identity.Module,
		profile.Module,
		audit.Module,
		apikey.Module,
		credit.Module,
		payment.Module,
		coupon.Module,
		authorization.Module,
		admin.Module,
		seed.Module,
		reconcile.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
