package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natidev-sh/natiweb/internal/admin"
	apikeydomain "github.com/natidev-sh/natiweb/internal/apikey/domain"
	"github.com/natidev-sh/natiweb/internal/authorization"
	"github.com/natidev-sh/natiweb/internal/config"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	"github.com/natidev-sh/natiweb/internal/credit"
	"github.com/natidev-sh/natiweb/internal/identity"
	"github.com/natidev-sh/natiweb/internal/observability/logger"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	"github.com/natidev-sh/natiweb/internal/observability/tracing"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
	"github.com/rs/cors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	Metrics    *metrics.Metrics `optional:"true"`
	Verifier   identity.Verifier
	AuthzSvc   authorization.Service
	KeySvc     apikeydomain.Service
	CreditSvc  *credit.Service
	PaymentSvc paymentdomain.Service
	CouponSvc  coupondomain.Service
	AdminSvc   *admin.Service
}

type Server struct {
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	metrics    *metrics.Metrics
	verifier   identity.Verifier
	authzSvc   authorization.Service
	keySvc     apikeydomain.Service
	creditSvc  *credit.Service
	paymentSvc paymentdomain.Service
	couponSvc  coupondomain.Service
	adminSvc   *admin.Service

	engine         *gin.Engine
	desktopLimiter *rateLimiter
}

func NewServer(p Params) *Server {
	limit := p.Cfg.DesktopRateLimit
	if limit <= 0 {
		limit = 60
	}
	s := &Server{
		cfg:            p.Cfg,
		log:            p.Log.Named("http"),
		db:             p.DB,
		metrics:        p.Metrics,
		verifier:       p.Verifier,
		authzSvc:       p.AuthzSvc,
		keySvc:         p.KeySvc,
		creditSvc:      p.CreditSvc,
		paymentSvc:     p.PaymentSvc,
		couponSvc:      p.CouponSvc,
		adminSvc:       p.AdminSvc,
		desktopLimiter: newRateLimiter(limit, time.Minute),
	}
	s.engine = s.newEngine()
	s.RegisterRoutes()
	return s
}

func (s *Server) newEngine() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		logger.GinMiddleware(logger.MiddlewareConfig{
			Logger:    s.log,
			SkipPaths: []string{"/healthz", "/metrics"},
		}),
		tracing.GinMiddleware(),
		metrics.GinMiddleware(s.metrics),
	)
	return r
}

func (s *Server) RegisterRoutes() {
	r := s.engine
	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.POST("/webhooks/stripe", s.StripeWebhook)
	api.POST("/credits/desktop", s.DesktopRateLimit(), s.DesktopCredits)

	user := api.Group("", s.RequireUser())
	user.POST("/keys", s.IssueKey)
	user.POST("/keys/usage", s.KeyUsage)
	user.GET("/credits", s.GetCredits)
	user.POST("/checkout", s.CreateCheckout)

	adminGroup := user.Group("/admin", s.RequireRole(roleAdmin))
	adminGroup.GET("/coupons", s.ListCoupons)
	adminGroup.POST("/coupons", s.CreateCoupon)
	adminGroup.POST("/coupons/deactivate", s.DeactivateCoupon)
	adminGroup.GET("/profiles", s.ListProfiles)
	adminGroup.POST("/users/details", s.GetUserDetails)
	adminGroup.POST("/users/update", s.UpdateUserDetails)
	adminGroup.POST("/users/status", s.ManageUserStatus)
}

// Handler is the engine wrapped with CORS for the website origins.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.CORSAllowedOrigins
	if len(origins) == 0 && s.cfg.SiteURL != "" {
		origins = []string{s.cfg.SiteURL}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Authorization", headerDesktopAPIKey, logger.HeaderRequestID},
		ExposedHeaders:   []string{logger.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	})
	return c.Handler(s.engine)
}

// @Summary      Health
// @Description  Liveness and database reachability
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func (s *Server) Health(c *gin.Context) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			s.log.Warn("health check database ping failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunHTTP binds the listener on start and drains it on stop.
func RunHTTP(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)
