// Package reconcile runs the background sweep that removes gateway keys
// whose local record was never written.
package reconcile

import (
	"context"
	"errors"
	"time"

	apikeydomain "github.com/natidev-sh/natiweb/internal/apikey/domain"
	"github.com/natidev-sh/natiweb/internal/clock"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	obsctx "github.com/natidev-sh/natiweb/internal/observability/context"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Keys    apikeydomain.Service
	Coupons coupondomain.Repository
	Config  Config
	Metrics *metrics.Metrics `optional:"true"`
	Clock   clock.Clock
}

type Worker struct {
	db      *gorm.DB
	log     *zap.Logger
	keys    apikeydomain.Service
	coupons coupondomain.Repository
	cfg     Config
	metrics *metrics.Metrics
	clock   clock.Clock
}

// Report summarizes one sweep pass.
type Report struct {
	Keys           apikeydomain.SweepResult
	PendingCoupons int
}

func NewWorker(p Params) *Worker {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Worker{
		db:      p.DB,
		log:     p.Log.Named("reconcile.sweep"),
		keys:    p.Keys,
		coupons: p.Coupons,
		cfg:     p.Config.withDefaults(),
		metrics: p.Metrics,
		clock:   c,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("orphan sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) (Report, error) {
	if w.keys == nil {
		return Report{}, errors.New("sweep_worker_unavailable")
	}
	ctx, cancel := context.WithTimeout(obsctx.WithActor(ctx, obsctx.ActorTypeSystem, "reconcile"), w.cfg.RunTimeout)
	defer cancel()

	cutoff := w.clock.Now().Add(-w.cfg.Grace)
	var report Report

	result, err := w.keys.CompensateStale(ctx, cutoff, w.cfg.BatchSize)
	report.Keys = result
	w.metrics.SetSweepPending(result.Scanned - result.Compensated - result.GaveUp)
	if err != nil {
		return report, err
	}
	if result.Scanned > 0 {
		w.log.Info("orphan sweep compensated keys",
			zap.Int("scanned", result.Scanned),
			zap.Int("compensated", result.Compensated),
			zap.Int("failed", result.Failed),
			zap.Int("gave_up", result.GaveUp),
		)
	}

	if w.coupons != nil && w.db != nil {
		stale, err := w.coupons.ListStalePending(ctx, w.db, cutoff, w.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		report.PendingCoupons = len(stale)
		for _, coupon := range stale {
			w.log.Warn("coupon stuck pending; retry creation with the same code",
				zap.String("code", coupon.Code),
				zap.String("coupon_db_id", coupon.ID.String()),
				zap.Time("created_at", coupon.CreatedAt),
			)
		}
	}
	return report, nil
}
