package observability

import (
	"github.com/natidev-sh/natiweb/internal/observability/logger"
	"github.com/natidev-sh/natiweb/internal/observability/metrics"
	"github.com/natidev-sh/natiweb/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	logger.Module,
	fx.Provide(metrics.New),
	fx.Provide(tracing.NewProvider),
	// Forces provider construction so the global tracer is installed at boot.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
