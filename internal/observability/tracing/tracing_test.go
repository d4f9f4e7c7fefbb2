package tracing

import (
	"testing"

	"github.com/natidev-sh/natiweb/internal/config"
	"go.uber.org/zap"
)

func TestNewProviderDisabledReturnsNil(t *testing.T) {
	provider, err := NewProvider(nil, config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider != nil {
		t.Fatalf("expected nil provider when tracing is disabled")
	}
}

func TestNewProviderRejectsUnknownProtocol(t *testing.T) {
	cfg := config.Config{Tracing: config.TracingConfig{Enabled: true, ExporterProtocol: "zipkin"}}
	if _, err := NewProvider(nil, cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unsupported protocol")
	}
}

func TestSamplingRatio(t *testing.T) {
	cases := map[float64]float64{0: defaultSamplingRatio, -1: defaultSamplingRatio, 0.5: 0.5, 3: 1}
	for in, want := range cases {
		if got := samplingRatio(in); got != want {
			t.Fatalf("samplingRatio(%v) = %v, want %v", in, got, want)
		}
	}
}
