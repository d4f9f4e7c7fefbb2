package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/natidev-sh/natiweb/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg, config.Config{ServiceName: "natiweb", Environment: "test"})

	m.IncWebhookEvent("checkout.session.completed", "processed")
	m.IncWebhookEvent("checkout.session.completed", "processed")
	m.IncKeyIssuance("issued")
	m.AddCompensated(3)

	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("checkout.session.completed", "processed")); got != 2 {
		t.Fatalf("expected 2 webhook events, got %v", got)
	}
	if got := testutil.ToFloat64(m.keyIssuances.WithLabelValues("issued")); got != 1 {
		t.Fatalf("expected 1 issuance, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweepCompensated); got != 3 {
		t.Fatalf("expected 3 compensated, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncWebhookEvent("x", "y")
	m.IncKeyIssuance("issued")
	m.IncUpstreamFailure("metering", "key_generate")
	m.SetSweepPending(1)
}

func TestGinMiddlewareObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg, config.Config{})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := testutil.CollectAndCount(m.httpDuration); got != 1 {
		t.Fatalf("expected 1 series, got %d", got)
	}
}
