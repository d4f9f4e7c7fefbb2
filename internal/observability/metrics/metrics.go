package metrics

import (
	"strings"
	"time"

	"github.com/natidev-sh/natiweb/internal/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the workflow instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	httpDuration     *prometheus.HistogramVec
	webhookEvents    *prometheus.CounterVec
	keyIssuances     *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	sweepCompensated prometheus.Counter
	sweepPending     prometheus.Gauge
}

// New registers the instruments on the default registerer.
func New(cfg config.Config) *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

func NewWithRegisterer(registerer prometheus.Registerer, cfg config.Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "natiweb"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "natiweb_http_request_duration_seconds",
				Help:        "HTTP request latency by route and status.",
				Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				ConstLabels: constLabels,
			},
			[]string{"route", "status"},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "natiweb_payment_webhook_events_total",
				Help:        "Payment webhook events by type and result.",
				ConstLabels: constLabels,
			},
			[]string{"event_type", "result"}, // processed | duplicate | ignored | failed | rejected
		),
		keyIssuances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "natiweb_key_issuances_total",
				Help:        "Metered key issuance attempts by result.",
				ConstLabels: constLabels,
			},
			[]string{"result"}, // issued | upstream_error | persist_error
		),
		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "natiweb_upstream_failures_total",
				Help:        "Failed calls to external services.",
				ConstLabels: constLabels,
			},
			[]string{"service", "operation"},
		),
		sweepCompensated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "natiweb_orphan_keys_compensated_total",
				Help:        "Orphaned upstream keys deleted by the sweep.",
				ConstLabels: constLabels,
			},
		),
		sweepPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "natiweb_orphan_sweep_pending",
				Help:        "Stale pending issuances seen by the last sweep.",
				ConstLabels: constLabels,
			},
		),
	}

	registerer.MustRegister(
		m.httpDuration,
		m.webhookEvents,
		m.keyIssuances,
		m.upstreamFailures,
		m.sweepCompensated,
		m.sweepPending,
	)
	return m
}

func (m *Metrics) ObserveHTTP(route string, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, status).Observe(elapsed.Seconds())
}

func (m *Metrics) IncWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) IncKeyIssuance(result string) {
	if m == nil {
		return
	}
	m.keyIssuances.WithLabelValues(result).Inc()
}

func (m *Metrics) IncUpstreamFailure(service, operation string) {
	if m == nil {
		return
	}
	m.upstreamFailures.WithLabelValues(service, operation).Inc()
}

func (m *Metrics) AddCompensated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepCompensated.Add(float64(n))
}

func (m *Metrics) SetSweepPending(n int) {
	if m == nil {
		return
	}
	m.sweepPending.Set(float64(n))
}
