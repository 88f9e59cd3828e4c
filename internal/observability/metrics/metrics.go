package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every series.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures webhook pipeline health signals.
type Metrics struct {
	webhookResults    *prometheus.CounterVec
	webhookDuplicates prometheus.Counter
	signatureRejects  prometheus.Counter
	orderLockWait     prometheus.Histogram
	jobRuns           *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	notifications     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	return WithConfig(Config{})
}

// WithConfig returns the singleton metrics registry using config labels.
func WithConfig(cfg Config) *Metrics {
	metricsOnce.Do(func() {
		metricsInst = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return metricsInst
}

// ResetForTest resets the metrics singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metricsInst = nil
}

func newMetrics(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "boloastro-payments"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	webhookResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payments_webhook_events_total",
		Help:        "Webhook events processed by type and outcome.",
		ConstLabels: constLabels,
	}, []string{"event_type", "result"})
	webhookDuplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "payments_webhook_duplicates_total",
		Help:        "Webhook deliveries suppressed by the event ledger.",
		ConstLabels: constLabels,
	})
	signatureRejects := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "payments_webhook_signature_rejects_total",
		Help:        "Webhook deliveries rejected for bad or missing signatures.",
		ConstLabels: constLabels,
	})
	orderLockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "payments_order_lock_wait_seconds",
		Help:        "Wait time for the SELECT FOR UPDATE order row lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payments_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payments_scheduler_job_errors_total",
		Help:        "Scheduler job errors by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "payments_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"job"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payments_notifications_total",
		Help:        "Notification dispatch attempts by kind and status.",
		ConstLabels: constLabels,
	}, []string{"kind", "status"})

	registerer.MustRegister(
		webhookResults,
		webhookDuplicates,
		signatureRejects,
		orderLockWait,
		jobRuns,
		jobErrors,
		jobDuration,
		notifications,
	)

	return &Metrics{
		webhookResults:    webhookResults,
		webhookDuplicates: webhookDuplicates,
		signatureRejects:  signatureRejects,
		orderLockWait:     orderLockWait,
		jobRuns:           jobRuns,
		jobErrors:         jobErrors,
		jobDuration:       jobDuration,
		notifications:     notifications,
	}
}

func (m *Metrics) ObserveWebhookResult(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookResults.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.webhookDuplicates.Inc()
}

func (m *Metrics) ObserveSignatureReject() {
	if m == nil {
		return
	}
	m.signatureRejects.Inc()
}

func (m *Metrics) ObserveOrderLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.orderLockWait.Observe(d.Seconds())
}

func (m *Metrics) ObserveJobRun(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	if err != nil {
		m.jobErrors.WithLabelValues(job).Inc()
	}
}

func (m *Metrics) ObserveNotification(kind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}
