// Package metrics содержит метрики Prometheus конвейера покупок.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

// Metrics объединяет метрики сервиса. Методы безопасно вызывать на nil.
type Metrics struct {
	webhookEvents       *prometheus.CounterVec
	webhookDuration     prometheus.Histogram
	purchasesCreated    prometheus.Counter
	enrollmentAnomalies prometheus.Counter
	stalePending        prometheus.Gauge
}

// New создаёт и регистрирует метрики в reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by processing outcome and event type.",
		}, []string{"outcome", "type"}),
		webhookDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_processing_seconds",
			Help:      "Time taken to process a webhook delivery.",
			Buckets:   prometheus.DefBuckets,
		}),
		purchasesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_created_total",
			Help:      "Number of purchase intents created.",
		}),
		enrollmentAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_anomalies_total",
			Help:      "Enrollments linked for purchases that another delivery already made terminal.",
		}),
		stalePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_pending_purchases",
			Help:      "Pending purchases older than the configured threshold.",
		}),
	}

	collectors := []prometheus.Collector{
		m.webhookEvents,
		m.webhookDuration,
		m.purchasesCreated,
		m.enrollmentAnomalies,
		m.stalePending,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return m, nil
}

// ObserveWebhook учитывает обработку одной доставки вебхука.
func (m *Metrics) ObserveWebhook(outcome, eventType string, took time.Duration) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome, eventType).Inc()
	m.webhookDuration.Observe(took.Seconds())
}

// PurchaseCreated учитывает созданную покупку.
func (m *Metrics) PurchaseCreated() {
	if m == nil {
		return
	}
	m.purchasesCreated.Inc()
}

// EnrollmentAnomaly учитывает связку, выполненную для уже завершённой покупки.
func (m *Metrics) EnrollmentAnomaly() {
	if m == nil {
		return
	}
	m.enrollmentAnomalies.Inc()
}

// SetStalePending выставляет число зависших покупок.
func (m *Metrics) SetStalePending(n int64) {
	if m == nil {
		return
	}
	m.stalePending.Set(float64(n))
}
