// Package metrics bundles the Prometheus collectors of a scraping run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	RecordsTotal    *prometheus.CounterVec
	FieldsMissing   *prometheus.CounterVec
	ExhaustedTotal  *prometheus.CounterVec
	SessionsOpen    prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_attempts_total",
			Help: "Task attempts by retailer and outcome.",
		},
		[]string{"retailer", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_attempt_duration_seconds",
			Help:    "Wall time of one task attempt, session setup to teardown.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"retailer"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Records handed to the sink.",
		},
		[]string{"retailer"},
	)
	missing := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fields_missing_total",
			Help: "Fields no selector could resolve.",
		},
		[]string{"retailer", "field"},
	)
	exhausted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_exhausted_total",
			Help: "Tasks that failed every attempt.",
		},
		[]string{"retailer"},
	)
	sessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_sessions_open",
			Help: "Browser sessions currently open.",
		},
	)

	registry.MustRegister(attempts, duration, records, missing, exhausted, sessions)

	return &Metrics{
		Registry:        registry,
		AttemptsTotal:   attempts,
		AttemptDuration: duration,
		RecordsTotal:    records,
		FieldsMissing:   missing,
		ExhaustedTotal:  exhausted,
		SessionsOpen:    sessions,
	}
}

func (m *Metrics) ObserveAttempt(retailer, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(retailer, outcome).Inc()
	m.AttemptDuration.WithLabelValues(retailer).Observe(d.Seconds())
}

func (m *Metrics) IncRecord(retailer string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(retailer).Inc()
}

func (m *Metrics) IncMissingField(retailer, field string) {
	if m == nil {
		return
	}
	m.FieldsMissing.WithLabelValues(retailer, field).Inc()
}

func (m *Metrics) IncExhausted(retailer string) {
	if m == nil {
		return
	}
	m.ExhaustedTotal.WithLabelValues(retailer).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpen.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsOpen.Dec()
}
