// Package metrics exposes watchdog state for Prometheus scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/watchdog/internal/domain"
)

const namespace = "watchdog"

const (
	LabelService = "service"
	LabelOutcome = "outcome"
	LabelStatus  = "status"
	LabelChannel = "channel"
	LabelPeriod  = "period"
	LabelReason  = "reason"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	status        *prometheus.GaugeVec
	failures      *prometheus.GaugeVec
	latency       *prometheus.GaugeVec
	services      *prometheus.GaugeVec
	escalation    *prometheus.GaugeVec
	uptime        *prometheus.GaugeVec
	checks        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	recovery      *prometheus.CounterVec
	tickDuration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "status",
			Help: "Service status: 1 healthy, 0 degraded, -1 critical. Absent while unknown.",
		}, []string{LabelService}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "consecutive_failures",
			Help: "Current streak of non healthy results.",
		}, []string{LabelService}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "latency_seconds",
			Help: "Latency of the last check.",
		}, []string{LabelService}),
		services: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "services",
			Help: "Number of services per status.",
		}, []string{LabelStatus}),
		escalation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "escalation_level",
			Help: "Current escalation level, 0 when none.",
		}, []string{LabelService}),
		uptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "uptime_ratio",
			Help: "Availability of the current day, week and month bucket.",
		}, []string{LabelService, LabelPeriod}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checks_total",
			Help: "Completed checks by outcome.",
		}, []string{LabelService, LabelOutcome}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checks_skipped_total",
			Help: "Checks not started because the previous one was still running.",
		}, []string{LabelService}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Notification deliveries by channel and outcome.",
		}, []string{LabelChannel, LabelOutcome}),
		recovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "recovery_actions_total",
			Help: "Recovery actions by outcome.",
		}, []string{LabelService, LabelOutcome}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time from tick start until every result was processed.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	m.reg.MustRegister(
		m.status, m.failures, m.latency, m.services, m.escalation, m.uptime,
		m.checks, m.skipped, m.notifications, m.recovery, m.tickDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveState updates the per service gauges after a result was applied.
func (m *Metrics) ObserveState(st domain.ServiceState) {
	if code, ok := st.Status.Code(); ok {
		m.status.WithLabelValues(st.Name).Set(code)
	} else {
		m.status.DeleteLabelValues(st.Name)
	}
	m.failures.WithLabelValues(st.Name).Set(float64(st.ConsecutiveFailures))
	m.latency.WithLabelValues(st.Name).Set(st.LastResult.Latency.Seconds())
	m.checks.WithLabelValues(st.Name, st.LastResult.Outcome.String()).Inc()
}

// SetCounts publishes the number of services per status.
func (m *Metrics) SetCounts(counts map[domain.Status]int) {
	for _, s := range []domain.Status{domain.StatusUnknown, domain.StatusHealthy, domain.StatusDegraded, domain.StatusCritical} {
		m.services.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

func (m *Metrics) SetEscalationLevel(service string, level int) {
	m.escalation.WithLabelValues(service).Set(float64(level))
}

func (m *Metrics) SetUptime(service string, period domain.Period, ratio float64) {
	m.uptime.WithLabelValues(service, string(period)).Set(ratio)
}

func (m *Metrics) CheckSkipped(service string) {
	m.skipped.WithLabelValues(service).Inc()
}

func (m *Metrics) Notification(channel, outcome string) {
	m.notifications.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) RecoveryAction(service string, outcome domain.RecoveryOutcome) {
	m.recovery.WithLabelValues(service, string(outcome)).Inc()
}

func (m *Metrics) TickDuration(d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
}

// Forget removes every series of a service dropped from the catalogue.
func (m *Metrics) Forget(service string) {
	labels := prometheus.Labels{LabelService: service}
	m.status.DeletePartialMatch(labels)
	m.failures.DeletePartialMatch(labels)
	m.latency.DeletePartialMatch(labels)
	m.escalation.DeletePartialMatch(labels)
	m.uptime.DeletePartialMatch(labels)
	m.checks.DeletePartialMatch(labels)
	m.skipped.DeletePartialMatch(labels)
	m.recovery.DeletePartialMatch(labels)
}
