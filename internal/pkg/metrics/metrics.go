package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const maxLabelLen = 64

// sanitizeLabel keeps label values short and non-empty.
func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// LedgerMetrics holds the Prometheus instruments for authorizations, refunds,
// webhook intake and outbound dispatch.
type LedgerMetrics struct {
	authorizations   *prometheus.CounterVec
	creditsDebited   *prometheus.CounterVec
	creditsRefunded  prometheus.Counter
	creditsRecharged prometheus.Counter
	intakeDeliveries *prometheus.CounterVec
	dispatchAttempts *prometheus.CounterVec
	dispatchOutcomes *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
}

var (
	ledgerMetricsInstance *LedgerMetrics
	ledgerMetricsOnce     sync.Once
)

// Get returns the process-wide metrics instance.
func Get() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetricsInstance = newLedgerMetrics()
	})
	return ledgerMetricsInstance
}

func newLedgerMetrics() *LedgerMetrics {
	m := &LedgerMetrics{
		authorizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditgate",
				Subsystem: "billing",
				Name:      "authorizations_total",
				Help:      "Authorization attempts by action type and outcome",
			},
			[]string{"action", "outcome"},
		),
		creditsDebited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditgate",
				Subsystem: "billing",
				Name:      "credits_debited_total",
				Help:      "Credits debited by action type",
			},
			[]string{"action"},
		),
		creditsRefunded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "creditgate",
				Subsystem: "billing",
				Name:      "credits_refunded_total",
				Help:      "Credits returned by refunds",
			},
		),
		creditsRecharged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "creditgate",
				Subsystem: "billing",
				Name:      "credits_recharged_total",
				Help:      "Credits added by recharges",
			},
		),
		intakeDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditgate",
				Subsystem: "intake",
				Name:      "deliveries_total",
				Help:      "Incoming webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		dispatchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditgate",
				Subsystem: "dispatch",
				Name:      "attempts_total",
				Help:      "Outbound delivery attempts by destination type and result",
			},
			[]string{"destination", "result"},
		),
		dispatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditgate",
				Subsystem: "dispatch",
				Name:      "outcomes_total",
				Help:      "Terminal dispatch outcomes",
			},
			[]string{"outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "creditgate",
				Subsystem: "dispatch",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of single outbound delivery attempts",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"destination"},
		),
	}

	prometheus.MustRegister(
		m.authorizations,
		m.creditsDebited,
		m.creditsRefunded,
		m.creditsRecharged,
		m.intakeDeliveries,
		m.dispatchAttempts,
		m.dispatchOutcomes,
		m.dispatchDuration,
	)

	return m
}

// RecordAuthorization counts an authorization attempt. outcome is "allowed"
// or the denial reason.
func (m *LedgerMetrics) RecordAuthorization(action, outcome string, cost int64) {
	m.authorizations.WithLabelValues(sanitizeLabel(action), sanitizeLabel(outcome)).Inc()
	if outcome == "allowed" && cost > 0 {
		m.creditsDebited.WithLabelValues(sanitizeLabel(action)).Add(float64(cost))
	}
}

// RecordRefund counts credits returned to a workspace.
func (m *LedgerMetrics) RecordRefund(credits int64) {
	if credits > 0 {
		m.creditsRefunded.Add(float64(credits))
	}
}

// RecordRecharge counts credits added to a workspace.
func (m *LedgerMetrics) RecordRecharge(credits int64) {
	if credits > 0 {
		m.creditsRecharged.Add(float64(credits))
	}
}

// RecordIntake counts an incoming webhook delivery by outcome.
func (m *LedgerMetrics) RecordIntake(outcome string) {
	m.intakeDeliveries.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

// RecordDispatchAttempt records one outbound HTTP attempt.
func (m *LedgerMetrics) RecordDispatchAttempt(destination string, success bool, took time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	m.dispatchAttempts.WithLabelValues(sanitizeLabel(destination), result).Inc()
	m.dispatchDuration.WithLabelValues(sanitizeLabel(destination)).Observe(took.Seconds())
}

// RecordDispatchOutcome records how a dispatch sequence ended.
func (m *LedgerMetrics) RecordDispatchOutcome(outcome string) {
	m.dispatchOutcomes.WithLabelValues(sanitizeLabel(outcome)).Inc()
}
