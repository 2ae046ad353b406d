package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "clinic"
	subsystem = "checkout"
)

// CheckoutMetrics exposes counters/histograms for the checkout completion flow.
type CheckoutMetrics struct {
	verifyAttempts  *prometheus.CounterVec
	verifyOutcomes  *prometheus.CounterVec
	verifyDuration  *prometheus.HistogramVec
	finalizations   *prometheus.CounterVec
	terminalStates  *prometheus.CounterVec
	flowTransitions *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	m := &CheckoutMetrics{
		verifyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verification_attempts_total",
			Help:      "Gateway status checks made while verifying payment",
		}, []string{"result"}),
		verifyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verifications_total",
			Help:      "Completed payment verifications by outcome",
		}, []string{"outcome"}),
		verifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verification_duration_seconds",
			Help:      "Wall time from first wait to a verification outcome",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		}, []string{"outcome"}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "finalizations_total",
			Help:      "Booking finalizations by result",
		}, []string{"result"}),
		terminalStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flows_terminal_total",
			Help:      "Checkout flows reaching a terminal state",
		}, []string{"state", "reason"}),
		flowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flow_transitions_total",
			Help:      "State machine transitions",
		}, []string{"from", "to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.verifyAttempts, m.verifyOutcomes, m.verifyDuration, m.finalizations, m.terminalStates, m.flowTransitions)
	return m
}

// ObserveVerificationAttempt records one gateway check: confirmed, pending, transient_error or error.
func (m *CheckoutMetrics) ObserveVerificationAttempt(result string) {
	if m == nil {
		return
	}
	m.verifyAttempts.WithLabelValues(result).Inc()
}

func (m *CheckoutMetrics) ObserveVerification(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verifyOutcomes.WithLabelValues(outcome).Inc()
	m.verifyDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveFinalization records created, existing, failed or partial.
func (m *CheckoutMetrics) ObserveFinalization(result string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(result).Inc()
}

func (m *CheckoutMetrics) ObserveTerminal(state, reason string) {
	if m == nil {
		return
	}
	m.terminalStates.WithLabelValues(state, reason).Inc()
}

func (m *CheckoutMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.flowTransitions.WithLabelValues(from, to).Inc()
}
