package metrics

import "github.com/prometheus/client_golang/prometheus"

// WizardMetrics exposes counters/histograms for the booking wizard and its
// practice API calls.
type WizardMetrics struct {
	transitions     *prometheus.CounterVec
	validation      *prometheus.CounterVec
	bookings        *prometheus.CounterVec
	stale           *prometheus.CounterVec
	practiceCalls   *prometheus.CounterVec
	practiceLatency *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
}

func NewWizardMetrics(reg prometheus.Registerer) *WizardMetrics {
	m := &WizardMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "wizard",
			Name:      "step_transitions_total",
			Help:      "Wizard step transitions",
		}, []string{"from", "to"}),
		validation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "wizard",
			Name:      "validation_failures_total",
			Help:      "Transitions blocked by a missing required field",
		}, []string{"step", "field"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "wizard",
			Name:      "bookings_total",
			Help:      "Booking submissions by outcome",
		}, []string{"outcome"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "wizard",
			Name:      "stale_responses_total",
			Help:      "Fetch results discarded because the selection changed",
		}, []string{"op"}),
		practiceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "practice",
			Name:      "calls_total",
			Help:      "Practice API calls by operation and outcome",
		}, []string{"op", "outcome"}),
		practiceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medspa",
			Subsystem: "practice",
			Name:      "call_latency_seconds",
			Help:      "Latency of practice API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status class",
		}, []string{"method", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.validation, m.bookings, m.stale, m.practiceCalls, m.practiceLatency, m.httpRequests)
	return m
}

func (m *WizardMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *WizardMetrics) ObserveValidationFailure(step, field string) {
	if m == nil {
		return
	}
	m.validation.WithLabelValues(step, field).Inc()
}

func (m *WizardMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *WizardMetrics) ObserveStaleResponse(op string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(op).Inc()
}

// ObservePracticeCall records one practice API call.
func (m *WizardMetrics) ObservePracticeCall(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.practiceCalls.WithLabelValues(op, outcome).Inc()
	m.practiceLatency.WithLabelValues(op).Observe(seconds)
}

// ObserveHTTPRequest counts a served request. status is collapsed to its class.
func (m *WizardMetrics) ObserveHTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
