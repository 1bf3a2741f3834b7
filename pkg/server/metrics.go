package server

import (
	"strconv"
	"time"

	"github.com/getmockd/interceptd/pkg/metrics"
)

// MetricsPath serves server metrics in the Prometheus text format.
const MetricsPath = "/__interceptd/metrics"

// Request outcomes that never reach a handler registry.
const (
	outcomeUnknownSession = "unknown_session"
	outcomeInvalid        = "invalid"
	outcomeError          = "error"
)

type serverMetrics struct {
	registry *metrics.Registry

	sessionsActive  *metrics.Gauge
	sessionsTotal   *metrics.Counter
	requestsTotal   *metrics.Counter
	requestDuration *metrics.Histogram
}

func newServerMetrics() *serverMetrics {
	reg := metrics.NewRegistry()
	return &serverMetrics{
		registry:        reg,
		sessionsActive:  reg.NewGauge("interceptd_sessions_active", "Number of open interceptor sessions"),
		sessionsTotal:   reg.NewCounter("interceptd_sessions_total", "Total number of interceptor sessions opened"),
		requestsTotal:   reg.NewCounter("interceptd_requests_total", "Total number of intercepted requests", "outcome", "handled"),
		requestDuration: reg.NewHistogram("interceptd_request_duration_seconds", "Time to evaluate an intercepted request", metrics.DefaultBuckets, "outcome"),
	}
}

func (m *serverMetrics) sessionOpened() {
	m.sessionsActive.Inc()
	_ = m.sessionsTotal.Inc()
}

func (m *serverMetrics) sessionClosed() {
	m.sessionsActive.Dec()
}

func (m *serverMetrics) observeRequest(outcome string, handled bool, start time.Time) {
	if vec, err := m.requestsTotal.WithLabels(outcome, strconv.FormatBool(handled)); err == nil {
		vec.Inc()
	}
	if vec, err := m.requestDuration.WithLabels(outcome); err == nil {
		vec.Observe(time.Since(start).Seconds())
	}
}
