// Package metrics provides counters, gauges and histograms exposed in the
// Prometheus text format (text/plain; version=0.0.4).
//
// Metrics belong to a Registry and are safe for concurrent use:
//
//	reg := metrics.NewRegistry()
//	requests := reg.NewCounter("interceptd_requests_total", "Intercepted requests", "outcome")
//	if vec, err := requests.WithLabels("respond"); err == nil {
//		vec.Inc()
//	}
//	http.Handle("/metrics", reg.Handler())
package metrics
