package metrics

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("http_requests", "Total HTTP requests", "method", "status")

	for _, lv := range [][]string{{"GET", "200"}, {"GET", "200"}, {"POST", "201"}} {
		vec, err := c.WithLabels(lv...)
		require.NoError(t, err)
		vec.Inc()
	}
	vec, err := c.WithLabels("POST", "201")
	require.NoError(t, err)
	vec.Add(4)
	vec.Add(-10)

	found := map[string]float64{}
	for _, s := range c.Collect() {
		found[s.Labels["method"]+"_"+s.Labels["status"]] = s.Value
	}
	assert.Equal(t, map[string]float64{"GET_200": 2, "POST_201": 5}, found)

	_, err = c.WithLabels("GET")
	assert.ErrorIs(t, err, ErrLabelCountMismatch)
	assert.ErrorIs(t, c.Inc(), ErrLabelCountMismatch)

	plain := r.NewCounter("plain_total", "No labels")
	require.NoError(t, plain.Inc())
	assert.Equal(t, []Sample{{Name: "plain_total", Labels: map[string]string{}, Value: 1}}, plain.Collect())
}

func TestGauge(t *testing.T) {
	g := NewRegistry().NewGauge("sessions", "Open sessions")
	g.Inc()
	g.Inc()
	g.Dec()
	assert.InDelta(t, 1, g.Value(), 0)
	g.Set(7.5)
	assert.Equal(t, []Sample{{Name: "sessions", Value: 7.5}}, g.Collect())
}

func TestHistogram(t *testing.T) {
	h := NewRegistry().NewHistogram("latency", "Latency", []float64{1, 0.1}, "route")
	vec, err := h.WithLabels("/a")
	require.NoError(t, err)
	for _, v := range []float64{0.0625, 0.5, 0.75, 3} {
		vec.Observe(v)
	}

	got := map[string]float64{}
	for _, s := range h.Collect() {
		got[s.Name+"|"+s.Labels["le"]] = s.Value
		assert.Equal(t, "/a", s.Labels["route"])
	}
	assert.Equal(t, map[string]float64{
		"latency_bucket|0.1":  1,
		"latency_bucket|1":    3,
		"latency_bucket|+Inf": 4,
		"latency_sum|":        4.3125,
		"latency_count|":      4,
	}, got)
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("requests_total", "Requests\nby outcome", "outcome")
	r.NewCounter("unused_total", "Never incremented", "x")
	g := r.NewGauge("active", "Active")

	vec, err := c.WithLabels(`say "hi"`)
	require.NoError(t, err)
	vec.Inc()
	g.Set(2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, "text/plain; version=0.0.4; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, strings.Join([]string{
		`# HELP requests_total Requests\nby outcome`,
		`# TYPE requests_total counter`,
		`requests_total{outcome="say \"hi\""} 1`,
		`# HELP active Active`,
		`# TYPE active gauge`,
		`active 2`,
		``,
	}, "\n"), rec.Body.String())
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.NewGauge("dup", "first")
	assert.Panics(t, func() { r.NewCounter("dup", "second") })
}

func TestConcurrency(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("c", "c", "k")
	h := r.NewHistogram("h", "h", DefaultBuckets)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			for range 100 {
				vec, _ := c.WithLabels([]string{"a", "b"}[i%2])
				vec.Inc()
				hv, _ := h.WithLabels()
				hv.Observe(0.01)
			}
		})
	}
	wg.Wait()

	var total float64
	for _, s := range c.Collect() {
		total += s.Value
	}
	assert.InDelta(t, 5000, total, 0)
	samples := h.Collect()
	assert.InDelta(t, 5000, samples[len(samples)-1].Value, 0)
}

func TestFormatFloat(t *testing.T) {
	tests := map[string]float64{
		"0":     0,
		"1.5":   1.5,
		"1e+21": 1e21,
		"+Inf":  math.Inf(1),
		"-Inf":  math.Inf(-1),
		"NaN":   math.NaN(),
	}
	for want, v := range tests {
		assert.Equal(t, want, formatFloat(v))
	}
}
