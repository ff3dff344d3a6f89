package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	relayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "readme_relay_requests_total", Help: "Generation requests by final outcome"},
		[]string{"transport", "outcome"},
	)
	relayInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "readme_relay_inflight", Help: "Relays currently streaming to a client"},
	)
	relayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readme_relay_duration_seconds",
			Help:    "Time from upstream request to end of relay",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"state"},
	)
	relayChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "readme_relay_chunks_total", Help: "Fragments forwarded to clients"},
	)
	relayBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "readme_relay_bytes_total", Help: "Fragment bytes forwarded to clients"},
	)
	skippedLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "readme_relay_skipped_lines_total", Help: "Upstream event lines skipped by the decoder"},
		[]string{"reason"},
	)
	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "readme_relay_rate_limited_total", Help: "Requests rejected by the rate limiter"},
		[]string{"key"},
	)
)

// Register registers every relay collector with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		relayRequestsTotal,
		relayInflight,
		relayDuration,
		relayChunksTotal,
		relayBytesTotal,
		skippedLinesTotal,
		rateLimitedTotal,
	)
}

func RecordRequest(transport, outcome string) {
	relayRequestsTotal.WithLabelValues(transport, outcome).Inc()
}

func RecordStart() {
	relayInflight.Inc()
}

func RecordEnd(state string, dur time.Duration, chunks, bytes int) {
	relayInflight.Dec()
	relayDuration.WithLabelValues(state).Observe(dur.Seconds())
	if chunks > 0 {
		relayChunksTotal.Add(float64(chunks))
	}
	if bytes > 0 {
		relayBytesTotal.Add(float64(bytes))
	}
}

func RecordSkippedLine(reason string) {
	skippedLinesTotal.WithLabelValues(reason).Inc()
}

func RecordRateLimited(key string) {
	rateLimitedTotal.WithLabelValues(key).Inc()
}
