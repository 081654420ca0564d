package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestDuration) }

var httpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "api_request_duration_ms",
		Help:    "Projection API latency distribution in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"method", "route", "status"},
)

func ObserveHTTPRequest(method, route string, status int, latencyMs float64) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(latencyMs)
}
