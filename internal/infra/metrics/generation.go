package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(generationCallLatencyMs) }

var generationCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "generation_call_latency_ms",
		Help:    "Generation service HTTP call latency in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
	},
	[]string{"endpoint", "success"},
)

func ObserveGenerationCall(endpoint string, latencyMs int, success bool) {
	generationCallLatencyMs.WithLabelValues(norm(endpoint), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
