package handler

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutd",
			Subsystem: "handler",
			Name:      "requests_total",
			Help:      "Total handler invocations by outcome",
		},
		[]string{"outcome"},
	)

	generationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scoutd",
			Subsystem: "handler",
			Name:      "generation_seconds",
			Help:      "Wall time of the delegate generation call",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	tokenizationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scoutd",
			Subsystem: "handler",
			Name:      "tokenization_seconds",
			Help:      "Wall time of prompt tokenization",
			Buckets:   prometheus.DefBuckets,
		},
	)

	tokensGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scoutd",
			Subsystem: "handler",
			Name:      "tokens_generated_total",
			Help:      "Total tokens generated across requests",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, generationSeconds, tokenizationSeconds, tokensGeneratedTotal)
}
