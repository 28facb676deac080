package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "sessions_issued_total",
		Help:      "QR attendance sessions opened by teachers.",
	})

	SessionsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "sessions_superseded_total",
		Help:      "Open sessions closed because the teacher issued a new one.",
	})

	SessionsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "sessions_timed_out_total",
		Help:      "Sessions closed on first access after their expiry.",
	})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "redemptions_total",
		Help:      "Token redemptions by outcome.",
	}, []string{"outcome"})

	RedemptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "redemption_duration_seconds",
		Help:      "Time spent validating and recording a redemption.",
		Buckets:   prometheus.DefBuckets,
	})
)

// ObserveRedemption records one redemption attempt.
func ObserveRedemption(outcome string, took time.Duration) {
	Redemptions.WithLabelValues(outcome).Inc()
	RedemptionDuration.Observe(took.Seconds())
}
