package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/rewardrunner/models"
)

var (
	attemptsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardrunner",
		Subsystem: "activity",
		Name:      "attempts_total",
		Help:      "Number of activities started, by kind.",
	}, []string{"kind"})

	successCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardrunner",
		Subsystem: "activity",
		Name:      "successes_total",
		Help:      "Number of activities completed successfully, by kind.",
	}, []string{"kind"})

	failureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardrunner",
		Subsystem: "activity",
		Name:      "failures_total",
		Help:      "Number of activities that failed, by kind and error code.",
	}, []string{"kind", "code"})

	durationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rewardrunner",
		Subsystem: "activity",
		Name:      "duration_seconds",
		Help:      "Time spent per finished activity, including retries.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	throttleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rewardrunner",
		Subsystem: "throttle",
		Name:      "multiplier",
		Help:      "Current adaptive throttle multiplier.",
	})
)

func init() {
	prometheus.MustRegister(attemptsCounter, successCounter, failureCounter, durationHistogram, throttleGauge)
}

func recordAttempt(kind models.Kind) {
	attemptsCounter.WithLabelValues(string(kind)).Inc()
}

func recordSuccess(kind models.Kind, d time.Duration) {
	successCounter.WithLabelValues(string(kind)).Inc()
	durationHistogram.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func recordFailure(kind models.Kind, code string, d time.Duration) {
	failureCounter.WithLabelValues(string(kind), code).Inc()
	durationHistogram.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func recordMultiplier(m float64) {
	throttleGauge.Set(m)
}
