package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful fetches and submissions.
	OutcomeSuccess = "success"
	// OutcomeError labels failed fetches and submissions.
	OutcomeError = "error"
	// OutcomeRejected labels submissions stopped before the network (validation or in-flight).
	OutcomeRejected = "rejected"
)

const namespace = "atia_dashboard"

var (
	pollTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_total",
			Help:      "Completed synchronizer fetches, partitioned by stream and outcome.",
		},
		[]string{"stream", "outcome"},
	)

	pollSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_skipped_total",
			Help:      "Ticks or refreshes dropped because a fetch was already in flight.",
		},
		[]string{"stream"},
	)

	requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_seconds",
			Help:      "Aggregation API request latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Indicator submissions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches dashboard collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pollTotal,
		pollSkippedTotal,
		requestDurationSeconds,
		submissionsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObservePoll counts a completed fetch for the named stream.
func ObservePoll(stream string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	pollTotal.WithLabelValues(stream, outcome).Inc()
}

// ObservePollSkipped counts a tick dropped by the single-flight rule.
func ObservePollSkipped(stream string) {
	pollSkippedTotal.WithLabelValues(stream).Inc()
}

// ObserveRequest records the latency of one aggregation API call.
func ObserveRequest(operation string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	requestDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveSubmission records a submission outcome label.
func ObserveSubmission(outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeError, OutcomeRejected:
	default:
		outcome = OutcomeError
	}
	submissionsTotal.WithLabelValues(outcome).Inc()
}
