package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(pollsTotal, pollResultsDiscardedTotal, restorationsTotal, restoredJobsTotal)
}

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_polls_total",
			Help: "Job status polls, labeled by result.",
		},
		[]string{"result"}, // 'ok', 'error', 'skipped'
	)

	pollResultsDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_poll_results_discarded_total",
			Help: "Poll results dropped by a guard before being written.",
		},
		[]string{"reason"}, // 'declined', 'cleared', 'inactive', 'superseded', 'rebound'
	)

	restorationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_restorations_total",
			Help: "Restoration runs, labeled by outcome.",
		},
		[]string{"result"}, // 'applied', 'error', 'stale', 'skipped'
	)

	restoredJobsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "suggestion_restored_jobs_total",
			Help: "Jobs installed by restoration.",
		},
	)
)

func IncPoll(result string) {
	pollsTotal.WithLabelValues(norm(result)).Inc()
}

func IncPollDiscarded(reason string) {
	pollResultsDiscardedTotal.WithLabelValues(norm(reason)).Inc()
}

func IncRestoration(result string, restored int) {
	restorationsTotal.WithLabelValues(norm(result)).Inc()
	if restored > 0 {
		restoredJobsTotal.Add(float64(restored))
	}
}
