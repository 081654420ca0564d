package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		suggestionJobsCreatedTotal,
		suggestionJobsFinishedTotal,
		suggestionActiveJobs,
		suggestionDecisionsTotal,
	)
}

var (
	suggestionJobsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_jobs_created_total",
			Help: "Suggestion job creation attempts, labeled by entity type and result.",
		},
		[]string{"entity_type", "result"}, // result: 'ok', 'error'
	)

	suggestionJobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_jobs_finished_total",
			Help: "Jobs observed reaching a terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed', 'timeout'
	)

	suggestionActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "suggestion_active_jobs",
			Help: "Jobs currently tracked for polling.",
		},
	)

	suggestionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_decisions_total",
			Help: "User decisions on suggestions.",
		},
		[]string{"decision", "mode"}, // decision: 'accept', 'decline'; mode: 'single', 'all'
	)
)

func IncJobCreated(entityType string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	suggestionJobsCreatedTotal.WithLabelValues(norm(entityType), result).Inc()
}

func IncJobFinished(status string) {
	suggestionJobsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func SetActiveJobs(n int) {
	suggestionActiveJobs.Set(float64(n))
}

func AddDecisions(decision, mode string, n int) {
	if n <= 0 {
		return
	}
	suggestionDecisionsTotal.WithLabelValues(norm(decision), norm(mode)).Add(float64(n))
}
