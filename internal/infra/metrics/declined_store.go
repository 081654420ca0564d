package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(declinedStoreOpsTotal) }

var declinedStoreOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "declined_store_ops_total",
		Help: "Declined-job store operations by backend, operation and result.",
	},
	[]string{"driver", "op", "result"}, // e.g., driver="redis", op="add", result="ok"
)

func IncDeclinedStoreOp(driver, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	declinedStoreOpsTotal.WithLabelValues(norm(driver), norm(op), result).Inc()
}
