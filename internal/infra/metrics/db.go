package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(declinedDBPool) }

var declinedDBPool = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "declined_store_db_pool",
		Help: "Connection pool of the Postgres declined-job store.",
	},
	[]string{"state"}, // 'total', 'idle', 'in_use'
)

func SetDBPoolStats(total, idle, inUse int32) {
	declinedDBPool.WithLabelValues("total").Set(float64(total))
	declinedDBPool.WithLabelValues("idle").Set(float64(idle))
	declinedDBPool.WithLabelValues("in_use").Set(float64(inUse))
}
