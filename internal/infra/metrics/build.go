package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "suggestd_build_info",
		Help: "Constant 1, labeled with the running suggestd version and commit.",
	},
	[]string{"version", "commit"},
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}
