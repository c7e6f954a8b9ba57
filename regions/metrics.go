package regions

import "github.com/prometheus/client_golang/prometheus"

var (
	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tee_region_requests_total",
		Help: "Region requests by region, operation and outcome.",
	}, []string{"region", "op", "outcome"})

	retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tee_region_retries_total",
		Help: "Retries spent on transient failures.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(requests, retries)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
