package tee

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tee_paired_executions_total",
			Help: "Paired executions by outcome.",
		},
		[]string{"outcome"},
	)

	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tee_paired_execution_duration_seconds",
			Help:    "Wall time of paired executions, including both backends.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(executions)
	prometheus.MustRegister(executionDuration)
}
