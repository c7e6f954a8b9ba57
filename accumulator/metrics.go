package accumulator

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK       = "ok"
	outcomeFull     = "full"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

var (
	sizeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tee_accumulator_size",
			Help: "Number of elements appended to the attestation accumulator.",
		},
	)

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tee_accumulator_registrations_total",
			Help: "Attestation registrations by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(sizeGauge)
	prometheus.MustRegister(registrations)
}
