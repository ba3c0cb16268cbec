package award

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incentives",
		Subsystem: "award",
		Name:      "transitions_total",
		Help:      "Award status changes by target status.",
	}, []string{"status"})

	budgetMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incentives",
		Subsystem: "award",
		Name:      "budget_minor_units_total",
		Help:      "Campaign budget debited and credited, in minor units.",
	}, []string{"type"})
)
