package milestone

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incentives",
		Subsystem: "milestone",
		Name:      "evaluations_total",
		Help:      "Milestone evaluations by outcome.",
	}, []string{"outcome"})

	ruleSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incentives",
		Subsystem: "milestone",
		Name:      "rule_skips_total",
		Help:      "Matching rules that did not issue an award, by reason.",
	}, []string{"reason"})

	awardsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "incentives",
		Subsystem: "milestone",
		Name:      "awards_issued_total",
		Help:      "Awards issued by milestone evaluation.",
	})
)
