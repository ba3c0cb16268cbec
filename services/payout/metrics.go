package payout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "incentives",
	Subsystem: "payout",
	Name:      "transitions_total",
	Help:      "Payout request status changes by target status.",
}, []string{"status"})
