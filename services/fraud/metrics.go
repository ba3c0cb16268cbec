package fraud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var referralValidations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "incentives",
	Subsystem: "fraud",
	Name:      "referral_validations_total",
	Help:      "Referral validations by outcome.",
}, []string{"outcome"})
