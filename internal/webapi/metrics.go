package webapi

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "donateboard_"

	outcomeOK              = "ok"
	outcomeIgnored         = "ignored"
	outcomeUnauthenticated = "unauthenticated"
	outcomeMalformed       = "malformed"
	outcomeUpstreamError   = "upstream_error"
	outcomeStoreError      = "store_error"
)

var (
	registerMetricsOnce sync.Once

	settlementEvents *prometheus.CounterVec
	creditedDollars  *prometheus.CounterVec
)

func initMetrics() {
	registerMetricsOnce.Do(func() {
		settlementEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_events_total",
				Help: "Inbound settlement events by provider and outcome",
			},
			[]string{"provider", "outcome"},
		)
		creditedDollars = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "credited_dollars_total",
				Help: "Credited donation dollars by provider",
			},
			[]string{"provider"},
		)
		prometheus.MustRegister(settlementEvents, creditedDollars)
	})
}

func observeSettlement(providerName string, outcome string) {
	if settlementEvents == nil {
		return
	}
	settlementEvents.WithLabelValues(providerName, outcome).Inc()
}

func observeCredit(providerName string, dollars float64) {
	if creditedDollars == nil {
		return
	}
	creditedDollars.WithLabelValues(providerName).Add(dollars)
}
