package services

import "github.com/prometheus/client_golang/prometheus"

// Domain counters, registered on the default registry next to the HTTP
// metrics served at /metrics.
var (
	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfi_inbound_messages_total",
			Help: "Inbound webhook deliveries by outcome.",
		},
		[]string{"outcome"},
	)
	matchStrategy = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfi_inbound_match_strategy_total",
			Help: "Inbound messages matched, by winning strategy.",
		},
		[]string{"strategy"},
	)
	outboundSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfi_outbound_sends_total",
			Help: "Outbound RFI sends by result.",
		},
		[]string{"result"},
	)
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfi_transitions_total",
			Help: "Successful RFI status transitions by target status.",
		},
		[]string{"to"},
	)
)

func init() {
	prometheus.MustRegister(inboundMessages, matchStrategy, outboundSends, transitionsTotal)
}
