// Package metrics provides Prometheus instrumentation for the Drift client
// core. It exposes a gauge for relay connectivity, counters for message
// throughput and drops, and counters for directory fallbacks and relay
// reconnection attempts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RelayConnected is 1 while the relay connection is established.
	RelayConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drift_relay_connected",
		Help: "Whether the relay connection is currently established (0 or 1)",
	})

	// MessagesTotal counts messages processed by the conversation store,
	// labeled by outcome: "sent", "received", or "dropped".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_messages_total",
		Help: "Total number of messages processed by the conversation store",
	}, []string{"outcome"}) // outcome = "sent", "received", "dropped"

	// DirectoryFallbacksTotal counts directory calls answered by the local
	// fallback, labeled by logical operation.
	DirectoryFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_directory_fallbacks_total",
		Help: "Total number of directory calls recovered via the local fallback",
	}, []string{"op"})

	// ReconnectsTotal counts relay reconnection attempts.
	ReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drift_relay_reconnects_total",
		Help: "Total number of relay reconnection attempts",
	})

	// ActiveChats tracks the current number of conversations held in memory.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drift_active_chats",
		Help: "Current number of conversations in the store",
	})
)

func init() {
	prometheus.MustRegister(
		RelayConnected,
		MessagesTotal,
		DirectoryFallbacksTotal,
		ReconnectsTotal,
		ActiveChats,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
