// Package metrics holds the Prometheus collectors for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CodesIssued counts linking codes handed out via !link.
	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_link_codes_issued_total",
		Help: "Total number of linking codes issued.",
	})

	// LinkAttempts counts in-game /link attempts by outcome
	// (linked, already_linked, expired, invalid, error).
	LinkAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_link_attempts_total",
		Help: "Total number of link attempts by outcome.",
	}, []string{"outcome"})

	// Unlinks counts in-game /unlink attempts by outcome
	// (unlinked, not_linked, error).
	Unlinks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_unlinks_total",
		Help: "Total number of unlink attempts by outcome.",
	}, []string{"outcome"})

	// MessagesBridged counts chat messages mirrored across the bridge,
	// by direction (to_discord, to_game).
	MessagesBridged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_messages_total",
		Help: "Total number of chat messages bridged by direction.",
	}, []string{"direction"})
)
