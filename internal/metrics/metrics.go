// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// VoiceConnects counts finished connect procedures by result (ok, failed).
	VoiceConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djwillex_voice_connects_total",
			Help: "Voice connect procedures by result",
		},
		[]string{"result"},
	)

	// VoiceAttempts counts single handshake attempts by outcome.
	VoiceAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djwillex_voice_connect_attempts_total",
			Help: "Voice handshake attempts by outcome",
		},
		[]string{"outcome"},
	)

	// VoiceConnectDuration measures a whole connect procedure, retries included.
	VoiceConnectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "djwillex_voice_connect_duration_seconds",
			Help:    "Time spent establishing a voice connection",
			Buckets: prometheus.DefBuckets,
		},
	)

	// VoiceReconnects counts reconnects by result.
	VoiceReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djwillex_voice_reconnects_total",
			Help: "Voice reconnects by result",
		},
		[]string{"result"},
	)

	// PlayerTransitions counts player events by kind.
	PlayerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djwillex_player_events_total",
			Help: "Player state machine events",
		},
		[]string{"event"},
	)

	// ActivePlayers is the number of players that are playing or paused.
	ActivePlayers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "djwillex_active_players",
			Help: "Players currently playing or paused",
		},
	)

	// Skips counts skip requests by how they resolved (privileged, quorum, vote).
	Skips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djwillex_skips_total",
			Help: "Skip requests by resolution",
		},
		[]string{"kind"},
	)

	// AutoplaylistPruned counts autoplaylist URLs removed after failed validation.
	AutoplaylistPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "djwillex_autoplaylist_pruned_total",
			Help: "Autoplaylist entries removed as unplayable",
		},
	)

	// MessagesDropped counts status messages swallowed by the delivery guard.
	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djwillex_messages_dropped_total",
			Help: "Status message operations rejected by the remote",
		},
		[]string{"op", "reason"},
	)
)

func init() {
	prometheus.MustRegister(
		VoiceConnects,
		VoiceAttempts,
		VoiceConnectDuration,
		VoiceReconnects,
		PlayerTransitions,
		ActivePlayers,
		Skips,
		AutoplaylistPruned,
		MessagesDropped,
	)
}
