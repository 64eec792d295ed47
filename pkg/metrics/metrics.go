package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelayDeliveries counts routing outcomes (delivered|no_proctor|unknown_recipient|self_addressed|mailbox_unavailable).
	RelayDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorrelay_relay_deliveries_total",
			Help: "Relay routing attempts by outcome",
		},
		[]string{"outcome"},
	)

	// DiscardedFrames counts inbound frames dropped before routing.
	DiscardedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorrelay_discarded_frames_total",
			Help: "Inbound websocket frames discarded before routing",
		},
		[]string{"reason"},
	)

	// ConnectionRejections counts websocket connection attempts refused before registration.
	ConnectionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorrelay_connection_rejections_total",
			Help: "Websocket connection attempts rejected before joining a relay",
		},
		[]string{"reason"},
	)

	// ActiveSessions tracks websocket sessions currently attached to a relay, by role.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proctorrelay_active_sessions",
			Help: "Number of websocket sessions attached to a relay",
		},
		[]string{"role"},
	)

	// Rooms reports the number of relays held by the room directory.
	Rooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctorrelay_rooms",
			Help: "Number of rooms held in memory",
		},
	)

	// RoomParticipants reports registered participants across all rooms, by role.
	RoomParticipants = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proctorrelay_room_participants",
			Help: "Participants registered across all rooms",
		},
		[]string{"role"},
	)

	// PersistedRooms reports the number of rooms recorded in the database.
	PersistedRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctorrelay_persisted_rooms",
			Help: "Number of rooms recorded in durable storage",
		},
	)

	// DatabaseUp is 1 when the last scheduled ping succeeded.
	DatabaseUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctorrelay_database_up",
			Help: "Whether the database answered the last scheduled ping",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proctorrelay_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
