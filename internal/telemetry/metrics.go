package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SongReactions counts listener votes per channel.
	SongReactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstyle_song_reaction_total",
		Help: "Listener reactions (votes) recorded against the playing track.",
	}, []string{"channel"})

	// TracksPlayed counts finalized plays per channel.
	TracksPlayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstyle_track_played_total",
		Help: "Tracks finalized into channel history.",
	}, []string{"channel"})

	// FirstPlays counts tracks played for the first time anywhere.
	FirstPlays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstyle_first_play_total",
		Help: "Tracks played for the first time across all channels.",
	}, []string{"channel"})

	// SourcingFailures counts sourcing attempts that removed a DJ.
	SourcingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstyle_sourcing_failure_total",
		Help: "Track sourcing failures by strategy outcome.",
	}, []string{"reason"})

	// WebsocketConnections gauges currently connected clients.
	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnstyle_websocket_connections",
		Help: "Currently connected websocket clients.",
	})

	// ActiveChannels gauges live channel coordinators.
	ActiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnstyle_active_channels",
		Help: "Channel coordinators currently running.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
