package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duel_relay"

// Metrics holds the relay server's collectors.
type Metrics struct {
	Connections    prometheus.Gauge
	Sessions       prometheus.Gauge
	QueueDepth     prometheus.Gauge
	ActiveRooms    prometheus.Gauge
	MatchesStarted prometheus.Counter
	OpponentLeft   prometheus.Counter
	LoginFailures  prometheus.Counter
	Relayed        *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open client connections",
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Logged-in sessions",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Players waiting for an opponent",
		}),
		ActiveRooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms with both players still connected",
		}),
		MatchesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "Rooms formed by the pairing engine",
		}),
		OpponentLeft: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opponent_left_total",
			Help:      "Matches ended by a disconnect",
		}),
		LoginFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_failures_total",
			Help:      "Logins rejected because the profile store failed",
		}),
		Relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_events_total",
			Help:      "Gameplay events delivered to an opponent",
		}, []string{"event"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Gameplay events with no room or no live opponent",
		}, []string{"event"}),
	}
}

// Handler serves the collectors registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
