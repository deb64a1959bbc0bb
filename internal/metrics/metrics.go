package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ActiveRooms      prometheus.Gauge
	ConnectedPlayers prometheus.Gauge
	RacesFinished    prometheus.Counter
	PersistFailures  prometheus.Counter
	DroppedMessages  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "typerace",
			Subsystem: "rooms",
			Name:      "active_total",
			Help:      "Rooms currently registered in the directory",
		}),
		ConnectedPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "typerace",
			Subsystem: "rooms",
			Name:      "players_connected_total",
			Help:      "Players with a live websocket connection",
		}),
		RacesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "typerace",
			Subsystem: "rooms",
			Name:      "races_finished_total",
			Help:      "Races that reached the finished state",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "typerace",
			Subsystem: "results",
			Name:      "persist_failures_total",
			Help:      "Result records that failed to save",
		}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "typerace",
			Subsystem: "net",
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped due to backpressure",
		}),
	}

	prometheus.MustRegister(
		m.ActiveRooms,
		m.ConnectedPlayers,
		m.RacesFinished,
		m.PersistFailures,
		m.DroppedMessages,
	)

	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}
