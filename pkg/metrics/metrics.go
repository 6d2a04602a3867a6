package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks live websocket connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_connections_active",
		Help: "Currently open websocket connections.",
	})

	// RoomsActive tracks rooms with at least one member.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_rooms_active",
		Help: "Rooms currently held in memory.",
	})

	// JoinsTotal counts join events accepted by the coordinator.
	JoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_joins_total",
		Help: "Total join events processed.",
	})

	// RunsTotal counts code executions by language tag.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_runs_total",
		Help: "Total code executions started, by language.",
	}, []string{"language"})

	// RunTimeoutsTotal counts executions killed at the deadline.
	RunTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_run_timeouts_total",
		Help: "Executions terminated by the run timeout.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
