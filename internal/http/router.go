package httpx

import (
	"net/http"

	"log/slog"

	"github.com/mon1909/Collaborative-Coding/internal/app"
	"github.com/mon1909/Collaborative-Coding/internal/ws"
	"github.com/mon1909/Collaborative-Coding/pkg/metrics"
)

// NewRouter wires up all HTTP routes and middleware
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub) http.Handler {
	mw := NewMiddleware(cfg)

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint: the whole event protocol rides on this
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	return mw.Wrap(mux)
}
