package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/typeracehq/race-server/internal/hub"
	"github.com/typeracehq/race-server/internal/metrics"
	"github.com/typeracehq/race-server/internal/ws"
)

func SetupRoutes(h *hub.Hub, maxWPM float64, m *metrics.Metrics, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(h, log))
	r.Get("/rooms/{code}", RoomSnapshot(h))
	r.Get("/ws", ws.Handler(h, maxWPM, m, log))
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", metrics.Handler())

	// editor webviews and the website hit this cross-origin
	return cors.AllowAll().Handler(r)
}
