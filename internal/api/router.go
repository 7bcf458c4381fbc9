package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter mounts the REST routes under /api/v1 and the WebSocket endpoint.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(s.panicMiddleware)
	r.Use(limitBody)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntity)
				r.Post("/commands", s.handleCommand)
				r.Get("/history", s.handleHistory)
			})
		})
	})

	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports process, MQTT and entity availability.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snaps := s.entities.Entities()
	available := 0
	for _, snap := range snaps {
		if snap.Available {
			available++
		}
	}

	status := "ok"
	if !s.entities.Connected() || available < len(snaps) {
		status = "degraded"
	}

	respond(w, http.StatusOK, map[string]any{
		"status":             status,
		"version":            s.version,
		"uptime_seconds":     int64(time.Since(s.started).Seconds()),
		"mqtt_connected":     s.entities.Connected(),
		"entities_total":     len(snaps),
		"entities_available": available,
		"websocket_clients":  s.hub.ClientCount(),
	})
}
