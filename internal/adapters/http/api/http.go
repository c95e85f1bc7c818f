// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/nudge/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// HandleEvent logs one event and returns the actions to show the
	// student. An error means the event could not be durably logged.
	HandleEvent(ctx context.Context, eventType string, fields model.Fields) ([]model.Action, error)
}

// Server wires HTTP routes for the event ingestion API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	eventsHandler *EventsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		eventsHandler: NewEventsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux. The event routes follow the
// ProgSnap 2 event-type names used by the coding environment's client.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/FileEdit/", MetricsMiddleware(s.eventsHandler.Handle(model.EventFileEdit), "file_edit"))
	mux.HandleFunc("/Run.Program/", MetricsMiddleware(s.eventsHandler.Handle(model.EventRunProgram), "run_program"))
	mux.HandleFunc("/Submit/", MetricsMiddleware(s.eventsHandler.Handle(model.EventSubmit), "submit"))
	mux.HandleFunc("/", s.handleRoot)
}

// handleRoot answers liveness pokes at the bare root path.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("nudge event logger\n"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
