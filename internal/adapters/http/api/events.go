// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/nudge/internal/domain/model"
)

// EventsHandler handles event ingestion requests.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// Handle returns the POST handler for one event route. The response body is
// always a JSON array of actions; an empty array means no intervention
// fired for this event.
func (h *EventsHandler) Handle(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.post_event"
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var fields model.Fields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if fields == nil {
			fields = model.Fields{}
		}

		actions, err := h.deps.HandleEvent(r.Context(), eventType, fields)
		if err != nil {
			// The event was not durably logged; the client may retry.
			writeError(w, http.StatusInternalServerError, "storage_error", WrapKind(op, ErrStorage, err))
			return
		}
		if actions == nil {
			// The wire contract is always a JSON array.
			actions = []model.Action{}
		}
		writeJSON(w, http.StatusOK, actions)
	}
}
