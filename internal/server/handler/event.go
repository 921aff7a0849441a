package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zulelabs/marketd/internal/domain"
)

// EventHandler serves the event journal read endpoint.
type EventHandler struct {
	journal domain.EventJournal
	logger  *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(journal domain.EventJournal, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		journal: journal,
		logger:  logger.With(slog.String("handler", "events")),
	}
}

// List returns journaled events, oldest first, optionally from a timestamp.
// GET /api/events?since=RFC3339&limit=&offset=
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp, want RFC3339")
			return
		}
		since = t
	}

	events, err := h.journal.ListSince(r.Context(), since, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
