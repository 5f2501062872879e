package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/voltrade/voltbot/internal/domain"
)

// EventSource reads from a durable event stream.
type EventSource interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler serves the position lifecycle event stream. Clients page
// through with the returned next id.
type EventsHandler struct {
	bus    EventSource
	stream string
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading the given stream.
func NewEventsHandler(bus EventSource, stream string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, stream: stream, logger: logger}
}

// eventRecord is one stream entry; the payload is emitted as-is.
type eventRecord struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// listEventsResponse wraps the event listing. Next is the id to pass as
// `after` on the following request; empty when the page was empty.
type listEventsResponse struct {
	Events []eventRecord `json:"events"`
	Next   string        `json:"next,omitempty"`
}

// ListEvents returns lifecycle events recorded after the given stream id.
// GET /api/events?after=0&limit=50
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := parseLimit(r, 50, 500)

	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: event stream read failed",
			slog.String("stream", h.stream),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	resp := listEventsResponse{Events: make([]eventRecord, 0, len(msgs))}
	for _, msg := range msgs {
		resp.Events = append(resp.Events, eventRecord{
			ID:    msg.ID,
			Event: json.RawMessage(msg.Payload),
		})
		resp.Next = msg.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
