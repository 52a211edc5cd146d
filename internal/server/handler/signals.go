package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// StreamReader reads the durable signal stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// SignalHandler pages through the published signal history.
type SignalHandler struct {
	stream StreamReader
	name   string
	logger *slog.Logger
}

// NewSignalHandler creates a SignalHandler reading the named stream.
func NewSignalHandler(stream StreamReader, name string, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{stream: stream, name: name, logger: logHandler(logger, "signals")}
}

type streamEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

type signalPage struct {
	Entries []streamEntry `json:"entries"`
	Next    string        `json:"next"`
}

// ListSignals returns up to limit events published after the given stream
// id. Pass the returned next value as after to continue.
// GET /api/signals?after=0&limit=50
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}

	msgs, err := h.stream.StreamRead(r.Context(), h.name, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read signal stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read signals")
		return
	}

	page := signalPage{Entries: make([]streamEntry, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		page.Entries = append(page.Entries, streamEntry{ID: m.ID, Event: m.Payload})
		page.Next = m.ID
	}
	writeJSON(w, http.StatusOK, page)
}
