package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// PipelineHandler serves pipeline trigger endpoints.
type PipelineHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one analysis cycle
}

// NewPipelineHandler creates a PipelineHandler with the given logger.
func NewPipelineHandler(logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{logger: logHandler(logger, "pipeline")}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The analysis loop must receive from this channel to run one cycle.
func (h *PipelineHandler) WithTriggerChannel(ch chan<- struct{}) *PipelineHandler {
	h.triggerCh = ch
	return h
}

// TriggerAnalysis enqueues one analysis cycle. A non-blocking send is
// performed, so triggers arriving while one is pending collapse into it.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusConflict, "pipeline is not running in this process")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: analysis trigger requested")
	select {
	case h.triggerCh <- struct{}{}:
	default:
		// already triggered and not yet consumed
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "analysis cycle enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
