package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// SentimentService defines the methods that the sentiment and consensus
// handlers require.
type SentimentService interface {
	Sentiment(ctx context.Context, now time.Time, weighted bool, window time.Duration) ([]domain.SentimentRecord, error)
	LatestConsensus(ctx context.Context) (time.Time, []domain.AnnotatedSignal, error)
}

// SentimentHandler serves the on-demand sentiment and latest consensus views.
type SentimentHandler struct {
	svc    SentimentService
	logger *slog.Logger
	now    func() time.Time
}

// NewSentimentHandler creates a SentimentHandler.
func NewSentimentHandler(svc SentimentService, logger *slog.Logger) *SentimentHandler {
	return &SentimentHandler{
		svc:    svc,
		logger: logHandler(logger, "sentiment"),
		now:    time.Now,
	}
}

type sentimentResponse struct {
	Weighted bool           `json:"weighted"`
	Window   string         `json:"window,omitempty"`
	Assets   []sentimentDTO `json:"assets"`
}

// GetSentiment aggregates stored positions per asset.
// GET /api/sentiment?weighted=true&window=24h
func (h *SentimentHandler) GetSentiment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	weighted := true
	if v := q.Get("weighted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "weighted must be true or false")
			return
		}
		weighted = b
	}

	var window time.Duration
	if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration such as 24h")
			return
		}
		window = d
	}

	records, err := h.svc.Sentiment(r.Context(), h.now(), weighted, window)
	if errors.Is(err, domain.ErrNoWeights) {
		writeError(w, http.StatusServiceUnavailable, "no tracked trader pnl available for weighting")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sentiment failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute sentiment")
		return
	}

	resp := sentimentResponse{Weighted: weighted, Assets: toSentimentDTOs(records)}
	if window > 0 {
		resp.Window = window.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type consensusResponse struct {
	CycleAt time.Time   `json:"cycle_at"`
	Signals []signalDTO `json:"signals"`
}

// GetConsensus returns the most recent cycle that produced consensus signals.
// GET /api/consensus
func (h *SentimentHandler) GetConsensus(w http.ResponseWriter, r *http.Request) {
	at, signals, err := h.svc.LatestConsensus(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no consensus recorded yet")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: latest consensus failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load consensus")
		return
	}
	writeJSON(w, http.StatusOK, consensusResponse{CycleAt: at.UTC(), Signals: toSignalDTOs(signals)})
}
