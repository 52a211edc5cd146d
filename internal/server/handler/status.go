package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// StatsSource exposes the counters shown on the status endpoint.
type StatsSource interface {
	CountFills(ctx context.Context) (int64, error)
	TrackedTraders(ctx context.Context) ([]domain.TrackedTrader, error)
}

// StatusHandler serves the process mode and collection status.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	stats     StatsSource
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, stats StatsSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, stats: stats, logger: logHandler(logger, "status")}
}

type traderDTO struct {
	Address   string    `json:"address"`
	PnL       float64   `json:"pnl"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetStatus responds with the mode, uptime, stored fill count and the tracked
// trader set.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fills, err := h.stats.CountFills(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: count fills failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	traders, err := h.stats.TrackedTraders(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: list traders failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}

	tracked := make([]traderDTO, len(traders))
	for i, t := range traders {
		tracked[i] = traderDTO{Address: t.Address, PnL: t.PnL, UpdatedAt: t.UpdatedAt}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"fills":          fills,
		"traders":        tracked,
	})
}
