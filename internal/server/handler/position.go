package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/platform/hyperliquid"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Positions(ctx context.Context, trader string) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []positionDTO `json:"positions"`
}

// ListPositions returns the net positions derived from stored fills, for one
// trader when the trader parameter is given.
// GET /api/positions?trader=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	trader := r.URL.Query().Get("trader")
	if trader != "" {
		addr, err := hyperliquid.NormalizeAddress(trader)
		if err != nil {
			writeError(w, http.StatusBadRequest, "trader must be a 0x-prefixed hex address")
			return
		}
		trader = addr
	}

	positions, err := h.positions.Positions(r.Context(), trader)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("trader", trader),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: toPositionDTOs(positions)})
}
