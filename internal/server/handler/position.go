package handler

import (
	"net/http"

	"github.com/voltrade/voltbot/internal/domain"
)

// PositionSource supplies the currently tracked positions.
type PositionSource interface {
	OpenPositions() []domain.Position
}

// PositionHandler serves the open-position listing.
type PositionHandler struct {
	positions PositionSource
}

// NewPositionHandler creates a PositionHandler. A nil source yields an empty
// listing, which is what monitor mode looks like.
func NewPositionHandler(positions PositionSource) *PositionHandler {
	return &PositionHandler{positions: positions}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
	Count     int               `json:"count"`
}

// ListPositions returns every open and closing position.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var positions []domain.Position
	if h.positions != nil {
		positions = h.positions.OpenPositions()
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{
		Positions: positions,
		Count:     len(positions),
	})
}
