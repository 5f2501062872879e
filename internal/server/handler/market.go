package handler

import (
	"net/http"

	"github.com/voltrade/voltbot/internal/domain"
)

// MarketSource supplies the tracked market partitions and their lines.
type MarketSource interface {
	Partitions() []domain.PartitionKey
	LinesInPartition(part domain.PartitionKey) []domain.MarketLine
}

// MarketHandler serves a summary of the in-memory market state.
type MarketHandler struct {
	markets MarketSource
}

// NewMarketHandler creates a MarketHandler with the given source.
func NewMarketHandler(markets MarketSource) *MarketHandler {
	return &MarketHandler{markets: markets}
}

// partitionSummary is one row of the market listing.
type partitionSummary struct {
	League string `json:"league"`
	Period string `json:"period"`
	Scope  string `json:"scope"`
	Lines  int    `json:"lines"`
}

// listMarketsResponse wraps the market summary response.
type listMarketsResponse struct {
	Partitions []partitionSummary `json:"partitions"`
	TotalLines int                `json:"total_lines"`
}

// ListMarkets returns per-partition line counts, in stable partition order.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	resp := listMarketsResponse{Partitions: []partitionSummary{}}
	for _, part := range h.markets.Partitions() {
		n := len(h.markets.LinesInPartition(part))
		resp.Partitions = append(resp.Partitions, partitionSummary{
			League: part.League.String(),
			Period: part.PeriodType.String(),
			Scope:  string(part.Scope),
			Lines:  n,
		})
		resp.TotalLines += n
	}
	writeJSON(w, http.StatusOK, resp)
}
