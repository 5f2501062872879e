package handler

import (
	"net/http"
	"time"

	"github.com/voltrade/voltbot/internal/market"
	"github.com/voltrade/voltbot/internal/pipeline"
	"github.com/voltrade/voltbot/internal/position"
)

// RunnerStatus supplies the poll loop's last published snapshot.
type RunnerStatus interface {
	Status() pipeline.Status
}

// MarketStats supplies market-state counters.
type MarketStats interface {
	Stats() market.Stats
}

// SignalStats supplies the count of live signal windows.
type SignalStats interface {
	TrackedLines() int
}

// ExposureView supplies open-stake totals.
type ExposureView interface {
	Exposure() position.Exposure
}

// StatusHandler serves the operational status surface: mode, feed state,
// cycle counters, market-state size, and open exposure. Any nil source is
// simply omitted from the response, so the handler works in every mode.
type StatusHandler struct {
	mode     string
	runner   RunnerStatus
	market   MarketStats
	signals  SignalStats
	exposure ExposureView
}

// NewStatusHandler creates a StatusHandler. Nil sources are allowed.
func NewStatusHandler(mode string, runner RunnerStatus, market MarketStats, signals SignalStats, exposure ExposureView) *StatusHandler {
	return &StatusHandler{
		mode:     mode,
		runner:   runner,
		market:   market,
		signals:  signals,
		exposure: exposure,
	}
}

// GetStatus responds with the current backend state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	out := map[string]any{
		"mode":      h.mode,
		"timestamp": now.Format(time.RFC3339),
	}

	if h.runner != nil {
		st := h.runner.Status()
		feed := map[string]any{
			"halted":        st.Halted,
			"cursor":        string(st.Cursor),
			"cycles":        st.Cycles,
			"poll_failures": st.PollFailures,
			"batches":       st.Batches,
			"lines_applied": st.LinesApplied,
			"malformed":     st.Malformed,
			"intents":       st.Intents,
			"opened":        st.Opened,
			"closed":        st.Closed,
		}
		if !st.LastPollAt.IsZero() {
			feed["cursor_age_seconds"] = now.Sub(st.LastPollAt).Seconds()
		}
		if !st.FeedDownSince.IsZero() {
			feed["down_since"] = st.FeedDownSince.Format(time.RFC3339)
		}
		out["feed"] = feed
	}

	if h.market != nil {
		ms := h.market.Stats()
		out["market"] = map[string]any{
			"events":      ms.Events,
			"lines":       ms.Lines,
			"partitions":  ms.Partitions,
			"applied":     ms.AppliedLines,
			"stale_drops": ms.StaleDrops,
		}
	}

	if h.signals != nil {
		out["tracked_windows"] = h.signals.TrackedLines()
	}

	if h.exposure != nil {
		ex := h.exposure.Exposure()
		out["exposure"] = map[string]any{
			"positions": ex.Positions,
			"total":     ex.Total,
		}
	}

	writeJSON(w, http.StatusOK, out)
}
