package vol

import (
	"fmt"
	"sync"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
)

// Engine maintains per-line sliding windows of quote observations and
// derives dispersion, drift, and confidence from them. It never looks at
// game state; scores and clocks belong to the decision layer.
type Engine struct {
	mu       sync.RWMutex
	windows  map[domain.LineID]*window
	capacity int
	maxAge   time.Duration
}

// NewEngine creates an Engine with the given per-line window capacity and
// maximum sample age.
func NewEngine(capacity int, maxAge time.Duration) *Engine {
	if capacity < 2 {
		capacity = 2
	}
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &Engine{
		windows:  make(map[domain.LineID]*window),
		capacity: capacity,
		maxAge:   maxAge,
	}
}

// Observe records one accepted line update. The observed metric is the
// points handicap for spread and total lines, and the implied win
// probability (as a percentage) for moneyline lines. A moneyline price that
// cannot be converted is not observed.
func (e *Engine) Observe(id domain.LineID, points, price float64, format domain.PriceFormat, ts time.Time) error {
	metric := points
	if !id.BetType.HasPoints() {
		prob, err := ImpliedProbability(price, format)
		if err != nil {
			return fmt.Errorf("vol: observe %s: %w", id.Key(), err)
		}
		metric = prob * 100
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	w := e.windows[id]
	if w == nil {
		w = newWindow(e.capacity)
		e.windows[id] = w
	}
	w.add(metric, ts, e.maxAge)
	return nil
}

// ComputeSignal derives the current signal for a line. The second return is
// false when fewer than two in-age samples exist: movement statistics are
// undefined there and no downstream decision may be made from them.
func (e *Engine) ComputeSignal(id domain.LineID, now time.Time) (domain.VolSignal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	w := e.windows[id]
	if w == nil {
		return domain.VolSignal{}, false
	}
	samples := w.recent(now, e.maxAge)
	if len(samples) < 2 {
		return domain.VolSignal{}, false
	}

	newest := samples[len(samples)-1]

	fill := float64(len(samples)) / float64(e.capacity)
	if fill > 1 {
		fill = 1
	}
	freshness := 1 - now.Sub(newest.at).Seconds()/e.maxAge.Seconds()
	if freshness < 0 {
		freshness = 0
	}
	if freshness > 1 {
		freshness = 1
	}

	return domain.VolSignal{
		Line:       id,
		Dispersion: stddev(samples),
		Drift:      slope(samples),
		Confidence: fill * freshness,
		Samples:    len(samples),
		LastMetric: newest.metric,
		ComputedAt: now,
	}, true
}

// DropEvent discards every window belonging to the event. Called when an
// event reaches a terminal status so dead lines do not accumulate.
func (e *Engine) DropEvent(eventID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id := range e.windows {
		if id.EventID == eventID {
			delete(e.windows, id)
		}
	}
}

// TrackedLines reports how many line windows the engine currently holds.
func (e *Engine) TrackedLines() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.windows)
}
