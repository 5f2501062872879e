package vol

import (
	"math"
	"time"
)

// sample is one observation of a line's metric.
type sample struct {
	metric float64
	at     time.Time
}

// window is a bounded sample buffer. Overflow evicts the oldest sample;
// callers additionally trim by age on write and filter by age on read.
type window struct {
	samples  []sample
	capacity int
}

func newWindow(capacity int) *window {
	return &window{capacity: capacity}
}

// add appends a sample and evicts whatever falls outside the capacity or the
// age horizon measured from the new sample.
func (w *window) add(metric float64, at time.Time, maxAge time.Duration) {
	w.samples = append(w.samples, sample{metric: metric, at: at})
	if len(w.samples) > w.capacity {
		w.samples = w.samples[len(w.samples)-w.capacity:]
	}

	cutoff := at.Add(-maxAge)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = w.samples[i:]
	}
}

// recent returns the samples no older than maxAge relative to now, in
// arrival order.
func (w *window) recent(now time.Time, maxAge time.Duration) []sample {
	cutoff := now.Add(-maxAge)
	for i, s := range w.samples {
		if !s.at.Before(cutoff) {
			return w.samples[i:]
		}
	}
	return nil
}

// stddev is the population standard deviation of the samples' metrics.
func stddev(samples []sample) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.metric
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range samples {
		d := s.metric - mean
		variance += d * d
	}
	variance /= float64(n)

	sd := math.Sqrt(variance)
	if math.IsNaN(sd) || math.IsInf(sd, 0) {
		return 0
	}
	return sd
}

// slope is the least-squares regression slope of metric against minutes
// since the first sample. Zero when time does not vary.
func slope(samples []sample) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}

	origin := samples[0].at
	var sumX, sumY float64
	xs := make([]float64, n)
	for i, s := range samples {
		xs[i] = s.at.Sub(origin).Minutes()
		sumX += xs[i]
		sumY += s.metric
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var num, den float64
	for i, s := range samples {
		dx := xs[i] - meanX
		num += dx * (s.metric - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}

	m := num / den
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 0
	}
	return m
}
