package domain

import "context"

// AdvisoryRequest is the market snapshot handed to the advisory service
// before an entry is committed.
type AdvisoryRequest struct {
	Intent     TradeIntent
	Event      Event
	Matchup    string // "AWY @ HOM" display form
	SourceName string
}

// Opinion is the advisory service's answer. Recommendation is "proceed" or
// "reject"; anything else is treated as reject. A positive Size suggests a
// smaller stake; it never raises the intent's own size.
type Opinion struct {
	Analysis       string
	Confidence     float64
	Recommendation string
	Size           float64
}

const (
	AdviceProceed = "proceed"
	AdviceReject  = "reject"
)

// Advisor is the optional second opinion consulted on candidate entries.
// Implementations must respect the context deadline. Any error, including
// ErrAdvisoryTimeout, means the entry is rejected — never accepted by
// default.
type Advisor interface {
	Advise(ctx context.Context, req AdvisoryRequest) (Opinion, error)
	Name() string
}
