package driven

import "time"

// Outcome labels reported to PollMetrics.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailure = "failure"
)

// PollMetrics receives events from the polling core. Implementations must be
// cheap; calls happen inline with the poll loop.
type PollMetrics interface {
	ObserveLogin(outcome string)
	ObserveFetch(outcome string)
	AddReadingsEmitted(n int)
	SetWatermark(ts time.Time)
}
