package application

import (
	"time"

	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

type noopMetrics struct{}

// NoopMetrics returns a driven.PollMetrics that discards everything.
func NoopMetrics() driven.PollMetrics {
	return noopMetrics{}
}

func (noopMetrics) ObserveLogin(string)    {}
func (noopMetrics) ObserveFetch(string)    {}
func (noopMetrics) AddReadingsEmitted(int) {}
func (noopMetrics) SetWatermark(time.Time) {}
