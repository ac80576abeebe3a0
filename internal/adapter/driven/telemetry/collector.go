// Package telemetry exports poller activity as Prometheus metrics.
package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PollMetrics = (*Collector)(nil)

// Collector implements driven.PollMetrics on top of Prometheus.
type Collector struct {
	logins    *prometheus.CounterVec
	fetches   *prometheus.CounterVec
	emitted   prometheus.Counter
	watermark prometheus.Gauge
}

// NewCollector registers the glucoshare metrics with reg. Metrics already
// registered by an earlier call are reused, so building a second Collector on
// the same registry is safe. A nil reg means prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glucoshare_login_attempts_total",
		Help: "Share login attempts by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	fetches, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glucoshare_fetch_cycles_total",
		Help: "Share reading fetches by outcome (success, empty, failure).",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	emitted, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glucoshare_readings_emitted_total",
		Help: "Readings handed to the consumer loop.",
	}))
	if err != nil {
		return nil, err
	}

	watermark, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "glucoshare_watermark_timestamp_seconds",
		Help: "Unix time of the newest reading seen.",
	}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		logins:    logins,
		fetches:   fetches,
		emitted:   emitted,
		watermark: watermark,
	}, nil
}

// register adds c to reg, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	var zero C
	return zero, err
}

// ObserveLogin counts one login attempt.
func (c *Collector) ObserveLogin(outcome string) {
	if c == nil {
		return
	}
	c.logins.WithLabelValues(outcome).Inc()
}

// ObserveFetch counts one fetch.
func (c *Collector) ObserveFetch(outcome string) {
	if c == nil {
		return
	}
	c.fetches.WithLabelValues(outcome).Inc()
}

func (c *Collector) AddReadingsEmitted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.emitted.Add(float64(n))
}

func (c *Collector) SetWatermark(ts time.Time) {
	if c == nil {
		return
	}
	c.watermark.Set(float64(ts.Unix()))
}
