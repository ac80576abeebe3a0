package application

import (
	"errors"
	"time"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
)

// PollConfig controls the cadence and retry policy of a Poller.
type PollConfig struct {
	// PollInterval is the sensor's reading cadence.
	PollInterval time.Duration
	// PollSlack allows for the upload lag between the sensor and the relay.
	PollSlack time.Duration
	// RetryMinBackoff and RetryMaxBackoff bound the exponential backoff
	// between fetch attempts.
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration
	// MaxAttempts is the fetch attempt ceiling for a single Next call.
	MaxAttempts int
	// MaxWindowMinutes caps the catch-up window after long gaps. Zero
	// disables the cap.
	MaxWindowMinutes int
	// ReadNowDefaults is used by ReadNow for zero FetchOptions fields.
	ReadNowDefaults model.FetchOptions
}

// DefaultPollConfig returns the standard five-minute cadence with ten
// seconds of slack and 5s..5m backoff.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		PollInterval:     5 * time.Minute,
		PollSlack:        10 * time.Second,
		RetryMinBackoff:  5 * time.Second,
		RetryMaxBackoff:  5 * time.Minute,
		MaxAttempts:      1000,
		MaxWindowMinutes: model.DefaultFetchMinutes,
		ReadNowDefaults: model.FetchOptions{
			Minutes:  model.DefaultFetchMinutes,
			MaxCount: model.DefaultFetchMaxCount,
		},
	}
}

// Validate checks the invariants the poll loop relies on.
func (c PollConfig) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.PollSlack < 0 {
		return errors.New("poll slack must not be negative")
	}
	if c.RetryMinBackoff < 0 || c.RetryMaxBackoff < 0 {
		return errors.New("retry backoff must not be negative")
	}
	if c.RetryMinBackoff > c.RetryMaxBackoff {
		return errors.New("retry min backoff exceeds max backoff")
	}
	if c.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if c.MaxWindowMinutes < 0 {
		return errors.New("max window minutes must not be negative")
	}
	return nil
}

// nextPollAt returns when the reading after the one stamped watermark is
// expected to have reached the relay.
func nextPollAt(watermark time.Time, cfg PollConfig) time.Time {
	return watermark.Add(cfg.PollInterval + cfg.PollSlack)
}

// waitFor returns how long to sleep before polling again, never negative.
func waitFor(watermark, now time.Time, cfg PollConfig) time.Duration {
	d := nextPollAt(watermark, cfg).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// catchUpWindow sizes a fetch after a watermark. MaxCount is the number of
// poll intervals elapsed, rounded up, which bounds how many readings can be
// newer than the watermark. Minutes spans the whole elapsed time plus one
// more interval, so a reading that reached the relay late is still inside
// the window on the next poll.
func catchUpWindow(watermark, now time.Time, cfg PollConfig) model.FetchOptions {
	count := 1
	minutes := ceilDiv(cfg.PollInterval, time.Minute)
	if elapsed := now.Sub(watermark); elapsed > 0 {
		count = ceilDiv(elapsed, cfg.PollInterval)
		minutes += ceilDiv(elapsed, time.Minute)
	}
	if cfg.MaxWindowMinutes > 0 {
		minutes = min(minutes, cfg.MaxWindowMinutes)
		count = min(count, cfg.MaxWindowMinutes)
	}
	return model.FetchOptions{Minutes: minutes, MaxCount: count}
}

// ceilDiv returns d/unit rounded up, for positive d and unit.
func ceilDiv(d, unit time.Duration) int {
	return int((d + unit - 1) / unit)
}

// firstPollWindow asks only for the latest reading.
func firstPollWindow(cfg PollConfig) model.FetchOptions {
	return model.FetchOptions{Minutes: cfg.ReadNowDefaults.WithDefaults().Minutes, MaxCount: 1}
}

// newerThan returns the readings strictly after watermark, oldest first. With
// no watermark every reading is kept. The input slice is not modified.
func newerThan(readings []model.Reading, watermark *model.Reading) []model.Reading {
	fresh := make([]model.Reading, 0, len(readings))
	for _, r := range readings {
		if watermark == nil || r.After(*watermark) {
			fresh = append(fresh, r)
		}
	}
	model.SortByTimestamp(fresh)
	return fresh
}
