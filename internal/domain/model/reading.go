package model

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// mgdlPerMmol converts mg/dL to mmol/L for glucose.
var mgdlPerMmol = decimal.NewFromFloat(18.0182)

// Reading is a single sensor value reported by the relay. Raw holds the
// original record so fields this package does not model are not lost.
type Reading struct {
	Value     int
	Trend     Trend
	Timestamp time.Time
	Raw       json.RawMessage
}

// MmolL returns the value in mmol/L rounded to one decimal place.
func (r Reading) MmolL() decimal.Decimal {
	return decimal.NewFromInt(int64(r.Value)).DivRound(mgdlPerMmol, 1)
}

// After reports whether r is strictly newer than other.
func (r Reading) After(other Reading) bool {
	return r.Timestamp.After(other.Timestamp)
}

// SortByTimestamp orders readings oldest first.
func SortByTimestamp(readings []Reading) {
	slices.SortStableFunc(readings, func(a, b Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// FetchOptions bounds a single fetch. Zero fields fall back to the fetcher's
// defaults.
type FetchOptions struct {
	Minutes  int
	MaxCount int
}

// Default lookback window and count used when FetchOptions fields are zero.
const (
	DefaultFetchMinutes  = 1440
	DefaultFetchMaxCount = 1
)

// WithDefaults fills zero fields with DefaultFetchMinutes and DefaultFetchMaxCount.
func (o FetchOptions) WithDefaults() FetchOptions {
	if o.Minutes <= 0 {
		o.Minutes = DefaultFetchMinutes
	}
	if o.MaxCount <= 0 {
		o.MaxCount = DefaultFetchMaxCount
	}
	return o
}
