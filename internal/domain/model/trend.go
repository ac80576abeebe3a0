package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Trend is the direction indicator the sensor reports alongside each value.
type Trend int

const (
	TrendNone Trend = iota
	TrendDoubleUp
	TrendSingleUp
	TrendFortyFiveUp
	TrendFlat
	TrendFortyFiveDown
	TrendSingleDown
	TrendDoubleDown
	TrendNotComputable
	TrendRateOutOfRange
)

var trendNames = [...]string{
	TrendNone:           "None",
	TrendDoubleUp:       "DoubleUp",
	TrendSingleUp:       "SingleUp",
	TrendFortyFiveUp:    "FortyFiveUp",
	TrendFlat:           "Flat",
	TrendFortyFiveDown:  "FortyFiveDown",
	TrendSingleDown:     "SingleDown",
	TrendDoubleDown:     "DoubleDown",
	TrendNotComputable:  "NotComputable",
	TrendRateOutOfRange: "RateOutOfRange",
}

var trendArrows = [...]string{
	TrendNone:           "",
	TrendDoubleUp:       "↑↑",
	TrendSingleUp:       "↑",
	TrendFortyFiveUp:    "↗",
	TrendFlat:           "→",
	TrendFortyFiveDown:  "↘",
	TrendSingleDown:     "↓",
	TrendDoubleDown:     "↓↓",
	TrendNotComputable:  "?",
	TrendRateOutOfRange: "-",
}

// String returns the vendor name of the trend, or "Unknown" for values
// outside the known range.
func (t Trend) String() string {
	if t < 0 || int(t) >= len(trendNames) {
		return "Unknown"
	}
	return trendNames[t]
}

// Arrow returns a compact arrow glyph for the trend.
func (t Trend) Arrow() string {
	if t < 0 || int(t) >= len(trendArrows) {
		return "?"
	}
	return trendArrows[t]
}

// ParseTrend maps a vendor trend name to a Trend. Matching is case-insensitive.
func ParseTrend(name string) (Trend, error) {
	for i, n := range trendNames {
		if strings.EqualFold(n, name) {
			return Trend(i), nil
		}
	}
	return TrendNone, fmt.Errorf("unknown trend %q", name)
}

// UnmarshalJSON accepts both the numeric and the textual trend encodings.
// Names it does not recognize decode as TrendNotComputable.
func (t *Trend) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Trend(n)
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode trend: %w", err)
	}
	parsed, err := ParseTrend(name)
	if err != nil {
		parsed = TrendNotComputable
	}
	*t = parsed
	return nil
}

// MarshalJSON encodes the trend by name.
func (t Trend) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
