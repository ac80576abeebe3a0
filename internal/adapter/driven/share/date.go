package share

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ericfisherdev/glucoshare/internal/domain/port/driven"
)

// vendorDate matches "Date(1426292016000)", "/Date(1426292016000-0700)/" and
// similar. The optional offset is informational; the millisecond value is
// already UTC.
var vendorDate = regexp.MustCompile(`^/?Date\((-?\d+)([+-]\d{4})?\)/?$`)

// parseVendorDate converts the relay's wrapped epoch-millisecond string into
// a time.Time in UTC.
func parseVendorDate(raw string) (time.Time, error) {
	m := vendorDate.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: unrecognized date %q", driven.ErrMalformedReading, raw)
	}

	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", driven.ErrMalformedReading, raw, err)
	}

	return time.UnixMilli(ms).UTC(), nil
}
