package share

import (
	"fmt"
	"strings"
)

// Vendor defaults. These mirror what the official mobile app sends.
const (
	DefaultApplicationID = "d89443d2-327c-4a6f-89e5-496bbb0317db"
	DefaultUserAgent     = "Dexcom Share/3.0.2.11 CFNetwork/711.2.23 Darwin/14.0.0"

	baseURLUS  = "https://share2.dexcom.com/ShareWebServices/Services"
	baseURLOUS = "https://shareous1.dexcom.com/ShareWebServices/Services"

	loginPath  = "/General/LoginPublisherAccountByName"
	latestPath = "/Publisher/ReadPublisherLatestGlucoseValues"
)

// Region selects which relay deployment an account lives on.
type Region string

const (
	RegionUS  Region = "us"
	RegionOUS Region = "ous"
)

// Endpoints is the immutable set of vendor constants a Client talks to. It is
// built once at startup and passed by value.
type Endpoints struct {
	BaseURL       string
	UserAgent     string
	ApplicationID string
}

// DefaultEndpoints returns the vendor defaults for the given region.
func DefaultEndpoints(region Region) (Endpoints, error) {
	var base string
	switch Region(strings.ToLower(string(region))) {
	case RegionUS, "":
		base = baseURLUS
	case RegionOUS:
		base = baseURLOUS
	default:
		return Endpoints{}, fmt.Errorf("unknown share region %q (want %q or %q)", region, RegionUS, RegionOUS)
	}

	return Endpoints{
		BaseURL:       base,
		UserAgent:     DefaultUserAgent,
		ApplicationID: DefaultApplicationID,
	}, nil
}

func (e Endpoints) loginURL() string {
	return strings.TrimRight(e.BaseURL, "/") + loginPath
}

func (e Endpoints) latestURL() string {
	return strings.TrimRight(e.BaseURL, "/") + latestPath
}
