package model

// PageSize is fixed by the backend.
const PageSize = 20

// GFStatus classifies gluten-free beer availability at a venue.
type GFStatus string

const (
	GFAlwaysTapCask   GFStatus = "always_tap_cask"
	GFAlwaysBottleCan GFStatus = "always_bottle_can"
	GFCurrently       GFStatus = "currently"
	GFNotCurrently    GFStatus = "not_currently"
	GFUnknown         GFStatus = "unknown"
)

// ParseGFStatus maps a backend string onto a known status, defaulting to GFUnknown.
func ParseGFStatus(s string) GFStatus {
	switch GFStatus(s) {
	case GFAlwaysTapCask, GFAlwaysBottleCan, GFCurrently, GFNotCurrently:
		return GFStatus(s)
	default:
		return GFUnknown
	}
}

// VenueSummary is one search hit. DistanceKm is derived from the search anchor and is nil
// when no anchor was available.
type VenueSummary struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Postcode    string   `json:"postcode"`
	City        string   `json:"city"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	GFStatus    GFStatus `json:"gf_status"`
	BeerDetails string   `json:"beer_details,omitempty"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
}

// HasCoordinates reports whether the venue can be placed on a map.
func (v VenueSummary) HasCoordinates() bool {
	return v.Latitude != nil && v.Longitude != nil
}

// ResultPage is one page of normalized results.
type ResultPage struct {
	Items      []VenueSummary `json:"items"`
	PageNumber int            `json:"page_number"`
	PageCount  int            `json:"page_count"`
	TotalCount int            `json:"total_count"`
}

// Empty reports a valid zero-count outcome.
func (p ResultPage) Empty() bool {
	return p.TotalCount == 0 && len(p.Items) == 0
}

// HasNext reports whether a following page exists.
func (p ResultPage) HasNext() bool {
	return p.PageCount > 0 && p.PageNumber < p.PageCount
}

// HasPrevious reports whether a preceding page exists.
func (p ResultPage) HasPrevious() bool {
	return p.PageCount > 0 && p.PageNumber > 1
}

// ViewState is the active presentation of the current results.
type ViewState string

const (
	ViewList ViewState = "list"
	ViewMap  ViewState = "map"
)
