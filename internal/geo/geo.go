// Package geo holds the distance and postcode helpers used by the search core.
package geo

import (
	"math"
	"regexp"
	"strings"

	"github.com/mmcloughlin/geohash"

	"gfbeer/venue-finder/internal/model"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// UnknownDistanceKm sorts venues without coordinates after every real distance.
const UnknownDistanceKm = math.MaxFloat64

// logPrecision keeps logged positions to a ~5km cell.
const logPrecision = 5

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180.0
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(p1, p2 model.GeoPoint) float64 {
	lat1 := degreesToRadians(p1.Lat)
	lon1 := degreesToRadians(p1.Lng)
	lat2 := degreesToRadians(p2.Lat)
	lon2 := degreesToRadians(p2.Lng)

	dLat := lat2 - lat1
	dLon := lon2 - lon1
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// VenueDistanceKm returns the distance from anchor to v, or UnknownDistanceKm when v has no
// coordinates.
func VenueDistanceKm(anchor model.GeoPoint, v model.VenueSummary) float64 {
	if !v.HasCoordinates() {
		return UnknownDistanceKm
	}
	return HaversineKm(anchor, model.GeoPoint{Lat: *v.Latitude, Lng: *v.Longitude})
}

// Cell returns a coarse geohash of p, safe to log.
func Cell(p model.GeoPoint) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, logPrecision)
}

// UK postcodes: outward code (area letters, district digit, optional letter/digit) followed by
// an inward code (digit + two letters). The space is optional.
var postcodePattern = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?\s*[0-9][A-Z]{2}$`)

// Partial postcodes such as "SW1A" or "NE1" are outward codes only.
var outwardPattern = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?$`)

// IsPostcode reports whether s is shaped like a full UK postcode.
func IsPostcode(s string) bool {
	return postcodePattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// IsOutwardCode reports whether s is shaped like the outward half of a UK postcode.
func IsOutwardCode(s string) bool {
	return outwardPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// NormalizePostcode upper-cases s and puts a single space before the inward code.
func NormalizePostcode(s string) string {
	compact := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(compact) < 5 || !IsPostcode(compact) {
		return strings.ToUpper(strings.TrimSpace(s))
	}
	return compact[:len(compact)-3] + " " + compact[len(compact)-3:]
}
