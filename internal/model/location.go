package model

import (
	"errors"
	"math"
	"time"
)

// LocationTTL bounds how long an acquired reading may anchor a fresh search.
const LocationTTL = 5 * time.Minute

// GeoPoint is a bare WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationReading is a single position fix. Values are immutable once created; callers
// receive copies.
type LocationReading struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	AcquiredAt     time.Time `json:"acquired_at"`
}

// NewLocationReading validates and builds a reading.
func NewLocationReading(lat, lng, accuracy float64, at time.Time) (LocationReading, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return LocationReading{}, errors.New("coordinates out of range")
	}
	if math.IsNaN(accuracy) || accuracy < 0 {
		return LocationReading{}, errors.New("accuracy must be non-negative")
	}
	return LocationReading{
		Latitude:       lat,
		Longitude:      lng,
		AccuracyMeters: accuracy,
		AcquiredAt:     at,
	}, nil
}

// Point returns the coordinate pair of the reading.
func (r LocationReading) Point() GeoPoint {
	return GeoPoint{Lat: r.Latitude, Lng: r.Longitude}
}

// Age reports how old the reading is at now.
func (r LocationReading) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt)
}

// Expired reports whether the reading is past LocationTTL.
func (r LocationReading) Expired(now time.Time) bool {
	return r.Age(now) >= LocationTTL
}
