package geo

import (
	"math"
	"testing"

	"gfbeer/venue-finder/internal/model"
)

func TestHaversineKm(t *testing.T) {
	cases := []struct {
		name   string
		p1, p2 model.GeoPoint
		wantKm float64
		tolKm  float64
	}{
		{
			name:   "same_point",
			p1:     model.GeoPoint{Lat: 51.5014, Lng: -0.1419},
			p2:     model.GeoPoint{Lat: 51.5014, Lng: -0.1419},
			wantKm: 0,
			tolKm:  1e-9,
		},
		{
			// Buckingham Palace to Newcastle city centre.
			name:   "london_to_newcastle",
			p1:     model.GeoPoint{Lat: 51.5014, Lng: -0.1419},
			p2:     model.GeoPoint{Lat: 54.9783, Lng: -1.6178},
			wantKm: 398,
			tolKm:  5,
		},
		{
			name:   "one_degree_of_latitude",
			p1:     model.GeoPoint{Lat: 0, Lng: 0},
			p2:     model.GeoPoint{Lat: 1, Lng: 0},
			wantKm: 111.19,
			tolKm:  0.05,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HaversineKm(tc.p1, tc.p2)
			if math.IsNaN(got) {
				t.Fatal("distance is NaN")
			}
			if math.Abs(got-tc.wantKm) > tc.tolKm {
				t.Errorf("got %.3f km, want %.3f ± %.3f", got, tc.wantKm, tc.tolKm)
			}
		})
	}
}

func TestVenueDistanceKmWithoutCoordinates(t *testing.T) {
	v := model.VenueSummary{ID: 1, Name: "No Coords"}
	if got := VenueDistanceKm(model.GeoPoint{}, v); got != UnknownDistanceKm {
		t.Errorf("got %v, want sentinel", got)
	}
}

func TestIsPostcode(t *testing.T) {
	cases := map[string]bool{
		"SW1A 1AA":  true,
		"sw1a1aa":   true,
		"NE1 1AA":   true,
		"M1 1AE":    true,
		" B33 8TH ": true,
		"SW1A":      false,
		"Leeds":     false,
		"12345":     false,
		"":          false,
	}
	for in, want := range cases {
		if got := IsPostcode(in); got != want {
			t.Errorf("IsPostcode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizePostcode(t *testing.T) {
	cases := map[string]string{
		"sw1a1aa":   "SW1A 1AA",
		"NE1  1AA":  "NE1 1AA",
		"m1 1ae":    "M1 1AE",
		"Sheffield": "SHEFFIELD",
	}
	for in, want := range cases {
		if got := NormalizePostcode(in); got != want {
			t.Errorf("NormalizePostcode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCellIsCoarse(t *testing.T) {
	a := Cell(model.GeoPoint{Lat: 51.4900, Lng: -0.1419})
	b := Cell(model.GeoPoint{Lat: 51.4902, Lng: -0.1421})
	if len(a) != logPrecision {
		t.Fatalf("cell length = %d, want %d", len(a), logPrecision)
	}
	if a != b {
		t.Errorf("nearby points landed in different cells: %s vs %s", a, b)
	}
}
