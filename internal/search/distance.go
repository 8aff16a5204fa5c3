package search

import (
	"cmp"
	"slices"

	"gfbeer/venue-finder/internal/geo"
	"gfbeer/venue-finder/internal/model"
)

// SortByDistance orders items nearest first from origin and sets their DistanceKm. Items
// without coordinates keep a nil distance and sort after every located item, in their
// original relative order.
func SortByDistance(items []model.VenueSummary, origin model.GeoPoint) {
	for i := range items {
		d := geo.VenueDistanceKm(origin, items[i])
		if d == geo.UnknownDistanceKm {
			items[i].DistanceKm = nil
		} else {
			km := d
			items[i].DistanceKm = &km
		}
	}

	slices.SortStableFunc(items, func(a, b model.VenueSummary) int {
		return cmp.Compare(distanceKey(a), distanceKey(b))
	})
}

func distanceKey(v model.VenueSummary) float64 {
	if v.DistanceKm == nil {
		return geo.UnknownDistanceKm
	}
	return *v.DistanceKm
}

// clearDistances drops distances the backend supplied. Without an anchor the user has no
// reference point for them.
func clearDistances(items []model.VenueSummary) {
	for i := range items {
		items[i].DistanceKm = nil
	}
}
