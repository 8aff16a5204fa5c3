package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the search variant carried by a SearchDescriptor.
type Mode string

const (
	ModeProximity Mode = "proximity"
	ModeName      Mode = "name"
	ModeArea      Mode = "area"
	ModeBeer      Mode = "beer"
)

// AreaKind narrows an area search.
type AreaKind string

const (
	AreaCity     AreaKind = "city"
	AreaPostcode AreaKind = "postcode"
)

// BeerKind narrows a beer search.
type BeerKind string

const (
	BeerBrewery BeerKind = "brewery"
	BeerName    BeerKind = "beer"
	BeerStyle   BeerKind = "style"
)

// SearchDescriptor is everything needed to replay a search, for pagination or for returning
// to results. Only the fields relevant to Mode are set.
type SearchDescriptor struct {
	Mode     Mode             `json:"mode"`
	RadiusKm float64          `json:"radius_km,omitempty"`
	Query    string           `json:"query,omitempty"`
	AreaKind AreaKind         `json:"area_kind,omitempty"`
	BeerKind BeerKind         `json:"beer_kind,omitempty"`
	GFOnly   bool             `json:"gf_only"`
	Anchor   *LocationReading `json:"anchor,omitempty"`
	Page     int              `json:"page"`

	// Geocoded is set when a postcode area search found nothing directly and fell back to a
	// proximity search around the geocoded point.
	Geocoded *GeoPoint `json:"geocoded,omitempty"`

	IssuedAt time.Time `json:"issued_at"`
}

func ProximitySearch(radiusKm float64) SearchDescriptor {
	return SearchDescriptor{Mode: ModeProximity, RadiusKm: radiusKm, Page: 1}
}

func NameSearch(query string) SearchDescriptor {
	return SearchDescriptor{Mode: ModeName, Query: strings.TrimSpace(query), Page: 1}
}

func AreaSearch(query string, kind AreaKind) SearchDescriptor {
	return SearchDescriptor{Mode: ModeArea, Query: strings.TrimSpace(query), AreaKind: kind, Page: 1}
}

func BeerSearch(query string, kind BeerKind) SearchDescriptor {
	return SearchDescriptor{Mode: ModeBeer, Query: strings.TrimSpace(query), BeerKind: kind, Page: 1}
}

// WithPage returns a copy of d targeting page n.
func (d SearchDescriptor) WithPage(n int) SearchDescriptor {
	d.Page = n
	return d
}

// HasAnchor reports whether results should carry distances.
func (d SearchDescriptor) HasAnchor() bool {
	return d.Anchor != nil
}

// Validate checks the variant-specific fields.
func (d SearchDescriptor) Validate() error {
	if d.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", d.Page)
	}

	switch d.Mode {
	case ModeProximity:
		if d.RadiusKm <= 0 {
			return fmt.Errorf("radius must be positive, got %g", d.RadiusKm)
		}
		return nil
	case ModeName:
	case ModeArea:
		if d.AreaKind != AreaCity && d.AreaKind != AreaPostcode {
			return fmt.Errorf("unknown area kind %q", d.AreaKind)
		}
	case ModeBeer:
		if d.BeerKind != BeerBrewery && d.BeerKind != BeerName && d.BeerKind != BeerStyle {
			return fmt.Errorf("unknown beer kind %q", d.BeerKind)
		}
	default:
		return fmt.Errorf("unknown search mode %q", d.Mode)
	}

	if strings.TrimSpace(d.Query) == "" {
		return fmt.Errorf("%s search needs a query", d.Mode)
	}
	return nil
}
