package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gfbeer/venue-finder/internal/model"
)

// number decodes a JSON number that may arrive quoted (decimal columns), as a boolean flag, or
// as null.
type number struct {
	v *float64
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "null", `""`:
		n.v = nil
		return nil
	case "true":
		one := 1.0
		n.v = &one
		return nil
	case "false":
		zero := 0.0
		n.v = &zero
		return nil
	}

	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("decode number %q: %w", s, err)
	}
	n.v = &f
	return nil
}

func (n number) ptr() *float64 {
	if n.v == nil {
		return nil
	}
	f := *n.v
	return &f
}

func (n number) positive() bool {
	return n.v != nil && *n.v > 0
}

// rawVenue is a venue as the backend sends it.
type rawVenue struct {
	ID             number `json:"pub_id"`
	AltID          number `json:"id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	Postcode       string `json:"postcode"`
	City           string `json:"city"`
	LocalAuthority string `json:"local_authority"`
	Latitude       number `json:"latitude"`
	Longitude      number `json:"longitude"`
	Distance       number `json:"distance"`
	GFStatus       string `json:"gf_status"`
	BeerDetails    string `json:"beer_details"`
	Bottle         number `json:"bottle"`
	Tap            number `json:"tap"`
	Cask           number `json:"cask"`
	Can            number `json:"can"`
}

func (r rawVenue) summary() model.VenueSummary {
	v := model.VenueSummary{
		Name:        strings.TrimSpace(r.Name),
		Address:     strings.TrimSpace(r.Address),
		Postcode:    strings.TrimSpace(r.Postcode),
		City:        strings.TrimSpace(r.City),
		Latitude:    r.Latitude.ptr(),
		Longitude:   r.Longitude.ptr(),
		GFStatus:    r.status(),
		BeerDetails: strings.TrimSpace(r.BeerDetails),
		DistanceKm:  r.Distance.ptr(),
	}
	if v.City == "" {
		v.City = strings.TrimSpace(r.LocalAuthority)
	}
	switch {
	case r.ID.v != nil:
		v.ID = int64(*r.ID.v)
	case r.AltID.v != nil:
		v.ID = int64(*r.AltID.v)
	}
	// 0,0 is the directory's placeholder for an unknown position.
	if v.Latitude != nil && v.Longitude != nil && *v.Latitude == 0 && *v.Longitude == 0 {
		v.Latitude, v.Longitude = nil, nil
	}
	return v
}

// status prefers an explicit gf_status and otherwise derives one from the format flags.
func (r rawVenue) status() model.GFStatus {
	if s := strings.TrimSpace(r.GFStatus); s != "" {
		return model.ParseGFStatus(s)
	}
	flags := []number{r.Bottle, r.Tap, r.Cask, r.Can}
	seen := false
	for _, f := range flags {
		if f.positive() {
			return model.GFCurrently
		}
		if f.v != nil {
			seen = true
		}
	}
	if seen {
		return model.GFNotCurrently
	}
	return model.GFUnknown
}
