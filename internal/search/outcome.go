package search

import (
	"fmt"
	"strings"

	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/model"
)

// Outcome is the presentation text for a finished search.
type Outcome struct {
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// DescribeOutcome titles a result set. Message is only set when there is nothing to show.
func DescribeOutcome(d model.SearchDescriptor, count int, hasAnchor bool) Outcome {
	var subject string
	switch d.Mode {
	case model.ModeProximity:
		subject = fmt.Sprintf("within %s of you", formatKm(d.RadiusKm))
	case model.ModeName:
		subject = fmt.Sprintf("matching %q", d.Query)
	case model.ModeArea:
		if d.AreaKind == model.AreaPostcode {
			subject = "near " + d.Query
		} else {
			subject = "in " + d.Query
		}
	case model.ModeBeer:
		subject = fmt.Sprintf("serving %s %q", beerKindLabel(d.BeerKind), d.Query)
	}

	noun := "venues"
	if d.GFOnly {
		noun = "gluten-free venues"
	}

	if count == 0 {
		return Outcome{
			Title:   fmt.Sprintf("No %s %s", noun, subject),
			Message: emptyHint(d),
		}
	}

	title := fmt.Sprintf("%d %s %s", count, noun, subject)
	if count == 1 {
		title = fmt.Sprintf("1 %s %s", singular(noun), subject)
	}
	if hasAnchor {
		title += ", nearest first"
	}
	return Outcome{Title: title}
}

func emptyHint(d model.SearchDescriptor) string {
	switch d.Mode {
	case model.ModeProximity:
		return "Nothing found nearby. Try a larger radius, or search by area or postcode."
	case model.ModeName:
		return "No venue names matched. Check the spelling or try part of the name."
	case model.ModeArea:
		if d.AreaKind == model.AreaPostcode {
			return "Nothing found for that postcode. Try the first half of the postcode or a nearby town."
		}
		return "Nothing found in that area. Try a nearby town or a postcode."
	case model.ModeBeer:
		return "No venues have reported that beer yet. Try a shorter or different spelling."
	}
	return "No results."
}

// FailureMessage turns a dispatch error into guidance for the user.
func FailureMessage(d model.SearchDescriptor, err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindLocationRequired:
		switch apperr.Cause(err) {
		case apperr.KindPermissionDenied:
			return "Location access is blocked. Allow it in your browser settings, or search by area or postcode instead."
		case apperr.KindLocationTimeout:
			return "Finding your location took too long. Try again, or search by area or postcode."
		case apperr.KindAcquisitionInProgress:
			return "Still finding your location. Please wait a moment."
		default:
			return "Your location could not be determined. Try searching by area or postcode instead."
		}
	case apperr.KindInvalidInput:
		switch {
		case d.Mode == model.ModeProximity:
			return "Choose a search radius greater than zero."
		case strings.TrimSpace(d.Query) == "":
			return "Please enter something to search for."
		case d.Mode == model.ModeBeer:
			return "Choose whether to search by brewery, beer or style."
		case d.Mode == model.ModeArea:
			return "Choose whether to search by town or postcode."
		default:
			return "That search could not be run. Please check it and try again."
		}
	case apperr.KindNotFound:
		return "Nothing matched your search."
	case apperr.KindBackendUnavailable:
		return "Search is unavailable right now. Please try again in a moment."
	default:
		return "Something went wrong with that search. Please try again."
	}
}

// LoadingMessage is shown while a search runs.
func LoadingMessage(d model.SearchDescriptor) string {
	switch d.Mode {
	case model.ModeProximity:
		return "Finding venues near you..."
	case model.ModeBeer:
		return "Searching beer reports..."
	default:
		return "Searching..."
	}
}

func beerKindLabel(k model.BeerKind) string {
	switch k {
	case model.BeerBrewery:
		return "brewery"
	case model.BeerStyle:
		return "style"
	default:
		return "beer"
	}
}

func formatKm(km float64) string {
	if km == float64(int(km)) {
		return fmt.Sprintf("%d km", int(km))
	}
	return fmt.Sprintf("%.1f km", km)
}

func singular(noun string) string {
	if noun == "gluten-free venues" {
		return "gluten-free venue"
	}
	return "venue"
}
