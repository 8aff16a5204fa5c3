package model

// BeerReport tells the backend which gluten-free beer was found at a venue.
type BeerReport struct {
	VenueID    int64  `json:"pub_id" validate:"required,gt=0"`
	BeerFormat string `json:"beer_format" validate:"required,oneof=bottle tap cask can"`
	Brewery    string `json:"brewery,omitempty" validate:"max=100"`
	BeerName   string `json:"beer_name,omitempty" validate:"max=100"`
	Style      string `json:"style,omitempty" validate:"max=60"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Name       string `json:"name,omitempty" validate:"max=80"`
	Notes      string `json:"notes,omitempty" validate:"max=1000"`
	PhotoURL   string `json:"photo_url,omitempty" validate:"omitempty,url"`
}

// VenueSubmission proposes a venue missing from the directory.
type VenueSubmission struct {
	Name      string   `json:"name" validate:"required,max=120"`
	Address   string   `json:"address" validate:"required,max=200"`
	Postcode  string   `json:"postcode" validate:"required,max=10"`
	City      string   `json:"city,omitempty" validate:"max=80"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Email     string   `json:"email,omitempty" validate:"omitempty,email"`
}

// SubmissionResult is the backend's answer to a POST.
type SubmissionResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	PendingID int64  `json:"pending_id,omitempty"`
}

// Suggestion is one autocomplete hit.
type Suggestion struct {
	ID       int64  `json:"pub_id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
}

// Beer is a beer known to the directory.
type Beer struct {
	ID           int64    `json:"beer_id"`
	Name         string   `json:"name"`
	Style        string   `json:"style"`
	ABV          *float64 `json:"abv,omitempty"`
	GlutenStatus string   `json:"gluten_status,omitempty"`
	VeganStatus  string   `json:"vegan_status,omitempty"`
}

// Stats summarises directory coverage.
type Stats struct {
	TotalVenues int `json:"total_pubs"`
	GFVenues    int `json:"gf_pubs"`
}
