package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/model"
)

// SearchType is the search_type parameter of /search.
type SearchType string

const (
	SearchAll      SearchType = "all"
	SearchName     SearchType = "name"
	SearchPostcode SearchType = "postcode"
	SearchArea     SearchType = "area"
)

// NearbyQuery is a /search/nearby request.
type NearbyQuery struct {
	Point    model.GeoPoint
	RadiusKm float64
	GFOnly   bool
	Page     int
}

// TextQuery is a /search request.
type TextQuery struct {
	Query  string
	Type   SearchType
	GFOnly bool
	Page   int
	// User, when set, lets the backend rank by distance.
	User *model.GeoPoint
}

// BeerQuery is a /search-by-beer request.
type BeerQuery struct {
	Query  string
	Kind   model.BeerKind
	GFOnly bool
	Page   int
}

// Nearby lists venues within RadiusKm of Point.
func (c *Client) Nearby(ctx context.Context, q NearbyQuery) (model.ResultPage, error) {
	const op = "backend.Nearby"

	page := max(q.Page, 1)
	// The backend parses the radius as a whole number of kilometres.
	radius := max(int(math.Ceil(q.RadiusKm)), 1)

	params := url.Values{}
	params.Set("lat", formatCoord(q.Point.Lat))
	params.Set("lng", formatCoord(q.Point.Lng))
	params.Set("radius", strconv.Itoa(radius))
	params.Set("gf_only", strconv.FormatBool(q.GFOnly))
	params.Set("page", strconv.Itoa(page))

	body, err := c.getJSON(ctx, op, "/search/nearby", params)
	if err != nil {
		return model.ResultPage{}, err
	}
	return decodePage(op, body, page)
}

// Search runs a free-text search.
func (c *Client) Search(ctx context.Context, q TextQuery) (model.ResultPage, error) {
	const op = "backend.Search"

	query := strings.TrimSpace(q.Query)
	if query == "" {
		return model.ResultPage{}, apperr.New(apperr.KindInvalidInput, "query is required").WithOp(op)
	}
	if q.Type == "" {
		q.Type = SearchAll
	}
	page := max(q.Page, 1)

	params := url.Values{}
	params.Set("query", query)
	params.Set("search_type", string(q.Type))
	params.Set("page", strconv.Itoa(page))
	params.Set("gf_only", strconv.FormatBool(q.GFOnly))
	if q.User != nil {
		params.Set("user_lat", formatCoord(q.User.Lat))
		params.Set("user_lng", formatCoord(q.User.Lng))
	}

	body, err := c.getJSON(ctx, op, "/search", params)
	if err != nil {
		return model.ResultPage{}, err
	}
	return decodePage(op, body, page)
}

// SearchByBeer lists venues reported to stock a matching beer. Matching on the backend is
// broad; callers filter the beer details themselves.
func (c *Client) SearchByBeer(ctx context.Context, q BeerQuery) (model.ResultPage, error) {
	const op = "backend.SearchByBeer"

	query := strings.TrimSpace(q.Query)
	if query == "" {
		return model.ResultPage{}, apperr.New(apperr.KindInvalidInput, "query is required").WithOp(op)
	}
	page := max(q.Page, 1)

	params := url.Values{}
	params.Set("query", query)
	params.Set("beer_type", string(q.Kind))
	params.Set("page", strconv.Itoa(page))
	params.Set("gf_only", strconv.FormatBool(q.GFOnly))

	body, err := c.getJSON(ctx, op, "/search-by-beer", params)
	if err != nil {
		return model.ResultPage{}, err
	}
	return decodePage(op, body, page)
}

// Venue fetches one venue by id.
func (c *Client) Venue(ctx context.Context, id int64) (model.VenueSummary, error) {
	const op = "backend.Venue"

	if id <= 0 {
		return model.VenueSummary{}, apperr.New(apperr.KindInvalidInput, "venue id must be positive").WithOp(op)
	}

	params := url.Values{}
	params.Set("pub_id", strconv.FormatInt(id, 10))

	body, err := c.getJSON(ctx, op, "/search", params)
	if err != nil {
		return model.VenueSummary{}, err
	}
	items, _, err := decodeVenues(body)
	if err != nil {
		return model.VenueSummary{}, decodeError(op, err)
	}
	for _, v := range items {
		if v.ID == id {
			return v, nil
		}
	}
	return model.VenueSummary{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("venue %d not found", id)).WithOp(op)
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// pagination is the envelope's paging block.
type pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

// envelope covers every enveloped shape the backend has produced. Pubs is the deprecated
// name of Venues.
type envelope struct {
	Venues     []rawVenue  `json:"venues"`
	Pubs       []rawVenue  `json:"pubs"`
	Pagination *pagination `json:"pagination"`
}

// decodeVenues accepts either a bare array or an envelope.
func decodeVenues(body []byte) ([]model.VenueSummary, *pagination, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, nil
	}

	var raws []rawVenue
	var pg *pagination
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, nil, err
		}
	} else {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, nil, err
		}
		raws = env.Venues
		if raws == nil {
			raws = env.Pubs
		}
		pg = env.Pagination
	}

	items := make([]model.VenueSummary, 0, len(raws))
	for _, r := range raws {
		items = append(items, r.summary())
	}
	return items, pg, nil
}

// decodePage normalizes a search response into a ResultPage for the requested page. Without a
// pagination block the whole array is the result set and is paged locally.
func decodePage(op string, body []byte, requested int) (model.ResultPage, error) {
	items, pg, err := decodeVenues(body)
	if err != nil {
		return model.ResultPage{}, decodeError(op, err)
	}

	if pg == nil {
		return pageLocally(items, requested), nil
	}

	out := model.ResultPage{
		Items:      items,
		PageNumber: pg.Page,
		PageCount:  pg.Pages,
		TotalCount: pg.Total,
	}
	if out.PageNumber < 1 {
		out.PageNumber = requested
	}
	if out.TotalCount < len(items) {
		out.TotalCount = len(items)
	}
	if out.PageCount < 1 && out.TotalCount > 0 {
		out.PageCount = (out.TotalCount + model.PageSize - 1) / model.PageSize
	}
	if out.PageCount > 0 && out.PageNumber > out.PageCount {
		out.PageNumber = out.PageCount
	}
	if out.PageCount == 0 {
		out.PageNumber = 1
	}
	if len(out.Items) > model.PageSize {
		out.Items = out.Items[:model.PageSize]
	}
	return out, nil
}

func pageLocally(items []model.VenueSummary, requested int) model.ResultPage {
	total := len(items)
	if total == 0 {
		return model.ResultPage{Items: []model.VenueSummary{}, PageNumber: 1}
	}
	pages := (total + model.PageSize - 1) / model.PageSize
	page := min(max(requested, 1), pages)

	start := (page - 1) * model.PageSize
	end := min(start+model.PageSize, total)
	return model.ResultPage{
		Items:      items[start:end],
		PageNumber: page,
		PageCount:  pages,
		TotalCount: total,
	}
}
