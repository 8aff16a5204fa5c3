package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/model"
)

type submissionBody struct {
	Success   *bool  `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	PendingID int64  `json:"pending_id"`
}

// SubmitBeerReport validates r and posts it for moderation.
func (c *Client) SubmitBeerReport(ctx context.Context, r model.BeerReport) (model.SubmissionResult, error) {
	const op = "backend.SubmitBeerReport"

	r.BeerFormat = strings.ToLower(strings.TrimSpace(r.BeerFormat))
	if err := c.validate.Struct(r); err != nil {
		return model.SubmissionResult{}, validationError(op, err)
	}
	if r.Name == "" {
		r.Name = "Anonymous"
	}
	return c.submit(ctx, op, "/api/submit_beer_update", r)
}

// AddVenue validates v and proposes it to the directory.
func (c *Client) AddVenue(ctx context.Context, v model.VenueSubmission) (model.SubmissionResult, error) {
	const op = "backend.AddVenue"

	if err := c.validate.Struct(v); err != nil {
		return model.SubmissionResult{}, validationError(op, err)
	}
	return c.submit(ctx, op, "/api/add_venue", v)
}

func (c *Client) submit(ctx context.Context, op, path string, payload any) (model.SubmissionResult, error) {
	body, err := c.postJSON(ctx, op, path, payload)
	if err != nil {
		// A rejected submission still carries the backend's reason.
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindInvalidInput {
			return model.SubmissionResult{Success: false, Message: ae.Message}, err
		}
		return model.SubmissionResult{}, err
	}

	var sb submissionBody
	if err := json.Unmarshal(body, &sb); err != nil {
		return model.SubmissionResult{}, decodeError(op, err)
	}

	res := model.SubmissionResult{
		Success:   sb.Error == "",
		Message:   sb.Message,
		PendingID: sb.PendingID,
	}
	if sb.Success != nil {
		res.Success = *sb.Success && sb.Error == ""
	}
	if sb.Error != "" && res.Message == "" {
		res.Message = sb.Error
	}
	c.logger.Info("submission sent", "op", op, "success", res.Success, "pending_id", res.PendingID)
	return res, nil
}

// Autocomplete returns suggestions for q. The backend ignores queries shorter than two
// characters, so those return nothing without a request.
func (c *Client) Autocomplete(ctx context.Context, q string, searchType SearchType, gfOnly bool) ([]model.Suggestion, error) {
	const op = "backend.Autocomplete"

	q = strings.TrimSpace(q)
	if len([]rune(q)) < 2 {
		return []model.Suggestion{}, nil
	}
	if searchType == "" {
		searchType = SearchAll
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("search_type", string(searchType))
	params.Set("gf_only", strconv.FormatBool(gfOnly))

	body, err := c.getJSON(ctx, op, "/autocomplete", params)
	if err != nil {
		return nil, err
	}
	out := []model.Suggestion{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, decodeError(op, err)
	}
	return out, nil
}

// Breweries lists brewery names, optionally filtered by q.
func (c *Client) Breweries(ctx context.Context, q string) ([]string, error) {
	const op = "backend.Breweries"

	params := url.Values{}
	if q = strings.TrimSpace(q); q != "" {
		params.Set("q", q)
	}
	body, err := c.getJSON(ctx, op, "/api/breweries", params)
	if err != nil {
		return nil, err
	}
	out := []string{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, decodeError(op, err)
	}
	return out, nil
}

// BreweryBeers lists the beers of one brewery, optionally filtered by q.
func (c *Client) BreweryBeers(ctx context.Context, brewery, q string) ([]model.Beer, error) {
	const op = "backend.BreweryBeers"

	brewery = strings.TrimSpace(brewery)
	if brewery == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "brewery is required").WithOp(op)
	}
	params := url.Values{}
	if q = strings.TrimSpace(q); q != "" {
		params.Set("q", q)
	}
	body, err := c.getJSON(ctx, op, "/api/brewery/"+url.PathEscape(brewery)+"/beers", params)
	if err != nil {
		return nil, err
	}
	out := []model.Beer{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, decodeError(op, err)
	}
	return out, nil
}

// Stats returns directory coverage counts.
func (c *Client) Stats(ctx context.Context) (model.Stats, error) {
	const op = "backend.Stats"

	body, err := c.getJSON(ctx, op, "/api/stats", nil)
	if err != nil {
		return model.Stats{}, err
	}
	var s model.Stats
	if err := json.Unmarshal(body, &s); err != nil {
		return model.Stats{}, decodeError(op, err)
	}
	return s, nil
}
