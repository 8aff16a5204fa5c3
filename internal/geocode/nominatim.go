// Package geocode resolves free-text places, chiefly UK postcodes, to coordinates through a
// Nominatim-compatible service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/model"
)

// DefaultEndpoint is the public OpenStreetMap search endpoint.
const DefaultEndpoint = "https://nominatim.openstreetmap.org/search"

// DefaultCacheTTL is how long a resolved query is reused.
const DefaultCacheTTL = 30 * 24 * time.Hour

// Cache keeps resolved queries. Implementations report a miss with ok == false.
type Cache interface {
	CachedGeocode(ctx context.Context, key string, now time.Time) (p model.GeoPoint, ok bool, err error)
	SaveGeocode(ctx context.Context, key string, p model.GeoPoint, expires time.Time) error
}

// Option configures a Geocoder.
type Option func(*Geocoder)

// WithCache reuses earlier answers.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *Geocoder) {
		g.cache = c
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// Geocoder is safe for concurrent use. Requests are rate limited to respect the usage policy
// of public instances.
type Geocoder struct {
	endpoint     string
	userAgent    string
	countryCodes string
	client       *http.Client
	limiter      *rate.Limiter
	cache        Cache
	ttl          time.Duration
	logger       *slog.Logger
}

// New builds a geocoder. rps <= 0 disables rate limiting.
func New(endpoint, userAgent string, rps float64, logger *slog.Logger, opts ...Option) *Geocoder {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	g := &Geocoder{
		endpoint:     endpoint,
		userAgent:    userAgent,
		countryCodes: "gb",
		client:       &http.Client{Timeout: 5 * time.Second},
		limiter:      rate.NewLimiter(limit, 1),
		ttl:          DefaultCacheTTL,
		logger:       logger,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the best match for query. No match is KindNotFound.
func (g *Geocoder) Geocode(ctx context.Context, query string) (model.GeoPoint, error) {
	const op = "geocode.Geocode"

	query = strings.TrimSpace(query)
	if query == "" {
		return model.GeoPoint{}, apperr.New(apperr.KindInvalidInput, "nothing to geocode").WithOp(op)
	}
	key := cacheKey(query)

	if g.cache != nil {
		p, ok, err := g.cache.CachedGeocode(ctx, key, time.Now())
		if err != nil {
			g.logger.Warn("geocode cache read failed", "error", err)
		} else if ok {
			return p, nil
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return model.GeoPoint{}, apperr.Wrap(apperr.KindBackendUnavailable, "geocoder busy", err).WithOp(op)
	}

	p, err := g.lookup(ctx, op, query)
	if err != nil {
		return model.GeoPoint{}, err
	}

	if g.cache != nil {
		if err := g.cache.SaveGeocode(ctx, key, p, time.Now().Add(g.ttl)); err != nil {
			g.logger.Warn("geocode cache write failed", "error", err)
		}
	}
	return p, nil
}

func (g *Geocoder) lookup(ctx context.Context, op, query string) (model.GeoPoint, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("format", "json")
	params.Add("limit", "1")
	if g.countryCodes != "" {
		params.Add("countrycodes", g.countryCodes)
	}

	reqURL := fmt.Sprintf("%s?%s", g.endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.GeoPoint{}, apperr.Wrap(apperr.KindInvalidInput, "build geocode request", err).WithOp(op)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("nominatim request failed", "error", err)
		return model.GeoPoint{}, apperr.Wrap(apperr.KindBackendUnavailable, "geocoder unreachable", err).WithOp(op)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		g.logger.Error("nominatim upstream error", "status", resp.StatusCode)
		return model.GeoPoint{}, apperr.Wrap(apperr.KindBackendUnavailable, "geocoder error", fmt.Errorf("upstream status %d", resp.StatusCode)).WithOp(op)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		g.logger.Error("failed to decode nominatim payload", "error", err)
		return model.GeoPoint{}, apperr.Wrap(apperr.KindBackendUnavailable, "geocoder sent an unexpected response", err).WithOp(op)
	}

	for _, r := range results {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		g.logger.Debug("geocoded", "query", query, "match", r.DisplayName)
		return model.GeoPoint{Lat: lat, Lng: lng}, nil
	}
	return model.GeoPoint{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("no location found for %q", query)).WithOp(op)
}

func cacheKey(query string) string {
	return "q:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}
