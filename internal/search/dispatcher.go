// Package search dispatches the four search modes against the backend, orders the results
// and hands them to the result store and the view.
package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gfbeer/venue-finder/internal/analytics"
	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/backend"
	"gfbeer/venue-finder/internal/geo"
	"gfbeer/venue-finder/internal/geolocation"
	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/results"
)

// DefaultFallbackRadiusKm bounds the nearby search run around a geocoded postcode.
const DefaultFallbackRadiusKm = 5.0

// Backend is the part of backend.Client the dispatcher uses.
type Backend interface {
	Nearby(ctx context.Context, q backend.NearbyQuery) (model.ResultPage, error)
	Search(ctx context.Context, q backend.TextQuery) (model.ResultPage, error)
	SearchByBeer(ctx context.Context, q backend.BeerQuery) (model.ResultPage, error)
	Venue(ctx context.Context, id int64) (model.VenueSummary, error)
}

// Locator supplies anchors. geolocation.Acquirer implements it.
type Locator interface {
	Current(ctx context.Context) (geolocation.Fix, error)
	BestEffort(ctx context.Context) *model.LocationReading
	Cached() (model.LocationReading, bool)
}

// Geocoder resolves postcodes the backend does not know.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (model.GeoPoint, error)
}

// ResultWriter is the store the dispatcher owns.
type ResultWriter interface {
	SetCurrent(ctx context.Context, d model.SearchDescriptor, page model.ResultPage, title string) *results.Entry
}

// Presenter is the view synchronizer.
type Presenter interface {
	Display(e *results.Entry)
	NoResults(message string)
	Loading(message string)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithGeocoder enables the postcode fallback.
func WithGeocoder(g Geocoder) Option {
	return func(d *Dispatcher) { d.geocoder = g }
}

// WithGFOnly restricts every search to venues with gluten-free options.
func WithGFOnly(on bool) Option {
	return func(d *Dispatcher) { d.gfOnly = on }
}

// WithFallbackRadius sets the radius used around a geocoded postcode.
func WithFallbackRadius(km float64) Option {
	return func(d *Dispatcher) {
		if km > 0 {
			d.fallbackRadiusKm = km
		}
	}
}

// WithAnalytics reports searches.
func WithAnalytics(s analytics.Sink) Option {
	return func(d *Dispatcher) { d.tracker = s }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher runs searches. Overlapping searches are allowed; only the most recently issued
// one may write the store or reach the view.
type Dispatcher struct {
	backend  Backend
	locator  Locator
	store    ResultWriter
	view     Presenter
	geocoder Geocoder
	tracker  analytics.Sink
	logger   *slog.Logger
	now      func() time.Time

	gfOnly           bool
	fallbackRadiusKm float64

	issued   atomic.Uint64
	commitMu sync.Mutex
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(b Backend, locator Locator, store ResultWriter, view Presenter, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:          b,
		locator:          locator,
		store:            store,
		view:             view,
		tracker:          analytics.Nop,
		logger:           logger,
		now:              time.Now,
		fallbackRadiusKm: DefaultFallbackRadiusKm,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Proximity searches around the user's location. Without a location it fails with
// KindLocationRequired and the store is left untouched.
func (d *Dispatcher) Proximity(ctx context.Context, radiusKm float64) (*results.Entry, error) {
	return d.Submit(ctx, model.ProximitySearch(radiusKm))
}

// Name searches venue names.
func (d *Dispatcher) Name(ctx context.Context, query string) (*results.Entry, error) {
	return d.Submit(ctx, model.NameSearch(query))
}

// Area searches a town or postcode. An empty kind is inferred from the query's shape.
func (d *Dispatcher) Area(ctx context.Context, query string, kind model.AreaKind) (*results.Entry, error) {
	if kind == "" {
		kind = AreaKindFor(query)
	}
	return d.Submit(ctx, model.AreaSearch(query, kind))
}

// AreaKindFor classifies an area query by shape: full or outward postcodes are postcodes,
// anything else is a town or city.
func AreaKindFor(query string) model.AreaKind {
	if geo.IsPostcode(query) || geo.IsOutwardCode(query) {
		return model.AreaPostcode
	}
	return model.AreaCity
}

// Beer searches venues by reported beers. An empty kind searches beer names.
func (d *Dispatcher) Beer(ctx context.Context, query string, kind model.BeerKind) (*results.Entry, error) {
	if kind == "" {
		kind = model.BeerName
	}
	return d.Submit(ctx, model.BeerSearch(query, kind))
}

// Submit runs a new search from a fresh descriptor, applying the dispatcher's defaults.
func (d *Dispatcher) Submit(ctx context.Context, desc model.SearchDescriptor) (*results.Entry, error) {
	desc.GFOnly = desc.GFOnly || d.gfOnly
	desc.Anchor = nil
	desc.Geocoded = nil
	return d.dispatch(ctx, desc)
}

// Replay re-runs desc as stored, anchor and geocoded point included, so every page of a
// search is computed the same way.
func (d *Dispatcher) Replay(ctx context.Context, desc model.SearchDescriptor) (*results.Entry, error) {
	return d.dispatch(ctx, desc)
}

// Rerun repeats desc with a fresh anchor and lookups, keeping its page.
func (d *Dispatcher) Rerun(ctx context.Context, desc model.SearchDescriptor) (*results.Entry, error) {
	desc.Anchor = nil
	desc.Geocoded = nil
	return d.dispatch(ctx, desc)
}

// Venue fetches one venue, with a distance only when a fresh location is cached.
func (d *Dispatcher) Venue(ctx context.Context, id int64) (model.VenueSummary, error) {
	v, err := d.backend.Venue(ctx, id)
	if err != nil {
		return model.VenueSummary{}, err
	}
	v.DistanceKm = nil
	if r, ok := d.locator.Cached(); ok && v.HasCoordinates() {
		km := geo.VenueDistanceKm(r.Point(), v)
		v.DistanceKm = &km
	}
	return v, nil
}

// dispatch returns (nil, nil) when a newer search superseded this one.
func (d *Dispatcher) dispatch(ctx context.Context, desc model.SearchDescriptor) (*results.Entry, error) {
	token := d.issued.Add(1)
	desc.IssuedAt = d.now()

	logger := d.logger.With("mode", desc.Mode, "page", desc.Page, "token", token)

	if err := desc.Validate(); err != nil {
		return d.fail(token, desc, apperr.Wrap(apperr.KindInvalidInput, "invalid search", err).WithOp("search.Dispatch"), logger)
	}

	d.view.Loading(LoadingMessage(desc))

	if err := d.resolveAnchor(ctx, &desc); err != nil {
		return d.fail(token, desc, err, logger)
	}

	page, err := d.fetch(ctx, &desc, logger)
	if err != nil {
		return d.fail(token, desc, err, logger)
	}

	if desc.Anchor != nil {
		SortByDistance(page.Items, desc.Anchor.Point())
	} else {
		clearDistances(page.Items)
	}

	outcome := DescribeOutcome(desc, page.TotalCount, desc.Anchor != nil)

	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	if !d.latest(token) {
		logger.Debug("dropping superseded response")
		return nil, nil
	}

	entry := d.store.SetCurrent(ctx, desc, page, outcome.Title)
	if page.Empty() {
		d.view.NoResults(outcome.Title + ". " + outcome.Message)
	} else {
		d.view.Display(entry)
	}

	logger.Info("search complete", "total", page.TotalCount, "anchored", desc.Anchor != nil)
	d.tracker.Track(analytics.NewEvent("search", analytics.CategorySearch, string(desc.Mode)).WithCount(page.TotalCount))
	return entry, nil
}

func (d *Dispatcher) latest(token uint64) bool {
	return d.issued.Load() == token
}

func (d *Dispatcher) fail(token uint64, desc model.SearchDescriptor, err error, logger *slog.Logger) (*results.Entry, error) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	if !d.latest(token) {
		logger.Debug("dropping superseded failure", "error", err)
		return nil, nil
	}

	logger.Info("search failed", "reason", apperr.KindOf(err).String(), "error", err)
	d.tracker.Track(analytics.NewEvent("search_failed", analytics.CategorySearch, apperr.KindOf(err).String()))
	d.view.NoResults(FailureMessage(desc, err))
	return nil, err
}

// resolveAnchor makes sure a proximity search has a location and gives other modes one when
// it is cheap to get.
func (d *Dispatcher) resolveAnchor(ctx context.Context, desc *model.SearchDescriptor) error {
	if desc.Anchor != nil {
		return nil
	}
	if desc.Mode != model.ModeProximity {
		desc.Anchor = d.locator.BestEffort(ctx)
		return nil
	}

	fix, err := d.locator.Current(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindLocationRequired, "a location is needed to search nearby", err).WithOp("search.Proximity")
	}
	r := fix.Reading
	desc.Anchor = &r
	return nil
}

func (d *Dispatcher) fetch(ctx context.Context, desc *model.SearchDescriptor, logger *slog.Logger) (model.ResultPage, error) {
	var user *model.GeoPoint
	if desc.Anchor != nil {
		p := desc.Anchor.Point()
		user = &p
	}

	switch desc.Mode {
	case model.ModeProximity:
		return d.backend.Nearby(ctx, backend.NearbyQuery{
			Point:    desc.Anchor.Point(),
			RadiusKm: desc.RadiusKm,
			GFOnly:   desc.GFOnly,
			Page:     desc.Page,
		})

	case model.ModeName:
		return d.backend.Search(ctx, backend.TextQuery{
			Query:  desc.Query,
			Type:   backend.SearchName,
			GFOnly: desc.GFOnly,
			Page:   desc.Page,
			User:   user,
		})

	case model.ModeArea:
		if desc.AreaKind == model.AreaPostcode {
			return d.fetchPostcode(ctx, desc, user, logger)
		}
		return d.backend.Search(ctx, backend.TextQuery{
			Query:  desc.Query,
			Type:   backend.SearchArea,
			GFOnly: desc.GFOnly,
			Page:   desc.Page,
			User:   user,
		})

	case model.ModeBeer:
		page, err := d.backend.SearchByBeer(ctx, backend.BeerQuery{
			Query:  desc.Query,
			Kind:   desc.BeerKind,
			GFOnly: desc.GFOnly,
			Page:   desc.Page,
		})
		if err != nil {
			return model.ResultPage{}, err
		}
		return filterBeerPage(page, desc.Query, desc.BeerKind, logger), nil
	}
	return model.ResultPage{}, apperr.New(apperr.KindInvalidInput, "unknown search mode").WithOp("search.Dispatch")
}

// fetchPostcode tries the backend's own postcode index first. Only when that has nothing
// does it geocode the postcode and search around the point; the descriptor remembers the
// point so later pages follow the same path.
func (d *Dispatcher) fetchPostcode(ctx context.Context, desc *model.SearchDescriptor, user *model.GeoPoint, logger *slog.Logger) (model.ResultPage, error) {
	if desc.Geocoded != nil {
		return d.nearGeocoded(ctx, desc)
	}

	desc.Query = geo.NormalizePostcode(desc.Query)
	page, err := d.backend.Search(ctx, backend.TextQuery{
		Query:  desc.Query,
		Type:   backend.SearchPostcode,
		GFOnly: desc.GFOnly,
		Page:   desc.Page,
		User:   user,
	})
	if err != nil || !page.Empty() || d.geocoder == nil {
		return page, err
	}

	p, gerr := d.geocoder.Geocode(ctx, desc.Query)
	if gerr != nil {
		if !errors.Is(gerr, apperr.ErrNotFound) {
			logger.Warn("postcode geocoding failed", "error", gerr)
		}
		return page, nil
	}
	logger.Debug("postcode geocoded", "cell", geo.Cell(p))
	desc.Geocoded = &p
	return d.nearGeocoded(ctx, desc)
}

func (d *Dispatcher) nearGeocoded(ctx context.Context, desc *model.SearchDescriptor) (model.ResultPage, error) {
	return d.backend.Nearby(ctx, backend.NearbyQuery{
		Point:    *desc.Geocoded,
		RadiusKm: d.fallbackRadiusKm,
		GFOnly:   desc.GFOnly,
		Page:     desc.Page,
	})
}

// filterBeerPage narrows a broad beer search to real matches. The count is the number of
// matches on the fetched page. The backend's page count is kept so later pages of the broad
// search stay reachable; a page without matches is an empty result.
func filterBeerPage(page model.ResultPage, q string, kind model.BeerKind, logger *slog.Logger) model.ResultPage {
	kept, strategy := FilterBeer(page.Items, q, kind)
	logger.Debug("beer filter applied", "strategy", strategy, "kept", len(kept), "removed", len(page.Items)-len(kept))

	page.Items = kept
	page.TotalCount = len(kept)
	if len(kept) == 0 {
		page.Items = []model.VenueSummary{}
		page.PageCount = 0
		page.PageNumber = 1
	}
	return page
}
