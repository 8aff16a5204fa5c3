// Package finder assembles one user's search context: location acquisition, the current
// results, the dispatcher that fills them, pagination and the list/map views.
package finder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gfbeer/venue-finder/internal/analytics"
	"gfbeer/venue-finder/internal/geolocation"
	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/pagination"
	"gfbeer/venue-finder/internal/results"
	"gfbeer/venue-finder/internal/search"
	"gfbeer/venue-finder/internal/view"
)

// Persistence stores a session's episode and location across restarts. store.Scoped
// implements it.
type Persistence interface {
	results.Snapshotter
	geolocation.CacheStore
}

// Deps are the collaborators a Session is built from. Backend, Platform, Renderer and Map
// are required.
type Deps struct {
	Backend     search.Backend
	Platform    geolocation.Platform
	Consent     geolocation.ConsentPrompter
	Renderer    view.Renderer
	Map         view.MapRenderer
	Geocoder    search.Geocoder
	Analytics   analytics.Sink
	Persistence Persistence
	Logger      *slog.Logger
}

// Options are per-session policies.
type Options struct {
	GFOnly           bool
	FallbackRadiusKm float64
	LayoutDelay      time.Duration
}

// Session owns the per-user singletons. Only its Dispatcher writes Results and only its
// Location acquirer writes the location cache.
type Session struct {
	Location   *geolocation.Acquirer
	Results    *results.Store
	Dispatcher *search.Dispatcher
	Pages      *pagination.Controller
	View       *view.Synchronizer

	logger *slog.Logger
}

// New wires a session.
func New(deps Deps, opts Options) (*Session, error) {
	switch {
	case deps.Backend == nil:
		return nil, fmt.Errorf("finder: backend is required")
	case deps.Platform == nil:
		return nil, fmt.Errorf("finder: location platform is required")
	case deps.Renderer == nil || deps.Map == nil:
		return nil, fmt.Errorf("finder: renderer and map are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := deps.Analytics
	if tracker == nil {
		tracker = analytics.Nop
	}

	acqOpts := []geolocation.Option{geolocation.WithAnalytics(tracker)}
	storeOpts := []results.Option{}
	if deps.Persistence != nil {
		acqOpts = append(acqOpts, geolocation.WithCacheStore(deps.Persistence))
		storeOpts = append(storeOpts, results.WithSnapshotter(deps.Persistence))
	}

	s := &Session{logger: logger}
	s.Location = geolocation.NewAcquirer(deps.Platform, deps.Consent, logger.With("component", "geolocation"), acqOpts...)
	s.Results = results.NewStore(logger.With("component", "results"), storeOpts...)

	viewOpts := []view.Option{view.WithAnalytics(tracker)}
	if opts.LayoutDelay > 0 {
		viewOpts = append(viewOpts, view.WithLayoutWaiter(view.LayoutDelay(opts.LayoutDelay)))
	}
	s.View = view.NewSynchronizer(deps.Renderer, deps.Map, s.Results, logger.With("component", "view"), viewOpts...)

	dispOpts := []search.Option{
		search.WithGFOnly(opts.GFOnly),
		search.WithFallbackRadius(opts.FallbackRadiusKm),
		search.WithAnalytics(tracker),
	}
	if deps.Geocoder != nil {
		dispOpts = append(dispOpts, search.WithGeocoder(deps.Geocoder))
	}
	s.Dispatcher = search.NewDispatcher(deps.Backend, s.Location, s.Results, s.View, logger.With("component", "search"), dispOpts...)
	s.Pages = pagination.NewController(s.Dispatcher, s.Results, s.View, logger.With("component", "pagination"))

	return s, nil
}

// Restore reloads the persisted location and episode. Failures are logged, not fatal.
func (s *Session) Restore(ctx context.Context) {
	if err := s.Location.Restore(ctx); err != nil {
		s.logger.Warn("restore location failed", "error", err)
	}
	if err := s.Results.Restore(ctx); err != nil {
		s.logger.Warn("restore results failed", "error", err)
	}
}

// Search runs a new search from desc.
func (s *Session) Search(ctx context.Context, desc model.SearchDescriptor) (*results.Entry, error) {
	return s.Dispatcher.Submit(ctx, desc)
}

// Venue opens a venue's details. The current episode is kept for BackToResults.
func (s *Session) Venue(ctx context.Context, id int64) (model.VenueSummary, error) {
	return s.Dispatcher.Venue(ctx, id)
}

// BackToResults returns from a venue's details.
func (s *Session) BackToResults(ctx context.Context) (*results.Entry, error) {
	return s.Pages.BackToResults(ctx)
}

// Close tears down the map.
func (s *Session) Close() {
	s.View.Close()
}
