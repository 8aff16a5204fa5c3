// Package view keeps the list and map presentations of the current results mutually
// exclusive. Only one is live at a time and the map is always rebuilt from scratch.
package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gfbeer/venue-finder/internal/analytics"
	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/results"
)

// Renderer draws the list view and status messages.
type Renderer interface {
	OnResultsReady(page model.ResultPage, title string)
	OnNoResults(message string)
	OnLoading(message string)
}

// MapRenderer owns one map instance at a time.
type MapRenderer interface {
	// RenderMarkers builds a new map instance with one marker per venue that has coordinates.
	RenderMarkers(ctx context.Context, venues []model.VenueSummary) error
	// DisposeMap destroys the current instance, listeners included. It must be safe to call
	// when no instance exists.
	DisposeMap()
}

// LayoutWaiter blocks until the map container has its final size.
type LayoutWaiter func(ctx context.Context) error

// LayoutDelay waits a fixed time for layout to settle.
func LayoutDelay(d time.Duration) LayoutWaiter {
	return func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

// EntrySource supplies the results the map is seeded from.
type EntrySource interface {
	Current() *results.Entry
}

// ErrNothingToShow is returned by ShowMap when there are no current results.
var ErrNothingToShow = errors.New("no results to show")

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLayoutWaiter sets the wait between map teardown and marker rendering.
func WithLayoutWaiter(w LayoutWaiter) Option {
	return func(s *Synchronizer) { s.layout = w }
}

// WithAnalytics reports view toggles.
func WithAnalytics(t analytics.Sink) Option {
	return func(s *Synchronizer) { s.tracker = t }
}

// Synchronizer serializes view transitions.
type Synchronizer struct {
	renderer Renderer
	maps     MapRenderer
	source   EntrySource
	layout   LayoutWaiter
	tracker  analytics.Sink
	logger   *slog.Logger

	mu      sync.Mutex
	state   model.ViewState
	mapLive bool
}

// NewSynchronizer starts in the list view.
func NewSynchronizer(renderer Renderer, maps MapRenderer, source EntrySource, logger *slog.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		renderer: renderer,
		maps:     maps,
		source:   source,
		tracker:  analytics.Nop,
		logger:   logger,
		state:    model.ViewList,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the active view.
func (s *Synchronizer) State() model.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Display presents a new entry. The view always resets to the list, whatever was active.
func (s *Synchronizer) Display(e *results.Entry) {
	if e == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.state = model.ViewList
	s.renderer.OnResultsReady(e.Page, e.Title)
}

// NoResults shows message in place of results, in the list view.
func (s *Synchronizer) NoResults(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.state = model.ViewList
	s.renderer.OnNoResults(message)
}

// Loading shows a progress message. The active view is left alone.
func (s *Synchronizer) Loading(message string) {
	s.renderer.OnLoading(message)
}

// ShowMap switches to the map. Any existing map instance is disposed before the new one is
// built from the current entry.
func (s *Synchronizer) ShowMap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.source.Current()
	if e == nil {
		return ErrNothingToShow
	}

	s.teardownLocked()
	s.state = model.ViewMap

	if s.layout != nil {
		if err := s.layout(ctx); err != nil {
			s.state = model.ViewList
			return apperr.Wrap(apperr.KindUnknown, "map layout not ready", err).WithOp("view.ShowMap")
		}
	}

	if err := s.maps.RenderMarkers(ctx, e.Page.Items); err != nil {
		s.maps.DisposeMap()
		s.state = model.ViewList
		s.logger.Warn("map render failed", "error", err)
		return apperr.Wrap(apperr.KindUnknown, "map could not be drawn", err).WithOp("view.ShowMap")
	}
	s.mapLive = true

	located := 0
	for _, v := range e.Page.Items {
		if v.HasCoordinates() {
			located++
		}
	}
	s.logger.Debug("map shown", "markers", located, "items", len(e.Page.Items))
	s.tracker.Track(analytics.NewEvent("view_toggle", analytics.CategoryView, string(model.ViewMap)).WithCount(located))
	return nil
}

// ShowList destroys the map and presents the current entry as a list.
func (s *Synchronizer) ShowList() {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasMap := s.state == model.ViewMap
	s.teardownLocked()
	s.state = model.ViewList

	if !wasMap {
		return
	}
	if e := s.source.Current(); e != nil {
		s.renderer.OnResultsReady(e.Page, e.Title)
	}
	s.tracker.Track(analytics.NewEvent("view_toggle", analytics.CategoryView, string(model.ViewList)))
}

// Toggle flips between the two views.
func (s *Synchronizer) Toggle(ctx context.Context) error {
	if s.State() == model.ViewMap {
		s.ShowList()
		return nil
	}
	return s.ShowMap(ctx)
}

// Close disposes the map, if any.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.state = model.ViewList
}

func (s *Synchronizer) teardownLocked() {
	if s.mapLive {
		s.maps.DisposeMap()
		s.mapLive = false
	}
}
