// Package pagination moves through the pages of the current search and restores it after a
// detour to a venue's details.
package pagination

import (
	"context"
	"log/slog"

	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/results"
)

// Replayer re-runs stored searches. search.Dispatcher implements it.
type Replayer interface {
	Replay(ctx context.Context, d model.SearchDescriptor) (*results.Entry, error)
	Rerun(ctx context.Context, d model.SearchDescriptor) (*results.Entry, error)
}

// Source reads the current episode.
type Source interface {
	Current() *results.Entry
	IsStale(e *results.Entry) bool
}

// Presenter re-renders a stored episode.
type Presenter interface {
	Display(e *results.Entry)
}

// Controller has no state of its own; everything comes from the store.
type Controller struct {
	replayer Replayer
	source   Source
	view     Presenter
	logger   *slog.Logger
}

func NewController(replayer Replayer, source Source, view Presenter, logger *slog.Logger) *Controller {
	return &Controller{replayer: replayer, source: source, view: view, logger: logger}
}

// GoToPage re-issues the current search for page n. A page outside [1, PageCount] is a
// no-op that returns the current entry unchanged.
func (c *Controller) GoToPage(ctx context.Context, n int) (*results.Entry, error) {
	e := c.source.Current()
	if e == nil {
		return nil, nil
	}
	if n < 1 || n > e.Page.PageCount {
		c.logger.Debug("page out of range", "page", n, "pages", e.Page.PageCount)
		return e, nil
	}
	return c.replayer.Replay(ctx, e.Descriptor.WithPage(n))
}

// Next moves one page forward, if there is one.
func (c *Controller) Next(ctx context.Context) (*results.Entry, error) {
	e := c.source.Current()
	if e == nil {
		return nil, nil
	}
	return c.GoToPage(ctx, e.Page.PageNumber+1)
}

// Previous moves one page back, if there is one.
func (c *Controller) Previous(ctx context.Context) (*results.Entry, error) {
	e := c.source.Current()
	if e == nil {
		return nil, nil
	}
	return c.GoToPage(ctx, e.Page.PageNumber-1)
}

// BackToResults shows the stored episode again. A stale episode is re-run with a fresh
// anchor instead; with no episode there is nothing to do.
func (c *Controller) BackToResults(ctx context.Context) (*results.Entry, error) {
	e := c.source.Current()
	if e == nil {
		return nil, nil
	}
	if c.source.IsStale(e) {
		c.logger.Info("stored results are stale, searching again", "mode", e.Descriptor.Mode)
		return c.replayer.Rerun(ctx, e.Descriptor)
	}
	c.view.Display(e)
	return e, nil
}
