// Package results holds the current search episode: the descriptor that produced it, the
// page being shown and its title. It survives a detail-view round trip.
package results

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gfbeer/venue-finder/internal/model"
)

// StaleAfter is how long an episode may be re-rendered without re-running its search.
const StaleAfter = 30 * time.Minute

// Entry is one stored episode. Entries are shared by pointer and must be treated as
// read-only by everything except the dispatcher that created them.
type Entry struct {
	Descriptor model.SearchDescriptor `json:"descriptor"`
	Page       model.ResultPage       `json:"page"`
	Title      string                 `json:"title"`
	StoredAt   time.Time              `json:"stored_at"`
}

// Stale reports whether the entry is too old to render as-is.
func (e *Entry) Stale(now time.Time) bool {
	return now.Sub(e.StoredAt) > StaleAfter
}

// Snapshotter persists the current entry.
type Snapshotter interface {
	SaveEpisode(ctx context.Context, e Entry) error
	LoadEpisode(ctx context.Context) (*Entry, error)
	ClearEpisode(ctx context.Context) error
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshotter persists every change.
func WithSnapshotter(s Snapshotter) Option {
	return func(st *Store) { st.snap = s }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// Store is safe for concurrent use.
type Store struct {
	logger *slog.Logger
	snap   Snapshotter
	now    func() time.Time

	mu      sync.RWMutex
	current *Entry
}

// NewStore builds an empty store.
func NewStore(logger *slog.Logger, opts ...Option) *Store {
	s := &Store{logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetCurrent replaces the current entry and returns it.
func (s *Store) SetCurrent(ctx context.Context, d model.SearchDescriptor, page model.ResultPage, title string) *Entry {
	e := &Entry{Descriptor: d, Page: page, Title: title, StoredAt: s.now()}

	s.mu.Lock()
	s.current = e
	s.mu.Unlock()

	s.persist(ctx, func(ctx context.Context) error { return s.snap.SaveEpisode(ctx, *e) })
	return e
}

// Current returns the current entry, or nil. The same pointer is returned until the next
// SetCurrent or Clear.
func (s *Store) Current() *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Clear drops the current entry.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	s.persist(ctx, func(ctx context.Context) error { return s.snap.ClearEpisode(ctx) })
}

// IsStale reports whether e is past StaleAfter by the store's clock.
func (s *Store) IsStale(e *Entry) bool {
	return e != nil && e.Stale(s.now())
}

// Restore loads the persisted entry, if any, without overwriting a newer in-memory one.
func (s *Store) Restore(ctx context.Context) error {
	if s.snap == nil {
		return nil
	}
	e, err := s.snap.LoadEpisode(ctx)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		s.current = e
		s.logger.Info("restored search episode", "mode", e.Descriptor.Mode, "page", e.Page.PageNumber)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, fn func(context.Context) error) {
	if s.snap == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := fn(pctx); err != nil {
		s.logger.Warn("persist search episode failed", "error", err)
	}
}
