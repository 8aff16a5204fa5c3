package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/finder"
	"gfbeer/venue-finder/internal/geolocation"
)

// webSession is one browser's finder session and the channel its views are pushed through.
type webSession struct {
	id     string
	finder *finder.Session
	events *eventStream
	// bridge is nil when the location comes from configuration.
	bridge *geolocation.Bridge

	lastSeen atomic.Int64
}

func (ws *webSession) touch(now time.Time) {
	ws.lastSeen.Store(now.UnixNano())
}

func (ws *webSession) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, ws.lastSeen.Load()))
}

type sessionBuilder func(ctx context.Context, id string) (*webSession, error)

// sessionRegistry keeps live sessions in memory. A request for an unknown but well-formed id
// rebuilds the session from its persisted state, so eviction and restarts are invisible to
// the browser apart from the lost map.
type sessionRegistry struct {
	build  sessionBuilder
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*webSession
}

func newSessionRegistry(build sessionBuilder, logger *slog.Logger) *sessionRegistry {
	return &sessionRegistry{
		build:    build,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*webSession),
	}
}

func (r *sessionRegistry) create(ctx context.Context) (*webSession, error) {
	ws, err := r.build(ctx, uuid.NewString())
	if err != nil {
		return nil, err
	}
	ws.touch(r.now())

	r.mu.Lock()
	r.sessions[ws.id] = ws
	r.mu.Unlock()

	r.logger.Info("session created", "session", ws.id)
	return ws, nil
}

func (r *sessionRegistry) get(ctx context.Context, id string) (*webSession, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "unknown session").WithOp("app.session")
	}
	id = parsed.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.sessions[id]; ok {
		ws.touch(r.now())
		return ws, nil
	}

	ws, err := r.build(ctx, id)
	if err != nil {
		return nil, err
	}
	ws.finder.Restore(ctx)
	ws.touch(r.now())
	r.sessions[id] = ws
	r.logger.Info("session resumed", "session", id)
	return ws, nil
}

func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	ws, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		ws.finder.Close()
	}
	return ok
}

func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// evictIdle drops sessions idle for longer than maxIdle that have no open socket.
func (r *sessionRegistry) evictIdle(maxIdle time.Duration) []string {
	now := r.now()

	r.mu.Lock()
	var evicted []*webSession
	for id, ws := range r.sessions {
		if ws.idle(now) > maxIdle && ws.events.subscribers() == 0 {
			evicted = append(evicted, ws)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, ws := range evicted {
		ws.finder.Close()
		ids = append(ids, ws.id)
	}
	return ids
}

// janitor evicts idle sessions until ctx ends.
func (r *sessionRegistry) janitor(ctx context.Context, maxIdle time.Duration) error {
	if maxIdle <= 0 {
		<-ctx.Done()
		return nil
	}

	interval := maxIdle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ids := r.evictIdle(maxIdle); len(ids) > 0 {
				r.logger.Info("evicted idle sessions", "count", len(ids))
			}
		}
	}
}
