package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]model.GeoPoint
}

func (m *memCache) CachedGeocode(_ context.Context, key string, _ time.Time) (model.GeoPoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[key]
	return p, ok, nil
}

func (m *memCache) SaveGeocode(_ context.Context, key string, p model.GeoPoint, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]model.GeoPoint{}
	}
	m.entries[key] = p
	return nil
}

func TestGeocode(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if ua := r.Header.Get("User-Agent"); ua != "venue-finder-test" {
			t.Errorf("user agent = %q", ua)
		}
		q := r.URL.Query()
		if q.Get("format") != "json" || q.Get("countrycodes") != "gb" {
			t.Errorf("query = %v", q)
		}
		if q.Get("q") == "NE1 1AA" {
			_, _ = w.Write([]byte(`[{"lat": "54.9695", "lon": "-1.6133", "display_name": "Newcastle upon Tyne"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cache := &memCache{}
	g := New(srv.URL, "venue-finder-test", 0, discard(), WithCache(cache, time.Hour))

	p, err := g.Geocode(context.Background(), "NE1 1AA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Lat != 54.9695 || p.Lng != -1.6133 {
		t.Errorf("point = %+v", p)
	}

	// Same query with different spacing and case is served from the cache.
	if _, err := g.Geocode(context.Background(), " ne1   1aa "); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", hits.Load())
	}

	_, err = g.Geocode(context.Background(), "ZZ9 9ZZ")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestGeocodeUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t", 0, discard()).Geocode(context.Background(), "SW1A 1AA")
	if !errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Errorf("err = %v, want backend unavailable", err)
	}
}

func TestGeocodeRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"lat": "51.5", "lon": "-0.1"}]`))
	}))
	defer srv.Close()

	g := New(srv.URL, "t", 0.01, discard())
	if _, err := g.Geocode(context.Background(), "first"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Geocode(ctx, "second"); !errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Errorf("err = %v, want rate-limited failure", err)
	}
}
