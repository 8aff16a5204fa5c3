package finder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"gfbeer/venue-finder/internal/backend"
	"gfbeer/venue-finder/internal/geolocation"
	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/results"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type screen struct {
	mu      sync.Mutex
	pages   []model.ResultPage
	titles  []string
	empty   []string
	markers [][]model.VenueSummary
	dispose int
}

func (s *screen) OnResultsReady(page model.ResultPage, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, page)
	s.titles = append(s.titles, title)
}

func (s *screen) OnNoResults(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.empty = append(s.empty, message)
}

func (s *screen) OnLoading(string) {}

func (s *screen) RenderMarkers(_ context.Context, venues []model.VenueSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, venues)
	return nil
}

func (s *screen) DisposeMap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispose++
}

type memPersistence struct {
	mu       sync.Mutex
	episode  *results.Entry
	location *model.LocationReading
}

func (m *memPersistence) SaveEpisode(_ context.Context, e results.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episode = &e
	return nil
}

func (m *memPersistence) LoadEpisode(context.Context) (*results.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.episode, nil
}

func (m *memPersistence) ClearEpisode(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episode = nil
	return nil
}

func (m *memPersistence) SaveLocation(_ context.Context, r model.LocationReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.location = &r
	return nil
}

func (m *memPersistence) LoadLocation(context.Context) (*model.LocationReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location, nil
}

type nearbyServer struct {
	mu    sync.Mutex
	pages []int
}

func (n *nearbyServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/nearby", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		n.mu.Lock()
		n.pages = append(n.pages, page)
		n.mu.Unlock()

		if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("lng") == "" {
			t.Errorf("nearby without coordinates: %s", r.URL.RawQuery)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"venues": []map[string]any{
				{"pub_id": 3, "name": "Far", "latitude": 55.05, "longitude": -1.61, "gf_status": "currently"},
				{"pub_id": 1, "name": "Near", "latitude": 54.975, "longitude": -1.615, "gf_status": "always_tap_cask"},
				{"pub_id": 2, "name": "Nowhere"},
			},
			"pagination": map[string]int{"page": page, "pages": 2, "total": 25},
		})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"pub_id": r.URL.Query().Get("pub_id"), "name": "Near", "latitude": 54.975, "longitude": -1.615},
		})
	})
	return mux
}

func newSession(t *testing.T, url string, persist Persistence, scr *screen) *Session {
	t.Helper()

	client, err := backend.New(url, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(Deps{
		Backend:     client,
		Platform:    geolocation.StaticPlatform{Lat: 54.97, Lng: -1.61, AccuracyMeters: 20},
		Renderer:    scr,
		Map:         scr,
		Persistence: persist,
		Logger:      discardLogger(),
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionProximityRoundTrip(t *testing.T) {
	srv := &nearbyServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	scr := &screen{}
	persist := &memPersistence{}
	s := newSession(t, ts.URL, persist, scr)
	ctx := context.Background()

	e, err := s.Search(ctx, model.ProximitySearch(5))
	if err != nil || e == nil {
		t.Fatalf("search = %v, %v", e, err)
	}

	items := e.Page.Items
	if len(items) != 3 || items[0].Name != "Near" || items[1].Name != "Far" || items[2].Name != "Nowhere" {
		t.Fatalf("order = %+v", items)
	}
	if items[2].DistanceKm != nil {
		t.Error("venue without coordinates got a distance")
	}
	if len(scr.pages) != 1 {
		t.Fatalf("rendered %d times", len(scr.pages))
	}

	e, err = s.Pages.Next(ctx)
	if err != nil || e.Page.PageNumber != 2 {
		t.Fatalf("next = %+v, %v", e, err)
	}
	if len(srv.pages) != 2 || srv.pages[1] != 2 {
		t.Errorf("pages requested = %v", srv.pages)
	}

	if err := s.View.ShowMap(ctx); err != nil {
		t.Fatalf("show map: %v", err)
	}
	if len(scr.markers) != 1 || s.View.State() != model.ViewMap {
		t.Errorf("map not rendered: %d, %s", len(scr.markers), s.View.State())
	}

	v, err := s.Venue(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v.DistanceKm == nil {
		t.Error("venue detail without distance from the cached location")
	}

	back, err := s.BackToResults(ctx)
	if err != nil || back == nil || back.Page.PageNumber != 2 {
		t.Fatalf("back = %+v, %v", back, err)
	}
	if s.View.State() != model.ViewList {
		t.Error("back to results did not reset to the list")
	}

	if persist.episode == nil || persist.location == nil {
		t.Fatal("session state was not persisted")
	}

	restored := newSession(t, ts.URL, persist, &screen{})
	restored.Restore(ctx)
	if cur := restored.Results.Current(); cur == nil || cur.Page.PageNumber != 2 {
		t.Errorf("restored episode = %+v", cur)
	}
	if _, ok := restored.Location.Cached(); !ok {
		t.Error("restored session has no cached location")
	}
}

func TestSessionRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Error("session built without a backend")
	}
}
