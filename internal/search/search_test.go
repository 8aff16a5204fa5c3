package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/backend"
	"gfbeer/venue-finder/internal/geolocation"
	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/results"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(f float64) *float64 { return &f }

func venue(id int64, lat, lng *float64) model.VenueSummary {
	return model.VenueSummary{ID: id, Name: "venue", Latitude: lat, Longitude: lng}
}

type fakeBackend struct {
	mu      sync.Mutex
	nearby  func(backend.NearbyQuery) (model.ResultPage, error)
	search  func(backend.TextQuery) (model.ResultPage, error)
	beer    func(backend.BeerQuery) (model.ResultPage, error)
	nearbyQ []backend.NearbyQuery
	searchQ []backend.TextQuery
}

func (f *fakeBackend) Nearby(_ context.Context, q backend.NearbyQuery) (model.ResultPage, error) {
	f.mu.Lock()
	f.nearbyQ = append(f.nearbyQ, q)
	f.mu.Unlock()
	return f.nearby(q)
}

func (f *fakeBackend) Search(_ context.Context, q backend.TextQuery) (model.ResultPage, error) {
	f.mu.Lock()
	f.searchQ = append(f.searchQ, q)
	f.mu.Unlock()
	return f.search(q)
}

func (f *fakeBackend) SearchByBeer(_ context.Context, q backend.BeerQuery) (model.ResultPage, error) {
	return f.beer(q)
}

func (f *fakeBackend) Venue(_ context.Context, id int64) (model.VenueSummary, error) {
	return model.VenueSummary{ID: id, Latitude: ptr(51.5), Longitude: ptr(-0.1)}, nil
}

type fakeLocator struct {
	reading *model.LocationReading
	err     error
	calls   int
}

func (f *fakeLocator) Current(context.Context) (geolocation.Fix, error) {
	f.calls++
	if f.err != nil {
		return geolocation.Fix{}, f.err
	}
	return geolocation.Fix{Reading: *f.reading}, nil
}

func (f *fakeLocator) BestEffort(context.Context) *model.LocationReading {
	return f.reading
}

func (f *fakeLocator) Cached() (model.LocationReading, bool) {
	if f.reading == nil {
		return model.LocationReading{}, false
	}
	return *f.reading, true
}

type fakeView struct {
	mu        sync.Mutex
	displayed []*results.Entry
	none      []string
}

func (v *fakeView) Display(e *results.Entry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.displayed = append(v.displayed, e)
}

func (v *fakeView) NoResults(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.none = append(v.none, msg)
}

func (v *fakeView) Loading(string) {}

type fakeGeocoder struct {
	points  map[string]model.GeoPoint
	queries []string
}

func (g *fakeGeocoder) Geocode(_ context.Context, q string) (model.GeoPoint, error) {
	g.queries = append(g.queries, q)
	p, ok := g.points[q]
	if !ok {
		return model.GeoPoint{}, apperr.New(apperr.KindNotFound, "no match")
	}
	return p, nil
}

func pageOf(items ...model.VenueSummary) model.ResultPage {
	return model.ResultPage{Items: items, PageNumber: 1, PageCount: 1, TotalCount: len(items)}
}

func TestSortByDistance(t *testing.T) {
	origin := model.GeoPoint{Lat: 51.5, Lng: -0.12}
	items := []model.VenueSummary{
		venue(1, nil, nil),
		venue(2, ptr(52.5), ptr(-0.12)),
		venue(3, ptr(51.51), ptr(-0.12)),
		venue(4, nil, ptr(1)),
		venue(5, ptr(51.6), ptr(-0.12)),
	}

	SortByDistance(items, origin)

	wantOrder := []int64{3, 5, 2, 1, 4}
	for i, id := range wantOrder {
		if items[i].ID != id {
			t.Fatalf("position %d = venue %d, want %d (order %v)", i, items[i].ID, id, ids(items))
		}
	}
	for i := 0; i < 3; i++ {
		if items[i].DistanceKm == nil {
			t.Errorf("venue %d has no distance", items[i].ID)
		}
		if i > 0 && *items[i].DistanceKm < *items[i-1].DistanceKm {
			t.Errorf("distances not ascending at %d", i)
		}
	}
	if items[3].DistanceKm != nil || items[4].DistanceKm != nil {
		t.Error("venues without coordinates got a distance")
	}
}

func ids(items []model.VenueSummary) []int64 {
	out := make([]int64, len(items))
	for i, v := range items {
		out[i] = v.ID
	}
	return out
}

func TestProximityWithoutPermission(t *testing.T) {
	b := &fakeBackend{nearby: func(backend.NearbyQuery) (model.ResultPage, error) {
		t.Error("backend called without a location")
		return model.ResultPage{}, nil
	}}
	loc := &fakeLocator{err: apperr.New(apperr.KindPermissionDenied, "blocked")}
	store := results.NewStore(discard())
	view := &fakeView{}
	d := NewDispatcher(b, loc, store, view, discard())

	entry, err := d.Proximity(context.Background(), 5)
	if entry != nil {
		t.Errorf("entry = %+v", entry)
	}
	if apperr.KindOf(err) != apperr.KindLocationRequired {
		t.Fatalf("kind = %v, want location required", apperr.KindOf(err))
	}
	if apperr.Cause(err) != apperr.KindPermissionDenied {
		t.Errorf("cause = %v, want permission denied", apperr.Cause(err))
	}
	if store.Current() != nil {
		t.Error("store written on failure")
	}
	if len(view.none) != 1 || !strings.Contains(view.none[0], "area or postcode") {
		t.Errorf("messages = %v", view.none)
	}
}

func TestProximitySortsResults(t *testing.T) {
	anchor := model.LocationReading{Latitude: 54.97, Longitude: -1.61, AccuracyMeters: 20, AcquiredAt: time.Now()}
	b := &fakeBackend{nearby: func(q backend.NearbyQuery) (model.ResultPage, error) {
		return pageOf(venue(1, ptr(55.2), ptr(-1.61)), venue(2, nil, nil), venue(3, ptr(54.98), ptr(-1.61))), nil
	}}
	store := results.NewStore(discard())
	view := &fakeView{}
	d := NewDispatcher(b, &fakeLocator{reading: &anchor}, store, view, discard(), WithGFOnly(true))

	entry, err := d.Proximity(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(entry.Page.Items); got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Errorf("order = %v", got)
	}
	if !b.nearbyQ[0].GFOnly || b.nearbyQ[0].RadiusKm != 10 {
		t.Errorf("query = %+v", b.nearbyQ[0])
	}
	if store.Current() != entry || len(view.displayed) != 1 {
		t.Error("entry not stored and displayed")
	}
	if !strings.Contains(entry.Title, "nearest first") {
		t.Errorf("title = %q", entry.Title)
	}
}

func TestSupersededResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	b := &fakeBackend{search: func(q backend.TextQuery) (model.ResultPage, error) {
		if q.Query == "slow" {
			close(started)
			<-release
			return pageOf(venue(1, nil, nil)), nil
		}
		return pageOf(venue(2, nil, nil)), nil
	}}
	store := results.NewStore(discard())
	view := &fakeView{}
	d := NewDispatcher(b, &fakeLocator{}, store, view, discard())

	type result struct {
		entry *results.Entry
		err   error
	}
	slow := make(chan result, 1)
	go func() {
		e, err := d.Name(context.Background(), "slow")
		slow <- result{e, err}
	}()
	<-started

	fast, err := d.Name(context.Background(), "fast")
	if err != nil || fast == nil {
		t.Fatalf("fast search: %v", err)
	}
	close(release)

	r := <-slow
	if r.entry != nil || r.err != nil {
		t.Errorf("superseded search returned %+v, %v", r.entry, r.err)
	}
	if store.Current() != fast {
		t.Error("store holds the superseded result")
	}
	if len(view.displayed) != 1 || view.displayed[0] != fast {
		t.Errorf("displayed %d entries", len(view.displayed))
	}
}

func TestBeerSearchLoosenedMatch(t *testing.T) {
	b := &fakeBackend{beer: func(q backend.BeerQuery) (model.ResultPage, error) {
		return model.ResultPage{
			Items: []model.VenueSummary{
				{ID: 1, BeerDetails: "Bottle - Green's Discovery (Amber Ale)"},
				{ID: 2, BeerDetails: "Can - Nordic Häzeblast (NEIPA)"},
				{ID: 3, BeerDetails: "Tap - Glutenberg Blonde (Blonde)"},
				{ID: 4},
			},
			PageNumber: 1,
			PageCount:  2,
			TotalCount: 24,
		}, nil
	}}
	store := results.NewStore(discard())
	view := &fakeView{}
	d := NewDispatcher(b, &fakeLocator{}, store, view, discard())

	entry, err := d.Beer(context.Background(), "haze", model.BeerName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entry.Page.Items) != 1 || entry.Page.Items[0].ID != 2 {
		t.Fatalf("items = %v", ids(entry.Page.Items))
	}
	if entry.Page.TotalCount != 1 {
		t.Errorf("total = %d, want the 1 loosened match", entry.Page.TotalCount)
	}
	if want := `1 venue serving beer "haze"`; entry.Title != want {
		t.Errorf("title = %q, want %q", entry.Title, want)
	}
	if entry.Page.PageCount != 2 {
		t.Errorf("page count = %d, later pages of the broad search lost", entry.Page.PageCount)
	}
	if len(view.displayed) != 1 || len(view.none) != 0 {
		t.Errorf("view = %+v", view)
	}
}

func TestBeerSearchWithoutMatchesIsEmpty(t *testing.T) {
	b := &fakeBackend{beer: func(q backend.BeerQuery) (model.ResultPage, error) {
		items := make([]model.VenueSummary, model.PageSize)
		for i := range items {
			items[i] = model.VenueSummary{ID: int64(i + 1), BeerDetails: "Tap - Glutenberg Blonde (Blonde)"}
		}
		return model.ResultPage{Items: items, PageNumber: 1, PageCount: 2, TotalCount: 24}, nil
	}}
	store := results.NewStore(discard())
	view := &fakeView{}
	d := NewDispatcher(b, &fakeLocator{}, store, view, discard())

	entry, err := d.Beer(context.Background(), "stout", model.BeerStyle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry == nil || store.Current() != entry || !entry.Page.Empty() {
		t.Fatalf("entry = %+v", entry)
	}
	if len(view.displayed) != 0 || len(view.none) != 1 {
		t.Fatalf("displayed %d, no-results %v", len(view.displayed), view.none)
	}
	if !strings.HasPrefix(view.none[0], "No venues serving style") {
		t.Errorf("message = %q", view.none[0])
	}
}

func TestBeerSearchDefaultsToBeerName(t *testing.T) {
	var kinds []model.BeerKind
	b := &fakeBackend{beer: func(q backend.BeerQuery) (model.ResultPage, error) {
		kinds = append(kinds, q.Kind)
		return pageOf(model.VenueSummary{ID: 1, BeerDetails: "Can - Daura Damm (Lager)"}), nil
	}}
	d := NewDispatcher(b, &fakeLocator{}, results.NewStore(discard()), &fakeView{}, discard())

	entry, err := d.Beer(context.Background(), "daura", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Descriptor.BeerKind != model.BeerName || len(kinds) != 1 || kinds[0] != model.BeerName {
		t.Errorf("kind = %q, sent %v", entry.Descriptor.BeerKind, kinds)
	}
}

func TestFilterBeerStrategies(t *testing.T) {
	items := []model.VenueSummary{
		{ID: 1, BeerDetails: "Bottle - Green's Discovery (Amber Ale), Tap - Green's Tripel (Belgian Ale)"},
		{ID: 2, BeerDetails: "Can - Nordic Häzeblast (NEIPA)"},
		{ID: 3, BeerDetails: "Tap - Glutenberg Blonde (Blonde)"},
		{ID: 4, BeerDetails: "Cask - Bellfield Bohemian Pilsner (Pilsner)"},
	}

	cases := []struct {
		name         string
		query        string
		kind         model.BeerKind
		wantIDs      []int64
		wantStrategy int
	}{
		{name: "brewery leads the segment", query: "green's", kind: model.BeerBrewery, wantIDs: []int64{1}, wantStrategy: 1},
		{name: "brewery must lead", query: "discovery", kind: model.BeerBrewery, wantIDs: []int64{1}, wantStrategy: 2},
		{name: "beer name word", query: "blonde", kind: model.BeerName, wantIDs: []int64{3}, wantStrategy: 1},
		{name: "style in brackets", query: "pilsner", kind: model.BeerStyle, wantIDs: []int64{4}, wantStrategy: 1},
		{name: "style not matched in name", query: "bohemian", kind: model.BeerStyle, wantIDs: []int64{4}, wantStrategy: 2},
		{name: "substring", query: "glutenb", kind: model.BeerName, wantIDs: []int64{3}, wantStrategy: 2},
		{name: "loosened diacritics", query: "haze", kind: model.BeerName, wantIDs: []int64{2}, wantStrategy: 3},
		{name: "loosened prefix", query: "bellfeild", kind: model.BeerBrewery, wantIDs: []int64{4}, wantStrategy: 3},
		{name: "nothing", query: "stout", kind: model.BeerStyle, wantIDs: nil, wantStrategy: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, strategy := FilterBeer(items, tc.query, tc.kind)
			if strategy != tc.wantStrategy {
				t.Errorf("strategy = %d, want %d", strategy, tc.wantStrategy)
			}
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids(got), tc.wantIDs)
			}
			for i, id := range tc.wantIDs {
				if got[i].ID != id {
					t.Errorf("ids = %v, want %v", ids(got), tc.wantIDs)
				}
			}
		})
	}
}

func TestPostcodeSearchesReplaceEachOther(t *testing.T) {
	ne1 := model.GeoPoint{Lat: 54.97, Lng: -1.61}
	b := &fakeBackend{
		search: func(q backend.TextQuery) (model.ResultPage, error) {
			if q.Query == "SW1A 1AA" {
				return pageOf(venue(10, nil, nil)), nil
			}
			return model.ResultPage{Items: []model.VenueSummary{}, PageNumber: 1}, nil
		},
		nearby: func(q backend.NearbyQuery) (model.ResultPage, error) {
			return model.ResultPage{
				Items:      []model.VenueSummary{venue(int64(100+q.Page), nil, nil)},
				PageNumber: q.Page,
				PageCount:  3,
				TotalCount: 45,
			}, nil
		},
	}
	gc := &fakeGeocoder{points: map[string]model.GeoPoint{"NE1 1AA": ne1}}
	store := results.NewStore(discard())
	d := NewDispatcher(b, &fakeLocator{}, store, &fakeView{}, discard(), WithGeocoder(gc))
	ctx := context.Background()

	first, err := d.Area(ctx, "sw1a1aa", "")
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	if first.Descriptor.AreaKind != model.AreaPostcode || first.Descriptor.Query != "SW1A 1AA" {
		t.Errorf("descriptor = %+v", first.Descriptor)
	}
	if first.Descriptor.Geocoded != nil || len(gc.queries) != 0 {
		t.Error("direct hit should not geocode")
	}

	second, err := d.Area(ctx, "NE1 1AA", model.AreaPostcode)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if store.Current() != second || second.Descriptor.Query != "NE1 1AA" {
		t.Fatalf("store = %+v", store.Current().Descriptor)
	}
	if second.Descriptor.Geocoded == nil || *second.Descriptor.Geocoded != ne1 {
		t.Fatalf("geocoded = %+v", second.Descriptor.Geocoded)
	}

	third, err := d.Replay(ctx, store.Current().Descriptor.WithPage(2))
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if third.Descriptor.Query != "NE1 1AA" || third.Page.PageNumber != 2 {
		t.Errorf("page 2 descriptor = %+v", third.Descriptor)
	}
	last := b.nearbyQ[len(b.nearbyQ)-1]
	if last.Point != ne1 || last.Page != 2 || last.RadiusKm != DefaultFallbackRadiusKm {
		t.Errorf("page 2 query = %+v", last)
	}
	if len(gc.queries) != 1 {
		t.Errorf("geocoded %d times, want once", len(gc.queries))
	}
	for _, q := range b.searchQ[1:] {
		if q.Query == "SW1A 1AA" {
			t.Error("first postcode re-queried after replacement")
		}
	}
}

func TestNameSearchUsesBestEffortAnchor(t *testing.T) {
	anchor := model.LocationReading{Latitude: 51.5, Longitude: -0.12, AcquiredAt: time.Now()}
	b := &fakeBackend{search: func(q backend.TextQuery) (model.ResultPage, error) {
		if q.User == nil || q.Type != backend.SearchName {
			t.Errorf("query = %+v", q)
		}
		return pageOf(venue(1, ptr(52), ptr(-0.12)), venue(2, ptr(51.51), ptr(-0.12))), nil
	}}
	loc := &fakeLocator{reading: &anchor}
	d := NewDispatcher(b, loc, results.NewStore(discard()), &fakeView{}, discard())

	entry, err := d.Name(context.Background(), "crown")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Page.Items[0].ID != 2 {
		t.Errorf("order = %v", ids(entry.Page.Items))
	}
	if loc.calls != 0 {
		t.Error("name search forced a location acquisition")
	}
}

func TestEmptyAndFailedSearches(t *testing.T) {
	t.Run("empty result is stored", func(t *testing.T) {
		b := &fakeBackend{search: func(backend.TextQuery) (model.ResultPage, error) {
			return model.ResultPage{Items: []model.VenueSummary{}, PageNumber: 1}, nil
		}}
		store := results.NewStore(discard())
		view := &fakeView{}
		d := NewDispatcher(b, &fakeLocator{}, store, view, discard())

		entry, err := d.Name(context.Background(), "nowhere")
		if err != nil {
			t.Fatal(err)
		}
		if entry == nil || entry.Page.TotalCount != 0 || store.Current() != entry {
			t.Errorf("entry = %+v", entry)
		}
		if len(view.none) != 1 || len(view.displayed) != 0 {
			t.Errorf("view = %+v", view)
		}
	})

	t.Run("backend failure leaves store alone", func(t *testing.T) {
		b := &fakeBackend{search: func(backend.TextQuery) (model.ResultPage, error) {
			return model.ResultPage{}, apperr.New(apperr.KindBackendUnavailable, "down")
		}}
		store := results.NewStore(discard())
		view := &fakeView{}
		d := NewDispatcher(b, &fakeLocator{}, store, view, discard())

		_, err := d.Name(context.Background(), "crown")
		if !errors.Is(err, apperr.ErrBackendUnavailable) {
			t.Fatalf("err = %v", err)
		}
		if store.Current() != nil {
			t.Error("store written")
		}
		if len(view.none) != 1 || !strings.Contains(view.none[0], "try again") {
			t.Errorf("messages = %v", view.none)
		}
	})

	t.Run("unknown kind explained once", func(t *testing.T) {
		view := &fakeView{}
		d := NewDispatcher(&fakeBackend{}, &fakeLocator{}, results.NewStore(discard()), view, discard())
		_, err := d.Submit(context.Background(), model.BeerSearch("daura", "cider"))
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("err = %v", err)
		}
		if n := strings.Count(err.Error(), `unknown beer kind "cider"`); n != 1 {
			t.Errorf("cause repeated %d times in %q", n, err.Error())
		}
		if len(view.none) != 1 || !strings.Contains(view.none[0], "brewery, beer or style") {
			t.Errorf("messages = %v", view.none)
		}
	})

	t.Run("blank query rejected", func(t *testing.T) {
		d := NewDispatcher(&fakeBackend{}, &fakeLocator{}, results.NewStore(discard()), &fakeView{}, discard())
		if _, err := d.Name(context.Background(), "  "); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestDescribeOutcome(t *testing.T) {
	cases := []struct {
		desc      model.SearchDescriptor
		count     int
		anchor    bool
		wantTitle string
		wantMsg   bool
	}{
		{model.ProximitySearch(5), 12, true, "12 venues within 5 km of you, nearest first", false},
		{model.ProximitySearch(2.5), 0, true, "No venues within 2.5 km of you", true},
		{model.NameSearch("crown"), 1, false, `1 venue matching "crown"`, false},
		{model.AreaSearch("Leeds", model.AreaCity), 3, false, "3 venues in Leeds", false},
		{model.AreaSearch("NE1 1AA", model.AreaPostcode), 0, false, "No venues near NE1 1AA", true},
		{model.BeerSearch("haze", model.BeerName), 2, false, `2 venues serving beer "haze"`, false},
	}
	for _, tc := range cases {
		got := DescribeOutcome(tc.desc, tc.count, tc.anchor)
		if got.Title != tc.wantTitle {
			t.Errorf("title = %q, want %q", got.Title, tc.wantTitle)
		}
		if (got.Message != "") != tc.wantMsg {
			t.Errorf("%q: message = %q", tc.wantTitle, got.Message)
		}
	}
}

func TestFailureMessages(t *testing.T) {
	prox := model.ProximitySearch(5)
	wrap := func(k apperr.Kind) error {
		return apperr.Wrap(apperr.KindLocationRequired, "needed", apperr.New(k, "x"))
	}
	cases := []struct {
		err  error
		want string
	}{
		{wrap(apperr.KindPermissionDenied), "blocked"},
		{wrap(apperr.KindLocationTimeout), "too long"},
		{wrap(apperr.KindPositionUnavailable), "could not be determined"},
		{apperr.New(apperr.KindBackendUnavailable, "x"), "unavailable"},
	}
	for _, tc := range cases {
		if got := FailureMessage(prox, tc.err); !strings.Contains(got, tc.want) {
			t.Errorf("message for %v = %q", tc.err, got)
		}
	}
}

func TestGeocodedFallbackCarriesNoDistances(t *testing.T) {
	b := &fakeBackend{
		search: func(backend.TextQuery) (model.ResultPage, error) {
			return model.ResultPage{Items: []model.VenueSummary{}, PageNumber: 1}, nil
		},
		nearby: func(q backend.NearbyQuery) (model.ResultPage, error) {
			v := venue(1, ptr(54.98), ptr(-1.6))
			v.DistanceKm = ptr(0.8)
			return pageOf(v), nil
		},
	}
	gc := &fakeGeocoder{points: map[string]model.GeoPoint{"NE1 1AA": {Lat: 54.97, Lng: -1.61}}}
	d := NewDispatcher(b, &fakeLocator{}, results.NewStore(discard()), &fakeView{}, discard(), WithGeocoder(gc))

	entry, err := d.Area(context.Background(), "NE1 1AA", model.AreaPostcode)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Descriptor.HasAnchor() {
		t.Fatal("geocoded search should not have a user anchor")
	}
	if got := entry.Page.Items[0].DistanceKm; got != nil {
		t.Errorf("distance = %v without an anchor", *got)
	}
}

func TestVenueDistance(t *testing.T) {
	anchor := model.LocationReading{Latitude: 51.5, Longitude: -0.1, AcquiredAt: time.Now()}
	d := NewDispatcher(&fakeBackend{}, &fakeLocator{reading: &anchor}, results.NewStore(discard()), &fakeView{}, discard())

	v, err := d.Venue(context.Background(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if v.DistanceKm == nil || *v.DistanceKm != 0 {
		t.Errorf("distance = %v", v.DistanceKm)
	}

	d = NewDispatcher(&fakeBackend{}, &fakeLocator{}, results.NewStore(discard()), &fakeView{}, discard())
	v, err = d.Venue(context.Background(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if v.DistanceKm != nil {
		t.Errorf("distance = %v without a cached location", *v.DistanceKm)
	}
}
