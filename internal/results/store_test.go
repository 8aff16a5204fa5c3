package results

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"gfbeer/venue-finder/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memSnap struct {
	saved   *Entry
	cleared int
}

func (m *memSnap) SaveEpisode(_ context.Context, e Entry) error {
	m.saved = &e
	return nil
}

func (m *memSnap) LoadEpisode(context.Context) (*Entry, error) {
	return m.saved, nil
}

func (m *memSnap) ClearEpisode(context.Context) error {
	m.saved = nil
	m.cleared++
	return nil
}

func TestSetCurrentRoundTrip(t *testing.T) {
	s := NewStore(discard())
	ctx := context.Background()

	for _, n := range []int{1, 2, 7} {
		d := model.NameSearch("crown").WithPage(n)
		page := model.ResultPage{PageNumber: n, PageCount: 7, TotalCount: 130}

		stored := s.SetCurrent(ctx, d, page, "Results")
		got := s.Current()
		if got != stored {
			t.Fatalf("Current returned a different entry")
		}
		if got.Page.PageNumber != n {
			t.Errorf("page number = %d, want %d", got.Page.PageNumber, n)
		}
		if got != s.Current() {
			t.Error("repeated Current calls disagree")
		}
	}
}

func TestClear(t *testing.T) {
	snap := &memSnap{}
	s := NewStore(discard(), WithSnapshotter(snap))
	ctx := context.Background()

	s.SetCurrent(ctx, model.NameSearch("bell"), model.ResultPage{PageNumber: 1}, "")
	if snap.saved == nil {
		t.Fatal("entry not persisted")
	}
	s.Clear(ctx)
	if s.Current() != nil {
		t.Error("current entry survived Clear")
	}
	if snap.cleared != 1 || snap.saved != nil {
		t.Errorf("snapshot not cleared: %+v", snap)
	}
}

func TestStaleness(t *testing.T) {
	now := time.Date(2026, 5, 2, 20, 0, 0, 0, time.UTC)
	s := NewStore(discard(), WithClock(func() time.Time { return now }))

	e := s.SetCurrent(context.Background(), model.NameSearch("anchor"), model.ResultPage{PageNumber: 1}, "")
	if s.IsStale(e) {
		t.Fatal("fresh entry reported stale")
	}
	now = now.Add(StaleAfter + time.Second)
	if !s.IsStale(e) {
		t.Error("old entry not reported stale")
	}
	if s.IsStale(nil) {
		t.Error("nil entry reported stale")
	}
}

func TestRestore(t *testing.T) {
	snap := &memSnap{saved: &Entry{
		Descriptor: model.AreaSearch("Leeds", model.AreaCity),
		Page:       model.ResultPage{PageNumber: 2, PageCount: 3},
		Title:      "GF venues in Leeds",
	}}

	s := NewStore(discard(), WithSnapshotter(snap))
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got := s.Current()
	if got == nil || got.Descriptor.Query != "Leeds" || got.Page.PageNumber != 2 {
		t.Fatalf("restored = %+v", got)
	}

	// A newer in-memory entry wins over the snapshot.
	newer := s.SetCurrent(context.Background(), model.NameSearch("x"), model.ResultPage{PageNumber: 1}, "")
	snap.saved = &Entry{Descriptor: model.NameSearch("older")}
	if err := s.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Current() != newer {
		t.Error("restore overwrote a newer entry")
	}
}
