package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMultiSkipsNilSinks(t *testing.T) {
	var got []string
	rec := SinkFunc(func(e Event) { got = append(got, e.Name) })

	Multi{rec, nil, Nop, rec}.Track(NewEvent("search", CategorySearch, "name"))

	if len(got) != 2 {
		t.Fatalf("delivered %d times, want 2", len(got))
	}
}

func TestWithCountDoesNotAlias(t *testing.T) {
	base := NewEvent("search", CategorySearch, "beer")
	a := base.WithCount(3)
	b := base.WithCount(7)

	if base.Count != nil || *a.Count != 3 || *b.Count != 7 {
		t.Errorf("counts = %v %v %v", base.Count, a.Count, b.Count)
	}
}

type memWriter struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (m *memWriter) InsertEvent(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestJournalFlushesOnShutdown(t *testing.T) {
	w := &memWriter{}
	j := NewJournal(w, discardLogger(), 8)

	for i := 0; i < 5; i++ {
		j.Track(NewEvent("search", CategorySearch, "name").WithCount(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if w.count() != 5 {
		t.Errorf("journaled %d events, want 5", w.count())
	}
}

func TestForwarderDropsWhenFull(t *testing.T) {
	w := &memWriter{}
	j := NewJournal(w, discardLogger(), 2)

	for i := 0; i < 5; i++ {
		j.Track(NewEvent("search", CategorySearch, ""))
	}

	if j.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", j.Dropped())
	}
}

func TestForwarderCountsFailures(t *testing.T) {
	w := &memWriter{fail: true}
	j := NewJournal(w, discardLogger(), 4)
	j.Track(NewEvent("search", CategorySearch, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = j.Run(ctx)

	if j.Failed() != 1 {
		t.Errorf("failed = %d", j.Failed())
	}
}

func TestForwarderDeliversWhileRunning(t *testing.T) {
	w := &memWriter{}
	j := NewJournal(w, discardLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = j.Run(ctx)
		close(done)
	}()

	j.Track(NewEvent("location", CategoryLocation, "granted"))

	deadline := time.Now().Add(2 * time.Second)
	for w.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if w.count() != 1 {
		t.Errorf("journaled %d events", w.count())
	}
}

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type publishRecorder struct {
	mqtt.Client

	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (p *publishRecorder) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return doneToken{}
}

func TestMQTTPublishesJSONPerCategory(t *testing.T) {
	client := &publishRecorder{}
	sink := NewMQTT(client, "finder/analytics/", discardLogger(), 4)

	sink.Track(NewEvent("search", CategorySearch, "proximity").WithCount(12))
	sink.Track(Event{Name: "misc"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = sink.Run(ctx)

	if len(client.topics) != 2 {
		t.Fatalf("published %d messages", len(client.topics))
	}
	if client.topics[0] != "finder/analytics/search" || client.topics[1] != "finder/analytics/other" {
		t.Errorf("topics = %v", client.topics)
	}

	var decoded Event
	if err := json.Unmarshal(client.payloads[0], &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Name != "search" || decoded.Label != "proximity" || decoded.Count == nil || *decoded.Count != 12 {
		t.Errorf("decoded = %+v", decoded)
	}
}
