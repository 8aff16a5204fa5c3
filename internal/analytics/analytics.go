// Package analytics carries fire-and-forget usage events out of the search core. Delivery is
// best-effort: sinks never block the caller and never report failures back to it.
package analytics

import (
	"log/slog"
	"time"
)

// Categories used by the core.
const (
	CategorySearch   = "search"
	CategoryLocation = "location"
	CategoryView     = "view"

	CategorySubmission = "submission"
)

// Event is a single analytics notification.
type Event struct {
	Name     string    `json:"event"`
	Category string    `json:"category"`
	Label    string    `json:"label,omitempty"`
	Count    *int      `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(name, category, label string) Event {
	return Event{Name: name, Category: category, Label: label, At: time.Now().UTC()}
}

// WithCount attaches a count to the event.
func (e Event) WithCount(n int) Event {
	e.Count = &n
	return e
}

// Sink receives events. Implementations must return quickly.
type Sink interface {
	Track(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Track(e Event) { f(e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every sink.
type Multi []Sink

func (m Multi) Track(e Event) {
	for _, s := range m {
		if s != nil {
			s.Track(e)
		}
	}
}

// LogSink writes events to a structured logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Track(e Event) {
	if l.Logger == nil {
		return
	}
	attrs := []any{"event", e.Name, "category", e.Category, "label", e.Label}
	if e.Count != nil {
		attrs = append(attrs, "count", *e.Count)
	}
	l.Logger.Debug("analytics event", attrs...)
}
