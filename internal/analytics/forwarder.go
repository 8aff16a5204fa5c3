package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const defaultBuffer = 256

// DeliverFunc hands one event to a transport.
type DeliverFunc func(ctx context.Context, e Event) error

// Forwarder is a Sink that queues events and delivers them from Run. A full queue drops the
// event instead of blocking the caller.
type Forwarder struct {
	name    string
	deliver DeliverFunc
	logger  *slog.Logger
	queue   chan Event
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewForwarder builds a forwarder with room for buffer pending events.
func NewForwarder(name string, deliver DeliverFunc, logger *slog.Logger, buffer int) *Forwarder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Forwarder{
		name:    name,
		deliver: deliver,
		logger:  logger,
		queue:   make(chan Event, buffer),
	}
}

func (f *Forwarder) Track(e Event) {
	select {
	case f.queue <- e:
	default:
		if f.dropped.Add(1)%100 == 1 {
			f.logger.Warn("analytics queue full, dropping events", "sink", f.name, "dropped", f.dropped.Load())
		}
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }

// Failed reports how many deliveries returned an error.
func (f *Forwarder) Failed() uint64 { return f.failed.Load() }

// Run delivers queued events until ctx is done, then flushes what is already queued.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case e := <-f.queue:
			f.send(ctx, e)
		case <-ctx.Done():
			f.flush()
			return nil
		}
	}
}

func (f *Forwarder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case e := <-f.queue:
			f.send(ctx, e)
		default:
			return
		}
	}
}

func (f *Forwarder) send(ctx context.Context, e Event) {
	if err := f.deliver(ctx, e); err != nil {
		f.failed.Add(1)
		f.logger.Debug("analytics delivery failed", "sink", f.name, "event", e.Name, "error", err)
	}
}

// EventWriter appends events to durable storage. store.Store implements it.
type EventWriter interface {
	InsertEvent(ctx context.Context, e Event) error
}

// NewJournal forwards events into w.
func NewJournal(w EventWriter, logger *slog.Logger, buffer int) *Forwarder {
	return NewForwarder("journal", w.InsertEvent, logger, buffer)
}

// Topic returns the MQTT topic for an event under prefix, e.g. finder/analytics/search.
func Topic(prefix string, e Event) string {
	category := e.Category
	if category == "" {
		category = "other"
	}
	return strings.TrimSuffix(prefix, "/") + "/" + category
}

// NewMQTT forwards events as JSON to topic prefix/<category> on an already connected client.
func NewMQTT(client mqtt.Client, prefix string, logger *slog.Logger, buffer int) *Forwarder {
	deliver := func(ctx context.Context, e Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}

		token := client.Publish(Topic(prefix, e), 0, false, data)
		wait := 2 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			wait = time.Until(deadline)
		}
		if !token.WaitTimeout(wait) {
			return fmt.Errorf("publish %s: timed out", e.Name)
		}
		return token.Error()
	}
	return NewForwarder("mqtt", deliver, logger, buffer)
}

// ConnectMQTT dials broker with a unique client id.
func ConnectMQTT(broker, clientPrefix string, timeout time.Duration) (mqtt.Client, error) {
	clientID := fmt.Sprintf("%s-%d", clientPrefix, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return client, nil
}
