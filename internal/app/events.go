package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gfbeer/venue-finder/internal/geolocation"
	"gfbeer/venue-finder/internal/model"
)

// Event types pushed to a session's browser.
const (
	eventResults         = "results"
	eventNoResults       = "no_results"
	eventLoading         = "loading"
	eventMapMarkers      = "map_markers"
	eventMapDispose      = "map_dispose"
	eventLocationRequest = "location_request"
)

type pushEvent struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

type resultsPayload struct {
	Title string           `json:"title"`
	Page  model.ResultPage `json:"page"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// eventStream is the browser end of a session: it renders the list, draws the map and
// forwards location requests by pushing events to every connected socket. Events sent while
// no socket is connected are dropped; the browser re-reads the current results on connect.
type eventStream struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan pushEvent]struct{}
}

func newEventStream(logger *slog.Logger) *eventStream {
	return &eventStream{logger: logger, subs: make(map[chan pushEvent]struct{})}
}

func (s *eventStream) publish(kind string, payload any) {
	ev := pushEvent{Type: kind, Payload: payload, At: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("event subscriber lagging, dropping event", "type", kind)
		}
	}
}

func (s *eventStream) subscribe() (<-chan pushEvent, func()) {
	ch := make(chan pushEvent, 32)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *eventStream) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *eventStream) OnResultsReady(page model.ResultPage, title string) {
	s.publish(eventResults, resultsPayload{Title: title, Page: page})
}

func (s *eventStream) OnNoResults(message string) {
	s.publish(eventNoResults, messagePayload{Message: message})
}

func (s *eventStream) OnLoading(message string) {
	s.publish(eventLoading, messagePayload{Message: message})
}

func (s *eventStream) RenderMarkers(_ context.Context, venues []model.VenueSummary) error {
	located := make([]model.VenueSummary, 0, len(venues))
	for _, v := range venues {
		if v.HasCoordinates() {
			located = append(located, v)
		}
	}
	s.publish(eventMapMarkers, located)
	return nil
}

func (s *eventStream) DisposeMap() {
	s.publish(eventMapDispose, nil)
}

func (s *eventStream) notifyLocation(req geolocation.Request) {
	s.publish(eventLocationRequest, req)
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// serve pumps events to conn until the client goes away or ctx ends. Messages from the
// client are read only to process control frames.
func (s *eventStream) serve(ctx context.Context, conn *websocket.Conn) {
	events, unsubscribe := s.subscribe()
	defer unsubscribe()
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-closed:
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
