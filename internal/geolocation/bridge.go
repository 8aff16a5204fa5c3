package geolocation

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"gfbeer/venue-finder/internal/model"
)

// ErrUnknownRequest is returned when a reply names no pending request, typically because the
// request already timed out.
var ErrUnknownRequest = errors.New("no pending location request with that id")

// RequestKind tells the remote client what is being asked of it.
type RequestKind string

const (
	RequestPosition RequestKind = "position"
	RequestConsent  RequestKind = "consent"
)

// Request is pushed to the remote client, which answers through the Resolve methods.
type Request struct {
	ID      string           `json:"request_id"`
	Kind    RequestKind      `json:"kind"`
	Options *PositionOptions `json:"options,omitempty"`
}

// Notifier delivers a request to the remote client. It must not block.
type Notifier func(Request)

type bridgeReply struct {
	reading  model.LocationReading
	accepted bool
	err      error
}

// Bridge is a Platform and ConsentPrompter whose answers come from a remote browser: the
// permission state is reported by the client, and each position or consent request is
// pushed out and awaited until the client replies or the context ends.
type Bridge struct {
	notify Notifier

	mu      sync.Mutex
	state   PermissionState
	pending map[string]chan bridgeReply
}

// NewBridge builds a bridge that pushes requests through notify.
func NewBridge(notify Notifier) *Bridge {
	return &Bridge{
		notify:  notify,
		state:   PermissionUnknown,
		pending: make(map[string]chan bridgeReply),
	}
}

// SetPermission records the state the client's permission query returned.
func (b *Bridge) SetPermission(state PermissionState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *Bridge) PermissionState(context.Context) (PermissionState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, nil
}

func (b *Bridge) CurrentPosition(ctx context.Context, opts PositionOptions) (model.LocationReading, error) {
	o := opts
	reply, err := b.await(ctx, Request{Kind: RequestPosition, Options: &o})
	if err != nil {
		return model.LocationReading{}, err
	}
	return reply.reading, reply.err
}

func (b *Bridge) RequestConsent(ctx context.Context) (bool, error) {
	reply, err := b.await(ctx, Request{Kind: RequestConsent})
	if err != nil {
		return false, err
	}
	return reply.accepted, reply.err
}

// ResolvePosition answers a position request with a reading.
func (b *Bridge) ResolvePosition(id string, r model.LocationReading) error {
	return b.reply(id, bridgeReply{reading: r})
}

// RejectPosition answers a position request with a platform error code.
func (b *Bridge) RejectPosition(id string, code int, message string) error {
	if code == CodePermissionDenied {
		b.SetPermission(PermissionDenied)
	}
	return b.reply(id, bridgeReply{err: &PositionError{Code: code, Message: message}})
}

// ResolveConsent answers a consent request.
func (b *Bridge) ResolveConsent(id string, accepted bool) error {
	return b.reply(id, bridgeReply{accepted: accepted})
}

// Pending reports how many requests await a reply.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) await(ctx context.Context, req Request) (bridgeReply, error) {
	req.ID = uuid.NewString()
	ch := make(chan bridgeReply, 1)

	b.mu.Lock()
	b.pending[req.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	b.notify(req)

	select {
	case <-ctx.Done():
		return bridgeReply{}, ctx.Err()
	case reply := <-ch:
		return reply, nil
	}
}

func (b *Bridge) reply(id string, r bridgeReply) error {
	b.mu.Lock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		return ErrUnknownRequest
	}
	ch <- r
	return nil
}
