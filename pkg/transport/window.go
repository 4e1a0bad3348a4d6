package transport

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// DefaultWindowBuffer is the per-endpoint inbound queue length.
const DefaultWindowBuffer = 64

// Window models a document's shared message-passing primitive: every
// context attached to it sees what the others post, tagged with the
// poster's origin. A post is never echoed back to its own endpoint.
type Window struct {
	mu        sync.RWMutex
	endpoints map[*WindowEndpoint]struct{}
	buffer    int
	dropped   atomic.Uint64
}

// NewWindow returns an empty window.
func NewWindow() *Window {
	return &Window{
		endpoints: make(map[*WindowEndpoint]struct{}),
		buffer:    DefaultWindowBuffer,
	}
}

// Endpoint attaches a context that posts as origin.
func (w *Window) Endpoint(origin string) *WindowEndpoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := &WindowEndpoint{
		window: w,
		origin: origin,
		events: make(chan Event, w.buffer),
	}
	w.endpoints[e] = struct{}{}
	return e
}

// Dropped counts events discarded because a subscriber's queue was full.
func (w *Window) Dropped() uint64 {
	return w.dropped.Load()
}

// WindowEndpoint is one context's view of a Window.
type WindowEndpoint struct {
	window *Window
	origin string
	events chan Event
	closed bool
}

// Send posts payload to every other endpoint. Slow subscribers lose the
// event rather than stall the poster.
func (e *WindowEndpoint) Send(payload []byte) error {
	w := e.window
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	for other := range w.endpoints {
		if other == e {
			continue
		}
		select {
		case other.events <- Event{Payload: bytes.Clone(payload), Origin: e.origin}:
		default:
			w.dropped.Add(1)
		}
	}
	return nil
}

// Events implements Transport.
func (e *WindowEndpoint) Events() <-chan Event {
	return e.events
}

// Close detaches the endpoint and closes its event stream.
func (e *WindowEndpoint) Close() error {
	w := e.window
	w.mu.Lock()
	defer w.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	delete(w.endpoints, e)
	close(e.events)
	return nil
}
