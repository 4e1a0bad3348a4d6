// Package transport abstracts the raw channels a page context and the
// privileged context use to reach each other. Bindings only move bytes and
// label each inbound payload with the sender's claimed origin; typing,
// correlation and origin policy belong to the messenger.
package transport

import "errors"

// ErrClosed is returned by Send once a transport has been closed.
var ErrClosed = errors.New("transport closed")

// Event is one inbound payload together with the origin its sender claims.
// Origin is whatever the binding can observe (a handshake header, a fixed
// label for a trusted socket); it is never verified here.
type Event struct {
	Payload []byte
	Origin  string
}

// Transport is a bidirectional, possibly adversarial channel to one peer.
type Transport interface {
	// Send dispatches payload to the peer. Delivery is best effort and
	// unacknowledged; an error only means the payload certainly did not
	// leave.
	Send(payload []byte) error

	// Events yields inbound payloads in arrival order. The channel is
	// closed when the underlying channel ends or Close is called.
	Events() <-chan Event

	// Close releases the channel. It is safe to call more than once.
	Close() error
}
