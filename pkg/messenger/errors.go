package messenger

import "errors"

var (
	// ErrUnauthorizedOrigin marks an inbound event from an origin outside
	// the allow-list. Such events are logged and discarded.
	ErrUnauthorizedOrigin = errors.New("unauthorized origin")
	// ErrRateLimited marks an inbound event dropped by the per-origin limit.
	ErrRateLimited = errors.New("inbound rate exceeded")
	// ErrUnknownCorrelationID marks a response whose request is no longer
	// pending: unknown, duplicate or late. Such responses are discarded.
	ErrUnknownCorrelationID = errors.New("unknown correlation id")
	// ErrProtocolMismatch rejects a request answered with a response of
	// another variant family.
	ErrProtocolMismatch = errors.New("protocol mismatch")
	// ErrTimeout rejects a request that got no response before its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrCancelled rejects a request aborted locally or by the peer.
	ErrCancelled = errors.New("request cancelled")
	// ErrRemote rejects a request the peer answered with an ErrorResponse.
	ErrRemote = errors.New("peer reported error")
	// ErrClosed rejects requests outstanding when the messenger shuts down.
	ErrClosed = errors.New("messenger closed")
	// ErrInvalidRequest is returned by Start for messages that cannot open
	// a request.
	ErrInvalidRequest = errors.New("invalid request message")
)
