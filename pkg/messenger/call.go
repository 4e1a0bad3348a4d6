package messenger

import (
	"context"
	"fmt"
	"time"

	"github.com/rexliu/credrelay/pkg/message"
)

// Outcome is the terminal state of a request.
type Outcome int

const (
	OutcomeResolved Outcome = iota
	OutcomeTimedOut
	OutcomeCancelled
	OutcomeMismatched
	OutcomeFailed
	OutcomeClosed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeMismatched:
		return "mismatched"
	case OutcomeFailed:
		return "failed"
	case OutcomeClosed:
		return "closed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Settlement reports how a request ended.
type Settlement struct {
	ID      string
	Type    message.Type
	Outcome Outcome
	Err     error
	Latency time.Duration
}

type pending struct {
	id      string
	reqType message.Type
	expect  message.Type
	created time.Time
	timer   *time.Timer
	done    chan struct{}

	// written once before done is closed
	resp    message.Message
	err     error
	outcome Outcome
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the messenger's default timeout. Non-positive values
// keep the default.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Call is an outstanding request.
type Call struct {
	m *Messenger
	p *pending
}

// ID returns the correlation id carried by the request envelope.
func (c *Call) ID() string { return c.p.id }

// Done is closed once the call is settled.
func (c *Call) Done() <-chan struct{} { return c.p.done }

// Result blocks until the call settles and returns the response or the error
// that settled it.
func (c *Call) Result() (message.Message, error) {
	<-c.p.done
	return c.p.resp, c.p.err
}

// Cancel settles the call with ErrCancelled and tells the peer to stop work.
// It is a no-op once the call has settled.
func (c *Call) Cancel() {
	c.m.cancel(c.p.id, nil)
}

// Start sends msg as a new request and returns without waiting. The request
// is registered before it is sent, so a fast response is never missed.
func (m *Messenger) Start(msg message.Message, opts ...RequestOption) (*Call, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidRequest)
	}
	typ := msg.Type()
	expect, ok := typ.ResponseType()
	if !ok || typ == message.TypeAbortRequest {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, typ)
	}
	ro := requestOptions{timeout: m.timeout}
	for _, opt := range opts {
		opt(&ro)
	}

	id := m.newID()
	payload, err := m.codec.Encode(message.Envelope{ID: id, Kind: message.KindRequest, Message: msg})
	if err != nil {
		return nil, err
	}

	p := &pending{
		id:      id,
		reqType: typ,
		expect:  expect,
		created: time.Now(),
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if _, dup := m.pending[id]; dup {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: duplicate correlation id %s", ErrInvalidRequest, id)
	}
	m.pending[id] = p
	timeout := ro.timeout
	p.timer = time.AfterFunc(timeout, func() {
		m.settle(id, nil, fmt.Errorf("%w: no response to %s %s within %s", ErrTimeout, typ, id, timeout), OutcomeTimedOut)
	})
	m.mu.Unlock()

	m.stats.requests.Inc(1)
	m.sendPayload(id, payload)
	return &Call{m: m, p: p}, nil
}

// Request sends msg and waits for its settlement. Cancelling ctx cancels the
// request locally and sends an AbortRequest to the peer.
func (m *Messenger) Request(ctx context.Context, msg message.Message, opts ...RequestOption) (message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	call, err := m.Start(msg, opts...)
	if err != nil {
		return nil, err
	}
	select {
	case <-call.Done():
	case <-ctx.Done():
		m.cancel(call.ID(), context.Cause(ctx))
	}
	return call.Result()
}

func (m *Messenger) cancel(id string, cause error) {
	err := fmt.Errorf("%w: %s cancelled locally", ErrCancelled, id)
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrCancelled, cause)
	}
	if m.settle(id, nil, err, OutcomeCancelled) {
		m.send(message.Envelope{ID: id, Kind: message.KindRequest, Message: message.AbortRequest{}})
	}
}

// take removes id from the pending table. Whoever takes an entry owns its
// settlement.
func (m *Messenger) take(id string) (*pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	return p, ok
}

func (m *Messenger) settle(id string, resp message.Message, err error, outcome Outcome) bool {
	p, ok := m.take(id)
	if !ok {
		return false
	}
	m.finish(p, resp, err, outcome)
	return true
}

func (m *Messenger) finish(p *pending, resp message.Message, err error, outcome Outcome) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.resp, p.err, p.outcome = resp, err, outcome
	m.stats.settled(outcome, p.created)
	if m.onSettle != nil {
		m.onSettle(Settlement{
			ID:      p.id,
			Type:    p.reqType,
			Outcome: outcome,
			Err:     err,
			Latency: time.Since(p.created),
		})
	}
	close(p.done)
}
