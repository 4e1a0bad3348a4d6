// Package messenger turns an unordered, multiplexed stream of transport
// events into correlated request/response pairs with per-request timeouts,
// cancellation and origin validation.
//
// One Messenger serves one endpoint. It is both a requester (Start, Request)
// and, when a handler is registered, a responder for the peer's requests.
package messenger

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"golang.org/x/time/rate"

	"github.com/rexliu/credrelay/pkg/message"
	"github.com/rexliu/credrelay/pkg/transport"
)

// DefaultTimeout covers the user-interaction window of a WebAuthn ceremony.
const DefaultTimeout = 5 * time.Minute

// Logger is the subset of *log.Logger the messenger writes to.
type Logger interface {
	Printf(format string, args ...any)
}

// Config is fixed at construction.
type Config struct {
	// AllowedOrigins lists the exact origins whose events are processed.
	// An empty list rejects every event.
	AllowedOrigins []string
	// Timeout applies to requests started without WithTimeout.
	Timeout time.Duration
	// Codec defaults to message.JSON.
	Codec  message.Codec
	Logger Logger
	// Metrics receives counters and the latency timer. A private registry
	// is used when nil.
	Metrics metrics.Registry
	// InboundRate limits events per second per origin. Zero disables it.
	InboundRate  float64
	InboundBurst int
	// OnSettle is called once per settled request, from the goroutine that
	// settled it. It must not block.
	OnSettle func(Settlement)
	// NewID overrides correlation id generation. Used by tests.
	NewID func() string
}

// Inbound is a request received from the peer.
type Inbound struct {
	ID      string
	Origin  string
	Message message.Message
}

// HandlerFunc answers an inbound request. The returned message must belong to
// the request's response family; anything else is sent as an ErrorResponse.
// ctx is cancelled when the peer aborts the request or the messenger closes.
type HandlerFunc func(ctx context.Context, req Inbound) (message.Message, error)

// Messenger correlates requests and responses over one transport.
type Messenger struct {
	t        transport.Transport
	codec    message.Codec
	allowed  map[string]struct{}
	timeout  time.Duration
	logger   Logger
	stats    *stats
	onSettle func(Settlement)
	newID    func() string

	inboundRate  rate.Limit
	inboundBurst int
	limiters     map[string]*rate.Limiter // only touched by Run

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	pending  map[string]*pending
	inflight map[string]context.CancelFunc
	handler  HandlerFunc
	closed   bool

	closeOnce sync.Once
	closeErr  error
}

// New builds a messenger over t. Call Run to start consuming inbound events.
func New(t transport.Transport, cfg Config) *Messenger {
	m := &Messenger{
		t:            t,
		codec:        cfg.Codec,
		allowed:      make(map[string]struct{}, len(cfg.AllowedOrigins)),
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
		stats:        newStats(cfg.Metrics),
		onSettle:     cfg.OnSettle,
		newID:        cfg.NewID,
		inboundRate:  rate.Limit(cfg.InboundRate),
		inboundBurst: cfg.InboundBurst,
		limiters:     make(map[string]*rate.Limiter),
		pending:      make(map[string]*pending),
		inflight:     make(map[string]context.CancelFunc),
	}
	for _, origin := range cfg.AllowedOrigins {
		m.allowed[origin] = struct{}{}
	}
	if m.codec == nil {
		m.codec = message.JSON
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.newID == nil {
		m.newID = NewCorrelationID
	}
	if m.inboundBurst <= 0 {
		m.inboundBurst = 1
	}
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())
	return m
}

// Handle registers the responder for inbound requests. A messenger without a
// handler ignores inbound requests other than aborts of its own calls.
func (m *Messenger) Handle(h HandlerFunc) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Run consumes inbound events until the transport's stream ends or ctx is
// done, then closes the messenger. It must be called at most once.
func (m *Messenger) Run(ctx context.Context) error {
	defer m.Close()
	events := m.t.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.handleEvent(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close rejects every pending request with ErrClosed, cancels in-flight
// handlers and closes the transport.
func (m *Messenger) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		outstanding := m.pending
		m.pending = make(map[string]*pending)
		m.inflight = make(map[string]context.CancelFunc)
		m.mu.Unlock()

		m.baseCancel()
		for _, p := range outstanding {
			m.finish(p, nil, ErrClosed, OutcomeClosed)
		}
		m.closeErr = m.t.Close()
	})
	return m.closeErr
}

// Pending returns the number of outstanding requests.
func (m *Messenger) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// IsPending reports whether id is awaiting a response.
func (m *Messenger) IsPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

func (m *Messenger) send(env message.Envelope) {
	payload, err := m.codec.Encode(env)
	if err != nil {
		m.stats.sendErrors.Inc(1)
		m.logf("encode %s %s: %v", env.Message.Type(), env.ID, err)
		return
	}
	m.sendPayload(env.ID, payload)
}

func (m *Messenger) sendPayload(id string, payload []byte) {
	if err := m.t.Send(payload); err != nil {
		m.stats.sendErrors.Inc(1)
		m.logf("send %s: %v", id, err)
	}
}

func (m *Messenger) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
