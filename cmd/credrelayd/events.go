package main

import (
	"encoding/json"
	"sync"

	"github.com/rcrowley/go-metrics"

	"github.com/rexliu/credrelay/pkg/ipc"
	"github.com/rexliu/credrelay/pkg/storage/sqlite"
)

const watcherBuffer = 16

// auditEvent is what watchers receive for every recorded ceremony.
type auditEvent struct {
	Type     string          `json:"type"`
	Ceremony sqlite.Ceremony `json:"ceremony"`
	Commit   string          `json:"commit,omitempty"`
}

// eventHub fans audit events out to /events watchers. A watcher that falls
// behind loses events rather than stalling the handler that recorded them.
type eventHub struct {
	logger  ipc.Logger
	dropped metrics.Counter

	mu       sync.Mutex
	watchers map[chan []byte]struct{}
}

func newEventHub(logger ipc.Logger, registry metrics.Registry) *eventHub {
	return &eventHub{
		logger:   logger,
		dropped:  metrics.GetOrRegisterCounter("events.dropped", registry),
		watchers: make(map[chan []byte]struct{}),
	}
}

// subscribe returns the watcher's feed and the function that ends it.
func (h *eventHub) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, watcherBuffer)
	h.mu.Lock()
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.watchers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *eventHub) watching() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

func (h *eventHub) publish(ev auditEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Printf("event marshal error: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.watchers {
		select {
		case ch <- payload:
		default:
			h.dropped.Inc(1)
		}
	}
}
