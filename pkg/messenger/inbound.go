package messenger

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/rexliu/credrelay/pkg/message"
	"github.com/rexliu/credrelay/pkg/transport"
)

func (m *Messenger) handleEvent(ev transport.Event) {
	if _, ok := m.allowed[ev.Origin]; !ok {
		m.stats.droppedOrigin.Inc(1)
		m.logf("%v: %q, %d bytes dropped", ErrUnauthorizedOrigin, ev.Origin, len(ev.Payload))
		return
	}
	if !m.allow(ev.Origin) {
		m.stats.droppedRate.Inc(1)
		m.logf("%v: %q, %d bytes dropped", ErrRateLimited, ev.Origin, len(ev.Payload))
		return
	}
	env, err := m.codec.Decode(ev.Payload)
	if err != nil {
		m.stats.droppedMalformed.Inc(1)
		m.logf("drop event from %s: %v", ev.Origin, err)
		return
	}
	switch env.Kind {
	case message.KindResponse:
		m.handleResponse(env)
	case message.KindRequest:
		if env.Message.Type() == message.TypeAbortRequest {
			m.handleAbort(env.ID)
			return
		}
		m.handleRequest(ev.Origin, env)
	}
}

func (m *Messenger) allow(origin string) bool {
	if m.inboundRate <= 0 {
		return true
	}
	lim, ok := m.limiters[origin]
	if !ok {
		lim = rate.NewLimiter(m.inboundRate, m.inboundBurst)
		m.limiters[origin] = lim
	}
	return lim.Allow()
}

func (m *Messenger) handleResponse(env message.Envelope) {
	p, ok := m.take(env.ID)
	if !ok {
		m.stats.unknownID.Inc(1)
		return
	}
	got := env.Message.Type()
	switch {
	case got == p.expect:
		m.finish(p, env.Message, nil, OutcomeResolved)
	case got == message.TypeErrorResponse:
		text := env.Message.(message.ErrorResponse).Error
		m.finish(p, nil, fmt.Errorf("%w: %s", ErrRemote, text), OutcomeFailed)
	default:
		m.finish(p, nil, fmt.Errorf("%w: %s answered with %s, want %s", ErrProtocolMismatch, p.reqType, got, p.expect), OutcomeMismatched)
	}
}

// handleAbort serves an AbortRequest. The id names either one of our own
// pending requests, which the peer refuses to serve, or a request our
// handler is still working on.
func (m *Messenger) handleAbort(id string) {
	if m.settle(id, nil, fmt.Errorf("%w: %s aborted by peer", ErrCancelled, id), OutcomeCancelled) {
		m.send(message.Envelope{ID: id, Kind: message.KindResponse, Message: message.AbortResponse{}})
		return
	}
	m.mu.Lock()
	cancel, ok := m.inflight[id]
	if ok {
		delete(m.inflight, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.stats.aborted.Inc(1)
	cancel()
	m.send(message.Envelope{ID: id, Kind: message.KindResponse, Message: message.AbortResponse{}})
}

func (m *Messenger) handleRequest(origin string, env message.Envelope) {
	m.mu.Lock()
	h := m.handler
	if h == nil || m.closed {
		m.mu.Unlock()
		return
	}
	if _, busy := m.inflight[env.ID]; busy {
		m.mu.Unlock()
		m.logf("drop duplicate %s %s from %s", env.Message.Type(), env.ID, origin)
		return
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.inflight[env.ID] = cancel
	m.mu.Unlock()

	go m.serve(ctx, cancel, h, Inbound{ID: env.ID, Origin: origin, Message: env.Message})
}

func (m *Messenger) serve(ctx context.Context, cancel context.CancelFunc, h HandlerFunc, req Inbound) {
	defer cancel()
	resp := m.call(ctx, h, req)

	m.mu.Lock()
	_, live := m.inflight[req.ID]
	delete(m.inflight, req.ID)
	m.mu.Unlock()
	if !live {
		// aborted or closed; the abort was already answered
		return
	}
	m.stats.handled.Inc(1)
	m.send(message.Envelope{ID: req.ID, Kind: message.KindResponse, Message: resp})
}

// call runs h and folds every failure into an ErrorResponse.
func (m *Messenger) call(ctx context.Context, h HandlerFunc, req Inbound) (resp message.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logf("handler panic on %s %s: %v", req.Message.Type(), req.ID, r)
			resp = message.ErrorResponse{Error: "internal error"}
		}
	}()
	resp, err := h(ctx, req)
	if err != nil {
		return message.ErrorResponse{Error: err.Error()}
	}
	want, _ := req.Message.Type().ResponseType()
	if resp == nil || (resp.Type() != want && resp.Type() != message.TypeErrorResponse) {
		m.logf("handler answered %s %s with %v", req.Message.Type(), req.ID, typeOf(resp))
		return message.ErrorResponse{Error: fmt.Sprintf("no %s available", want)}
	}
	return resp
}

func typeOf(msg message.Message) string {
	if msg == nil {
		return "nil"
	}
	return string(msg.Type())
}
