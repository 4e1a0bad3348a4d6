package messenger

import (
	"time"

	"github.com/rcrowley/go-metrics"
)

// Metric names registered by every messenger. Messengers sharing a
// registry share counters, so a daemon sees totals across connections.
const (
	MetricRequests         = "messenger.requests"
	MetricResolved         = "messenger.resolved"
	MetricTimedOut         = "messenger.timeouts"
	MetricCancelled        = "messenger.cancelled"
	MetricMismatched       = "messenger.mismatched"
	MetricFailed           = "messenger.remote_errors"
	MetricClosed           = "messenger.closed"
	MetricDroppedOrigin    = "messenger.dropped.origin"
	MetricDroppedRate      = "messenger.dropped.rate"
	MetricDroppedMalformed = "messenger.dropped.malformed"
	MetricUnknownID        = "messenger.dropped.unknown_id"
	MetricSendErrors       = "messenger.send_errors"
	MetricHandled          = "messenger.handled"
	MetricAborted          = "messenger.handler_aborts"
	MetricLatency          = "messenger.latency"
)

type stats struct {
	requests         metrics.Counter
	outcomes         map[Outcome]metrics.Counter
	droppedOrigin    metrics.Counter
	droppedRate      metrics.Counter
	droppedMalformed metrics.Counter
	unknownID        metrics.Counter
	sendErrors       metrics.Counter
	handled          metrics.Counter
	aborted          metrics.Counter
	latency          metrics.Timer
}

func newStats(r metrics.Registry) *stats {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &stats{
		requests: metrics.GetOrRegisterCounter(MetricRequests, r),
		outcomes: map[Outcome]metrics.Counter{
			OutcomeResolved:   metrics.GetOrRegisterCounter(MetricResolved, r),
			OutcomeTimedOut:   metrics.GetOrRegisterCounter(MetricTimedOut, r),
			OutcomeCancelled:  metrics.GetOrRegisterCounter(MetricCancelled, r),
			OutcomeMismatched: metrics.GetOrRegisterCounter(MetricMismatched, r),
			OutcomeFailed:     metrics.GetOrRegisterCounter(MetricFailed, r),
			OutcomeClosed:     metrics.GetOrRegisterCounter(MetricClosed, r),
		},
		droppedOrigin:    metrics.GetOrRegisterCounter(MetricDroppedOrigin, r),
		droppedRate:      metrics.GetOrRegisterCounter(MetricDroppedRate, r),
		droppedMalformed: metrics.GetOrRegisterCounter(MetricDroppedMalformed, r),
		unknownID:        metrics.GetOrRegisterCounter(MetricUnknownID, r),
		sendErrors:       metrics.GetOrRegisterCounter(MetricSendErrors, r),
		handled:          metrics.GetOrRegisterCounter(MetricHandled, r),
		aborted:          metrics.GetOrRegisterCounter(MetricAborted, r),
		latency:          metrics.GetOrRegisterTimer(MetricLatency, r),
	}
}

func (s *stats) settled(o Outcome, started time.Time) {
	if c, ok := s.outcomes[o]; ok {
		c.Inc(1)
	}
	if o == OutcomeResolved {
		s.latency.UpdateSince(started)
	}
}
