package routing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records router activity. A nil *Metrics records nothing.
type Metrics struct {
	messages        *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
}

// NewMetrics creates the router collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fixinit",
				Subsystem: "router",
				Name:      "messages_total",
				Help:      "Inbound FIX messages dispatched by the router.",
			},
			[]string{"router", "msg_type"},
		),
		handlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fixinit",
				Subsystem: "router",
				Name:      "handler_failures_total",
				Help:      "Handler invocations that returned an error or panicked.",
			},
			[]string{"router", "handler"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fixinit",
				Subsystem: "router",
				Name:      "handler_duration_seconds",
				Help:      "Handler invocation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"router", "handler"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.messages, m.handlerFailures, m.handlerDuration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) messageDispatched(router, msgType string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(router, msgType).Inc()
}

func (m *Metrics) handlerDone(router, handler string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(router, handler).Observe(d.Seconds())
	if err != nil {
		m.handlerFailures.WithLabelValues(router, handler).Inc()
	}
}
