package observer

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/syssam/sqlkit"
)

// Metrics samples statement counts and durations.
type Metrics struct {
	queries    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	exceptions *prometheus.CounterVec
	txs        *prometheus.CounterVec
}

// NewMetrics returns a Metrics observer. Its collectors must be registered
// with MustRegister before they are exported.
func NewMetrics() *Metrics {
	return &Metrics{
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlkit_queries_total",
				Help: "Count of executed statements",
			},
			[]string{"type"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sqlkit_query_duration_seconds",
				Help: "Duration of executed statements",
				Buckets: []float64{
					.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
				},
			},
			[]string{"type"},
		),
		exceptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlkit_exceptions_total",
				Help: "Count of failed statements and transactions",
			},
			[]string{"kind"},
		),
		txs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlkit_transactions_total",
				Help: "Count of transaction events",
			},
			[]string{"event"},
		),
	}
}

// MustRegister registers the collectors on the given registry.
// If metrics with the same name already exist on the registry this function
// will panic.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(m.queries, m.duration, m.exceptions, m.txs)
}

// Observe implements sqlkit.Observer.
func (m *Metrics) Observe(_ context.Context, ev sqlkit.Event, subject any) {
	switch {
	case ev&sqlkit.EventQuery != 0:
		s, ok := subject.(sqlkit.Executed)
		if !ok {
			return
		}
		labels := prometheus.Labels{"type": strings.ToLower(s.Type().String())}
		m.queries.With(labels).Inc()
		m.duration.With(labels).Observe(s.Elapsed().Seconds())
	case ev&sqlkit.EventTransaction != 0:
		m.txs.With(prometheus.Labels{"event": ev.String()}).Inc()
	case ev == sqlkit.EventException:
		kind := "other"
		if err, ok := subject.(error); ok {
			switch {
			case sqlkit.IsQueryError(err):
				kind = "query"
			case errors.Is(err, sqlkit.ErrInvalidArgument):
				kind = "argument"
			}
		}
		m.exceptions.With(prometheus.Labels{"kind": kind}).Inc()
	}
}
