// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the server exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rpcRequests *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rateLimited prometheus.Counter

	expensesCreated prometheus.Counter
	expensesDeleted prometheus.Counter
	settlements     prometheus.Counter
	settledMinor    prometheus.Counter
	settleRejected  *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settleup_rpc_requests_total",
				Help: "Total number of RPC calls.",
			},
			[]string{"procedure", "code"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settleup_rpc_duration_seconds",
				Help:    "RPC latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"procedure"},
		),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settleup_rpc_rate_limited_total",
			Help: "RPC calls rejected by the rate limiter.",
		}),
		expensesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settleup_expenses_created_total",
			Help: "Expenses recorded.",
		}),
		expensesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settleup_expenses_deleted_total",
			Help: "Expenses deleted.",
		}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settleup_settlements_total",
			Help: "Settlements committed.",
		}),
		settledMinor: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settleup_settled_amount_minor_total",
			Help: "Sum of settled amounts in minor units.",
		}),
		settleRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settleup_settle_rejected_total",
				Help: "Settle attempts that did not commit, by reason.",
			},
			[]string{"reason"},
		),
	}
	m.registry.MustRegister(
		m.rpcRequests, m.rpcDuration, m.rateLimited,
		m.expensesCreated, m.expensesDeleted,
		m.settlements, m.settledMinor, m.settleRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRPC(procedure, code string, seconds float64) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	m.rpcDuration.WithLabelValues(procedure).Observe(seconds)
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ExpenseCreated() {
	if m == nil {
		return
	}
	m.expensesCreated.Inc()
}

func (m *Metrics) ExpenseDeleted() {
	if m == nil {
		return
	}
	m.expensesDeleted.Inc()
}

// Settled records a committed settlement of minor units.
func (m *Metrics) Settled(minor int64) {
	if m == nil {
		return
	}
	m.settlements.Inc()
	m.settledMinor.Add(float64(minor))
}

// SettleRejected counts a settle attempt that failed for reason
// (validation, nothing_owed, amount_mismatch, atomicity, ...).
func (m *Metrics) SettleRejected(reason string) {
	if m == nil {
		return
	}
	m.settleRejected.WithLabelValues(reason).Inc()
}
