package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tech-arch1tect/tokenchain/apperror"
)

// Metrics holds the token lifecycle collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	authentications *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	revocations     *prometheus.CounterVec
	reuseDetected   prometheus.Counter
	chainErrors     prometheus.Counter
	pruned          prometheus.Counter
	flowDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenchain_authentications_total",
			Help: "Authentication attempts by outcome",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenchain_refreshes_total",
			Help: "Refresh token rotations by outcome",
		}, []string{"result"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenchain_revocations_total",
			Help: "Refresh tokens revoked by reason",
		}, []string{"reason"}),
		reuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenchain_reuse_detected_total",
			Help: "Presentations of revoked refresh tokens",
		}),
		chainErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenchain_chain_errors_total",
			Help: "Cascade walks aborted on a malformed replacement chain",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenchain_pruned_tokens_total",
			Help: "Refresh tokens removed by retention",
		}),
		flowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokenchain_flow_duration_seconds",
			Help:    "Latency of authentication flows",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow"}),
	}

	registry.MustRegister(
		m.authentications,
		m.refreshes,
		m.revocations,
		m.reuseDetected,
		m.chainErrors,
		m.pruned,
		m.flowDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAuthentication(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(result(err)).Inc()
	m.flowDuration.WithLabelValues("authenticate").Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRefresh(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result(err)).Inc()
	m.flowDuration.WithLabelValues("refresh").Observe(elapsed.Seconds())
}

func (m *Metrics) AddRevoked(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) IncReuseDetected() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}

func (m *Metrics) IncChainError() {
	if m == nil {
		return
	}
	m.chainErrors.Inc()
}

func (m *Metrics) AddPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

func result(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperror.Kind(err))
}
