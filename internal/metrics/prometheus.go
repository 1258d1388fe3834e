package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every exported metric.
const Namespace = "finora"

// PrometheusCollector exposes a Metrics instance in the Prometheus format.
// Values are read from the atomic counters at scrape time, so the two views
// never drift apart.
type PrometheusCollector struct {
	metrics  *Metrics
	registry *prometheus.Registry
}

// NewPrometheusCollector registers m's counters in a dedicated registry so
// they do not interfere with the default global registry.
func NewPrometheusCollector(m *Metrics) *PrometheusCollector {
	reg := prometheus.NewRegistry()

	counter := func(name, help string, read func() int64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read()) })
	}

	reg.MustRegister(
		counter("rpc_calls_total", "Node RPC calls made.", m.rpcCallsTotal.Load),
		counter("rpc_errors_total", "Node RPC calls that failed.", m.rpcErrorsTotal.Load),
		counter("rpc_latency_seconds_total", "Cumulative node RPC latency.", func() int64 {
			return m.rpcLatencyNanos.Load() / 1e9
		}),
		counter("wallet_connects_total", "Wallet connection attempts.", m.connectsTotal.Load),
		counter("wallet_connect_errors_total", "Wallet connection attempts that failed.", m.connectErrors.Load),
		counter("auth_attempts_total", "Backend authentication handshakes.", m.authTotal.Load),
		counter("auth_errors_total", "Backend authentication handshakes that failed.", m.authErrors.Load),
		counter("chain_switches_total", "Chain switch requests.", m.chainSwitchesTotal.Load),
		counter("chain_switch_failures_total", "Chain switch requests that failed.", m.chainSwitchesFailed.Load),
		counter("balance_cache_hits_total", "Balance cache hits.", m.cacheHits.Load),
		counter("balance_cache_misses_total", "Balance cache misses.", m.cacheMisses.Load),
	)

	return &PrometheusCollector{metrics: m, registry: reg}
}

// Registry returns the underlying registry.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler serving the exposition format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
