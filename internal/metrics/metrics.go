// Package metrics counts wallet-connection, authentication and RPC outcomes
// with atomic counters, and mirrors them into Prometheus on demand.
package metrics

import (
	"sync/atomic"
	"time"
)

// Chain IDs with a dedicated RPC counter.
const (
	chainEthereum = 1
	chainBase     = 8453
)

// Metrics holds application metrics using atomic counters for thread safety.
type Metrics struct {
	// RPC metrics
	rpcCallsTotal   atomic.Int64
	rpcErrorsTotal  atomic.Int64
	rpcLatencyNanos atomic.Int64
	baseRPCCalls    atomic.Int64
	ethRPCCalls     atomic.Int64

	// Session metrics
	connectsTotal       atomic.Int64
	connectErrors       atomic.Int64
	authTotal           atomic.Int64
	authErrors          atomic.Int64
	chainSwitchesTotal  atomic.Int64
	chainSwitchesFailed atomic.Int64

	// Cache metrics
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Global is the global metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordRPCCall records a node RPC call with its duration and outcome.
func (m *Metrics) RecordRPCCall(chainID int, duration time.Duration, err error) {
	m.rpcCallsTotal.Add(1)
	m.rpcLatencyNanos.Add(duration.Nanoseconds())

	if err != nil {
		m.rpcErrorsTotal.Add(1)
	}

	switch chainID {
	case chainBase:
		m.baseRPCCalls.Add(1)
	case chainEthereum:
		m.ethRPCCalls.Add(1)
	}
}

// RecordConnect records a finished wallet connection attempt.
func (m *Metrics) RecordConnect(err error) {
	m.connectsTotal.Add(1)
	if err != nil {
		m.connectErrors.Add(1)
	}
}

// RecordAuth records a finished backend authentication handshake.
func (m *Metrics) RecordAuth(err error) {
	m.authTotal.Add(1)
	if err != nil {
		m.authErrors.Add(1)
	}
}

// RecordChainSwitch records a chain switch request.
func (m *Metrics) RecordChainSwitch(ok bool) {
	m.chainSwitchesTotal.Add(1)
	if !ok {
		m.chainSwitchesFailed.Add(1)
	}
}

// RecordCacheHit records a balance cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a balance cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	RPCCallsTotal       int64 `json:"rpc_calls_total"`
	RPCErrorsTotal      int64 `json:"rpc_errors_total"`
	RPCLatencyNanos     int64 `json:"rpc_latency_nanos"`
	BaseRPCCalls        int64 `json:"base_rpc_calls"`
	ETHRPCCalls         int64 `json:"eth_rpc_calls"`
	ConnectsTotal       int64 `json:"connects_total"`
	ConnectErrors       int64 `json:"connect_errors"`
	AuthTotal           int64 `json:"auth_total"`
	AuthErrors          int64 `json:"auth_errors"`
	ChainSwitchesTotal  int64 `json:"chain_switches_total"`
	ChainSwitchesFailed int64 `json:"chain_switches_failed"`
	CacheHits           int64 `json:"cache_hits"`
	CacheMisses         int64 `json:"cache_misses"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RPCCallsTotal:       m.rpcCallsTotal.Load(),
		RPCErrorsTotal:      m.rpcErrorsTotal.Load(),
		RPCLatencyNanos:     m.rpcLatencyNanos.Load(),
		BaseRPCCalls:        m.baseRPCCalls.Load(),
		ETHRPCCalls:         m.ethRPCCalls.Load(),
		ConnectsTotal:       m.connectsTotal.Load(),
		ConnectErrors:       m.connectErrors.Load(),
		AuthTotal:           m.authTotal.Load(),
		AuthErrors:          m.authErrors.Load(),
		ChainSwitchesTotal:  m.chainSwitchesTotal.Load(),
		ChainSwitchesFailed: m.chainSwitchesFailed.Load(),
		CacheHits:           m.cacheHits.Load(),
		CacheMisses:         m.cacheMisses.Load(),
	}
}

// RPCCallsTotal returns the total number of RPC calls made.
func (m *Metrics) RPCCallsTotal() int64 {
	return m.rpcCallsTotal.Load()
}

// RPCErrorsTotal returns the total number of RPC errors.
func (m *Metrics) RPCErrorsTotal() int64 {
	return m.rpcErrorsTotal.Load()
}

// RPCLatencyAvgMs returns the average RPC latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) RPCLatencyAvgMs() float64 {
	calls := m.rpcCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.rpcLatencyNanos.Load()) / float64(calls) / 1e6
}

// CacheHitRate returns the cache hit rate as a percentage (0-100).
// Returns 0 if no cache operations have occurred.
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Reset resets all metrics to zero.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.rpcCallsTotal, &m.rpcErrorsTotal, &m.rpcLatencyNanos,
		&m.baseRPCCalls, &m.ethRPCCalls,
		&m.connectsTotal, &m.connectErrors,
		&m.authTotal, &m.authErrors,
		&m.chainSwitchesTotal, &m.chainSwitchesFailed,
		&m.cacheHits, &m.cacheMisses,
	} {
		c.Store(0)
	}
}
