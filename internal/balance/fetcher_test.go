package balance_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/balance"
	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/metrics"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

const (
	holder = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	usdc   = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

	// balanceOf(address) selector.
	balanceOfSelector = "0x70a08231"
)

// node is a JSON-RPC stub answering eth_getBalance and eth_call.
type node struct {
	server   *httptest.Server
	calls    atomic.Int32
	failures atomic.Int32 // remaining calls answered with 503
}

func newNode(t *testing.T) *node {
	t.Helper()
	n := &node{}
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.calls.Add(1)
		if n.failures.Load() > 0 {
			n.failures.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}

		var result string
		switch req.Method {
		case "eth_getBalance":
			result = "0xde0b6b3a7640000" // 1 ether
		case "eth_call":
			var msg map[string]string
			assert.NoError(t, json.Unmarshal(req.Params[0], &msg))
			assert.True(t, strings.HasPrefix(msg["data"], balanceOfSelector), msg["data"])
			assert.True(t, strings.EqualFold(usdc, msg["to"]))
			assert.True(t, strings.HasSuffix(strings.ToLower(msg["data"]), strings.ToLower(holder[2:])))
			result = "0x00000000000000000000000000000000000000000000000000000000000f4240" // 1_000_000
		default:
			t.Errorf("unexpected method %s", req.Method)
		}

		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}))
	}))
	t.Cleanup(n.server.Close)
	return n
}

type recordingLogger struct {
	errors atomic.Int32
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Error(string, ...any) { l.errors.Add(1) }

func fastRetry() chain.RetryConfig {
	return chain.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFetch_NativeAsset(t *testing.T) {
	t.Parallel()
	n := newNode(t)
	f := balance.NewFetcher(map[int]string{chain.Base: n.server.URL}, balance.WithRetry(fastRetry()))

	assert.Equal(t, "1000000000000000000", f.Fetch(testCtx(t), chain.NativeAssetAddress, chain.Base, holder))
}

func TestFetch_NativeAssetCaseInsensitive(t *testing.T) {
	t.Parallel()
	n := newNode(t)
	f := balance.NewFetcher(map[int]string{chain.Base: n.server.URL}, balance.WithRetry(fastRetry()))

	got := f.Fetch(testCtx(t), strings.ToLower(chain.NativeAssetAddress), chain.Base, holder)
	assert.Equal(t, "1000000000000000000", got)
}

func TestFetch_ERC20(t *testing.T) {
	t.Parallel()
	n := newNode(t)
	f := balance.NewFetcher(map[int]string{chain.Base: n.server.URL}, balance.WithRetry(fastRetry()))

	assert.Equal(t, "1000000", f.Fetch(testCtx(t), usdc, chain.Base, holder))
}

func TestFetch_UnknownChainReturnsZero(t *testing.T) {
	t.Parallel()
	logger := &recordingLogger{}
	f := balance.NewFetcher(map[int]string{chain.Base: "http://127.0.0.1:1"}, balance.WithLogger(logger))

	assert.Equal(t, balance.Zero, f.Fetch(testCtx(t), usdc, 424242, holder))
	assert.Equal(t, int32(1), logger.errors.Load())

	_, err := f.Balance(testCtx(t), usdc, 424242, holder)
	require.ErrorIs(t, err, balance.ErrNoRPCURL)
}

func TestFetch_MissingOrInvalidHolder(t *testing.T) {
	t.Parallel()
	n := newNode(t)
	f := balance.NewFetcher(map[int]string{chain.Base: n.server.URL}, balance.WithRetry(fastRetry()))

	assert.Equal(t, balance.Zero, f.Fetch(testCtx(t), usdc, chain.Base, ""))
	assert.Equal(t, balance.Zero, f.Fetch(testCtx(t), usdc, chain.Base, "0x123"))
	assert.Equal(t, balance.Zero, f.Fetch(testCtx(t), "not-a-token", chain.Base, holder))
	assert.Equal(t, int32(0), n.calls.Load())

	_, err := f.Balance(testCtx(t), usdc, chain.Base, "")
	require.ErrorIs(t, err, balance.ErrNoHolder)
	_, err = f.Balance(testCtx(t), usdc, chain.Base, "0x123")
	require.ErrorIs(t, err, finoraerr.ErrInvalidAddress)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	n := newNode(t)
	n.failures.Store(2)
	m := &metrics.Metrics{}
	f := balance.NewFetcher(map[int]string{chain.Base: n.server.URL},
		balance.WithRetry(fastRetry()), balance.WithMetrics(m))

	assert.Equal(t, "1000000", f.Fetch(testCtx(t), usdc, chain.Base, holder))
	assert.Equal(t, int32(3), n.calls.Load())
	assert.Equal(t, int64(3), m.RPCCallsTotal())
	assert.Equal(t, int64(2), m.RPCErrorsTotal())
}

func TestFetch_NodeDownReturnsZero(t *testing.T) {
	t.Parallel()
	n := newNode(t)
	n.failures.Store(100)
	logger := &recordingLogger{}
	f := balance.NewFetcher(map[int]string{chain.Base: n.server.URL},
		balance.WithRetry(fastRetry()), balance.WithLogger(logger))

	assert.Equal(t, balance.Zero, f.Fetch(testCtx(t), usdc, chain.Base, holder))
	assert.Equal(t, int32(3), n.calls.Load())
	assert.Equal(t, int32(1), logger.errors.Load())

	_, err := f.Balance(testCtx(t), usdc, chain.Base, holder)
	require.ErrorIs(t, err, finoraerr.ErrNetworkUnavailable)
}

func TestFetch_CachesResults(t *testing.T) {
	t.Parallel()
	n := newNode(t)
	m := &metrics.Metrics{}
	cache := balance.NewCache()
	f := balance.NewFetcher(map[int]string{chain.Base: n.server.URL},
		balance.WithRetry(fastRetry()),
		balance.WithCache(cache, time.Minute),
		balance.WithMetrics(m))

	assert.Equal(t, "1000000", f.Fetch(testCtx(t), usdc, chain.Base, holder))
	assert.Equal(t, "1000000", f.Fetch(testCtx(t), usdc, chain.Base, strings.ToLower(holder)))

	assert.Equal(t, int32(1), n.calls.Load())
	assert.Equal(t, 1, cache.Size())
	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
}

func TestFetch_RateLimiterCancellation(t *testing.T) {
	t.Parallel()
	n := newNode(t)
	limiter := chain.NewRateLimiter(0.001, 1)
	require.True(t, limiter.Allow(n.server.URL))

	f := balance.NewFetcher(map[int]string{chain.Base: n.server.URL},
		balance.WithRetry(chain.RetryConfig{MaxAttempts: 1}),
		balance.WithRateLimiter(limiter))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Equal(t, balance.Zero, f.Fetch(ctx, usdc, chain.Base, holder))
	assert.Equal(t, int32(0), n.calls.Load())
}
