package balance

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/chain/rpc"
	"github.com/mrz1836/finora/internal/metrics"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// erc20ABI covers the read-only calls balance lookups need.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// Zero is returned whenever a balance cannot be determined.
const Zero = "0"

var (
	// ErrNoRPCURL indicates the chain has no configured read endpoint.
	ErrNoRPCURL = &finoraerr.FinoraError{
		Code:     "NO_RPC_URL",
		Message:  "no RPC URL configured for chain",
		ExitCode: finoraerr.ExitInput,
	}

	// ErrNoHolder indicates neither an explicit nor a session address was given.
	ErrNoHolder = &finoraerr.FinoraError{
		Code:     "NO_USER_ADDRESS",
		Message:  "no user address available",
		ExitCode: finoraerr.ExitInput,
	}
)

// Logger receives swallowed lookup failures.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Fetcher resolves balances for (token, chain, holder) triples.
type Fetcher struct {
	rpcURLs    map[int]string
	httpClient *http.Client
	limiter    *chain.RateLimiter
	retry      chain.RetryConfig
	cache      *Cache
	ttl        time.Duration
	metrics    *metrics.Metrics
	logger     Logger
	erc20      abi.ABI

	mu      sync.Mutex
	clients map[string]*rpc.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client used for node requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = hc }
}

// WithRateLimiter sets the per-endpoint rate limiter.
func WithRateLimiter(l *chain.RateLimiter) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.limiter = l
		}
	}
}

// WithRetry sets the retry policy for node requests.
func WithRetry(cfg chain.RetryConfig) Option {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithCache enables result caching for ttl.
func WithCache(c *Cache, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = c
		f.ttl = ttl
	}
}

// WithMetrics records RPC and cache outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithLogger sets the logger for swallowed failures.
func WithLogger(l Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a fetcher over the chain ID to RPC URL table.
func NewFetcher(rpcURLs map[int]string, opts ...Option) *Fetcher {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("balance: parsing erc20 abi: %v", err))
	}

	urls := make(map[int]string, len(rpcURLs))
	for id, u := range rpcURLs {
		if u != "" {
			urls[id] = u
		}
	}

	f := &Fetcher{
		rpcURLs: urls,
		limiter: chain.DefaultRateLimiter(),
		retry:   chain.DefaultRetryConfig(),
		logger:  nopLogger{},
		erc20:   parsed,
		clients: make(map[string]*rpc.Client),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.ttl <= 0 {
		f.ttl = DefaultTTL
	}
	return f
}

// Fetch returns the raw integer balance of token held by holder on chainID
// as a decimal string. Every failure is logged and reported as "0".
func (f *Fetcher) Fetch(ctx context.Context, token string, chainID int, holder string) string {
	bal, err := f.Balance(ctx, token, chainID, holder)
	if err != nil {
		f.logger.Error("balance lookup failed for %s on %s: %v", token, chain.Name(chainID), err)
		return Zero
	}
	return bal.String()
}

// Balance returns the raw integer balance, surfacing any failure.
func (f *Fetcher) Balance(ctx context.Context, token string, chainID int, holder string) (*big.Int, error) {
	if holder == "" {
		return nil, ErrNoHolder
	}
	if !common.IsHexAddress(holder) {
		return nil, finoraerr.WithDetails(finoraerr.ErrInvalidAddress, map[string]string{"address": holder})
	}
	if !common.IsHexAddress(token) {
		return nil, finoraerr.WithDetails(finoraerr.ErrInvalidAddress, map[string]string{"token": token})
	}

	url, ok := f.rpcURLs[chainID]
	if !ok {
		return nil, finoraerr.WithDetails(ErrNoRPCURL, map[string]string{"chain_id": fmt.Sprint(chainID)})
	}

	if f.cache != nil {
		if raw, hit := f.cache.Fresh(chainID, holder, token, f.ttl); hit {
			if bal, ok := new(big.Int).SetString(raw, 10); ok {
				f.recordCache(true)
				return bal, nil
			}
		}
		f.recordCache(false)
	}

	client := f.client(url)
	owner := common.HexToAddress(holder)

	bal, err := chain.RetryWithConfig(ctx, f.retry, func(ctx context.Context) (*big.Int, error) {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, err
		}
		start := time.Now()
		bal, err := f.query(ctx, client, token, owner)
		if f.metrics != nil {
			f.metrics.RecordRPCCall(chainID, time.Since(start), err)
		}
		return bal, err
	})
	if err != nil {
		return nil, finoraerr.WithCause(finoraerr.ErrNetworkUnavailable, err)
	}

	if f.cache != nil {
		f.cache.Set(Entry{ChainID: chainID, Address: holder, Token: token, Raw: bal.String()})
	}
	return bal, nil
}

func (f *Fetcher) query(ctx context.Context, client *rpc.Client, token string, owner common.Address) (*big.Int, error) {
	if chain.IsNativeAsset(token) {
		return client.GetBalance(ctx, owner, "latest")
	}

	data, err := f.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("packing balanceOf: %w", err)
	}

	out, err := client.EthCall(ctx, rpc.CallMsg{To: common.HexToAddress(token), Data: data}, "latest")
	if err != nil {
		return nil, err
	}

	values, err := f.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpacking balanceOf: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpacking balanceOf: empty result")
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpacking balanceOf: unexpected type %T", values[0])
	}
	return bal, nil
}

func (f *Fetcher) client(url string) *rpc.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[url]; ok {
		return c
	}
	c := rpc.NewClient(url, rpc.WithHTTPClient(f.httpClient))
	f.clients[url] = c
	return c
}

func (f *Fetcher) recordCache(hit bool) {
	if f.metrics == nil {
		return
	}
	if hit {
		f.metrics.RecordCacheHit()
		return
	}
	f.metrics.RecordCacheMiss()
}
