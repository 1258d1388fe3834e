// Package rpc provides a minimal JSON-RPC 2.0 client for read-only
// Ethereum node queries.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrz1836/finora/internal/chain"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

var (
	// ErrRPCRequest indicates an RPC request failed.
	ErrRPCRequest = &finoraerr.FinoraError{
		Code:     "RPC_REQUEST_FAILED",
		Message:  "RPC request failed",
		ExitCode: finoraerr.ExitUnavailable,
	}

	// ErrRPCResponse indicates an invalid RPC response.
	ErrRPCResponse = &finoraerr.FinoraError{
		Code:     "RPC_INVALID_RESPONSE",
		Message:  "invalid RPC response",
		ExitCode: finoraerr.ExitUnavailable,
	}
)

// maxResponseBytes bounds how much of a node response is read.
const maxResponseBytes = 4 << 20

// Client is a minimal Ethereum JSON-RPC client.
type Client struct {
	url        string
	httpClient *http.Client
	idCounter  atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets a per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// NewClient creates a new RPC client for url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint the client talks to.
func (c *Client) URL() string {
	return c.url
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Call performs a JSON-RPC call and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.idCounter.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, finoraerr.WithCause(ErrRPCRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, finoraerr.WithCause(ErrRPCRequest, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, finoraerr.WithDetails(chain.ErrRateLimited, map[string]string{
			"retry_after": chain.ParseRetryAfter(httpResp.Header.Get("Retry-After")).String(),
		})
	case httpResp.StatusCode >= http.StatusInternalServerError:
		return nil, chain.WrapRetryable(finoraerr.WithDetails(ErrRPCRequest, map[string]string{
			"status": httpResp.Status,
		}))
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, finoraerr.WithCause(ErrRPCResponse, err)
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, finoraerr.WithCause(ErrRPCResponse, err)
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp.Result, nil
}

// ChainID returns the node's chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.callQuantity(ctx, "eth_chainId")
}

// GetBalance returns the native balance of address in wei at block
// ("latest" when empty).
func (c *Client) GetBalance(ctx context.Context, address common.Address, block string) (*big.Int, error) {
	if block == "" {
		block = "latest"
	}
	return c.callQuantity(ctx, "eth_getBalance", address.Hex(), block)
}

// CallMsg represents the parameters for eth_call.
type CallMsg struct {
	From common.Address
	To   common.Address
	Data []byte
}

// MarshalJSON implements custom JSON marshaling for CallMsg.
func (m CallMsg) MarshalJSON() ([]byte, error) {
	type callMsgJSON struct {
		From string `json:"from,omitempty"`
		To   string `json:"to"`
		Data string `json:"data,omitempty"`
	}

	msg := callMsgJSON{To: m.To.Hex()}
	if m.From != (common.Address{}) {
		msg.From = m.From.Hex()
	}
	if len(m.Data) > 0 {
		msg.Data = hexutil.Encode(m.Data)
	}

	return json.Marshal(msg)
}

// EthCall performs an eth_call and returns the decoded return data.
func (c *Client) EthCall(ctx context.Context, msg CallMsg, block string) ([]byte, error) {
	if block == "" {
		block = "latest"
	}

	result, err := c.Call(ctx, "eth_call", msg, block)
	if err != nil {
		return nil, err
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, finoraerr.WithCause(ErrRPCResponse, err)
	}
	return out, nil
}

func (c *Client) callQuantity(ctx context.Context, method string, params ...any) (*big.Int, error) {
	result, err := c.Call(ctx, method, params...)
	if err != nil {
		return nil, err
	}

	var n hexutil.Big
	if err := json.Unmarshal(result, &n); err != nil {
		return nil, finoraerr.WithCause(ErrRPCResponse, fmt.Errorf("parsing %s result: %w", method, err))
	}
	return n.ToInt(), nil
}
