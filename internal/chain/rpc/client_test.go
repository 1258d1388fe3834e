package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/chain"
)

// rpcServer answers every call with result, asserting the method name.
func rpcServer(t *testing.T, method string, result any, check func(params []any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, method, req["method"])
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if check != nil {
			params, _ := req["params"].([]any)
			check(params)
		}

		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  result,
		}))
	}))
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestChainID(t *testing.T) {
	t.Parallel()
	server := rpcServer(t, "eth_chainId", "0x2105", nil)
	defer server.Close()

	id, err := NewClient(server.URL).ChainID(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(8453), id)
}

func TestGetBalance(t *testing.T) {
	t.Parallel()
	addr := common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e")

	server := rpcServer(t, "eth_getBalance", "0xde0b6b3a7640000", func(params []any) {
		assert.Equal(t, []any{addr.Hex(), "latest"}, params)
	})
	defer server.Close()

	balance, err := NewClient(server.URL).GetBalance(testCtx(t), addr, "")
	require.NoError(t, err)

	expected, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Equal(t, expected, balance)
}

func TestEthCall(t *testing.T) {
	t.Parallel()
	token := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	server := rpcServer(t, "eth_call", "0x00000000000000000000000000000000000000000000000000000000000f4240", func(params []any) {
		if !assert.Len(t, params, 2) {
			return
		}
		msg, ok := params[0].(map[string]any)
		if !assert.True(t, ok) {
			return
		}
		assert.Equal(t, token.Hex(), msg["to"])
		assert.Equal(t, "0x70a08231", msg["data"])
		assert.NotContains(t, msg, "from")
		assert.Equal(t, "latest", params[1])
	})
	defer server.Close()

	out, err := NewClient(server.URL).EthCall(testCtx(t), CallMsg{To: token, Data: []byte{0x70, 0xa0, 0x82, 0x31}}, "")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000), new(big.Int).SetBytes(out))
}

func TestRPCError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution reverted"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ChainID(testCtx(t))
	require.Error(t, err)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Contains(t, err.Error(), "execution reverted")
}

func TestHTTPStatusErrors(t *testing.T) {
	t.Parallel()

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := NewClient(server.URL).ChainID(testCtx(t))
		require.ErrorIs(t, err, chain.ErrRateLimited)
		assert.Contains(t, err.Error(), "2s")
	})

	t.Run("server error is retryable", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := NewClient(server.URL).ChainID(testCtx(t))
		require.ErrorIs(t, err, ErrRPCRequest)
		assert.True(t, chain.IsRetryable(err))
	})
}

func TestInvalidResponses(t *testing.T) {
	t.Parallel()

	t.Run("not json", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer server.Close()

		_, err := NewClient(server.URL).ChainID(testCtx(t))
		require.ErrorIs(t, err, ErrRPCResponse)
	})

	t.Run("bad quantity", func(t *testing.T) {
		t.Parallel()
		server := rpcServer(t, "eth_chainId", "base", nil)
		defer server.Close()

		_, err := NewClient(server.URL).ChainID(testCtx(t))
		require.ErrorIs(t, err, ErrRPCResponse)
	})
}

func TestUnreachable(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewClient(url, WithTimeout(time.Second))
	assert.Equal(t, url, c.URL())

	_, err := c.ChainID(testCtx(t))
	require.ErrorIs(t, err, ErrRPCRequest)
}

func TestCallMsgMarshalJSON(t *testing.T) {
	t.Parallel()
	msg := CallMsg{
		From: common.HexToAddress("0x1234567890123456789012345678901234567890"),
		To:   common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		Data: []byte{0xde, 0xad},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"from": "0x1234567890123456789012345678901234567890",
		"to": "`+msg.To.Hex()+`",
		"data": "0xdead"
	}`, string(data))

	data, err = json.Marshal(CallMsg{To: msg.To})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "from")
	assert.NotContains(t, string(data), "data")
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	hc := &http.Client{Timeout: time.Second}
	c := NewClient("http://localhost", WithHTTPClient(hc), WithHTTPClient(nil))
	assert.Same(t, hc, c.httpClient)
}
