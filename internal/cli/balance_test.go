package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/output"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

const testVault = "0xbeeF010f9cb27031ad51e3333f9aF9C6B1228183"

// newRPCNode answers eth_getBalance with one ether.
func newRPCNode(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "eth_getBalance", req.Method)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0xde0b6b3a7640000",
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestBalance_NativeForAddress(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	node, calls := newRPCNode(t)
	env.cc.Cfg.Chain.RPCURLs[chain.Base] = node.URL

	_, err := env.run(t, balanceCmd, "", map[string]string{"address": devAddress})
	require.NoError(t, err)

	var res balanceResult
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &res))
	assert.Equal(t, chain.Base, res.ChainID)
	assert.Equal(t, devAddress, res.Address)
	assert.Equal(t, "1000000000000000000", res.Raw)
	assert.Equal(t, "1.0000", res.Formatted)
	assert.Equal(t, int32(1), calls.Load())

	// The cache is persisted under the home directory.
	_, statErr := os.Stat(filepath.Join(env.cc.Cfg.Home, balanceCacheFile))
	require.NoError(t, statErr)
}

func TestBalance_CachedAcrossRuns(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	node, calls := newRPCNode(t)
	env.cc.Cfg.Chain.RPCURLs[chain.Base] = node.URL

	for range 2 {
		_, err := env.run(t, balanceCmd, "", map[string]string{"address": devAddress})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, env.out.String(), "native on Base (8453)")
}

func TestBalance_DefaultsToSignedInAccount(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	node, _ := newRPCNode(t)
	env.cc.Cfg.Chain.RPCURLs[chain.Base] = node.URL
	env.connect(t)

	_, err := env.run(t, balanceCmd, "", nil)
	require.NoError(t, err)

	var res balanceResult
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &res))
	assert.Equal(t, devAddress, res.Address)
}

func TestBalance_NoHolder(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	_, err := env.run(t, balanceCmd, "", nil)
	require.ErrorIs(t, err, finoraerr.ErrInvalidInput)
}

func TestBalance_InvalidAddress(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	_, err := env.run(t, balanceCmd, "", map[string]string{"address": "0x123"})
	require.ErrorIs(t, err, finoraerr.ErrInvalidAddress)

	_, err = env.run(t, balanceCmd, "", map[string]string{"address": devAddress, "token": "nope"})
	require.ErrorIs(t, err, finoraerr.ErrInvalidAddress)
}

func TestBalance_NoRPCShowsZero(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)

	_, err := env.run(t, balanceCmd, "", map[string]string{"address": devAddress, "chain": "1"})
	require.NoError(t, err)

	var res balanceResult
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &res))
	assert.Equal(t, "0", res.Raw)
	assert.Equal(t, chain.Ethereum, res.ChainID)
}

func TestAPY_RequiresSignIn(t *testing.T) {
	env := newTestEnv(t, output.FormatText)

	_, err := env.run(t, apyCmd, "", map[string]string{"vault": testVault})
	require.ErrorIs(t, err, finoraerr.ErrTokenNotFound)
}

func TestAPY_ProfileVault(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	env.backend.SetProfile(devAddress, auth.Profile{
		auth.KeyAddress:     devAddress,
		auth.KeyMorphoVault: testVault,
	})
	env.backend.SetVaultAPY(testVault, 4.25)
	env.connect(t)

	_, err := env.run(t, apyCmd, "", nil)
	require.NoError(t, err)

	var res apyResult
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &res))
	assert.Equal(t, testVault, res.Vault)
	assert.InDelta(t, 4.25, res.APY, 1e-9)
}

func TestAPY_UnknownVaultIsZero(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.connect(t)

	_, err := env.run(t, apyCmd, "", map[string]string{"vault": testVault})
	require.NoError(t, err)
	assert.Contains(t, env.out.String(), "APY: 0.00%")
}

func TestAPY_NoVault(t *testing.T) {
	env := newTestEnv(t, output.FormatText)
	env.connect(t)

	_, err := env.run(t, apyCmd, "", nil)
	require.ErrorIs(t, err, finoraerr.ErrInvalidInput)
}
