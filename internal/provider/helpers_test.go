package provider_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/provider"
)

// Well-known development key (account #0 of the "test test ... junk" mnemonic).
const (
	devMnemonic = "test test test test test test test test test test test junk"
	devKeyHex   = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func devKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := provider.KeyFromHex(devKeyHex)
	require.NoError(t, err)
	return key
}
