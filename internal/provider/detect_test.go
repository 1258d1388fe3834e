package provider_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/provider"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

func TestParseWalletName(t *testing.T) {
	t.Parallel()
	tests := map[string]provider.Kind{
		"MetaMask":        provider.KindMetaMask,
		"Trust Wallet":    provider.KindTrust,
		"WalletConnect":   provider.KindWalletConnect,
		"Coinbase Wallet": provider.KindCoinbase,
	}
	for name, want := range tests {
		got, err := provider.ParseWalletName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
}

func TestParseWalletName_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := provider.ParseWalletName("Metamsk")
	require.ErrorIs(t, err, finoraerr.ErrUnsupported)

	var fe *finoraerr.FinoraError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "did you mean MetaMask?", fe.Suggestion)
	assert.Equal(t, "Metamsk", fe.Details["wallet"])

	_, err = provider.ParseWalletName("Phantom")
	require.ErrorAs(t, err, &fe)
	assert.Empty(t, fe.Suggestion)

	_, err = provider.ParseWalletName("")
	require.ErrorIs(t, err, finoraerr.ErrUnsupported)
}

func TestWalletNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"Coinbase Wallet", "MetaMask", "Trust Wallet", "WalletConnect"}, provider.WalletNames())
}

func TestPredicates(t *testing.T) {
	t.Parallel()
	impostor := provider.Descriptor{IsMetaMask: true}
	genuine := provider.Descriptor{IsMetaMask: true, MetaMaskInternal: true}

	assert.False(t, provider.IsGenuineMetaMask(impostor))
	assert.True(t, provider.IsGenuineMetaMask(genuine))
	assert.True(t, provider.IsTrust(provider.Descriptor{IsTrust: true}))
	assert.True(t, provider.IsCoinbase(provider.Descriptor{IsCoinbaseWallet: true}))
	assert.Empty(t, provider.Detectors(provider.KindWalletConnect))
}

type stubProvider struct{ name string }

func (stubProvider) Request(_ context.Context, _ string, _ ...any) (json.RawMessage, error) {
	return json.RawMessage("null"), nil
}

func TestRegistry_Locate(t *testing.T) {
	t.Parallel()

	impostor := provider.Injected{
		Descriptor: provider.Descriptor{Name: "impostor", IsMetaMask: true, IsTrust: true},
		Provider:   stubProvider{"impostor"},
	}
	metamask := provider.Injected{
		Descriptor: provider.Descriptor{Name: "metamask", IsMetaMask: true, MetaMaskInternal: true},
		Provider:   stubProvider{"metamask"},
	}
	reg := provider.NewRegistry(impostor, metamask)

	got, err := reg.Locate(provider.KindMetaMask)
	require.NoError(t, err)
	assert.Equal(t, "metamask", got.Descriptor.Name)

	got, err = reg.Locate(provider.KindTrust)
	require.NoError(t, err)
	assert.Equal(t, "impostor", got.Descriptor.Name)

	// Coinbase is not injected, so the primary provider is used.
	got, err = reg.Locate(provider.KindCoinbase)
	require.NoError(t, err)
	assert.True(t, got.Descriptor.Primary)
	assert.Equal(t, "impostor", got.Descriptor.Name)
}

func TestRegistry_PrimaryOverride(t *testing.T) {
	t.Parallel()
	reg := provider.NewRegistry(
		provider.Injected{Descriptor: provider.Descriptor{Name: "a"}},
		provider.Injected{Descriptor: provider.Descriptor{Name: "b", Primary: true}},
	)

	list := reg.List()
	require.Len(t, list, 2)
	assert.False(t, list[0].Descriptor.Primary)
	assert.True(t, list[1].Descriptor.Primary)
}

func TestRegistry_NotFound(t *testing.T) {
	t.Parallel()
	_, err := provider.NewRegistry().Locate(provider.KindMetaMask)
	require.ErrorIs(t, err, finoraerr.ErrProviderNotFound)

	_, err = provider.NewRegistry(provider.Injected{}).Locate(provider.KindWalletConnect)
	require.ErrorIs(t, err, finoraerr.ErrProviderNotFound)
}
