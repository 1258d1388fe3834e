package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/finora/internal/provider"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// MockBackend is an in-process backend. Unlike a pure stub it verifies that
// signatures were produced by the claimed address over an issued nonce.
// Tokens embed their owner so they stay valid across processes.
type MockBackend struct {
	mu       sync.Mutex
	now      func() time.Time
	nonces   map[string]string // message -> lowercase address
	profiles map[string]Profile
	apys     map[string]float64
}

// NewMockBackend creates a mock backend with no profiles or vaults.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		now:      time.Now,
		nonces:   map[string]string{},
		profiles: map[string]Profile{},
		apys:     map[string]float64{},
	}
}

// SetProfile overrides the profile returned for address.
func (m *MockBackend) SetProfile(address string, p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[strings.ToLower(address)] = p.Clone()
}

// SetVaultAPY sets the APY reported for vault.
func (m *MockBackend) SetVaultAPY(vault string, apy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apys[vault] = apy
}

// GetNonce implements Backend.
func (m *MockBackend) GetNonce(_ context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", finoraerr.WithDetails(finoraerr.ErrInvalidAddress, map[string]string{"address": address})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	msg := fmt.Sprintf("Please sign this message to authenticate: %d", m.now().UnixNano())
	m.nonces[msg] = strings.ToLower(address)
	return msg, nil
}

// Login implements Backend. Each nonce can be used once.
func (m *MockBackend) Login(_ context.Context, address, message, signature string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.nonces[message]
	if !ok || owner != strings.ToLower(address) {
		return "", finoraerr.WithDetails(finoraerr.ErrAuthenticationFailed, map[string]string{"reason": "unknown nonce"})
	}

	signer, err := provider.RecoverSigner(message, signature)
	if err != nil {
		return "", finoraerr.WithCause(finoraerr.ErrAuthenticationFailed, err)
	}
	if !strings.EqualFold(signer.Hex(), address) {
		return "", finoraerr.WithDetails(finoraerr.ErrAuthenticationFailed, map[string]string{"reason": "signature mismatch"})
	}

	delete(m.nonces, message)
	return fmt.Sprintf("%s%d_%s", mockTokenPrefix, m.now().UnixNano(), owner), nil
}

// GetMe implements Backend. Without an explicit profile the account is
// whitelisted with no vault and no deposit.
func (m *MockBackend) GetMe(_ context.Context, token string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, err := mockTokenOwner(token)
	if err != nil {
		return nil, err
	}
	if p, found := m.profiles[owner]; found {
		return p.Clone(), nil
	}
	return Profile{
		KeyAddress:          owner,
		KeyIsWhitelisted:    true,
		KeyTwitterAccount:   nil,
		KeyMorphoVault:      nil,
		KeyIsInitialDeposit: false,
	}, nil
}

// VaultAPY implements Backend.
func (m *MockBackend) VaultAPY(_ context.Context, token, vault string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := mockTokenOwner(token); err != nil {
		return 0, err
	}
	apy, ok := m.apys[vault]
	if !ok {
		return 0, finoraerr.WithDetails(finoraerr.ErrNotFound, map[string]string{"vault": vault})
	}
	return apy, nil
}

const mockTokenPrefix = "mock_token_"

// mockTokenOwner extracts the address from a token issued by Login.
func mockTokenOwner(token string) (string, error) {
	rest, ok := strings.CutPrefix(token, mockTokenPrefix)
	if ok {
		if _, owner, found := strings.Cut(rest, "_"); found && common.IsHexAddress(owner) {
			return strings.ToLower(owner), nil
		}
	}
	return "", finoraerr.WithDetails(finoraerr.ErrAuthenticationFailed, map[string]string{"reason": "unknown token"})
}
