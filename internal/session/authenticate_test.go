package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/provider"
	"github.com/mrz1836/finora/internal/session"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// stubBackend returns canned answers and records what it was sent.
type stubBackend struct {
	mu       sync.Mutex
	nonce    string
	token    string
	profile  auth.Profile
	apy      float64
	nonceErr error
	loginErr error
	meErr    error
	logins   [][3]string
	meCalls  int
}

func (b *stubBackend) GetNonce(context.Context, string) (string, error) {
	return b.nonce, b.nonceErr
}

func (b *stubBackend) Login(_ context.Context, address, message, signature string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logins = append(b.logins, [3]string{address, message, signature})
	return b.token, b.loginErr
}

func (b *stubBackend) GetMe(context.Context, string) (auth.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meCalls++
	if b.meErr != nil {
		return nil, b.meErr
	}
	return b.profile.Clone(), nil
}

func (b *stubBackend) VaultAPY(context.Context, string, string) (float64, error) {
	return b.apy, nil
}

func (b *stubBackend) MeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.meCalls
}

// fixedSigner returns the same signature for every message.
type fixedSigner string

func (s fixedSigner) SignMessage(context.Context, common.Address, string) (string, error) {
	return string(s), nil
}

func TestAuthenticate_Handshake(t *testing.T) {
	t.Parallel()
	backend := &stubBackend{
		nonce:   "msg-123",
		token:   "tok-1",
		profile: auth.Profile{auth.KeyAddress: devAddress, auth.KeyIsWhitelisted: true},
	}
	h := newHarness(t, backend)

	msg, err := h.m.Authenticate(testCtx(t), devAddress, nil, fixedSigner("sig-abc"))
	require.NoError(t, err)
	assert.Equal(t, "msg-123", msg)

	require.Len(t, backend.logins, 1)
	assert.Equal(t, [3]string{devAddress, "msg-123", "sig-abc"}, backend.logins[0])
	assert.Equal(t, "tok-1", h.token(t))
	assert.Equal(t, "tok-1", h.m.Token())
	assert.True(t, h.m.State().Profile.IsWhitelisted())
	assert.Empty(t, h.notes.Errors())
}

func TestAuthenticate_ProviderSigns(t *testing.T) {
	t.Parallel()
	wallet := provider.NewLocalProvider(devKey(t))
	h := newHarness(t, nil)

	msg, err := h.m.Authenticate(testCtx(t), devAddress, wallet, nil)
	require.NoError(t, err)
	assert.Contains(t, msg, "Please sign this message to authenticate: ")
	assert.NotEmpty(t, h.token(t))
}

func TestAuthenticate_ProfileFailureKeepsToken(t *testing.T) {
	t.Parallel()
	backend := &stubBackend{nonce: "msg-123", token: "tok-1", meErr: errors.New("backend down")}
	h := newHarness(t, backend)

	_, err := h.m.Authenticate(testCtx(t), devAddress, nil, fixedSigner("sig-abc"))
	require.NoError(t, err)

	assert.Equal(t, "tok-1", h.token(t))
	assert.Empty(t, h.notes.Errors())
	assert.True(t, h.logs.Contains("fetching user profile"))
	assert.Empty(t, h.m.State().Profile)
}

func TestAuthenticate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend *stubBackend
		address string
		signer  provider.Signer
		want    error
	}{
		{
			name:    "login rejected",
			backend: &stubBackend{nonce: "msg-123", loginErr: errors.New("401 unauthorized")},
			address: devAddress,
			signer:  fixedSigner("sig-abc"),
			want:    finoraerr.ErrAuthenticationFailed,
		},
		{
			name:    "nonce unavailable",
			backend: &stubBackend{nonceErr: finoraerr.ErrNetworkUnavailable},
			address: devAddress,
			signer:  fixedSigner("sig-abc"),
			want:    finoraerr.ErrNetworkUnavailable,
		},
		{
			name:    "no token issued",
			backend: &stubBackend{nonce: "msg-123"},
			address: devAddress,
			signer:  fixedSigner("sig-abc"),
			want:    finoraerr.ErrAuthenticationFailed,
		},
		{
			name:    "invalid address",
			backend: &stubBackend{nonce: "msg-123", token: "tok-1"},
			address: "not-an-address",
			signer:  fixedSigner("sig-abc"),
			want:    finoraerr.ErrInvalidAddress,
		},
		{
			name:    "no signer or provider",
			backend: &stubBackend{nonce: "msg-123", token: "tok-1"},
			address: devAddress,
			want:    finoraerr.ErrSigningUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.backend)

			_, err := h.m.Authenticate(testCtx(t), tt.address, nil, tt.signer)
			require.ErrorIs(t, err, tt.want)

			assert.Equal(t, []string{session.MsgAuthFailed}, h.notes.Errors())
			assert.Empty(t, h.token(t))
			assert.Equal(t, int64(1), h.metrics.Snapshot().AuthErrors)
		})
	}
}

func TestAuthenticate_SignatureRejected(t *testing.T) {
	t.Parallel()
	wallet := provider.NewLocalProvider(devKey(t), provider.WithApprover(func(context.Context, string, string) error {
		return errors.New("declined")
	}))
	h := newHarness(t, nil)

	_, err := h.m.Authenticate(testCtx(t), devAddress, wallet, nil)
	require.ErrorIs(t, err, finoraerr.ErrUserRejected)
	assert.Empty(t, h.token(t))
}
