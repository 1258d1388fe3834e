package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/config"
	"github.com/mrz1836/finora/internal/output"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

func TestCmdContextRoundTrip(t *testing.T) {
	t.Parallel()
	cmd := &cobra.Command{}
	assert.Nil(t, GetCmdContext(cmd))

	cc := NewCommandContext(config.Defaults(), config.NullLogger(), output.NewFormatter(output.FormatText, os.Stdout))
	SetCmdContext(cmd, cc)
	assert.Same(t, cc, GetCmdContext(cmd))
}

func TestContextWithTimeout_UsesCommandContext(t *testing.T) {
	t.Parallel()

	parent, parentCancel := context.WithCancel(context.Background())
	cmd := &cobra.Command{}
	cmd.SetContext(parent)

	ctx, cancel := contextWithTimeout(cmd, time.Second)
	defer cancel()

	parentCancel()

	select {
	case <-ctx.Done():
		require.ErrorIs(t, ctx.Err(), context.Canceled)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected derived context to cancel with the command context")
	}
}

func TestContextWithTimeout_FallbackBackground(t *testing.T) {
	t.Parallel()

	ctx, cancel := contextWithTimeout(&cobra.Command{}, 25*time.Millisecond)
	defer cancel()

	select {
	case <-ctx.Done():
		require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected derived context deadline to trigger")
	}
}

func TestBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
		mock    bool
	}{
		{"mock", func(c *config.Config) { c.Backend.Mock = true }, nil, true},
		{"http", func(c *config.Config) {
			c.Backend.Mock = false
			c.Backend.URL = "https://api.example.com"
		}, nil, false},
		{"empty url", func(c *config.Config) {
			c.Backend.Mock = false
			c.Backend.URL = ""
		}, finoraerr.ErrConfigInvalid, false},
		{"insecure url", func(c *config.Config) {
			c.Backend.Mock = false
			c.Backend.URL = "http://api.example.com"
		}, finoraerr.ErrConfigInvalid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tt.mutate(cfg)
			cc := NewCommandContext(cfg, config.NullLogger(), nil)

			b, err := cc.backend()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			_, isMock := b.(*auth.MockBackend)
			assert.Equal(t, tt.mock, isMock)

			again, err := cc.backend()
			require.NoError(t, err)
			assert.Same(t, b, again)
		})
	}
}

func TestTokenStore(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	cfg := config.Defaults()
	cfg.Tokens.Store = auth.StoreFile
	cfg.Tokens.File = filepath.Join(home, "auth_token.age")
	cfg.Tokens.IdentityFile = filepath.Join(home, "identity.age")
	cc := NewCommandContext(cfg, config.NullLogger(), nil)

	store, err := cc.tokenStore()
	require.NoError(t, err)
	require.NoError(t, store.Set("mock_token_1_"+devAddress))

	again, err := cc.tokenStore()
	require.NoError(t, err)
	token, err := again.Get()
	require.NoError(t, err)
	assert.Equal(t, "mock_token_1_"+devAddress, token)
	assert.FileExists(t, cfg.Tokens.File)
}

func TestTokenStore_UnknownKind(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Tokens.Store = "vault"
	cc := NewCommandContext(cfg, config.NullLogger(), nil)

	_, err := cc.tokenStore()
	require.Error(t, err)
}

func TestBalanceFetcher_CorruptCacheIsReplaced(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Home = t.TempDir()
	path := filepath.Join(cfg.Home, balanceCacheFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cc := NewCommandContext(cfg, config.NullLogger(), nil)
	fetcher, save := cc.balanceFetcher()
	require.NotNil(t, fetcher)
	save()

	data, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	assert.NotContains(t, string(data), "{not json")
}

func TestPathNavigator(t *testing.T) {
	t.Parallel()

	n := newPathNavigator("")
	assert.Equal(t, "/", n.CurrentPath())
	assert.Empty(t, n.Redirected())

	n = newPathNavigator("/signup")
	n.Push("/")
	assert.Equal(t, "/", n.CurrentPath())
	assert.Equal(t, "/", n.Redirected())
}
