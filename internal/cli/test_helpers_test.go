package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/config"
	"github.com/mrz1836/finora/internal/metrics"
	"github.com/mrz1836/finora/internal/output"
)

// Account #0 of the "test test ... junk" development mnemonic.
const (
	devKeyHex  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

	devKeyEnv = "FINORA_TEST_PRIVATE_KEY"
)

// testEnv is a command context over in-memory dependencies.
type testEnv struct {
	cc      *CommandContext
	out     *bytes.Buffer
	notes   *bytes.Buffer
	backend *auth.MockBackend
	tokens  *auth.MemoryStore
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, format output.Format) *testEnv {
	t.Helper()

	cfg := config.Defaults()
	cfg.Home = t.TempDir()
	cfg.Chain.RPCURLs = map[int]string{}
	cfg.Session.SettleDelayMS = 0
	cfg.Session.InstallPromptDelayMS = 0
	cfg.Session.ChainAddDelayMS = 0
	cfg.Session.ChainRetryDelayMS = 1
	cfg.Session.ConnectTimeoutSeconds = 10

	env := &testEnv{
		out:     &bytes.Buffer{},
		notes:   &bytes.Buffer{},
		backend: auth.NewMockBackend(),
		tokens:  auth.NewMemoryStore(),
		metrics: &metrics.Metrics{},
	}
	env.cc = NewCommandContext(cfg, config.NullLogger(), output.NewFormatter(format, env.out)).
		WithBackend(env.backend).
		WithTokenStore(env.tokens).
		WithNotifier(output.NewNotifier(env.notes))
	env.cc.Metrics = env.metrics
	return env
}

// token returns the persisted bearer token.
func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := e.tokens.Get()
	require.NoError(t, err)
	return token
}

// run executes cmd's RunE with flags, stdin and args, returning what the
// command wrote to stderr. Formatted output lands in e.out.
func (e *testEnv) run(t *testing.T, cmd *cobra.Command, stdin string, flags map[string]string, args ...string) (string, error) {
	t.Helper()

	resetFlags(cmd)
	t.Cleanup(func() { resetFlags(cmd) })
	for name, value := range flags {
		require.NoError(t, cmd.Flags().Set(name, value))
	}

	var stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(e.out)
	cmd.SetErr(&stderr)
	t.Cleanup(func() {
		cmd.SetIn(nil)
		cmd.SetOut(nil)
		cmd.SetErr(nil)
	})

	cmd.SetContext(context.Background())
	SetCmdContext(cmd, e.cc)

	err := cmd.RunE(cmd, args)
	return stderr.String(), err
}

// connect signs in with the development key.
func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	t.Setenv(devKeyEnv, devKeyHex)
	_, err := e.run(t, connectCmd, "", map[string]string{"private-key-env": devKeyEnv, "yes": "true"})
	require.NoError(t, err)
	e.out.Reset()
	e.notes.Reset()
}

// resetFlags restores every local flag of cmd to its default.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

// withMockConfirm replaces the confirmation prompt and restores it on cleanup.
func withMockConfirm(t *testing.T, answer bool) *[]string {
	t.Helper()
	orig := promptConfirmFn
	t.Cleanup(func() { promptConfirmFn = orig })

	var asked []string
	promptConfirmFn = func(_ *bufio.Reader, _ io.Writer, prompt string) bool {
		asked = append(asked, prompt)
		return answer
	}
	return &asked
}
