package cli

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/balance"
	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/config"
	"github.com/mrz1836/finora/internal/metrics"
	"github.com/mrz1836/finora/internal/output"
	"github.com/mrz1836/finora/internal/provider"
	"github.com/mrz1836/finora/internal/session"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// balanceCacheFile is the balance cache file name under the home directory.
const balanceCacheFile = "balances.json"

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Log      *config.Logger
	Fmt      *output.Formatter
	Metrics  *metrics.Metrics
	Keyring  auth.Keyring
	Backend  auth.Backend
	Tokens   auth.TokenStore
	Notifier *output.Notifier
}

type cmdContextKey struct{}

// NewCommandContext creates a context with the given dependencies. The
// backend and token store are built from cfg on first use unless set.
func NewCommandContext(
	cfg *config.Config,
	logger *config.Logger,
	formatter *output.Formatter,
) *CommandContext {
	return &CommandContext{
		Cfg:     cfg,
		Log:     logger,
		Fmt:     formatter,
		Metrics: metrics.Global,
		Keyring: auth.OSKeyring{},
	}
}

// WithBackend sets the authentication backend.
func (c *CommandContext) WithBackend(b auth.Backend) *CommandContext {
	c.Backend = b
	return c
}

// WithTokenStore sets the token store.
func (c *CommandContext) WithTokenStore(s auth.TokenStore) *CommandContext {
	c.Tokens = s
	return c
}

// WithNotifier sets the notifier that shows session messages.
func (c *CommandContext) WithNotifier(n *output.Notifier) *CommandContext {
	c.Notifier = n
	return c
}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	cmd.SetContext(context.WithValue(baseContext(cmd), cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext attached to cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if cmd.Context() == nil {
		return nil
	}
	cc, _ := cmd.Context().Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(baseContext(cmd), d)
}

// backend returns the configured authentication backend.
func (c *CommandContext) backend() (auth.Backend, error) {
	if c.Backend != nil {
		return c.Backend, nil
	}
	if c.Cfg.Backend.Mock {
		c.Backend = auth.NewMockBackend()
		return c.Backend, nil
	}
	if c.Cfg.Backend.URL == "" {
		return nil, finoraerr.WithSuggestion(finoraerr.ErrConfigInvalid,
			"set backend.url to an https endpoint or backend.mock to true")
	}
	if err := config.ValidateURL(c.Cfg.Backend.URL); err != nil {
		return nil, finoraerr.WithSuggestion(
			finoraerr.WithCause(finoraerr.ErrConfigInvalid, err),
			"set backend.url to an https endpoint",
		)
	}
	c.Backend = auth.NewHTTPBackend(c.Cfg.Backend.URL, c.Cfg.BackendTimeout())
	return c.Backend, nil
}

// tokenStore returns the configured token store.
func (c *CommandContext) tokenStore() (auth.TokenStore, error) {
	if c.Tokens != nil {
		return c.Tokens, nil
	}
	store, err := auth.NewTokenStore(
		c.Cfg.Tokens.Store,
		config.ExpandPath(c.Cfg.Tokens.File),
		config.ExpandPath(c.Cfg.Tokens.IdentityFile),
		c.Keyring,
	)
	if err != nil {
		return nil, err
	}
	c.Tokens = store
	return store, nil
}

// notifier returns the session notifier, writing to w when none is set.
func (c *CommandContext) notifier(cmd *cobra.Command) *output.Notifier {
	if c.Notifier == nil {
		c.Notifier = output.NewNotifier(cmd.ErrOrStderr())
	}
	return c.Notifier
}

// balanceFetcher builds a fetcher backed by the on-disk balance cache. The
// returned function persists the cache.
func (c *CommandContext) balanceFetcher() (*balance.Fetcher, func()) {
	storage := balance.NewFileStorage(filepath.Join(config.ExpandPath(c.Cfg.Home), balanceCacheFile))
	cache, err := storage.Load()
	if err != nil {
		c.Log.Error("loading balance cache: %v", err)
		if !errors.Is(err, balance.ErrCorruptCache) {
			cache = balance.NewCache()
		}
	}

	fetcher := balance.NewFetcher(c.Cfg.Chain.RPCURLs,
		balance.WithCache(cache, c.Cfg.BalanceCacheTTL()),
		balance.WithRateLimiter(chain.NewRateLimiter(c.Cfg.Balance.RatePerSecond, c.Cfg.Balance.Burst)),
		balance.WithMetrics(c.Metrics),
		balance.WithLogger(c.Log.With("balance")),
	)

	return fetcher, func() {
		if err := storage.Save(cache); err != nil {
			c.Log.Error("saving balance cache: %v", err)
		}
	}
}

// managerDeps collects what a command needs besides the manager itself.
type managerDeps struct {
	Navigator *pathNavigator
	Opener    *consoleOpener
	Close     func()
}

// newManager wires a session manager over the configured backend and token
// store, discovering the wallets in entries.
func (c *CommandContext) newManager(cmd *cobra.Command, currentPath string, entries ...provider.Injected) (*session.Manager, *managerDeps, error) {
	backend, err := c.backend()
	if err != nil {
		return nil, nil, err
	}
	tokens, err := c.tokenStore()
	if err != nil {
		return nil, nil, err
	}

	fetcher, saveCache := c.balanceFetcher()
	deps := &managerDeps{
		Navigator: newPathNavigator(currentPath),
		Opener:    &consoleOpener{w: cmd.ErrOrStderr()},
	}

	m := session.New(backend, tokens, provider.NewRegistry(entries...),
		session.WithSettings(session.SettingsFromConfig(c.Cfg)),
		session.WithNotifier(c.notifier(cmd)),
		session.WithNavigator(deps.Navigator),
		session.WithOpener(deps.Opener),
		session.WithLogger(c.Log.With("session")),
		session.WithMetrics(c.Metrics),
		session.WithBalances(fetcher),
	)
	deps.Close = func() {
		m.Close()
		saveCache()
	}
	return m, deps, nil
}

var (
	_ session.Navigator = (*pathNavigator)(nil)
	_ session.Opener    = (*consoleOpener)(nil)
)

// pathNavigator stands in for the web app router. It starts at the page the
// user is on and records redirects.
type pathNavigator struct {
	mu     sync.Mutex
	path   string
	pushes []string
}

func newPathNavigator(path string) *pathNavigator {
	if path == "" {
		path = "/"
	}
	return &pathNavigator{path: path}
}

// CurrentPath implements session.Navigator.
func (n *pathNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Push implements session.Navigator.
func (n *pathNavigator) Push(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.pushes = append(n.pushes, path)
}

// Redirected returns the last pushed path, or "".
func (n *pathNavigator) Redirected() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pushes) == 0 {
		return ""
	}
	return n.pushes[len(n.pushes)-1]
}
