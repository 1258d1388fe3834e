package session_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/metrics"
	"github.com/mrz1836/finora/internal/provider"
	"github.com/mrz1836/finora/internal/session"
)

// Account #0 of the "test test ... junk" development mnemonic.
const (
	devKeyHex  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
)

func devKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := provider.KeyFromHex(devKeyHex)
	require.NoError(t, err)
	return key
}

func fastSettings() session.Settings {
	return session.Settings{
		TargetChainID:      chain.Base,
		ChainRetryAttempts: 2,
		ChainRetryDelay:    time.Millisecond,
		ConnectTimeout:     5 * time.Second,
		InstallURL:         "https://metamask.io/download/",
		ProviderRetry:      chain.RetryConfig{MaxAttempts: 1},
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// notes records notifier messages.
type notes struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *notes) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *notes) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *notes) Infos() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.infos...)
}

func (n *notes) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

// router records navigation.
type router struct {
	mu     sync.Mutex
	path   string
	pushes []string
}

func (r *router) CurrentPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *router) Push(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, path)
}

func (r *router) Pushes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pushes...)
}

// browser records opened URLs.
type browser struct {
	mu   sync.Mutex
	urls []string
}

func (b *browser) Open(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.urls = append(b.urls, url)
	return nil
}

func (b *browser) URLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.urls...)
}

// logs records error-level log lines.
type logs struct {
	mu     sync.Mutex
	errors []string
}

func (l *logs) Debug(string, ...any) {}

func (l *logs) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *logs) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

func (l *logs) Contains(sub string) bool {
	for _, e := range l.Errors() {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}

type harness struct {
	m       *session.Manager
	backend *auth.MockBackend
	tokens  *auth.MemoryStore
	notes   *notes
	router  *router
	browser *browser
	logs    *logs
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, backend auth.Backend, entries ...provider.Injected) *harness {
	t.Helper()
	h := &harness{
		tokens:  auth.NewMemoryStore(),
		notes:   &notes{},
		router:  &router{path: "/signup"},
		browser: &browser{},
		logs:    &logs{},
		metrics: &metrics.Metrics{},
	}
	if backend == nil {
		h.backend = auth.NewMockBackend()
		backend = h.backend
	}
	h.m = session.New(backend, h.tokens, provider.NewRegistry(entries...),
		session.WithSettings(fastSettings()),
		session.WithNotifier(h.notes),
		session.WithNavigator(h.router),
		session.WithOpener(h.browser),
		session.WithLogger(h.logs),
		session.WithMetrics(h.metrics),
	)
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) token(t *testing.T) string {
	t.Helper()
	token, err := h.tokens.Get()
	require.NoError(t, err)
	return token
}

func metaMask(p provider.Provider) provider.Injected {
	return provider.Injected{
		Descriptor: provider.Descriptor{Name: "MetaMask", IsMetaMask: true, MetaMaskInternal: true},
		Provider:   p,
	}
}

func trust(p provider.Provider, selected string) provider.Injected {
	return provider.Injected{
		Descriptor: provider.Descriptor{Name: "Trust Wallet", IsTrust: true, SelectedAddress: selected},
		Provider:   p,
	}
}

func coinbase(p provider.Provider) provider.Injected {
	return provider.Injected{
		Descriptor: provider.Descriptor{Name: "Coinbase Wallet", IsCoinbaseWallet: true},
		Provider:   p,
	}
}

// scripted is a provider whose answers are set per method.
type scripted struct {
	mu       sync.Mutex
	handlers map[string]func(params []any) (json.RawMessage, error)
	calls    map[string][][]any
}

func newScripted() *scripted {
	return &scripted{
		handlers: map[string]func([]any) (json.RawMessage, error){},
		calls:    map[string][][]any{},
	}
}

func (s *scripted) on(method string, fn func(params []any) (json.RawMessage, error)) *scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
	return s
}

func (s *scripted) fail(method string, err error) *scripted {
	return s.on(method, func([]any) (json.RawMessage, error) { return nil, err })
}

func (s *scripted) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls[method] = append(s.calls[method], params)
	fn := s.handlers[method]
	s.mu.Unlock()
	if fn == nil {
		return nil, provider.NewRPCError(provider.CodeUnsupportedMethod, "%s not scripted", method)
	}
	return fn(params)
}

func (s *scripted) Calls(method string) [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.calls[method]...)
}

func ok(raw string) func([]any) (json.RawMessage, error) {
	return func([]any) (json.RawMessage, error) { return json.RawMessage(raw), nil }
}
