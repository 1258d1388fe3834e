package session

import (
	"context"
	"sync"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/metrics"
	"github.com/mrz1836/finora/internal/provider"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Manager is the single writer of session state.
type Manager struct {
	backend   auth.Backend
	tokens    auth.TokenStore
	registry  *provider.Registry
	balances  BalanceFetcher
	settings  Settings
	notifier  Notifier
	navigator Navigator
	opener    Opener
	logger    Logger
	metrics   *metrics.Metrics

	// ctx bounds background work such as the chain listener.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	epoch         uint64 // advanced by Logout
	connecting    bool
	cancelConnect context.CancelFunc
	profileToken  string // token whose profile has been loaded
	profileBusy   bool
	subs          map[int]chan State
	nextSub       int
	listenGen     int

	listenMu  sync.Mutex
	listenSub listener
}

// Option configures a Manager.
type Option func(*Manager)

// WithSettings overrides the connect flow timings.
func WithSettings(s Settings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithNotifier sets the user-facing message sink.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithNavigator sets the presentation layer's router.
func WithNavigator(n Navigator) Option {
	return func(m *Manager) { m.navigator = n }
}

// WithOpener sets how external URLs are opened.
func WithOpener(o Opener) Option {
	return func(m *Manager) { m.opener = o }
}

// WithLogger sets the logger for swallowed errors.
func WithLogger(l Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records connect, auth and chain switch outcomes into mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithBalances sets the balance lookup used by FetchTokenBalance.
func WithBalances(b BalanceFetcher) Option {
	return func(m *Manager) { m.balances = b }
}

// New creates a Manager over the backend, token store and injected wallets.
func New(backend auth.Backend, tokens auth.TokenStore, registry *provider.Registry, opts ...Option) *Manager {
	if registry == nil {
		registry = provider.NewRegistry()
	}
	if tokens == nil {
		tokens = auth.NewMemoryStore()
	}
	m := &Manager{
		backend:  backend,
		tokens:   tokens,
		registry: registry,
		settings: DefaultSettings(),
		notifier: nopNotifier{},
		logger:   nopLogger{},
		metrics:  metrics.Global,
		state:    initialState(),
		subs:     make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Close stops the chain listener and closes all subscriptions.
func (m *Manager) Close() {
	m.cancel()
	m.detachListener()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Token returns the persisted bearer token, or "" when not authenticated.
func (m *Manager) Token() string {
	token, err := m.tokens.Get()
	if err != nil {
		m.logger.Error("reading auth token: %v", err)
		return ""
	}
	return token
}

// Authenticated reports whether a bearer token is persisted.
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// Subscribe streams state snapshots. Slow readers only see the latest
// snapshot. The returned function cancels the subscription.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 1)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

// update applies fn to the state and publishes the result.
func (m *Manager) update(fn func(s *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	m.publishLocked()
}

func (m *Manager) publishLocked() {
	for _, ch := range m.subs {
		snap := m.state.clone()
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// epochKey tags a context with the session epoch its work started in.
type epochKey struct{}

func withEpoch(ctx context.Context, epoch uint64) context.Context {
	return context.WithValue(ctx, epochKey{}, epoch)
}

// epochOf returns the epoch ctx was tagged with, or the current epoch.
func (m *Manager) epochOf(ctx context.Context) uint64 {
	if epoch, ok := ctx.Value(epochKey{}).(uint64); ok {
		return epoch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) inEpoch(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return epoch == m.epoch
}

// updateInEpoch applies fn only while epoch is current.
func (m *Manager) updateInEpoch(epoch uint64, fn func(s *State)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return false
	}
	fn(&m.state)
	m.publishLocked()
	return true
}

func (m *Manager) setChainID(ctx context.Context, id int) {
	m.updateInEpoch(m.epochOf(ctx), func(s *State) { s.ChainID = id })
}

// applyProfile merges p into the profile and recomputes the onboarding
// flags. With redirect set, an onboarded user is sent to the root page.
// Nothing changes once epoch has ended.
func (m *Manager) applyProfile(epoch uint64, p auth.Profile, redirect bool) bool {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return false
	}
	onboarded := m.mergeProfileLocked(p)
	m.mu.Unlock()

	if redirect && onboarded {
		m.redirectOnboarded()
	}
	return true
}

func (m *Manager) mergeProfileLocked(p auth.Profile) bool {
	s := &m.state
	s.Profile = s.Profile.Merge(p)
	s.IsOnboarded = s.Profile.IsOnboarded()
	s.ShowDashboard = s.IsOnboarded
	m.publishLocked()
	return s.IsOnboarded
}

func (m *Manager) redirectOnboarded() {
	if m.navigator == nil {
		return
	}
	if path := m.navigator.CurrentPath(); path != PathRoot && path != PathToken {
		m.navigator.Push(PathRoot)
	}
}

// commitLogin persists token and, when loaded, applies its profile. Nothing
// is written if the session was reset after epoch began.
func (m *Manager) commitLogin(epoch uint64, token string, profile auth.Profile, loaded bool) bool {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return false
	}
	var onboarded bool
	if loaded {
		m.profileToken = token
		onboarded = m.mergeProfileLocked(profile)
	}
	if err := m.tokens.Set(token); err != nil {
		m.logger.Error("persisting auth token: %v", err)
	}
	m.mu.Unlock()

	if onboarded {
		m.redirectOnboarded()
	}
	return true
}

// RestoreProfile loads the profile for a persisted token. It runs at most
// once per token; concurrent and repeated calls for the same token return
// without contacting the backend.
func (m *Manager) RestoreProfile(ctx context.Context) error {
	token, err := m.tokens.Get()
	if err != nil {
		m.logger.Error("reading auth token: %v", err)
		return err
	}
	if token == "" {
		return nil
	}

	m.mu.Lock()
	if m.profileBusy || m.profileToken == token {
		m.mu.Unlock()
		return nil
	}
	m.profileBusy = true
	epoch := m.epoch
	m.mu.Unlock()

	profile, err := m.backend.GetMe(ctx, token)

	m.mu.Lock()
	m.profileBusy = false
	if err == nil && epoch == m.epoch {
		m.profileToken = token
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("fetching user profile: %v", err)
		return err
	}
	if !m.applyProfile(epoch, profile, false) {
		m.logger.Debug("dropping profile restored after logout")
	}
	return nil
}

// Logout resets every session field and removes the persisted token. A
// connect still in flight is cancelled and its late results are discarded.
func (m *Manager) Logout(_ context.Context) error {
	m.mu.Lock()
	m.epoch++
	if m.cancelConnect != nil {
		m.cancelConnect()
		m.cancelConnect = nil
	}
	m.connecting = false
	m.profileToken = ""
	m.state = initialState()
	m.publishLocked()
	m.mu.Unlock()

	m.detachListener()

	if err := m.tokens.Remove(); err != nil {
		m.logger.Error("removing auth token: %v", err)
		return finoraerr.Wrap(err, "removing auth token")
	}
	return nil
}

// FetchTokenBalance returns the raw balance of token on chainID held by
// holder, or by the connected account when holder is empty. Failures yield "0".
func (m *Manager) FetchTokenBalance(ctx context.Context, token string, chainID int, holder string) string {
	if holder == "" {
		holder = m.State().Address
	}
	if m.balances == nil {
		m.logger.Error("balance lookup unavailable for %s", token)
		return "0"
	}
	return m.balances.Fetch(ctx, token, chainID, holder)
}

// GetVaultApy returns the vault's APY, or 0 without a token or on any failure.
func (m *Manager) GetVaultApy(ctx context.Context, vault string) float64 {
	token := m.Token()
	if token == "" {
		return 0
	}
	apy, err := m.backend.VaultAPY(ctx, token, vault)
	if err != nil {
		m.logger.Error("fetching vault %s APY: %v", vault, err)
		return 0
	}
	return apy
}
