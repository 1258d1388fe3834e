// Package session owns the wallet connection and authentication state.
//
// A Manager connects one of the supported wallets, keeps it on the target
// chain, authenticates the account against the backend by signing a nonce,
// and derives the onboarding flags from the returned profile. All writes go
// through the Manager, and readers get immutable State snapshots.
package session

import (
	"context"
	"slices"
	"time"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/config"
	"github.com/mrz1836/finora/internal/provider"
)

// Progress labels shown while selecting and connecting a wallet.
const (
	StepSelectWallet  = "Select a wallet"
	StepConnectWallet = "Create or connect wallet"
	StepConnecting    = "Connecting wallet..."
)

// Paths that suppress the post-login redirect.
const (
	PathRoot  = "/"
	PathToken = "/token"
)

// User-facing notifications.
const (
	MsgUnsupportedWallet  = "Currently not supported!"
	MsgMetaMaskMissing    = "MetaMask is not installed. Please install MetaMask."
	MsgCoinbaseMissing    = "Coinbase Wallet is not installed"
	MsgConnectionFailed   = "Wallet connection failed"
	MsgSomethingWrong     = "Something went wrong"
	MsgSomethingWrongBang = "Something went wrong!"
	MsgAuthFailed         = "Authentication failed"
	MsgUserRejectedSwitch = "User rejected switching chains."
	MsgChainSetup         = "Chain not added to wallet. Initiating chain setup..."
	MsgWalletConnectSoon  = "WalletConnect integration coming soon. Please use MetaMask or Trust Wallet for now."
)

// DefaultSteps returns the idle progress labels.
func DefaultSteps() []string {
	return []string{StepSelectWallet, StepConnectWallet}
}

// ConnectingSteps returns the progress labels shown while connecting.
func ConnectingSteps() []string {
	return []string{StepSelectWallet, StepConnecting}
}

// NetworkData is the account and chain last read back from the wallet.
type NetworkData struct {
	Account string `json:"account"`
	ChainID int    `json:"chain_id"`
}

// State is a snapshot of the session.
type State struct {
	Address       string            `json:"address,omitempty"` // lowercase hex
	ChainID       int               `json:"chain_id,omitempty"`
	Connector     provider.Kind     `json:"connector"`
	Provider      provider.Provider `json:"-"`
	Loading       bool              `json:"loading"`
	Steps         []string          `json:"steps"`
	Network       *NetworkData      `json:"network,omitempty"`
	Profile       auth.Profile      `json:"profile"`
	IsOnboarded   bool              `json:"is_onboarded"`
	ShowDashboard bool              `json:"show_dashboard"`
}

// Connected reports whether an account has been obtained from a wallet.
// It says nothing about backend authentication.
func (s State) Connected() bool {
	return s.Address != ""
}

func initialState() State {
	return State{
		Connector: provider.KindMetaMask,
		Steps:     DefaultSteps(),
		Profile:   auth.Profile{},
	}
}

func (s State) clone() State {
	out := s
	out.Steps = slices.Clone(s.Steps)
	out.Profile = s.Profile.Clone()
	if s.Network != nil {
		n := *s.Network
		out.Network = &n
	}
	return out
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// Navigator exposes the presentation layer's current location.
type Navigator interface {
	CurrentPath() string
	Push(path string)
}

// Opener opens an external URL, such as a wallet install page.
type Opener interface {
	Open(url string) error
}

// Logger records swallowed errors and progress.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// BalanceFetcher resolves token balances, degrading to "0" on failure.
type BalanceFetcher interface {
	Fetch(ctx context.Context, token string, chainID int, holder string) string
}

// Settings holds the timing and chain parameters of the connect flow.
type Settings struct {
	TargetChainID      int
	SettleDelay        time.Duration
	InstallPromptDelay time.Duration
	ChainAddDelay      time.Duration
	ChainRetryAttempts int
	ChainRetryDelay    time.Duration
	ConnectTimeout     time.Duration
	InstallURL         string

	// ProviderRetry is the transport retry policy of wallet clients.
	ProviderRetry chain.RetryConfig
}

// DefaultSettings returns the production timings.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Defaults())
}

// SettingsFromConfig derives Settings from the application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		TargetChainID:      cfg.TargetChainID(),
		SettleDelay:        cfg.SettleDelay(),
		InstallPromptDelay: cfg.InstallPromptDelay(),
		ChainAddDelay:      cfg.ChainAddDelay(),
		ChainRetryAttempts: cfg.Session.ChainRetryAttempts,
		ChainRetryDelay:    cfg.ChainRetryDelay(),
		ConnectTimeout:     cfg.ConnectTimeout(),
		InstallURL:         cfg.Session.MetaMaskInstallURL,
		ProviderRetry: chain.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    time.Second,
		},
	}
}

type nopNotifier struct{}

func (nopNotifier) Info(string)  {}
func (nopNotifier) Error(string) {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
