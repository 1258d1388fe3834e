package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/provider"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// connector is the per-wallet connect strategy.
type connector interface {
	connect(ctx context.Context) error
}

func (m *Manager) connectorFor(k provider.Kind) connector {
	switch k {
	case provider.KindMetaMask:
		return metaMaskConnector{m: m}
	case provider.KindTrust:
		return trustConnector{m: m}
	case provider.KindCoinbase:
		return coinbaseConnector{m: m}
	case provider.KindWalletConnect:
		return walletConnectConnector{m: m}
	default:
		return nil
	}
}

// ConnectWallet connects the named wallet and authenticates its account.
// Only one connect runs at a time; a concurrent call returns
// ErrConnectInProgress without touching the state. Failures are reported to
// the notifier and returned, and the session stays usable either way. A
// Logout during the connect cancels it and ErrSessionReset is returned.
func (m *Manager) ConnectWallet(ctx context.Context, walletName string) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return finoraerr.ErrConnectInProgress
	}
	m.connecting = true
	m.cancelConnect = cancel
	epoch := m.epoch
	m.state.Loading = true
	m.state.Steps = ConnectingSteps()
	m.publishLocked()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		// After a logout the session already belongs to the next epoch.
		if epoch == m.epoch {
			m.connecting = false
			m.cancelConnect = nil
			m.state.Loading = false
			m.state.Steps = DefaultSteps()
			m.publishLocked()
		} else {
			err = finoraerr.ErrSessionReset
		}
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.RecordConnect(err)
		}
	}()
	ctx = withEpoch(ctx, epoch)

	kind, err := provider.ParseWalletName(walletName)
	if err != nil {
		m.notifier.Error(MsgUnsupportedWallet)
		m.logger.Error("connect %q: %v", walletName, err)
		return err
	}

	if m.settings.ConnectTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, m.settings.ConnectTimeout)
		defer cancelTimeout()
	}

	m.logger.Debug("connecting %s", walletName)
	return m.connectorFor(kind).connect(ctx)
}

// publishConnection records the connected account and provider, then starts
// listening for chain changes on the new provider. It does nothing once the
// session has been reset.
func (m *Manager) publishConnection(ctx context.Context, kind provider.Kind, p provider.Provider, account common.Address, fn func(s *State)) {
	epoch := m.epochOf(ctx)
	published := m.updateInEpoch(epoch, func(s *State) {
		s.Address = strings.ToLower(account.Hex())
		s.Provider = p
		s.Connector = kind
		if fn != nil {
			fn(s)
		}
	})
	if published {
		m.attachListener(epoch, p)
	}
}

func (m *Manager) walletClient(p provider.Provider, opts ...provider.ClientOption) *provider.Client {
	return provider.NewClient(p, append([]provider.ClientOption{provider.WithRetry(m.settings.ProviderRetry)}, opts...)...)
}

// settle waits for the wallet to finish firing its own readiness events.
func (m *Manager) settle(ctx context.Context) error {
	return chain.Sleep(ctx, m.settings.SettleDelay)
}

// ensureChain moves the wallet to the target chain: switch, then add the
// chain, then a bounded switch retry. The final error is returned for
// logging only; callers continue regardless.
func (m *Manager) ensureChain(ctx context.Context, client *provider.Client) error {
	target := m.settings.TargetChainID

	err := client.SwitchChain(ctx, target)
	m.recordSwitch(err)
	if err == nil {
		m.setChainID(ctx, target)
		return nil
	}
	m.logger.Debug("switch to %s failed: %v", chain.Name(target), err)

	if err = client.AddChain(ctx, target); err == nil {
		m.setChainID(ctx, target)
		return nil
	}
	m.logger.Debug("adding %s failed: %v", chain.Name(target), err)

	err = chain.Do(ctx, m.chainRetry(), func(ctx context.Context) error {
		err := client.SwitchChain(ctx, target)
		m.recordSwitch(err)
		return err
	})
	if err != nil {
		m.logger.Error("wallet left off %s: %v", chain.Name(target), err)
		return err
	}
	m.setChainID(ctx, target)
	return nil
}

func (m *Manager) chainRetry() chain.RetryConfig {
	return chain.RetryConfig{
		MaxAttempts: m.settings.ChainRetryAttempts,
		BaseDelay:   m.settings.ChainRetryDelay,
		MaxDelay:    8 * m.settings.ChainRetryDelay,
		Retryable: func(err error) bool {
			return !provider.IsUserRejected(err) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			m.logger.Debug("chain switch attempt %d failed: %v (retrying in %s)", attempt, err, delay)
		},
	}
}

func (m *Manager) recordSwitch(err error) {
	if m.metrics != nil {
		m.metrics.RecordChainSwitch(err == nil)
	}
}

// errorMessage returns the most specific human message carried by err.
func errorMessage(err error) string {
	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Message != "" {
		return rpcErr.Message
	}
	var fe *finoraerr.FinoraError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
