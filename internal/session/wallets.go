package session

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/provider"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// metaMaskConnector connects through a wallet client restricted to the
// supported chains.
type metaMaskConnector struct {
	m *Manager
}

func (c metaMaskConnector) connect(ctx context.Context) error {
	return c.run(ctx, true)
}

func (c metaMaskConnector) run(ctx context.Context, mayRerun bool) error {
	m := c.m

	// A new MetaMask connection always starts from a fresh login.
	if err := m.tokens.Remove(); err != nil {
		m.logger.Error("removing auth token: %v", err)
	}

	err := c.attempt(ctx)
	if err == nil {
		return nil
	}
	var reported *authStageError
	if errors.As(err, &reported) {
		return reported.err
	}

	switch {
	case errors.Is(err, finoraerr.ErrProviderNotFound):
		m.notifier.Info(MsgMetaMaskMissing)
		if sleepErr := chain.Sleep(ctx, m.settings.InstallPromptDelay); sleepErr != nil {
			return err
		}
		if m.opener != nil {
			if openErr := m.opener.Open(m.settings.InstallURL); openErr != nil {
				m.logger.Error("opening %s: %v", m.settings.InstallURL, openErr)
			}
		}
		return err

	case errors.Is(err, provider.ErrChainNotConfigured):
		m.logger.Debug("metamask on unconfigured chain: %v", err)
		if !mayRerun {
			return err
		}
		injected, locateErr := m.registry.Locate(provider.KindMetaMask)
		if locateErr != nil {
			return err
		}
		if m.switchNetwork(ctx, injected.Provider, m.settings.TargetChainID, nil) {
			return c.run(ctx, false)
		}
		return err

	default:
		m.notifier.Error(MsgConnectionFailed)
		m.logger.Error("metamask connect: %v", err)
		return provider.Classify(err)
	}
}

func (c metaMaskConnector) attempt(ctx context.Context) error {
	m := c.m

	injected, err := m.registry.Locate(provider.KindMetaMask)
	if err != nil {
		return err
	}

	client := m.walletClient(injected.Provider, provider.WithChains(chain.Supported()...))
	_ = m.ensureChain(ctx, client)

	addrs, err := client.RequestAddresses(ctx)
	if err != nil {
		return err
	}
	account := addrs[0]

	if err := m.settle(ctx); err != nil {
		return err
	}
	m.publishConnection(ctx, provider.KindMetaMask, injected.Provider, account, nil)

	return authenticated(m.Authenticate(ctx, strings.ToLower(account.Hex()), injected.Provider, client))
}

// trustConnector uses the provider's pre-selected account when it exposes
// one and falls back to a wallet client otherwise.
type trustConnector struct {
	m *Manager
}

func (c trustConnector) connect(ctx context.Context) error {
	m := c.m

	err := c.attempt(ctx)
	if err == nil {
		return nil
	}
	var reported *authStageError
	if errors.As(err, &reported) {
		return reported.err
	}
	m.notifier.Error("Error: " + errorMessage(err))
	m.logger.Error("trust wallet connect: %v", err)
	return provider.Classify(err)
}

func (c trustConnector) attempt(ctx context.Context) error {
	m := c.m

	injected, err := m.registry.Locate(provider.KindTrust)
	if err != nil {
		return err
	}

	var (
		account common.Address
		signer  provider.Signer
	)
	if sel := injected.Descriptor.SelectedAddress; common.IsHexAddress(sel) {
		account = common.HexToAddress(sel)
	} else {
		client := m.walletClient(injected.Provider)
		_ = m.ensureChain(ctx, client)

		addrs, err := client.RequestAddresses(ctx)
		if err != nil {
			return err
		}
		account = addrs[0]
		signer = client
	}

	if err := m.settle(ctx); err != nil {
		return err
	}
	m.publishConnection(ctx, provider.KindTrust, injected.Provider, account, nil)

	return authenticated(m.Authenticate(ctx, strings.ToLower(account.Hex()), injected.Provider, signer))
}

// coinbaseConnector requests accounts directly and assumes the target chain.
type coinbaseConnector struct {
	m *Manager
}

func (c coinbaseConnector) connect(ctx context.Context) error {
	m := c.m

	err := c.attempt(ctx)
	if err == nil {
		return nil
	}
	var reported *authStageError
	if errors.As(err, &reported) {
		return reported.err
	}

	switch {
	case errors.Is(err, finoraerr.ErrProviderNotFound):
		m.notifier.Error(MsgCoinbaseMissing)
	case provider.IsRPCError(err):
		m.notifier.Error("Error: " + errorMessage(err))
	default:
		m.notifier.Error(errorMessage(err))
	}
	m.logger.Error("coinbase wallet connect: %v", err)
	return provider.Classify(err)
}

func (c coinbaseConnector) attempt(ctx context.Context) error {
	m := c.m

	injected, err := m.registry.Locate(provider.KindCoinbase)
	if err != nil {
		return err
	}

	addrs, err := provider.RequestAccounts(ctx, injected.Provider)
	if err != nil {
		return err
	}
	account := addrs[0]

	if err := m.settle(ctx); err != nil {
		return err
	}
	target := m.settings.TargetChainID
	m.publishConnection(ctx, provider.KindCoinbase, injected.Provider, account, func(s *State) {
		s.ChainID = target
	})

	return authenticated(m.Authenticate(ctx, strings.ToLower(account.Hex()), injected.Provider, nil))
}

// walletConnectConnector is a placeholder until WalletConnect is integrated.
type walletConnectConnector struct {
	m *Manager
}

func (c walletConnectConnector) connect(context.Context) error {
	c.m.notifier.Error(MsgWalletConnectSoon)
	return finoraerr.WithDetails(finoraerr.ErrUnsupported, map[string]string{
		"wallet": provider.NameWalletConnect,
	})
}

// authStageError marks a failure Authenticate has already reported.
type authStageError struct {
	err error
}

func (e *authStageError) Error() string { return e.err.Error() }
func (e *authStageError) Unwrap() error { return e.err }

func authenticated(_ string, err error) error {
	if err != nil {
		return &authStageError{err: err}
	}
	return nil
}
