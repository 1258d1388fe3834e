package session

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/provider"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// listenerBuffer absorbs bursts of chain events while a wallet reload runs.
const listenerBuffer = 8

// SwitchNetwork asks the active wallet to switch to chainID and reports
// whether it did. An unknown chain triggers exactly one AddChainNetwork
// attempt, after which false is returned whatever its outcome. The callback
// runs before returning on every path. A zero chainID does nothing.
func (m *Manager) SwitchNetwork(ctx context.Context, chainID int, callback func()) bool {
	return m.switchNetwork(ctx, m.activeProvider(), chainID, callback)
}

func (m *Manager) switchNetwork(ctx context.Context, p provider.Provider, chainID int, callback func()) bool {
	if callback != nil {
		defer callback()
	}
	if chainID == 0 {
		return false
	}
	if p == nil {
		m.notifier.Error(MsgSomethingWrongBang)
		m.logger.Error("switch to %s: %v", chain.Name(chainID), finoraerr.ErrProviderNotFound)
		m.recordSwitch(finoraerr.ErrProviderNotFound)
		return false
	}

	_, err := p.Request(ctx, provider.MethodSwitchChain, map[string]string{"chainId": chain.HexID(chainID)})
	m.recordSwitch(err)
	if err == nil {
		m.setChainID(ctx, chainID)
		return true
	}

	switch {
	case provider.IsUserRejected(err):
		m.notifier.Error(MsgUserRejectedSwitch)
	case provider.IsChainUnknown(err):
		m.notifier.Error(MsgChainSetup)
		if chain.Sleep(ctx, m.settings.ChainAddDelay) == nil {
			_ = m.addChainNetwork(ctx, p, chainID)
		}
	case provider.IsRPCError(err):
		m.notifier.Error(MsgConnectionFailed)
	default:
		m.notifier.Error(MsgSomethingWrongBang)
	}
	m.logger.Error("switch to %s: %v", chain.Name(chainID), err)
	return false
}

// AddChainNetwork asks the active wallet to register chainID from the chain
// table. Chains missing from the table are still sent, with only their ID,
// for the wallet to reject. A zero chainID does nothing.
func (m *Manager) AddChainNetwork(ctx context.Context, chainID int) error {
	return m.addChainNetwork(ctx, m.activeProvider(), chainID)
}

func (m *Manager) addChainNetwork(ctx context.Context, p provider.Provider, chainID int) error {
	if chainID == 0 {
		return nil
	}
	if p == nil {
		m.notifier.Error(MsgSomethingWrongBang)
		return finoraerr.ErrProviderNotFound
	}

	params, ok := chain.Lookup(chainID)
	if !ok {
		params = chain.Params{ChainID: chain.HexID(chainID)}
	}

	_, err := p.Request(ctx, provider.MethodAddChain, params)
	if err == nil {
		m.setChainID(ctx, chainID)
		return nil
	}

	switch {
	case provider.IsUserRejected(err):
		m.notifier.Error(MsgUserRejectedSwitch)
	case provider.IsRPCError(err):
		m.notifier.Error(MsgConnectionFailed)
	default:
		m.notifier.Error(MsgSomethingWrongBang)
	}
	m.logger.Error("add %s: %v", chain.Name(chainID), err)
	return provider.Classify(err)
}

// activeProvider returns the connected provider, falling back to the
// primary injected one before any wallet is connected.
func (m *Manager) activeProvider() provider.Provider {
	if p := m.State().Provider; p != nil {
		return p
	}
	for _, e := range m.registry.List() {
		if provider.IsPrimary(e.Descriptor) {
			return e.Provider
		}
	}
	return nil
}

// listener is the chain-change subscription of the connected provider.
type listener struct {
	sub  event.Subscription
	done chan struct{}
}

// attachListener replaces any current chain-change subscription with one on
// p. Providers that publish no events are not watched, and nothing is
// attached once epoch has ended.
func (m *Manager) attachListener(epoch uint64, p provider.Provider) {
	m.detachListener()

	notifier, ok := p.(provider.Notifier)
	if !ok {
		return
	}

	m.mu.Lock()
	m.listenGen++
	gen := m.listenGen
	m.mu.Unlock()

	ch := make(chan provider.ChainChanged, listenerBuffer)
	l := listener{sub: notifier.SubscribeChainChanged(ch), done: make(chan struct{})}

	m.listenMu.Lock()
	if !m.inEpoch(epoch) {
		m.listenMu.Unlock()
		l.sub.Unsubscribe()
		return
	}
	m.listenSub = l
	m.listenMu.Unlock()

	go func() {
		defer close(l.done)
		for {
			select {
			case ev := <-ch:
				m.onChainChanged(gen, p, ev)
			case <-l.sub.Err():
				return
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

// detachListener unsubscribes and waits for the listener to exit.
func (m *Manager) detachListener() {
	m.listenMu.Lock()
	l := m.listenSub
	m.listenSub = listener{}
	m.listenMu.Unlock()

	if l.sub == nil {
		return
	}
	l.sub.Unsubscribe()
	<-l.done

	m.mu.Lock()
	m.listenGen++
	m.mu.Unlock()
}

func (m *Manager) onChainChanged(gen int, p provider.Provider, ev provider.ChainChanged) {
	id, err := chain.ParseID(ev.ChainID)
	if err != nil {
		m.logger.Error("ignoring chain change: %v", err)
		return
	}
	m.logger.Debug("wallet moved to %s", chain.Name(id))

	if !m.updateIfCurrent(gen, func(s *State) { s.ChainID = id }) {
		return
	}

	ctx := m.ctx
	if m.settings.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.settings.ConnectTimeout)
		defer cancel()
	}
	m.loadWallet(ctx, gen, p)
}

// loadWallet re-reads the account and chain from p and publishes them as
// NetworkData. Failures are logged and leave the state unchanged.
func (m *Manager) loadWallet(ctx context.Context, gen int, p provider.Provider) {
	accounts, err := provider.RequestAccounts(ctx, p)
	if err != nil {
		m.logger.Error("reloading wallet accounts: %v", err)
		return
	}
	id, err := m.walletClient(p, provider.WithRetry(chain.RetryConfig{MaxAttempts: 1})).ChainID(ctx)
	if err != nil {
		m.logger.Error("reloading wallet chain: %v", err)
		return
	}

	network := &NetworkData{Account: strings.ToLower(accounts[0].Hex()), ChainID: id}
	m.updateIfCurrent(gen, func(s *State) {
		s.Network = network
		s.ChainID = id
	})
}

// updateIfCurrent applies fn only while listener generation gen is current.
func (m *Manager) updateIfCurrent(gen int, fn func(s *State)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.listenGen {
		return false
	}
	fn(&m.state)
	m.publishLocked()
	return true
}
