package provider

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/mrz1836/finora/internal/chain"
)

// Approver confirms a request that needs user consent. Returning an error
// rejects the request with code 4001.
type Approver func(ctx context.Context, method string, detail string) error

// LocalProvider is an in-process software wallet that speaks the provider
// protocol. It knows Ethereum mainnet out of the box; other chains must be
// added before they can be switched to, as with a browser wallet.
type LocalProvider struct {
	mu          sync.Mutex
	key         *ecdsa.PrivateKey
	address     common.Address
	chainID     int
	known       map[int]chain.Params
	approve     Approver
	exposed     bool
	chainFeed   event.Feed
	accountFeed event.Feed
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithApprover sets the consent callback. The default approves everything.
func WithApprover(a Approver) LocalOption {
	return func(p *LocalProvider) { p.approve = a }
}

// WithKnownChains pre-registers chains from the static table.
func WithKnownChains(ids ...int) LocalOption {
	return func(p *LocalProvider) {
		for _, id := range ids {
			if params, ok := chain.Lookup(id); ok {
				p.known[id] = params
			}
		}
	}
}

// WithActiveChain sets the initial chain. The chain is registered if needed.
func WithActiveChain(id int) LocalOption {
	return func(p *LocalProvider) {
		p.chainID = id
		if _, ok := p.known[id]; !ok {
			params, found := chain.Lookup(id)
			if !found {
				params = chain.Params{ChainID: chain.HexID(id), ChainName: chain.Name(id)}
			}
			p.known[id] = params
		}
	}
}

// NewLocalProvider creates a software wallet holding key.
func NewLocalProvider(key *ecdsa.PrivateKey, opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chain.Ethereum,
		known:   map[int]chain.Params{},
	}
	WithKnownChains(chain.Ethereum)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Address returns the wallet's account.
func (p *LocalProvider) Address() common.Address {
	return p.address
}

// ActiveChain returns the wallet's current chain.
func (p *LocalProvider) ActiveChain() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

// Knows reports whether chain id has been added to the wallet.
func (p *LocalProvider) Knows(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.known[id]
	return ok
}

// SetActiveChain changes the chain out of band, as a user would from the
// wallet UI, and notifies subscribers.
func (p *LocalProvider) SetActiveChain(id int) {
	p.mu.Lock()
	p.chainID = id
	p.mu.Unlock()
	p.chainFeed.Send(ChainChanged{ChainID: chain.HexID(id)})
}

// SubscribeChainChanged implements Notifier.
func (p *LocalProvider) SubscribeChainChanged(ch chan<- ChainChanged) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

// SubscribeAccountsChanged implements Notifier.
func (p *LocalProvider) SubscribeAccountsChanged(ch chan<- AccountsChanged) event.Subscription {
	return p.accountFeed.Subscribe(ch)
}

// Request implements Provider.
//
//nolint:gocyclo // one case per supported method
func (p *LocalProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch method {
	case MethodChainID:
		return json.Marshal(chain.HexID(p.ActiveChain()))

	case MethodAccounts:
		p.mu.Lock()
		exposed := p.exposed
		p.mu.Unlock()
		if !exposed {
			return json.Marshal([]string{})
		}
		return json.Marshal([]string{p.accountHex()})

	case MethodRequestAccounts:
		// Only the first request prompts; a connected site gets its accounts back.
		p.mu.Lock()
		exposed := p.exposed
		p.mu.Unlock()
		if exposed {
			return json.Marshal([]string{p.accountHex()})
		}
		if err := p.consent(ctx, method, p.accountHex()); err != nil {
			return nil, err
		}
		p.mu.Lock()
		first := !p.exposed
		p.exposed = true
		p.mu.Unlock()
		if first {
			p.accountFeed.Send(AccountsChanged{Accounts: []string{p.accountHex()}})
		}
		return json.Marshal([]string{p.accountHex()})

	case MethodSwitchChain:
		return p.switchChain(ctx, params)

	case MethodAddChain:
		return p.addChain(ctx, params)

	case MethodPersonalSign:
		return p.personalSign(ctx, params)

	default:
		return nil, NewRPCError(CodeUnsupportedMethod, "method %s is not supported", method)
	}
}

func (p *LocalProvider) switchChain(ctx context.Context, params []any) (json.RawMessage, error) {
	var args []struct {
		ChainID string `json:"chainId"`
	}
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, NewRPCError(CodeInvalidParams, "missing chainId")
	}
	id, err := chain.ParseID(args[0].ChainID)
	if err != nil {
		return nil, NewRPCError(CodeInvalidParams, "invalid chainId %q", args[0].ChainID)
	}

	if !p.Knows(id) {
		return nil, NewRPCError(CodeUnrecognizedChain, "unrecognized chain ID %q", args[0].ChainID)
	}
	if err := p.consent(ctx, MethodSwitchChain, chain.Name(id)); err != nil {
		return nil, err
	}

	p.activate(id)
	return json.RawMessage("null"), nil
}

func (p *LocalProvider) addChain(ctx context.Context, params []any) (json.RawMessage, error) {
	var args []chain.Params
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, NewRPCError(CodeInvalidParams, "missing chain parameters")
	}
	added := args[0]
	id, err := chain.ParseID(added.ChainID)
	if err != nil {
		return nil, NewRPCError(CodeInvalidParams, "invalid chainId %q", added.ChainID)
	}
	if added.ChainName == "" || len(added.RPCURLs) == 0 {
		return nil, NewRPCError(CodeInvalidParams, "chain %s needs a name and an RPC URL", added.ChainID)
	}

	if err := p.consent(ctx, MethodAddChain, added.ChainName); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.known[id] = added
	p.mu.Unlock()

	// Wallets switch to a chain right after adding it.
	p.activate(id)
	return json.RawMessage("null"), nil
}

func (p *LocalProvider) personalSign(ctx context.Context, params []any) (json.RawMessage, error) {
	var args []string
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, NewRPCError(CodeInvalidParams, "personal_sign needs data and address")
	}
	if !strings.EqualFold(args[1], p.address.Hex()) {
		return nil, NewRPCError(CodeUnauthorized, "account %s is not managed by this wallet", args[1])
	}

	data, err := hexutil.Decode(args[0])
	if err != nil {
		// Plain text is accepted as-is, like browser wallets do.
		data = []byte(args[0])
	}

	if err := p.consent(ctx, MethodPersonalSign, string(data)); err != nil {
		return nil, err
	}

	sig, err := SignText(p.key, data)
	if err != nil {
		return nil, NewRPCError(CodeInternal, "%v", err)
	}
	return json.Marshal(sig)
}

func (p *LocalProvider) activate(id int) {
	p.mu.Lock()
	changed := p.chainID != id
	p.chainID = id
	p.mu.Unlock()
	if changed {
		p.chainFeed.Send(ChainChanged{ChainID: chain.HexID(id)})
	}
}

func (p *LocalProvider) consent(ctx context.Context, method, detail string) error {
	if p.approve == nil {
		return nil
	}
	if err := p.approve(ctx, method, detail); err != nil {
		return &RPCError{Code: CodeUserRejected, Message: "User rejected the request.", Data: err.Error()}
	}
	return nil
}

func (p *LocalProvider) accountHex() string {
	return strings.ToLower(p.address.Hex())
}
