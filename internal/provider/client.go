package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrz1836/finora/internal/chain"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// ErrChainNotConfigured is returned when the wallet is on a chain the client
// was not configured for.
var ErrChainNotConfigured = &finoraerr.FinoraError{
	Code:     "CHAIN_NOT_CONFIGURED",
	Message:  "wallet chain is not configured for this connector",
	ExitCode: finoraerr.ExitUnavailable,
}

// Signer produces EIP-191 signatures over a text message.
type Signer interface {
	SignMessage(ctx context.Context, account common.Address, message string) (string, error)
}

// Client is a typed wallet client over a Provider. Transport failures are
// retried; provider errors such as user rejection are returned immediately.
type Client struct {
	provider Provider
	chains   map[int]bool
	retry    chain.RetryConfig
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithChains restricts the chains the client accepts when requesting
// addresses. Without it any chain is accepted.
func WithChains(ids ...int) ClientOption {
	return func(c *Client) {
		c.chains = make(map[int]bool, len(ids))
		for _, id := range ids {
			c.chains[id] = true
		}
	}
}

// WithRetry overrides the transport retry policy.
func WithRetry(cfg chain.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a wallet client. The default retry policy is three
// attempts one second apart.
func NewClient(p Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider: p,
		retry: chain.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   chain.DefaultRetryConfig().BaseDelay,
			MaxDelay:    chain.DefaultRetryConfig().BaseDelay,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

func (c *Client) request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return chain.RetryWithConfig(ctx, c.retry, func(ctx context.Context) (json.RawMessage, error) {
		return c.provider.Request(ctx, method, params...)
	})
}

// ChainID returns the wallet's active chain.
func (c *Client) ChainID(ctx context.Context) (int, error) {
	raw, err := c.request(ctx, MethodChainID)
	if err != nil {
		return 0, err
	}
	return chain.ParseID(raw)
}

// SwitchChain asks the wallet to switch to chain id.
func (c *Client) SwitchChain(ctx context.Context, id int) error {
	_, err := c.request(ctx, MethodSwitchChain, map[string]string{"chainId": chain.HexID(id)})
	return err
}

// AddChain asks the wallet to register the chain from the static table.
// Chains missing from the table are sent with only their ID so the wallet
// can reject them.
func (c *Client) AddChain(ctx context.Context, id int) error {
	params, ok := chain.Lookup(id)
	if !ok {
		params = chain.Params{ChainID: chain.HexID(id)}
	}
	_, err := c.request(ctx, MethodAddChain, params)
	return err
}

// RequestAddresses asks the wallet to expose its accounts.
func (c *Client) RequestAddresses(ctx context.Context) ([]common.Address, error) {
	if len(c.chains) > 0 {
		id, err := c.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		if !c.chains[id] {
			return nil, finoraerr.WithDetails(ErrChainNotConfigured, map[string]string{
				"chain_id": chain.HexID(id),
			})
		}
	}

	raw, err := c.request(ctx, MethodRequestAccounts)
	if err != nil {
		return nil, err
	}
	return decodeAccounts(raw)
}

// SignMessage signs message with account using personal_sign.
func (c *Client) SignMessage(ctx context.Context, account common.Address, message string) (string, error) {
	return PersonalSign(ctx, c.provider, account, message)
}

// RequestAccounts issues eth_requestAccounts directly against p, without retry.
func RequestAccounts(ctx context.Context, p Provider) ([]common.Address, error) {
	raw, err := p.Request(ctx, MethodRequestAccounts)
	if err != nil {
		return nil, err
	}
	return decodeAccounts(raw)
}

// PersonalSign signs message with account directly against p.
func PersonalSign(ctx context.Context, p Provider, account common.Address, message string) (string, error) {
	raw, err := p.Request(ctx, MethodPersonalSign, hexutil.Encode([]byte(message)), strings.ToLower(account.Hex()))
	if err != nil {
		return "", err
	}
	var sig string
	if err := json.Unmarshal(raw, &sig); err != nil {
		return "", finoraerr.WithCause(finoraerr.ErrSigningUnavailable, err)
	}
	return sig, nil
}

// ProviderSigner adapts a bare provider to Signer.
type ProviderSigner struct {
	Provider Provider
}

// SignMessage implements Signer.
func (s ProviderSigner) SignMessage(ctx context.Context, account common.Address, message string) (string, error) {
	return PersonalSign(ctx, s.Provider, account, message)
}

func decodeAccounts(raw json.RawMessage) ([]common.Address, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, finoraerr.WithCause(finoraerr.ErrInvalidAddress, err)
	}
	out := make([]common.Address, 0, len(list))
	for _, a := range list {
		if !common.IsHexAddress(a) {
			return nil, finoraerr.WithDetails(finoraerr.ErrInvalidAddress, map[string]string{"address": a})
		}
		out = append(out, common.HexToAddress(a))
	}
	if len(out) == 0 {
		return nil, NewRPCError(CodeUnauthorized, "wallet returned no accounts")
	}
	return out, nil
}
