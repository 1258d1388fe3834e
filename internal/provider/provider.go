// Package provider models EIP-1193 wallet providers: the request/response
// contract, provider errors, detection of injected wallets, a wallet client
// with retry, and an in-process software wallet used by the CLI and tests.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/event"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// JSON-RPC methods used by the session manager.
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodAccounts        = "eth_accounts"
	MethodChainID         = "eth_chainId"
	MethodSwitchChain     = "wallet_switchEthereumChain"
	MethodAddChain        = "wallet_addEthereumChain"
	MethodPersonalSign    = "personal_sign"
)

// Provider error codes (EIP-1193 and EIP-3326).
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

// Provider is a wallet connection that accepts JSON-RPC shaped requests.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// ChainChanged is emitted when the wallet's active chain changes out of band.
// ChainID is passed through as reported: a hex string, decimal string or number.
type ChainChanged struct {
	ChainID any
}

// AccountsChanged is emitted when the wallet's exposed accounts change.
type AccountsChanged struct {
	Accounts []string
}

// Notifier is implemented by providers that publish wallet events.
// Unsubscribing the returned subscription detaches the listener.
type Notifier interface {
	SubscribeChainChanged(ch chan<- ChainChanged) event.Subscription
	SubscribeAccountsChanged(ch chan<- AccountsChanged) event.Subscription
}

// RPCError is an error returned by a provider request.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// NewRPCError creates a provider error.
func NewRPCError(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the provider error code carried by err, or 0.
func ErrorCode(err error) int {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

// IsUserRejected reports whether the user declined the request.
func IsUserRejected(err error) bool {
	return ErrorCode(err) == CodeUserRejected || errors.Is(err, finoraerr.ErrUserRejected)
}

// IsChainUnknown reports whether the wallet does not know the requested chain.
func IsChainUnknown(err error) bool {
	return ErrorCode(err) == CodeUnrecognizedChain || errors.Is(err, finoraerr.ErrChainUnknown)
}

// IsRPCError reports whether err originated from the provider itself.
func IsRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

// Classify maps a provider error onto the session error taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsUserRejected(err):
		return finoraerr.WithCause(finoraerr.ErrUserRejected, err)
	case IsChainUnknown(err):
		return finoraerr.WithCause(finoraerr.ErrChainUnknown, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		var fe *finoraerr.FinoraError
		if errors.As(err, &fe) {
			return err
		}
		return finoraerr.WithCause(finoraerr.ErrNetworkUnavailable, err)
	}
}

// decodeParams converts loosely typed request params into a concrete shape,
// the same way they would travel over a JSON transport.
func decodeParams(params []any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return NewRPCError(CodeInvalidParams, "encoding params: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewRPCError(CodeInvalidParams, "invalid params: %v", err)
	}
	return nil
}
