package session

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/finora/internal/provider"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Authenticate runs the nonce handshake for address and returns the signed
// challenge message. The signer is preferred; without one the provider signs
// via personal_sign.
//
// A failure before a token is issued is reported and returned, leaving the
// session connected but unauthenticated. A failed profile fetch afterwards
// is only logged and the token is persisted regardless. If the session is
// logged out mid-handshake, nothing is persisted and ErrSessionReset is
// returned.
func (m *Manager) Authenticate(ctx context.Context, address string, p provider.Provider, signer provider.Signer) (message string, err error) {
	epoch := m.epochOf(ctx)
	defer func() {
		if err != nil && !m.inEpoch(epoch) {
			err = finoraerr.ErrSessionReset
		}
		if m.metrics != nil {
			m.metrics.RecordAuth(err)
		}
		if errors.Is(err, finoraerr.ErrSessionReset) {
			m.logger.Debug("discarding login for %s after logout", address)
			return
		}
		if err != nil {
			m.notifier.Error(MsgAuthFailed)
			m.logger.Error("authentication for %s failed: %v", address, err)
		}
	}()

	if signer == nil {
		if p == nil {
			return "", finoraerr.WithDetails(finoraerr.ErrSigningUnavailable, map[string]string{"address": address})
		}
		signer = provider.ProviderSigner{Provider: p}
	}
	if !common.IsHexAddress(address) {
		return "", finoraerr.WithDetails(finoraerr.ErrInvalidAddress, map[string]string{"address": address})
	}

	message, err = m.backend.GetNonce(ctx, address)
	if err != nil {
		return "", authError(err)
	}

	signature, err := signer.SignMessage(ctx, common.HexToAddress(address), message)
	if err != nil {
		return "", authError(err)
	}

	token, err := m.backend.Login(ctx, address, message, signature)
	if err != nil {
		return "", authError(err)
	}
	if token == "" {
		return "", finoraerr.WithDetails(finoraerr.ErrAuthenticationFailed, map[string]string{"reason": "no token issued"})
	}

	profile, meErr := m.backend.GetMe(ctx, token)
	if meErr != nil {
		m.logger.Error("fetching user profile: %v", meErr)
	}
	if !m.commitLogin(epoch, token, profile, meErr == nil) {
		return "", finoraerr.ErrSessionReset
	}
	return message, nil
}

// authError maps a handshake failure onto the error taxonomy. Provider
// errors keep their classification so a rejected signature reads as such.
func authError(err error) error {
	if provider.IsRPCError(err) {
		return provider.Classify(err)
	}
	var fe *finoraerr.FinoraError
	if errors.As(err, &fe) {
		return err
	}
	return finoraerr.WithCause(finoraerr.ErrAuthenticationFailed, err)
}
