package provider

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// ErrInvalidSignature is returned when a signature cannot be decoded or
// recovered.
var ErrInvalidSignature = &finoraerr.FinoraError{
	Code:     "INVALID_SIGNATURE",
	Message:  "invalid signature",
	ExitCode: finoraerr.ExitAuth,
}

// SignText produces an EIP-191 personal_sign signature over data, with V
// in the 27/28 form wallets return.
func SignText(key *ecdsa.PrivateKey, data []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(data), key)
	if err != nil {
		return "", finoraerr.WithCause(finoraerr.ErrSigningUnavailable, err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverSigner returns the address that produced an EIP-191 signature
// over message. V may be 0/1 or 27/28.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return common.Address{}, finoraerr.WithCause(ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, finoraerr.WithDetails(ErrInvalidSignature, map[string]string{
			"length": hexutil.EncodeUint64(uint64(len(sig))),
		})
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, finoraerr.WithCause(ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
