package provider

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// ErrInvalidKey is returned when key material cannot be loaded.
var ErrInvalidKey = &finoraerr.FinoraError{
	Code:       "INVALID_KEY",
	Message:    "invalid wallet key",
	Suggestion: "check the keystore passphrase, mnemonic or private key",
	ExitCode:   finoraerr.ExitInput,
}

// EthereumPath is the BIP44 path of the first Ethereum account, m/44'/60'/0'/0/0.
//
//nolint:gochecknoglobals // fixed derivation path
var EthereumPath = []uint32{
	44 + bip32.FirstHardenedChild,
	60 + bip32.FirstHardenedChild,
	0 + bip32.FirstHardenedChild,
	0,
	0,
}

// KeyFromHex parses a hex private key, with or without 0x.
func KeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, finoraerr.WithCause(ErrInvalidKey, err)
	}
	return key, nil
}

// KeyFromKeystore decrypts a go-ethereum JSON keystore file.
func KeyFromKeystore(path, passphrase string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied keystore path
	if err != nil {
		return nil, finoraerr.WithCause(ErrInvalidKey, fmt.Errorf("reading keystore: %w", err))
	}
	key, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return nil, finoraerr.WithCause(ErrInvalidKey, err)
	}
	return key.PrivateKey, nil
}

// KeyFromMnemonic derives the first Ethereum account key from a BIP39
// mnemonic.
func KeyFromMnemonic(mnemonic, passphrase string) (*ecdsa.PrivateKey, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return nil, finoraerr.WithCause(ErrInvalidKey, err)
	}

	master, err := bip32.NewMasterKey(bip39.NewSeed(normalized, passphrase))
	if err != nil {
		return nil, finoraerr.WithCause(ErrInvalidKey, err)
	}

	k := master
	for i, child := range EthereumPath {
		k, err = k.NewChildKey(child)
		if err != nil {
			return nil, finoraerr.WithCause(ErrInvalidKey, fmt.Errorf("derive step %d: %w", i, err))
		}
	}

	// go-bip32 private keys are 33 bytes with a leading zero
	priv := k.Key
	if len(priv) == 33 && priv[0] == 0x00 {
		priv = priv[1:]
	}
	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return nil, finoraerr.WithCause(ErrInvalidKey, err)
	}
	return key, nil
}
