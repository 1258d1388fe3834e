package cli

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/output"
	"github.com/mrz1836/finora/internal/provider"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Environment variables read for wallet secrets.
const (
	envKeystorePassword   = "FINORA_KEYSTORE_PASSWORD"   // #nosec G101 -- env var name, not a credential
	envMnemonicPassphrase = "FINORA_MNEMONIC_PASSPHRASE" // #nosec G101 -- env var name, not a credential
)

// out is a helper for CLI output.
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

// walletFlags selects the local software wallet that stands in for a
// browser wallet, and how its consent prompts are answered.
type walletFlags struct {
	name          string
	keystore      string
	mnemonicEnv   string
	privateKeyEnv string
	activeChain   int
	yes           bool
}

// register adds the wallet flags to cmd.
func (f *walletFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.name, "wallet", "w", provider.NameMetaMask,
		"wallet to use: "+strings.Join(provider.WalletNames(), ", "))
	fl.StringVar(&f.keystore, "keystore", "", "encrypted JSON keystore holding the wallet key")
	fl.StringVar(&f.mnemonicEnv, "mnemonic-env", "", "environment variable holding a BIP39 mnemonic")
	fl.StringVar(&f.privateKeyEnv, "private-key-env", "", "environment variable holding a hex private key")
	fl.IntVar(&f.activeChain, "active-chain", chain.Ethereum, "chain the wallet is on before connecting")
	fl.BoolVarP(&f.yes, "yes", "y", false, "approve every wallet request without prompting")
	cmd.MarkFlagsMutuallyExclusive("keystore", "mnemonic-env", "private-key-env")
}

// loadKey returns the wallet key, or nil when no key source was given.
func (f *walletFlags) loadKey() (*ecdsa.PrivateKey, error) {
	switch {
	case f.keystore != "":
		passphrase := os.Getenv(envKeystorePassword)
		if passphrase == "" {
			pw, err := promptPasswordFn("Keystore passphrase: ")
			if err != nil {
				return nil, err
			}
			passphrase = string(pw)
			zeroBytes(pw)
		}
		return provider.KeyFromKeystore(f.keystore, passphrase)
	case f.mnemonicEnv != "":
		mnemonic := os.Getenv(f.mnemonicEnv)
		if mnemonic == "" {
			return nil, missingEnv(f.mnemonicEnv)
		}
		return provider.KeyFromMnemonic(mnemonic, os.Getenv(envMnemonicPassphrase))
	case f.privateKeyEnv != "":
		hexKey := os.Getenv(f.privateKeyEnv)
		if hexKey == "" {
			return nil, missingEnv(f.privateKeyEnv)
		}
		return provider.KeyFromHex(hexKey)
	default:
		return nil, nil //nolint:nilnil // no key means no wallet installed
	}
}

func missingEnv(name string) error {
	return finoraerr.WithDetails(finoraerr.ErrInvalidInput, map[string]string{
		"env":    name,
		"reason": "not set",
	})
}

// injected builds the discoverable wallets. Without a key nothing is
// installed, which is how the session reports a missing wallet.
func (f *walletFlags) injected(cmd *cobra.Command, in *bufio.Reader) ([]provider.Injected, error) {
	key, err := f.loadKey()
	if err != nil || key == nil {
		return nil, err
	}

	kind, err := provider.ParseWalletName(f.name)
	if err != nil {
		// Unsupported names are reported by the session itself.
		return nil, nil //nolint:nilerr // see above
	}

	wallet := provider.NewLocalProvider(key,
		provider.WithActiveChain(f.activeChain),
		provider.WithApprover(f.approver(in, cmd.ErrOrStderr())),
	)
	desc, ok := descriptorFor(kind, wallet.Address().Hex())
	if !ok {
		return nil, nil
	}
	return []provider.Injected{{Descriptor: desc, Provider: wallet}}, nil
}

// descriptorFor returns the identity markers a browser wallet of kind
// would inject.
func descriptorFor(kind provider.Kind, address string) (provider.Descriptor, bool) {
	switch kind {
	case provider.KindMetaMask:
		return provider.Descriptor{
			Name:             provider.NameMetaMask,
			IsMetaMask:       true,
			MetaMaskInternal: true,
			Primary:          true,
		}, true
	case provider.KindTrust:
		return provider.Descriptor{
			Name:            provider.NameTrust,
			IsTrust:         true,
			SelectedAddress: strings.ToLower(address),
			Primary:         true,
		}, true
	case provider.KindCoinbase:
		return provider.Descriptor{
			Name:             provider.NameCoinbase,
			IsCoinbaseWallet: true,
		}, true
	default:
		return provider.Descriptor{}, false
	}
}

// approver answers wallet consent requests from the terminal.
func (f *walletFlags) approver(in *bufio.Reader, w io.Writer) provider.Approver {
	var mu sync.Mutex
	return func(_ context.Context, method, detail string) error {
		if f.yes {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if promptConfirmFn(in, w, fmt.Sprintf("Wallet request %s (%s). Approve?", method, detail)) {
			return nil
		}
		return finoraerr.ErrUserRejected
	}
}

// consoleOpener prints links instead of launching a browser, with a QR code
// when attached to a terminal.
type consoleOpener struct {
	w io.Writer

	mu     sync.Mutex
	opened []string
}

// Open implements session.Opener.
func (o *consoleOpener) Open(url string) error {
	o.mu.Lock()
	o.opened = append(o.opened, url)
	o.mu.Unlock()

	out(o.w, "Install the wallet from %s\n", url)
	output.RenderLinkQR(o.w, url)
	return nil
}

// Opened returns the URLs opened so far.
func (o *consoleOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}
