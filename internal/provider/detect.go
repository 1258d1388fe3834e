package provider

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Kind identifies the wallet a session is bound to.
type Kind string

// Supported wallet kinds.
const (
	KindMetaMask      Kind = "metamask"
	KindTrust         Kind = "trust"
	KindCoinbase      Kind = "coinbase"
	KindWalletConnect Kind = "walletConnect"
)

// Wallet display names accepted by connect.
const (
	NameMetaMask      = "MetaMask"
	NameTrust         = "Trust Wallet"
	NameWalletConnect = "WalletConnect"
	NameCoinbase      = "Coinbase Wallet"
)

//nolint:gochecknoglobals // fixed lookup table
var walletNames = map[string]Kind{
	NameMetaMask:      KindMetaMask,
	NameTrust:         KindTrust,
	NameWalletConnect: KindWalletConnect,
	NameCoinbase:      KindCoinbase,
}

// WalletNames returns the accepted wallet display names, sorted.
func WalletNames() []string {
	names := make([]string, 0, len(walletNames))
	for n := range walletNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseWalletName maps a display name to its kind. Matching is exact; an
// unknown name yields ErrUnsupported with the closest supported name as a
// suggestion.
func ParseWalletName(name string) (Kind, error) {
	if k, ok := walletNames[name]; ok {
		return k, nil
	}

	err := finoraerr.WithDetails(finoraerr.ErrUnsupported, map[string]string{"wallet": name})
	if s := suggestWallet(name); s != "" {
		err = finoraerr.WithSuggestion(err, "did you mean "+s+"?")
	}
	return "", err
}

// suggestWallet returns the supported name closest to input, or "" when
// nothing is reasonably close.
func suggestWallet(input string) string {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return ""
	}

	best, bestDist := "", -1
	for _, name := range WalletNames() {
		d := levenshtein.ComputeDistance(in, strings.ToLower(name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = name, d
		}
	}

	if bestDist > len(best)/2 {
		return ""
	}
	return best
}

// Descriptor is the normalized view of an injected provider's identity
// markers.
type Descriptor struct {
	Name             string
	IsMetaMask       bool   // isMetaMask flag, also set by some impostors
	MetaMaskInternal bool   // the _metamask object only genuine MetaMask exposes
	IsTrust          bool   // isTrust flag
	IsCoinbaseWallet bool   // isCoinbaseWallet flag
	SelectedAddress  string // pre-selected account, when exposed
	Primary          bool   // the default injected provider
}

// Injected pairs a provider with its descriptor.
type Injected struct {
	Descriptor Descriptor
	Provider   Provider
}

// Predicate decides whether a descriptor matches a wallet.
type Predicate func(Descriptor) bool

// IsGenuineMetaMask matches MetaMask but not wallets that merely set isMetaMask.
func IsGenuineMetaMask(d Descriptor) bool { return d.IsMetaMask && d.MetaMaskInternal }

// IsTrust matches Trust Wallet.
func IsTrust(d Descriptor) bool { return d.IsTrust }

// IsCoinbase matches Coinbase Wallet.
func IsCoinbase(d Descriptor) bool { return d.IsCoinbaseWallet }

// IsPrimary matches the default injected provider.
func IsPrimary(d Descriptor) bool { return d.Primary }

// Detectors returns the ordered predicates used to locate a wallet of kind k.
// The first predicate that matches any registered provider wins.
func Detectors(k Kind) []Predicate {
	switch k {
	case KindMetaMask:
		return []Predicate{IsGenuineMetaMask, IsPrimary}
	case KindTrust:
		return []Predicate{IsTrust, IsPrimary}
	case KindCoinbase:
		return []Predicate{IsCoinbase, IsPrimary}
	default:
		return nil
	}
}

// Registry holds the providers discoverable by the session, in injection order.
type Registry struct {
	mu      sync.RWMutex
	entries []Injected
}

// NewRegistry creates a registry holding entries.
func NewRegistry(entries ...Injected) *Registry {
	r := &Registry{}
	for _, e := range entries {
		r.Register(e)
	}
	return r
}

// Register adds a provider. The first registered provider becomes primary
// unless another entry already claims it.
func (r *Registry) Register(e Injected) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == 0 {
		e.Descriptor.Primary = true
	} else if e.Descriptor.Primary {
		for i := range r.entries {
			r.entries[i].Descriptor.Primary = false
		}
	}
	r.entries = append(r.entries, e)
}

// List returns a copy of the registered providers.
func (r *Registry) List() []Injected {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Injected(nil), r.entries...)
}

// Locate evaluates the wallet's detectors in order against the registered
// providers and returns the first match. ErrProviderNotFound is returned
// when nothing matches.
func (r *Registry) Locate(k Kind) (Injected, error) {
	entries := r.List()
	for _, match := range Detectors(k) {
		for _, e := range entries {
			if match(e.Descriptor) {
				return e, nil
			}
		}
	}
	return Injected{}, finoraerr.WithDetails(finoraerr.ErrProviderNotFound, map[string]string{
		"wallet": string(k),
	})
}
