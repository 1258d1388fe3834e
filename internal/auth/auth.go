// Package auth talks to the authentication backend and persists the bearer
// token it issues.
package auth

import (
	"context"
	"maps"
)

// Backend is the authentication service contract.
type Backend interface {
	// GetNonce returns a single-use challenge message for address.
	GetNonce(ctx context.Context, address string) (string, error)
	// Login exchanges a signed challenge for a bearer token.
	Login(ctx context.Context, address, message, signature string) (string, error)
	// GetMe returns the profile of the token's owner.
	GetMe(ctx context.Context, token string) (Profile, error)
	// VaultAPY returns the current APY of a vault.
	VaultAPY(ctx context.Context, token, vault string) (float64, error)
}

// Profile keys.
const (
	KeyAddress          = "address"
	KeyIsWhitelisted    = "isWhitelisted"
	KeyTwitterAccount   = "twitterAccount"
	KeyMorphoVault      = "morphoVault"
	KeyIsInitialDeposit = "isInitialDeposit"

	// legacyInitialDepositKey is the misspelled key older backends send.
	legacyInitialDepositKey = "isIntitialDeposit"
)

// Profile is the user record returned by the backend. It is kept as a
// key/value document so unknown keys survive merges.
type Profile map[string]any

// Merge returns a new profile with other's keys written over p's. A key
// present in other with a null value clears the field.
func (p Profile) Merge(other Profile) Profile {
	out := make(Profile, len(p)+len(other))
	maps.Copy(out, p)
	maps.Copy(out, other)
	return out
}

// Clone returns a shallow copy of p.
func (p Profile) Clone() Profile {
	if p == nil {
		return Profile{}
	}
	return maps.Clone(p)
}

// Address returns the profile's address, or "".
func (p Profile) Address() string { return p.str(KeyAddress) }

// TwitterAccount returns the linked Twitter handle, or "".
func (p Profile) TwitterAccount() string { return p.str(KeyTwitterAccount) }

// MorphoVault returns the user's vault identifier, or "" when none exists.
func (p Profile) MorphoVault() string { return p.str(KeyMorphoVault) }

// IsWhitelisted reports the whitelist flag.
func (p Profile) IsWhitelisted() bool { return p.flag(KeyIsWhitelisted) }

// IsInitialDeposit reports whether the initial deposit was made.
func (p Profile) IsInitialDeposit() bool {
	if _, ok := p[KeyIsInitialDeposit]; ok {
		return p.flag(KeyIsInitialDeposit)
	}
	return p.flag(legacyInitialDepositKey)
}

// IsOnboarded reports whether the user has both a vault and an initial deposit.
func (p Profile) IsOnboarded() bool {
	return p.MorphoVault() != "" && p.IsInitialDeposit()
}

func (p Profile) str(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p Profile) flag(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	default:
		return false
	}
}
