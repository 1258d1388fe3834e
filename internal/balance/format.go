package balance

import (
	"math/big"
	"regexp"
	"strings"
)

// displayDecimals is the number of fractional digits shown by FormatBalance.
const displayDecimals = 4

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// FormatAddress shortens an address to its first six and last four
// characters, e.g. 0x1234...abcd. Empty input yields "".
func FormatAddress(address string) string {
	if address == "" {
		return ""
	}
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// FormatBalance renders a raw integer balance scaled by decimals with four
// fractional digits. Unparseable input yields "0".
func FormatBalance(raw string, decimals int) string {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return "0"
	}
	if decimals < 0 {
		decimals = 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(value, scale).FloatString(displayDecimals)
}

// IsValidAddress reports whether address is a 0x-prefixed 20-byte hex string.
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// TransactionErrorMessage maps a wallet or node error to a user-facing message.
func TransactionErrorMessage(err error) string {
	if err == nil {
		return "Transaction failed"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "user rejected"):
		return "Transaction was rejected by user"
	case strings.Contains(msg, "insufficient funds"):
		return "Insufficient funds for transaction"
	case strings.Contains(msg, "gas"):
		return "Gas estimation failed"
	default:
		return "Transaction failed"
	}
}
