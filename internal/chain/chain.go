// Package chain provides the static chain table and the retry and rate
// limiting helpers shared by the session manager and the balance fetcher.
package chain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Supported chain IDs.
const (
	Ethereum = 1
	Base     = 8453
)

// NativeAssetAddress is the sentinel token address that stands for the
// chain's native asset (ETH on both Ethereum and Base).
const NativeAssetAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Params is the wallet_addEthereumChain parameter object.
type Params struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

//nolint:gochecknoglobals // static chain table
var table = map[int]Params{
	Base: {
		ChainID:           HexID(Base),
		ChainName:         "Base",
		NativeCurrency:    NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURLs:           []string{"https://mainnet.base.org"},
		BlockExplorerURLs: []string{"https://basescan.org"},
	},
	Ethereum: {
		ChainID:           HexID(Ethereum),
		ChainName:         "Ethereum Mainnet",
		NativeCurrency:    NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURLs:           []string{"https://ethereum-rpc.publicnode.com"},
		BlockExplorerURLs: []string{"https://etherscan.io"},
	},
}

// Lookup returns the add-chain parameters for id. The returned value is a
// copy and may be modified by the caller.
func Lookup(id int) (Params, bool) {
	p, ok := table[id]
	if !ok {
		return Params{}, false
	}
	p.RPCURLs = append([]string(nil), p.RPCURLs...)
	p.BlockExplorerURLs = append([]string(nil), p.BlockExplorerURLs...)
	return p, true
}

// Name returns the display name of a chain, or "chain <id>" when unknown.
func Name(id int) string {
	if p, ok := table[id]; ok {
		return p.ChainName
	}
	return fmt.Sprintf("chain %d", id)
}

// Supported returns the chain IDs in the table, ascending.
func Supported() []int {
	ids := make([]int, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// HexID renders a chain ID as a 0x-prefixed quantity, e.g. 8453 -> "0x2105".
func HexID(id int) string {
	if id < 0 {
		id = 0
	}
	return hexutil.EncodeUint64(uint64(id))
}

// ParseID normalizes a chain identifier as reported by a wallet. Wallets send
// hex strings ("0x2105"), decimal strings ("8453") or JSON numbers.
//
//nolint:gocyclo // type switch over every shape a provider may emit
func ParseID(v any) (int, error) {
	switch id := v.(type) {
	case int:
		return checkID(int64(id))
	case int64:
		return checkID(id)
	case uint64:
		if id == 0 || id > math.MaxInt32 {
			return 0, invalidID(v)
		}
		return int(id), nil
	case float64:
		if id != math.Trunc(id) {
			return 0, invalidID(v)
		}
		return checkID(int64(id))
	case json.Number:
		return ParseID(id.String())
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(id, &decoded); err != nil {
			return 0, invalidID(string(id))
		}
		return ParseID(decoded)
	case string:
		s := strings.TrimSpace(id)
		if has0xPrefix(s) {
			n, err := hexutil.DecodeUint64(s)
			if err != nil {
				// Some wallets pad chain IDs with leading zeros, which strict
				// quantity decoding rejects.
				n, err = strconv.ParseUint(s[2:], 16, 64)
				if err != nil {
					return 0, invalidID(v)
				}
			}
			return ParseID(n)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, invalidID(v)
		}
		return checkID(n)
	default:
		return 0, invalidID(v)
	}
}

// IsNativeAsset reports whether addr is the native-asset sentinel.
func IsNativeAsset(addr string) bool {
	return strings.EqualFold(strings.TrimSpace(addr), NativeAssetAddress)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func checkID(id int64) (int, error) {
	if id <= 0 || id > math.MaxInt32 {
		return 0, invalidID(id)
	}
	return int(id), nil
}

func invalidID(v any) error {
	return finoraerr.WithDetails(finoraerr.ErrInvalidInput, map[string]string{
		"chain_id": fmt.Sprintf("%v", v),
	})
}
