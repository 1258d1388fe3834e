package cli

import (
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/finora/internal/balance"
	"github.com/mrz1836/finora/internal/chain"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

const (
	// defaultDecimals is the scale of the native asset.
	defaultDecimals = 18

	lookupTimeout = 30 * time.Second
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	balanceToken    string
	balanceChainID  int
	balanceAddress  string
	balanceDecimals int

	apyVault string
)

// balanceCmd looks up a token balance.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show a token balance",
	Long: `Look up the balance of a token on a chain. The holder defaults to the
signed-in account. The native asset is selected with the 0xEeee... sentinel
address. Lookup failures are logged and shown as a zero balance.`,
	Example: `  finora balance
  finora balance --token 0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913 --decimals 6
  finora balance --chain 1 --address 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266`,
	GroupID: groupAccount,
	Args:    cobra.NoArgs,
	RunE:    runBalance,
}

// apyCmd shows a vault's APY.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var apyCmd = &cobra.Command{
	Use:   "apy",
	Short: "Show a vault's APY",
	Long: `Ask the backend for a vault's APY. The vault defaults to the one in the
signed-in profile. Without a token, or when the lookup fails, the APY is 0.`,
	Example: `  finora apy
  finora apy --vault 0xbeeF010f9cb27031ad51e3333f9aF9C6B1228183`,
	GroupID: groupAccount,
	Args:    cobra.NoArgs,
	RunE:    runAPY,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(balanceCmd, apyCmd)

	balanceCmd.Flags().StringVar(&balanceToken, "token", chain.NativeAssetAddress, "token contract address")
	balanceCmd.Flags().IntVar(&balanceChainID, "chain", 0, "chain ID (default: the target chain)")
	balanceCmd.Flags().StringVar(&balanceAddress, "address", "", "holder address (default: the signed-in account)")
	balanceCmd.Flags().IntVar(&balanceDecimals, "decimals", defaultDecimals, "token decimals used to format the balance")

	apyCmd.Flags().StringVar(&apyVault, "vault", "", "vault identifier (default: the profile's vault)")
}

// balanceResult is a looked-up balance.
type balanceResult struct {
	Token     string `json:"token"`
	ChainID   int    `json:"chain_id"`
	Address   string `json:"address"`
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

func runBalance(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, lookupTimeout)
	defer cancel()

	m, deps, err := cc.newManager(cmd, "")
	if err != nil {
		return err
	}
	defer deps.Close()

	holder := strings.TrimSpace(balanceAddress)
	if holder == "" {
		if err := m.RestoreProfile(ctx); err != nil {
			return err
		}
		holder = m.State().Profile.Address()
	}
	if holder == "" {
		return finoraerr.WithSuggestion(finoraerr.ErrInvalidInput,
			"pass --address or sign in with 'finora connect'")
	}
	if !balance.IsValidAddress(holder) {
		return finoraerr.WithDetails(finoraerr.ErrInvalidAddress, map[string]string{"address": holder})
	}
	if !balance.IsValidAddress(balanceToken) {
		return finoraerr.WithDetails(finoraerr.ErrInvalidAddress, map[string]string{"token": balanceToken})
	}

	chainID := balanceChainID
	if chainID == 0 {
		chainID = cc.Cfg.TargetChainID()
	}

	raw := m.FetchTokenBalance(ctx, balanceToken, chainID, holder)
	res := balanceResult{
		Token:     balanceToken,
		ChainID:   chainID,
		Address:   holder,
		Raw:       raw,
		Formatted: balance.FormatBalance(raw, balanceDecimals),
	}

	return cc.Fmt.Emit(res, func(w io.Writer) error {
		token := balance.FormatAddress(res.Token)
		if chain.IsNativeAsset(res.Token) {
			token = "native"
		}
		out(w, "%s on %s for %s: %s\n", token, fmtChain(res.ChainID), balance.FormatAddress(res.Address), res.Formatted)
		return nil
	})
}

// apyResult is a vault APY.
type apyResult struct {
	Vault string  `json:"vault"`
	APY   float64 `json:"apy"`
}

func runAPY(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, lookupTimeout)
	defer cancel()

	m, deps, err := cc.newManager(cmd, "")
	if err != nil {
		return err
	}
	defer deps.Close()

	if !m.Authenticated() {
		return finoraerr.WithSuggestion(finoraerr.ErrTokenNotFound, "sign in with 'finora connect'")
	}

	vault := strings.TrimSpace(apyVault)
	if vault == "" {
		if err := m.RestoreProfile(ctx); err != nil {
			return err
		}
		vault = m.State().Profile.MorphoVault()
	}
	if vault == "" {
		return finoraerr.WithSuggestion(finoraerr.ErrInvalidInput, "the profile has no vault; pass --vault")
	}

	res := apyResult{Vault: vault, APY: m.GetVaultApy(ctx, vault)}
	return cc.Fmt.Emit(res, func(w io.Writer) error {
		out(w, "%s APY: %.2f%%\n", balance.FormatAddress(res.Vault), res.APY)
		return nil
	})
}
