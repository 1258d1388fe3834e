package cli

import (
	"bufio"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/output"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// errSwitchFailed is returned when the wallet stays on its chain.
var errSwitchFailed = &finoraerr.FinoraError{
	Code:     "CHAIN_SWITCH_FAILED",
	Message:  "wallet did not switch chains",
	ExitCode: finoraerr.ExitRejected,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	switchWallet  walletFlags
	switchChainID int
	switchAddOnly bool
)

// switchCmd asks the wallet to change chains.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Switch the wallet to another chain",
	Long: `Ask the wallet to switch to --chain. A chain the wallet does not know
is added from the chain table once, after which the switch is reported as
not done. With --add the chain is only added.`,
	Example: `  finora switch --chain 8453 --keystore ./key.json
  finora switch --chain 8453 --add --private-key-env MY_KEY --yes`,
	GroupID: groupSession,
	Args:    cobra.NoArgs,
	RunE:    runSwitch,
}

// chainsCmd lists the chain table.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var chainsCmd = &cobra.Command{
	Use:     "chains",
	Short:   "List the chains Finora can add to a wallet",
	Long:    `List the chains of the built-in table with their hex IDs and RPC endpoints.`,
	Example: `  finora chains`,
	GroupID: groupSession,
	Args:    cobra.NoArgs,
	RunE:    runChains,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(switchCmd, chainsCmd)

	switchWallet.register(switchCmd)
	switchCmd.Flags().IntVar(&switchChainID, "chain", 0, "chain ID to switch to (required)")
	switchCmd.Flags().BoolVar(&switchAddOnly, "add", false, "add the chain to the wallet without switching")
	_ = switchCmd.MarkFlagRequired("chain")
}

// switchResult is the outcome of a switch.
type switchResult struct {
	ChainID  int    `json:"chain_id"`
	Chain    string `json:"chain"`
	Switched bool   `json:"switched"`
	Added    bool   `json:"added,omitempty"`
}

func runSwitch(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	in := bufio.NewReader(cmd.InOrStdin())

	entries, err := switchWallet.injected(cmd, in)
	if err != nil {
		return err
	}

	m, deps, err := cc.newManager(cmd, "", entries...)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx := baseContext(cmd)
	res := switchResult{ChainID: switchChainID, Chain: chain.Name(switchChainID)}

	if switchAddOnly {
		if err := m.AddChainNetwork(ctx, switchChainID); err != nil {
			return err
		}
		res.Added = true
	} else {
		res.Switched = m.SwitchNetwork(ctx, switchChainID, func() {
			cc.Log.Debug("switch to %d finished", switchChainID)
		})
	}

	if err := cc.Fmt.Emit(res, func(w io.Writer) error {
		switch {
		case res.Added:
			out(w, "Added %s to the wallet.\n", fmtChain(res.ChainID))
		case res.Switched:
			out(w, "Switched to %s.\n", fmtChain(res.ChainID))
		default:
			out(w, "Wallet is not on %s.\n", fmtChain(res.ChainID))
		}
		return nil
	}); err != nil {
		return err
	}

	if !switchAddOnly && !res.Switched {
		return finoraerr.WithDetails(errSwitchFailed, map[string]string{"chain": res.Chain})
	}
	return nil
}

// chainRow is one entry of the chain table.
type chainRow struct {
	ChainID int    `json:"chain_id"`
	HexID   string `json:"hex_id"`
	Name    string `json:"name"`
	RPCURL  string `json:"rpc_url,omitempty"`
}

func runChains(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)

	rows := make([]chainRow, 0, len(chain.Supported()))
	for _, id := range chain.Supported() {
		rows = append(rows, chainRow{
			ChainID: id,
			HexID:   chain.HexID(id),
			Name:    chain.Name(id),
			RPCURL:  cc.Cfg.RPCURL(id),
		})
	}

	return cc.Fmt.Emit(rows, func(w io.Writer) error {
		t := output.NewTable("ID", "HEX", "NAME", "RPC")
		for _, r := range rows {
			rpc := r.RPCURL
			if rpc == "" {
				rpc = "(not configured)"
			}
			t.AddRow(strconv.Itoa(r.ChainID), r.HexID, r.Name, rpc)
		}
		return t.Render(w)
	})
}
