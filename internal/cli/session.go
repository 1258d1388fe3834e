package cli

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/balance"
	"github.com/mrz1836/finora/internal/chain"
	"github.com/mrz1836/finora/internal/output"
)

// defaultFromPath is the page a CLI login starts from.
const defaultFromPath = "/signup"

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	connectWallet walletFlags
	connectFrom   string
)

// connectCmd connects a wallet and authenticates with the backend.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a wallet and sign in",
	Long: `Connect a wallet, move it to Base and sign the backend nonce.

The wallet is a local software wallet loaded from a keystore, a mnemonic or a
private key, presented as the browser wallet named by --wallet. Without a key
the wallet counts as not installed. Every wallet request asks for approval
unless --yes is given. The bearer token is persisted in the configured token
store.`,
	Example: `  finora connect --keystore ./key.json
  finora connect --wallet "Trust Wallet" --private-key-env MY_KEY --yes
  finora connect --wallet "Coinbase Wallet" --mnemonic-env MY_MNEMONIC`,
	GroupID: groupSession,
	Args:    cobra.NoArgs,
	RunE:    runConnect,
}

// statusCmd shows the persisted session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the signed-in account",
	Long: `Restore the profile of the persisted bearer token and show the
account, whitelist, vault and onboarding flags.`,
	Example: `  finora status
  finora status -o json`,
	GroupID: groupSession,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

// logoutCmd clears the session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the bearer token",
	Long:  `Reset the session and remove the persisted bearer token.`,
	Example: `  finora logout`,
	GroupID: groupSession,
	Args:    cobra.NoArgs,
	RunE:    runLogout,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(connectCmd, statusCmd, logoutCmd)

	connectWallet.register(connectCmd)
	connectCmd.Flags().StringVar(&connectFrom, "from", defaultFromPath,
		"app page the login starts from; onboarded users are redirected to / unless it is / or /token")
}

// connectResult is the outcome of a connect.
type connectResult struct {
	Wallet        string `json:"wallet"`
	Address       string `json:"address"`
	ChainID       int    `json:"chain_id,omitempty"`
	Authenticated bool   `json:"authenticated"`
	IsOnboarded   bool   `json:"is_onboarded"`
	ShowDashboard bool   `json:"show_dashboard"`
	Redirect      string `json:"redirect,omitempty"`
}

func runConnect(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	in := bufio.NewReader(cmd.InOrStdin())

	entries, err := connectWallet.injected(cmd, in)
	if err != nil {
		return err
	}

	m, deps, err := cc.newManager(cmd, connectFrom, entries...)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := m.ConnectWallet(baseContext(cmd), connectWallet.name); err != nil {
		return err
	}

	st := m.State()
	res := connectResult{
		Wallet:        connectWallet.name,
		Address:       st.Address,
		ChainID:       st.ChainID,
		Authenticated: m.Authenticated(),
		IsOnboarded:   st.IsOnboarded,
		ShowDashboard: st.ShowDashboard,
		Redirect:      deps.Navigator.Redirected(),
	}
	cc.Log.Info("connected %s as %s", res.Wallet, res.Address)

	return cc.Fmt.Emit(res, func(w io.Writer) error {
		out(w, "Connected %s: %s\n", res.Wallet, balance.FormatAddress(res.Address))
		if res.ChainID != 0 {
			out(w, "Chain:         %s\n", fmtChain(res.ChainID))
		}
		out(w, "Authenticated: %s\n", yesNo(res.Authenticated))
		out(w, "Onboarded:     %s\n", yesNo(res.IsOnboarded))
		if res.Redirect != "" {
			out(w, "Redirect:      %s\n", res.Redirect)
		}
		return nil
	})
}

// statusResult is the persisted session as seen by the backend.
type statusResult struct {
	Authenticated bool         `json:"authenticated"`
	Address       string       `json:"address,omitempty"`
	IsOnboarded   bool         `json:"is_onboarded"`
	ShowDashboard bool         `json:"show_dashboard"`
	Profile       auth.Profile `json:"profile"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)

	m, deps, err := cc.newManager(cmd, "")
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := m.RestoreProfile(baseContext(cmd)); err != nil {
		return err
	}

	st := m.State()
	res := statusResult{
		Authenticated: m.Authenticated(),
		Address:       st.Profile.Address(),
		IsOnboarded:   st.IsOnboarded,
		ShowDashboard: st.ShowDashboard,
		Profile:       st.Profile,
	}

	return cc.Fmt.Emit(res, func(w io.Writer) error {
		if !res.Authenticated {
			outln(w, "Not signed in. Run 'finora connect' to sign in.")
			return nil
		}
		return renderStatus(w, res)
	})
}

func renderStatus(w io.Writer, res statusResult) error {
	p := res.Profile
	vault := p.MorphoVault()
	if vault == "" {
		vault = "-"
	}
	twitter := p.TwitterAccount()
	if twitter == "" {
		twitter = "-"
	}

	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("Address", res.Address)
	t.AddRow("Whitelisted", yesNo(p.IsWhitelisted()))
	t.AddRow("Twitter", twitter)
	t.AddRow("Vault", vault)
	t.AddRow("Initial deposit", yesNo(p.IsInitialDeposit()))
	t.AddRow("Onboarded", yesNo(res.IsOnboarded))
	t.AddRow("Dashboard", yesNo(res.ShowDashboard))
	return t.Render(w)
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)

	m, deps, err := cc.newManager(cmd, "")
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := m.Logout(baseContext(cmd)); err != nil {
		return err
	}

	return cc.Fmt.Emit(map[string]bool{"logged_out": true}, func(w io.Writer) error {
		outln(w, "Signed out.")
		return nil
	})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// fmtChain renders a chain for text output.
func fmtChain(id int) string {
	return fmt.Sprintf("%s (%d)", chain.Name(id), id)
}
