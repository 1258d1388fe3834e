// Package cli implements the Finora command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/finora/internal/config"
	"github.com/mrz1836/finora/internal/output"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Command group IDs for the root help output.
const (
	groupSession = "session"
	groupAccount = "account"
	groupConfig  = "config"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	metricsAddr  string

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	cmdCtx    *CommandContext

	stopMetrics func()
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "finora",
	Short: "Connect a wallet and authenticate with Finora",
	Long: `Finora connects a wallet to the Finora backend from the terminal.

It drives the same session flow as the web app: locate the wallet, keep it
on Base, sign the backend nonce, persist the bearer token and derive the
onboarding flags from the returned profile. A local software wallet loaded
from a keystore, mnemonic or private key stands in for the browser wallet.`,
	Example: `  finora connect --wallet MetaMask --keystore ./key.json
  finora status
  finora balance --token 0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE --chain 8453`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute(info BuildInfo) error {
	SetBuildInfo(info)

	err := rootCmd.Execute()
	if err != nil {
		formatErr(err)
		return err
	}
	return nil
}

// formatErr prints err to stderr in the active output format.
func formatErr(err error) {
	format := output.FormatText
	if formatter != nil {
		format = formatter.Format()
	}
	_ = output.FormatError(os.Stderr, err, format)
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return finoraerr.ExitCode(err)
}

// initGlobals initializes global configuration, logger, formatter and the
// command context.
func initGlobals(cmd *cobra.Command) error {
	// Determine home directory
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	// Load or create config
	var err error
	cfg, err = config.Load(config.Path(config.ExpandPath(home)))
	if err != nil {
		// Use defaults if config doesn't exist
		cfg = config.Defaults()
		cfg.Home = home
	}

	// Apply environment variable overrides
	config.ApplyEnvironment(cfg)

	// Override with command-line flags
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}

	// Initialize logger
	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		// Use null logger if we can't create the file
		logger = config.NullLogger()
	}

	// Initialize formatter
	formatter = output.NewFormatter(output.ParseFormat(cfg.Output.DefaultFormat), cmd.OutOrStdout())

	cmdCtx = NewCommandContext(cfg, logger, formatter)
	SetCmdContext(cmd, cmdCtx)

	if metricsAddr != "" {
		stop, serveErr := serveMetrics(metricsAddr, cmdCtx.Metrics, logger)
		if serveErr != nil {
			return serveErr
		}
		stopMetrics = stop
	}

	return nil
}

// cleanup releases resources.
func cleanup() {
	if stopMetrics != nil {
		stopMetrics()
		stopMetrics = nil
	}
	if logger != nil {
		_ = logger.Close()
	}
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

// Context returns the global command context.
func Context() *CommandContext {
	return cmdCtx
}

// commandContext returns the context attached to cmd, falling back to the
// global one.
func commandContext(cmd *cobra.Command) *CommandContext {
	if cc := GetCmdContext(cmd); cc != nil {
		return cc
	}
	return cmdCtx
}

// baseContext returns the command's context or a background context.
func baseContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupSession, Title: "Wallet Session:"},
		&cobra.Group{ID: groupAccount, Title: "Account:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)
	rootCmd.SetHelpCommandGroupID(groupConfig)

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "finora data directory (default: ~/.finora)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
}
