package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/finora/internal/auth"
	"github.com/mrz1836/finora/internal/config"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage configuration",
	Long:    `View and modify Finora configuration settings.`,
	GroupID: groupConfig,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.finora/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.`,
	Example: `  finora config init
  finora config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings.`,
	Example: `  finora config show
  finora config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree.`,
	Example: `  finora config get chain.rpc.8453
  finora config get backend.url
  finora config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree.
The configuration file will be updated immediately.`,
	Example: `  finora config set chain.rpc.8453 https://base.example/rpc
  finora config set backend.mock false
  finora config set tokens.store keyring`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")

	enrichParentLong(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	configPath := config.Path(config.ExpandPath(cc.Cfg.Home))

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil && !configForce {
		return finoraerr.WithSuggestion(
			finoraerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cc.Cfg.Home

	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - chain.rpc_urls: Read RPC endpoints per chain ID")
	outln(w, "  - backend.url / backend.mock: The authentication backend")
	outln(w, "  - tokens.store: Where the bearer token is kept (file/keyring/memory)")
	outln(w, "  - logging.level: Log level (off/error/info/debug)")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	w := cmd.OutOrStdout()

	if cc.Fmt.IsJSON() {
		return displayConfigJSON(w, cc.Cfg)
	}
	return displayConfigText(w, cc.Cfg)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc := commandContext(cmd)
	path := args[0]

	value, err := getConfigValue(cc.Cfg, path)
	if err != nil {
		return finoraerr.WithSuggestion(
			finoraerr.ErrNotFound,
			fmt.Sprintf("configuration path '%s' not found", path),
		)
	}

	outln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc := commandContext(cmd)
	path, value := args[0], args[1]

	// Validate the path exists
	if _, err := getConfigValue(cc.Cfg, path); err != nil {
		return finoraerr.WithSuggestion(
			finoraerr.ErrNotFound,
			fmt.Sprintf("configuration path '%s' not found", path),
		)
	}

	// Load current config from file
	configPath := config.Path(config.ExpandPath(cc.Cfg.Home))
	currentCfg, err := config.Load(configPath)
	if err != nil {
		// If file doesn't exist, start with defaults
		currentCfg = config.Defaults()
		currentCfg.Home = cc.Cfg.Home
	}

	if err := setConfigValue(currentCfg, path, value); err != nil {
		return fmt.Errorf("setting config value: %w", err)
	}

	if err := config.Save(currentCfg, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, value)
	return nil
}

func unknownKey(details map[string]string) error {
	return finoraerr.WithDetails(finoraerr.ErrUnknownConfigKey, details)
}

func invalidValue(value, valid string) error {
	return finoraerr.WithDetails(finoraerr.ErrConfigInvalid, map[string]string{"value": value, "valid": valid})
}

// getConfigValue retrieves a value from the config using dot notation.
func getConfigValue(c *config.Config, path string) (string, error) {
	parts := strings.Split(path, ".")

	switch len(parts) {
	case 1:
		if parts[0] == "home" {
			return c.Home, nil
		}
		return "", unknownKey(map[string]string{"key": parts[0]})
	case 2:
		switch parts[0] {
		case "chain":
			return getChainValue(c, parts[1])
		case "backend":
			return getBackendValue(c, parts[1])
		case "session":
			return getSessionValue(c, parts[1])
		case "tokens":
			return getTokensValue(c, parts[1])
		case "balance":
			return getBalanceValue(c, parts[1])
		case "onboarding":
			return getOnboardingValue(c, parts[1])
		case "output":
			return getOutputValue(c, parts[1])
		case "logging":
			return getLoggingValue(c, parts[1])
		default:
			return "", unknownKey(map[string]string{"section": parts[0]})
		}
	case 3:
		if parts[0] == "chain" && parts[1] == "rpc" {
			id, err := parseChainKey(parts[2])
			if err != nil {
				return "", err
			}
			return c.RPCURL(id), nil
		}
		return "", unknownKey(map[string]string{"path": path})
	default:
		return "", unknownKey(map[string]string{"path": path})
	}
}

func parseChainKey(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, unknownKey(map[string]string{"section": "chain.rpc", "key": s})
	}
	return id, nil
}

func getChainValue(c *config.Config, key string) (string, error) {
	if key == "target_chain_id" {
		return strconv.Itoa(c.Chain.TargetChainID), nil
	}
	return "", unknownKey(map[string]string{"section": "chain", "key": key})
}

func getBackendValue(c *config.Config, key string) (string, error) {
	switch key {
	case "url":
		return c.Backend.URL, nil
	case "mock":
		return strconv.FormatBool(c.Backend.Mock), nil
	case "timeout_seconds":
		return strconv.Itoa(c.Backend.TimeoutSeconds), nil
	default:
		return "", unknownKey(map[string]string{"section": "backend", "key": key})
	}
}

func getSessionValue(c *config.Config, key string) (string, error) {
	s := c.Session
	switch key {
	case "settle_delay_ms":
		return strconv.Itoa(s.SettleDelayMS), nil
	case "install_prompt_delay_ms":
		return strconv.Itoa(s.InstallPromptDelayMS), nil
	case "chain_add_delay_ms":
		return strconv.Itoa(s.ChainAddDelayMS), nil
	case "chain_retry_attempts":
		return strconv.Itoa(s.ChainRetryAttempts), nil
	case "chain_retry_delay_ms":
		return strconv.Itoa(s.ChainRetryDelayMS), nil
	case "connect_timeout_seconds":
		return strconv.Itoa(s.ConnectTimeoutSeconds), nil
	case "metamask_install_url":
		return s.MetaMaskInstallURL, nil
	default:
		return "", unknownKey(map[string]string{"section": "session", "key": key})
	}
}

func getTokensValue(c *config.Config, key string) (string, error) {
	switch key {
	case "store":
		return c.Tokens.Store, nil
	case "file":
		return c.Tokens.File, nil
	case "identity_file":
		return c.Tokens.IdentityFile, nil
	default:
		return "", unknownKey(map[string]string{"section": "tokens", "key": key})
	}
}

func getBalanceValue(c *config.Config, key string) (string, error) {
	switch key {
	case "cache_ttl_seconds":
		return strconv.Itoa(c.Balance.CacheTTLSeconds), nil
	case "rate_per_second":
		return strconv.FormatFloat(c.Balance.RatePerSecond, 'f', -1, 64), nil
	case "burst":
		return strconv.Itoa(c.Balance.Burst), nil
	default:
		return "", unknownKey(map[string]string{"section": "balance", "key": key})
	}
}

func getOnboardingValue(c *config.Config, key string) (string, error) {
	switch key {
	case "code_ttl_minutes":
		return strconv.Itoa(c.Onboarding.CodeTTLMinutes), nil
	case "dev_code":
		return c.Onboarding.DevCode, nil
	default:
		return "", unknownKey(map[string]string{"section": "onboarding", "key": key})
	}
}

func getOutputValue(c *config.Config, key string) (string, error) {
	switch key {
	case "default_format":
		return c.Output.DefaultFormat, nil
	case "verbose":
		return strconv.FormatBool(c.Output.Verbose), nil
	case "color":
		return c.Output.Color, nil
	default:
		return "", unknownKey(map[string]string{"section": "output", "key": key})
	}
}

func getLoggingValue(c *config.Config, key string) (string, error) {
	switch key {
	case "level":
		return c.Logging.Level, nil
	case "file":
		return c.Logging.File, nil
	default:
		return "", unknownKey(map[string]string{"section": "logging", "key": key})
	}
}

// setConfigValue sets a value in the config using dot notation.
func setConfigValue(c *config.Config, path, value string) error {
	parts := strings.Split(path, ".")

	switch len(parts) {
	case 1:
		if parts[0] == "home" {
			c.Home = value
			return nil
		}
		return unknownKey(map[string]string{"key": parts[0]})
	case 2:
		switch parts[0] {
		case "chain":
			return setChainValue(c, parts[1], value)
		case "backend":
			return setBackendValue(c, parts[1], value)
		case "session":
			return setSessionValue(c, parts[1], value)
		case "tokens":
			return setTokensValue(c, parts[1], value)
		case "balance":
			return setBalanceValue(c, parts[1], value)
		case "onboarding":
			return setOnboardingValue(c, parts[1], value)
		case "output":
			return setOutputValue(c, parts[1], value)
		case "logging":
			return setLoggingValue(c, parts[1], value)
		default:
			return unknownKey(map[string]string{"section": parts[0]})
		}
	case 3:
		if parts[0] == "chain" && parts[1] == "rpc" {
			id, err := parseChainKey(parts[2])
			if err != nil {
				return err
			}
			return setRPCURL(c, id, value)
		}
		return unknownKey(map[string]string{"path": path})
	default:
		return unknownKey(map[string]string{"path": path})
	}
}

func setRPCURL(c *config.Config, id int, value string) error {
	value = config.SanitizeURL(value)
	if err := config.ValidateURL(value); err != nil {
		return finoraerr.WithCause(finoraerr.ErrConfigInvalid, err)
	}
	if c.Chain.RPCURLs == nil {
		c.Chain.RPCURLs = make(map[int]string)
	}
	if value == "" {
		delete(c.Chain.RPCURLs, id)
		return nil
	}
	c.Chain.RPCURLs[id] = value
	return nil
}

// parseNonNegative parses a non-negative integer setting.
func parseNonNegative(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0, invalidValue(value, "a non-negative integer")
	}
	return n, nil
}

func parseBoolValue(value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, invalidValue(value, "true or false")
	}
	return b, nil
}

func setChainValue(c *config.Config, key, value string) error {
	if key != "target_chain_id" {
		return unknownKey(map[string]string{"section": "chain", "key": key})
	}
	n, err := parseNonNegative(value)
	if err != nil || n == 0 {
		return invalidValue(value, "a chain ID")
	}
	c.Chain.TargetChainID = n
	return nil
}

func setBackendValue(c *config.Config, key, value string) error {
	switch key {
	case "url":
		value = config.SanitizeURL(value)
		if err := config.ValidateURL(value); err != nil {
			return finoraerr.WithCause(finoraerr.ErrConfigInvalid, err)
		}
		c.Backend.URL = value
		return nil
	case "mock":
		b, err := parseBoolValue(value)
		if err != nil {
			return err
		}
		c.Backend.Mock = b
		return nil
	case "timeout_seconds":
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		c.Backend.TimeoutSeconds = n
		return nil
	default:
		return unknownKey(map[string]string{"section": "backend", "key": key})
	}
}

func setSessionValue(c *config.Config, key, value string) error {
	if key == "metamask_install_url" {
		value = config.SanitizeURL(value)
		if err := config.ValidateURL(value); err != nil {
			return finoraerr.WithCause(finoraerr.ErrConfigInvalid, err)
		}
		c.Session.MetaMaskInstallURL = value
		return nil
	}

	var field *int
	switch key {
	case "settle_delay_ms":
		field = &c.Session.SettleDelayMS
	case "install_prompt_delay_ms":
		field = &c.Session.InstallPromptDelayMS
	case "chain_add_delay_ms":
		field = &c.Session.ChainAddDelayMS
	case "chain_retry_attempts":
		field = &c.Session.ChainRetryAttempts
	case "chain_retry_delay_ms":
		field = &c.Session.ChainRetryDelayMS
	case "connect_timeout_seconds":
		field = &c.Session.ConnectTimeoutSeconds
	default:
		return unknownKey(map[string]string{"section": "session", "key": key})
	}

	n, err := parseNonNegative(value)
	if err != nil {
		return err
	}
	*field = n
	return nil
}

func setTokensValue(c *config.Config, key, value string) error {
	switch key {
	case "store":
		value = strings.ToLower(strings.TrimSpace(value))
		switch value {
		case auth.StoreFile, auth.StoreKeyring, auth.StoreMemory:
			c.Tokens.Store = value
			return nil
		default:
			return invalidValue(value, "file, keyring, or memory")
		}
	case "file":
		c.Tokens.File = value
		return nil
	case "identity_file":
		c.Tokens.IdentityFile = value
		return nil
	default:
		return unknownKey(map[string]string{"section": "tokens", "key": key})
	}
}

func setBalanceValue(c *config.Config, key, value string) error {
	switch key {
	case "cache_ttl_seconds":
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		c.Balance.CacheTTLSeconds = n
		return nil
	case "rate_per_second":
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || f <= 0 {
			return invalidValue(value, "a positive number")
		}
		c.Balance.RatePerSecond = f
		return nil
	case "burst":
		n, err := parseNonNegative(value)
		if err != nil || n == 0 {
			return invalidValue(value, "a positive integer")
		}
		c.Balance.Burst = n
		return nil
	default:
		return unknownKey(map[string]string{"section": "balance", "key": key})
	}
}

func setOnboardingValue(c *config.Config, key, value string) error {
	switch key {
	case "code_ttl_minutes":
		n, err := parseNonNegative(value)
		if err != nil || n == 0 {
			return invalidValue(value, "a positive integer")
		}
		c.Onboarding.CodeTTLMinutes = n
		return nil
	case "dev_code":
		value = strings.TrimSpace(value)
		if value != "" && (len(value) != 6 || strings.Trim(value, "0123456789") != "") {
			return invalidValue(value, "six digits, or empty to disable")
		}
		c.Onboarding.DevCode = value
		return nil
	default:
		return unknownKey(map[string]string{"section": "onboarding", "key": key})
	}
}

func setOutputValue(c *config.Config, key, value string) error {
	switch key {
	case "default_format":
		if value != "text" && value != "json" && value != "auto" {
			return invalidValue(value, "text, json, or auto")
		}
		c.Output.DefaultFormat = value
		return nil
	case "verbose":
		b, err := parseBoolValue(value)
		if err != nil {
			return err
		}
		c.Output.Verbose = b
		return nil
	case "color":
		if value != "auto" && value != "always" && value != "never" {
			return invalidValue(value, "auto, always, or never")
		}
		c.Output.Color = value
		return nil
	default:
		return unknownKey(map[string]string{"section": "output", "key": key})
	}
}

func setLoggingValue(c *config.Config, key, value string) error {
	switch key {
	case "level":
		for _, l := range []string{"off", "error", "info", "debug"} {
			if value == l {
				c.Logging.Level = value
				return nil
			}
		}
		return invalidValue(value, "off, error, info, or debug")
	case "file":
		c.Logging.File = value
		return nil
	default:
		return unknownKey(map[string]string{"section": "logging", "key": key})
	}
}

// displayConfigText shows the config in text format.
func displayConfigText(w io.Writer, c *config.Config) error {
	outln(w, "Configuration:")
	outln(w)
	out(w, "  Home: %s\n", c.Home)
	outln(w)
	outln(w, "  Chain:")
	out(w, "    target_chain_id: %d\n", c.Chain.TargetChainID)
	for _, id := range sortedChainIDs(c.Chain.RPCURLs) {
		out(w, "    rpc.%d: %s\n", id, c.Chain.RPCURLs[id])
	}
	outln(w)
	outln(w, "  Backend:")
	out(w, "    url: %s\n", c.Backend.URL)
	out(w, "    mock: %t\n", c.Backend.Mock)
	out(w, "    timeout_seconds: %d\n", c.Backend.TimeoutSeconds)
	outln(w)
	outln(w, "  Tokens:")
	out(w, "    store: %s\n", c.Tokens.Store)
	out(w, "    file: %s\n", c.Tokens.File)
	outln(w)
	outln(w, "  Onboarding:")
	out(w, "    code_ttl_minutes: %d\n", c.Onboarding.CodeTTLMinutes)
	out(w, "    dev_code: %s\n", maskSecret(c.Onboarding.DevCode))
	outln(w)
	outln(w, "  Output:")
	out(w, "    default_format: %s\n", c.Output.DefaultFormat)
	out(w, "    verbose: %t\n", c.Output.Verbose)
	out(w, "    color: %s\n", c.Output.Color)
	outln(w)
	outln(w, "  Logging:")
	out(w, "    level: %s\n", c.Logging.Level)
	out(w, "    file: %s\n", c.Logging.File)

	return nil
}

// displayConfigJSON shows the config in JSON format.
func displayConfigJSON(w io.Writer, c *config.Config) error {
	type configJSON struct {
		Version int               `json:"version"`
		Home    string            `json:"home"`
		Chain   map[string]any    `json:"chain"`
		Backend map[string]any    `json:"backend"`
		Session map[string]any    `json:"session"`
		Tokens  map[string]string `json:"tokens"`
		Balance map[string]any    `json:"balance"`
		Output  map[string]any    `json:"output"`
		Logging map[string]string `json:"logging"`
		DevCode string            `json:"dev_code,omitempty"`
	}

	rpc := make(map[string]string, len(c.Chain.RPCURLs))
	for id, u := range c.Chain.RPCURLs {
		rpc[strconv.Itoa(id)] = u
	}

	return writeJSON(w, configJSON{
		Version: c.Version,
		Home:    c.Home,
		Chain:   map[string]any{"target_chain_id": c.Chain.TargetChainID, "rpc_urls": rpc},
		Backend: map[string]any{"url": c.Backend.URL, "mock": c.Backend.Mock, "timeout_seconds": c.Backend.TimeoutSeconds},
		Session: map[string]any{
			"settle_delay_ms":         c.Session.SettleDelayMS,
			"install_prompt_delay_ms": c.Session.InstallPromptDelayMS,
			"chain_add_delay_ms":      c.Session.ChainAddDelayMS,
			"chain_retry_attempts":    c.Session.ChainRetryAttempts,
			"chain_retry_delay_ms":    c.Session.ChainRetryDelayMS,
			"connect_timeout_seconds": c.Session.ConnectTimeoutSeconds,
			"metamask_install_url":    c.Session.MetaMaskInstallURL,
		},
		Tokens: map[string]string{"store": c.Tokens.Store, "file": c.Tokens.File, "identity_file": c.Tokens.IdentityFile},
		Balance: map[string]any{
			"cache_ttl_seconds": c.Balance.CacheTTLSeconds,
			"rate_per_second":   c.Balance.RatePerSecond,
			"burst":             c.Balance.Burst,
		},
		Output:  map[string]any{"default_format": c.Output.DefaultFormat, "color": c.Output.Color, "verbose": c.Output.Verbose},
		Logging: map[string]string{"level": c.Logging.Level, "file": c.Logging.File},
		DevCode: maskSecret(c.Onboarding.DevCode),
	})
}

func sortedChainIDs(m map[int]string) []int {
	return slices.Sorted(maps.Keys(m))
}

// maskSecret hides all but the first two characters of s.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 2 {
		return "***"
	}
	return s[:2] + strings.Repeat("*", len(s)-2)
}
