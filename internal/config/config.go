// Package config provides configuration management for Finora.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/finora/internal/fileutil"
)

// Config represents the application configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Home       string           `yaml:"home"`
	Chain      ChainConfig      `yaml:"chain"`
	Backend    BackendConfig    `yaml:"backend"`
	Session    SessionConfig    `yaml:"session"`
	Tokens     TokenStoreConfig `yaml:"tokens"`
	Balance    BalanceConfig    `yaml:"balance"`
	Onboarding OnboardingConfig `yaml:"onboarding"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChainConfig defines the target chain and per-chain read RPC endpoints.
type ChainConfig struct {
	TargetChainID int            `yaml:"target_chain_id"`
	RPCURLs       map[int]string `yaml:"rpc_urls"`
}

// BackendConfig defines the authentication backend.
type BackendConfig struct {
	URL            string `yaml:"url"`
	Mock           bool   `yaml:"mock"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SessionConfig defines wallet-connection timing.
type SessionConfig struct {
	SettleDelayMS         int    `yaml:"settle_delay_ms"`
	InstallPromptDelayMS  int    `yaml:"install_prompt_delay_ms"`
	ChainAddDelayMS       int    `yaml:"chain_add_delay_ms"`
	ChainRetryAttempts    int    `yaml:"chain_retry_attempts"`
	ChainRetryDelayMS     int    `yaml:"chain_retry_delay_ms"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
	MetaMaskInstallURL    string `yaml:"metamask_install_url"`
}

// TokenStoreConfig defines where the backend bearer token is persisted.
type TokenStoreConfig struct {
	Store        string `yaml:"store"` // file, keyring, memory
	File         string `yaml:"file"`
	IdentityFile string `yaml:"identity_file"`
}

// BalanceConfig defines balance lookup caching and rate limiting.
type BalanceConfig struct {
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	RatePerSecond   float64 `yaml:"rate_per_second"`
	Burst           int     `yaml:"burst"`
}

// OnboardingConfig defines email verification settings.
type OnboardingConfig struct {
	CodeTTLMinutes int    `yaml:"code_ttl_minutes"`
	DevCode        string `yaml:"dev_code,omitempty"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default finora home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finora"
	}
	return filepath.Join(home, ".finora")
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// GetHome returns the finora home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// TargetChainID returns the chain the signing flow is wired for.
func (c *Config) TargetChainID() int {
	return c.Chain.TargetChainID
}

// RPCURL returns the configured read RPC endpoint for a chain, or "".
func (c *Config) RPCURL(chainID int) string {
	return c.Chain.RPCURLs[chainID]
}

// BackendTimeout returns the backend request timeout.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// SettleDelay returns the wait applied after account and chain changes.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Session.SettleDelayMS) * time.Millisecond
}

// InstallPromptDelay returns the wait before opening a wallet install page.
func (c *Config) InstallPromptDelay() time.Duration {
	return time.Duration(c.Session.InstallPromptDelayMS) * time.Millisecond
}

// ChainAddDelay returns the wait between a 4902 switch failure and the add-chain request.
func (c *Config) ChainAddDelay() time.Duration {
	return time.Duration(c.Session.ChainAddDelayMS) * time.Millisecond
}

// ChainRetryDelay returns the base delay of the chain-switch retry.
func (c *Config) ChainRetryDelay() time.Duration {
	return time.Duration(c.Session.ChainRetryDelayMS) * time.Millisecond
}

// ConnectTimeout returns the deadline for one connect routine.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Session.ConnectTimeoutSeconds) * time.Second
}

// BalanceCacheTTL returns how long fetched balances stay fresh.
func (c *Config) BalanceCacheTTL() time.Duration {
	return time.Duration(c.Balance.CacheTTLSeconds) * time.Second
}

// CodeTTL returns how long an email verification code stays valid.
func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.Onboarding.CodeTTLMinutes) * time.Minute
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}
