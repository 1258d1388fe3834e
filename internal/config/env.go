package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome         = "FINORA_HOME"
	EnvBackendURL   = "FINORA_BACKEND_URL"
	EnvBackendMock  = "FINORA_BACKEND_MOCK"
	EnvBaseRPC      = "FINORA_BASE_RPC"
	EnvETHRPC       = "FINORA_ETH_RPC"
	EnvTokenStore   = "FINORA_TOKEN_STORE" // #nosec G101 -- false positive, this is a const name not a credential
	EnvOutputFormat = "FINORA_OUTPUT_FORMAT"
	EnvVerbose      = "FINORA_VERBOSE"
	EnvLogLevel     = "FINORA_LOG_LEVEL"
	EnvNoColor      = "NO_COLOR"
	EnvSettleDelay  = "FINORA_SETTLE_DELAY_MS"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.URL = SanitizeURL(v)
		cfg.Backend.Mock = false
	}

	if v := os.Getenv(EnvBackendMock); v != "" {
		cfg.Backend.Mock = parseBool(v)
	}

	if cfg.Chain.RPCURLs == nil {
		cfg.Chain.RPCURLs = make(map[int]string)
	}
	if v := os.Getenv(EnvBaseRPC); v != "" {
		cfg.Chain.RPCURLs[BaseChainID] = SanitizeURL(v)
	}
	if v := os.Getenv(EnvETHRPC); v != "" {
		cfg.Chain.RPCURLs[1] = SanitizeURL(v)
	}

	if v := os.Getenv(EnvTokenStore); v != "" {
		cfg.Tokens.Store = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}

	if v := os.Getenv(EnvSettleDelay); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.Session.SettleDelayMS = ms
		}
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// errInsecureURL is returned for plain-http endpoints that are not loopback.
var errInsecureURL = fmt.Errorf("insecure URL: plain http is only allowed for localhost")

// ValidateURL checks that an RPC or backend URL uses an allowed scheme.
// Empty URLs are accepted and mean "not configured".
func ValidateURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		return nil
	case "http", "ws":
		host := u.Hostname()
		if host == "localhost" {
			return nil
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil
		}
		return errInsecureURL
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming whitespace.
// RPC and backend URLs are frequently pasted with trailing artifacts.
func SanitizeURL(raw string) string {
	return sanitize.URL(strings.TrimSpace(raw))
}
