package config

// BaseChainID is the chain the signing flow is fully wired for.
const BaseChainID = 8453

// DefaultBackendURL is the default authentication backend endpoint.
const DefaultBackendURL = "https://api.finora.finance"

// DefaultMetaMaskInstallURL is opened when MetaMask is not installed.
const DefaultMetaMaskInstallURL = "https://metamask.io/download/"

// DefaultRPCURLs are the read-only RPC endpoints used for balance lookups.
//
//nolint:gochecknoglobals // Configuration default, same pattern as the constants above
var DefaultRPCURLs = map[int]string{
	1:           "https://ethereum-rpc.publicnode.com",
	BaseChainID: "https://mainnet.base.org",
}

// Defaults returns the default configuration.
func Defaults() *Config {
	rpcURLs := make(map[int]string, len(DefaultRPCURLs))
	for id, url := range DefaultRPCURLs {
		rpcURLs[id] = url
	}

	return &Config{
		Version: 1,
		Home:    "~/.finora",
		Chain: ChainConfig{
			TargetChainID: BaseChainID,
			RPCURLs:       rpcURLs,
		},
		Backend: BackendConfig{
			URL:            DefaultBackendURL,
			Mock:           true, // No production backend is wired yet
			TimeoutSeconds: 15,
		},
		Session: SessionConfig{
			SettleDelayMS:         1000,
			InstallPromptDelayMS:  1500,
			ChainAddDelayMS:       1000,
			ChainRetryAttempts:    2,
			ChainRetryDelayMS:     100,
			ConnectTimeoutSeconds: 120,
			MetaMaskInstallURL:    DefaultMetaMaskInstallURL,
		},
		Tokens: TokenStoreConfig{
			Store:        "file",
			File:         "~/.finora/auth_token.age",
			IdentityFile: "~/.finora/identity.age",
		},
		Balance: BalanceConfig{
			CacheTTLSeconds: 30,
			RatePerSecond:   5,
			Burst:           10,
		},
		Onboarding: OnboardingConfig{
			CodeTTLMinutes: 10,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.finora/finora.log",
		},
	}
}
