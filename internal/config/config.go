// Package config loads the trading configuration: operational parameters
// from a YAML file, secrets from the process environment (optionally seeded
// from a .env file). The core pipeline consumes this surface but does not
// own it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"evm-swap-bot/internal/domain"
)

// Duration decodes YAML strings like "10s" or "5m" into a time.Duration.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// AggregatorConfig describes one swap aggregator. Slice order in the YAML
// file is the tie-break priority order.
type AggregatorConfig struct {
	Name      string `yaml:"name"`        // "1inch" | "0x" | "uniswap" | "okx"
	Enabled   bool   `yaml:"enabled"`     // disabled entries are skipped entirely
	BaseURL   string `yaml:"base_url"`    // override for tests/self-hosted proxies
	APIKeyEnv string `yaml:"api_key_env"` // env var holding the API key, empty if none needed
}

// Secrets holds values read from the environment, never from YAML.
type Secrets struct {
	PrivateKey    string            // hex-encoded wallet key
	RPCURL        string            // JSON-RPC HTTP endpoint
	WSURL         string            // JSON-RPC WebSocket endpoint, empty disables push
	PostgresDSN   string            // empty selects in-memory stores
	ClickhouseDSN string            // empty disables the telemetry sink
	RedisAddr     string            // empty disables the token cache
	APIKeys       map[string]string // aggregator name -> API key
}

// Config is the full configuration surface consumed by the pipelines.
type Config struct {
	ChainID       int64  `yaml:"chain_id"`
	BaseAsset     string `yaml:"base_asset"`     // swap target token address
	WrappedNative string `yaml:"wrapped_native"` // defaults per chain id when empty
	ReferencePool string `yaml:"reference_pool"` // native/base pool, required when base != wrapped native

	SlippagePct     float64 `yaml:"slippage_pct"`       // percent, e.g. 5.0
	MinLiquidityUSD float64 `yaml:"min_liquidity_usd"`  // sniper arming threshold
	GasMultiplier   float64 `yaml:"gas_multiplier"`     // per-retry gas price bump
	MinSellUSD      float64 `yaml:"min_sell_usd"`       // validator value floor
	SafeMode        bool    `yaml:"safe_mode"`          // enables probe/blacklist/pool-share checks
	MaxGasPriceGwei uint64  `yaml:"max_gas_price_gwei"` // hard gas ceiling
	MaxPoolShare    float64 `yaml:"max_pool_share"`     // fraction of pool reserve we may sell
	MaxRetries      int     `yaml:"max_retries"`        // gas-bumped retries after the first submission
	RequoteAttempts int     `yaml:"requote_attempts"`   // extra rounds when a winner expires

	ConfirmationTicks int `yaml:"confirmation_ticks"` // consecutive ticks to arm the sniper trigger

	MonitorInterval     Duration `yaml:"monitor_interval"`      // poll cadence
	APITimeout          Duration `yaml:"api_timeout"`           // per-aggregator quote timeout
	ConfirmTimeout      Duration `yaml:"confirm_timeout"`       // confirmation wait ceiling
	ConfirmPollInterval Duration `yaml:"confirm_poll_interval"` // receipt poll cadence
	DedupWindow         Duration `yaml:"dedup_window"`          // observation-identity suppression window
	TokenCacheTTL       Duration `yaml:"token_cache_ttl"`       // redis probe cache TTL

	PushEnabled           bool `yaml:"push_enabled"`
	LiquidityCheckEnabled bool `yaml:"liquidity_check_enabled"`
	AutoSwapEnabled       bool `yaml:"autoswap_enabled"`

	Aggregators []AggregatorConfig `yaml:"aggregators"`
	Blacklist   []string           `yaml:"blacklist"` // token addresses never traded
	Whitelist   []string           `yaml:"whitelist"` // when non-empty, only these are traded
	Watchlist   []string           `yaml:"watchlist"` // tokens scanned by the poll channel

	SniperToken string `yaml:"sniper_token"` // sniper mode target token
	SniperPool  string `yaml:"sniper_pool"`  // pair contract watched for liquidity

	PruneSchedule string `yaml:"prune_schedule"` // cron spec for processed-event pruning
	MetricsListen string `yaml:"metrics_listen"` // prometheus listen address

	Secrets Secrets `yaml:"-"`
}

// Wrapped native token addresses by chain id, from the original deployment
// targets. Overridable via wrapped_native.
var wrappedNativeByChain = map[int64]string{
	1:     "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", // WETH mainnet
	56:    "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", // WBNB
	137:   "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", // WMATIC
	8453:  "0x4200000000000000000000000000000000000006", // WETH base
	42161: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", // WETH arbitrum
}

// Default returns a configuration preloaded with the original system's
// stock parameters. Callers still must provide addresses and aggregators.
func Default() *Config {
	return &Config{
		ChainID:               1,
		SlippagePct:           5.0,
		MinLiquidityUSD:       3000,
		GasMultiplier:         1.2,
		MinSellUSD:            10,
		SafeMode:              true,
		MaxGasPriceGwei:       500,
		MaxPoolShare:          0.05,
		MaxRetries:            5,
		RequoteAttempts:       2,
		ConfirmationTicks:     3,
		MonitorInterval:       Duration{10 * time.Second},
		APITimeout:            Duration{15 * time.Second},
		ConfirmTimeout:        Duration{300 * time.Second},
		ConfirmPollInterval:   Duration{5 * time.Second},
		DedupWindow:           Duration{10 * time.Minute},
		TokenCacheTTL:         Duration{10 * time.Minute},
		PushEnabled:           true,
		LiquidityCheckEnabled: true,
		AutoSwapEnabled:       true,
		PruneSchedule:         "0 4 * * *",
		MetricsListen:         ":9109",
	}
}

// Load reads the YAML file at path over Default values, then overlays
// secrets from the environment. A .env file next to the working directory
// is honored when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit env vars win either way.
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if cfg.WrappedNative == "" {
		cfg.WrappedNative = wrappedNativeByChain[cfg.ChainID]
	}

	cfg.Secrets = Secrets{
		PrivateKey:    os.Getenv("PRIVATE_KEY"),
		RPCURL:        os.Getenv("RPC_URL"),
		WSURL:         os.Getenv("WS_URL"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		APIKeys:       make(map[string]string),
	}
	for _, agg := range cfg.Aggregators {
		if agg.APIKeyEnv != "" {
			cfg.Secrets.APIKeys[agg.Name] = os.Getenv(agg.APIKeyEnv)
		}
	}

	return cfg, nil
}

// Validate enforces the startup invariants. Any violation is fatal and
// wraps domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	enabled := 0
	for _, agg := range c.Aggregators {
		if agg.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fail("zero aggregators enabled")
	}
	if c.SlippagePct <= 0 || c.SlippagePct > 100 {
		return fail("slippage_pct %v outside (0,100]", c.SlippagePct)
	}
	if c.GasMultiplier <= 1 {
		return fail("gas_multiplier %v must exceed 1", c.GasMultiplier)
	}
	if c.MaxGasPriceGwei == 0 {
		return fail("max_gas_price_gwei must be positive")
	}
	if c.ConfirmationTicks < 1 {
		return fail("confirmation_ticks %d must be at least 1", c.ConfirmationTicks)
	}
	if c.MaxPoolShare <= 0 || c.MaxPoolShare > 1 {
		return fail("max_pool_share %v outside (0,1]", c.MaxPoolShare)
	}
	if c.MonitorInterval.Duration <= 0 {
		return fail("monitor_interval must be positive")
	}
	if c.APITimeout.Duration <= 0 {
		return fail("api_timeout must be positive")
	}
	if c.ConfirmTimeout.Duration <= 0 || c.ConfirmPollInterval.Duration <= 0 {
		return fail("confirmation timing must be positive")
	}
	if c.MaxRetries < 1 {
		return fail("max_retries %d must be at least 1", c.MaxRetries)
	}
	if c.BaseAsset == "" {
		return fail("base_asset is required")
	}
	if c.WrappedNative == "" {
		return fail("wrapped_native unknown for chain %d, set it explicitly", c.ChainID)
	}
	if c.BaseAsset != c.WrappedNative && c.ReferencePool == "" {
		return fail("reference_pool required when base_asset differs from wrapped_native")
	}
	if c.Secrets.RPCURL == "" {
		return fail("RPC_URL is not set")
	}
	if c.Secrets.PrivateKey == "" {
		return fail("PRIVATE_KEY is not set")
	}
	if c.PushEnabled && c.Secrets.WSURL == "" {
		return fail("push_enabled requires WS_URL")
	}
	return nil
}
