package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"evm-swap-bot/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func validYAML() string {
	return `
chain_id: 1
base_asset: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
monitor_interval: "2s"
aggregators:
  - name: "1inch"
    enabled: true
    api_key_env: "ONEINCH_API_KEY"
  - name: "0x"
    enabled: true
    api_key_env: "ZEROX_API_KEY"
  - name: "uniswap"
    enabled: true
  - name: "okx"
    enabled: false
`
}

func TestLoad(t *testing.T) {
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("WS_URL", "ws://localhost:8546")
	t.Setenv("PRIVATE_KEY", "ab"+"cd")
	t.Setenv("ONEINCH_API_KEY", "key-one")

	cfg, err := Load(writeConfig(t, validYAML()))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MonitorInterval.Duration != 2*time.Second {
		t.Errorf("MonitorInterval = %v, want 2s", cfg.MonitorInterval.Duration)
	}
	// Defaults survive a partial file.
	if cfg.SlippagePct != 5.0 {
		t.Errorf("SlippagePct = %v, want default 5.0", cfg.SlippagePct)
	}
	if cfg.MaxGasPriceGwei != 500 {
		t.Errorf("MaxGasPriceGwei = %v, want default 500", cfg.MaxGasPriceGwei)
	}
	// Wrapped native filled from the chain table.
	if cfg.WrappedNative == "" {
		t.Error("WrappedNative should default for chain 1")
	}
	if got := cfg.Secrets.APIKeys["1inch"]; got != "key-one" {
		t.Errorf("APIKeys[1inch] = %q, want key-one", got)
	}
	if _, ok := cfg.Secrets.APIKeys["uniswap"]; ok {
		t.Error("uniswap has no api_key_env, should not appear in APIKeys")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on loaded config = %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.BaseAsset = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
		cfg.WrappedNative = cfg.BaseAsset
		cfg.Aggregators = []AggregatorConfig{{Name: "1inch", Enabled: true}}
		cfg.Secrets = Secrets{RPCURL: "http://x", WSURL: "ws://x", PrivateKey: "aa"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero aggregators", func(c *Config) { c.Aggregators[0].Enabled = false }},
		{"slippage over 100", func(c *Config) { c.SlippagePct = 150 }},
		{"slippage zero", func(c *Config) { c.SlippagePct = 0 }},
		{"gas multiplier at 1", func(c *Config) { c.GasMultiplier = 1.0 }},
		{"zero gas ceiling", func(c *Config) { c.MaxGasPriceGwei = 0 }},
		{"confirmation ticks zero", func(c *Config) { c.ConfirmationTicks = 0 }},
		{"pool share above 1", func(c *Config) { c.MaxPoolShare = 1.5 }},
		{"pool share zero", func(c *Config) { c.MaxPoolShare = 0 }},
		{"monitor interval zero", func(c *Config) { c.MonitorInterval = Duration{} }},
		{"max retries zero", func(c *Config) { c.MaxRetries = 0 }},
		{"missing base asset", func(c *Config) { c.BaseAsset = "" }},
		{"missing rpc url", func(c *Config) { c.Secrets.RPCURL = "" }},
		{"missing private key", func(c *Config) { c.Secrets.PrivateKey = "" }},
		{"push without ws url", func(c *Config) { c.Secrets.WSURL = "" }},
		{"base differs without reference pool", func(c *Config) {
			c.BaseAsset = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := Default()
	cfg.BaseAsset = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	cfg.WrappedNative = cfg.BaseAsset
	cfg.Aggregators = []AggregatorConfig{
		{Name: "1inch", Enabled: true},
		{Name: "0x", Enabled: false},
	}
	cfg.Secrets = Secrets{RPCURL: "http://x", WSURL: "ws://x", PrivateKey: "aa"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
