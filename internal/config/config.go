// Package config loads and validates the client configuration. Everything
// is a plain scalar; the only secret, the signing key, is read from the
// environment variable the file names, never from the file itself.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Duration accepts either a Go duration string or a bare millisecond count.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	if value.Tag == "!!int" {
		var v int64
		if err := value.Decode(&v); err != nil {
			return err
		}
		d.Duration = time.Duration(v) * time.Millisecond
		return nil
	}
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = dur
	return nil
}

type Config struct {
	ChainID         uint64 `yaml:"chain_id"`
	ContractAddress string `yaml:"contract_address"`

	RPC struct {
		URL            string   `yaml:"url"`
		ConnectTimeout Duration `yaml:"connect_timeout"`
		HeaderTimeout  Duration `yaml:"header_timeout"`
		CallTimeout    Duration `yaml:"call_timeout"`
		Trace          bool     `yaml:"trace"`
	} `yaml:"rpc"`

	Key struct {
		PrivateKeyEnv string `yaml:"private_key_env"`
	} `yaml:"key"`

	Fees struct {
		Mode              string  `yaml:"mode"` // auto | legacy | fee-market
		FixedGasPriceGwei float64 `yaml:"fixed_gas_price_gwei"`
		CeilingGwei       float64 `yaml:"ceiling_gwei"`
		Multiplier        float64 `yaml:"multiplier"`
		PriorityFeeGwei   float64 `yaml:"priority_fee_gwei"`
	} `yaml:"fees"`

	Tx struct {
		GasLimitFallback uint64   `yaml:"gas_limit_fallback"`
		BroadcastRetries int      `yaml:"broadcast_retries"`
		WaitForReceipt   bool     `yaml:"wait_for_receipt"`
		ReceiptTimeout   Duration `yaml:"receipt_timeout"`
		ReceiptInterval  Duration `yaml:"receipt_interval"`
		PollAttempts     int      `yaml:"poll_attempts"`
		PollInterval     Duration `yaml:"poll_interval"`
		ProgressInterval Duration `yaml:"progress_interval"`
		SubmitTimeout    Duration `yaml:"submit_timeout"`
		DryRun           bool     `yaml:"dry_run"`
	} `yaml:"tx"`

	API struct {
		Listen    string `yaml:"listen"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"api"`

	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RPC.ConnectTimeout.Duration == 0 {
		c.RPC.ConnectTimeout = Duration{Duration: 10 * time.Second}
	}
	if c.RPC.HeaderTimeout.Duration == 0 {
		c.RPC.HeaderTimeout = Duration{Duration: 20 * time.Second}
	}
	if c.RPC.CallTimeout.Duration == 0 {
		c.RPC.CallTimeout = Duration{Duration: 30 * time.Second}
	}
	if c.Key.PrivateKeyEnv == "" {
		c.Key.PrivateKeyEnv = "AISIGNALS_PRIVATE_KEY"
	}
	if c.Fees.Mode == "" {
		c.Fees.Mode = "auto"
	}
	if c.Fees.CeilingGwei == 0 {
		c.Fees.CeilingGwei = 150
	}
	if c.Fees.Multiplier == 0 {
		c.Fees.Multiplier = 1.1
	}
	if c.Fees.PriorityFeeGwei == 0 {
		c.Fees.PriorityFeeGwei = 1
	}
	if c.Tx.GasLimitFallback == 0 {
		c.Tx.GasLimitFallback = 400_000
	}
	if c.Tx.BroadcastRetries == 0 {
		c.Tx.BroadcastRetries = 2
	}
	if c.Tx.ReceiptTimeout.Duration == 0 {
		c.Tx.ReceiptTimeout = Duration{Duration: 3 * time.Minute}
	}
	if c.Tx.ReceiptInterval.Duration == 0 {
		c.Tx.ReceiptInterval = Duration{Duration: 5 * time.Second}
	}
	if c.Tx.PollAttempts == 0 {
		c.Tx.PollAttempts = 5
	}
	if c.Tx.PollInterval.Duration == 0 {
		c.Tx.PollInterval = Duration{Duration: 2 * time.Second}
	}
	if c.Tx.ProgressInterval.Duration == 0 {
		c.Tx.ProgressInterval = Duration{Duration: 30 * time.Second}
	}
	if c.Tx.SubmitTimeout.Duration == 0 {
		c.Tx.SubmitTimeout = Duration{Duration: 5 * time.Minute}
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
}

func (c *Config) validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	u, err := url.Parse(c.RPC.URL)
	if err != nil {
		return fmt.Errorf("rpc.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("rpc.url: scheme %q not supported, use http or https", u.Scheme)
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract_address is required")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("contract_address %q is not a valid address", c.ContractAddress)
	}
	if c.Fees.CeilingGwei <= 0 {
		return fmt.Errorf("fees.ceiling_gwei must be positive")
	}
	if c.Fees.Multiplier < 0 {
		return fmt.Errorf("fees.multiplier must be non-negative")
	}
	switch c.Fees.Mode {
	case "auto", "legacy", "fee-market":
	default:
		return fmt.Errorf("fees.mode %q is not one of auto, legacy, fee-market", c.Fees.Mode)
	}
	return nil
}

// Contract returns the parsed registry address.
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}
