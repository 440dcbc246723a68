// Package config defines the recognized configuration surface (spec §6) and
// loads it from YAML (gopkg.in/yaml.v3), matching the teacher's own
// flags-plus-yaml convention (cmd/utils/flags_rollup.go).
package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"

	"github.com/Magma-Layer/dln-taker/internal/errs"
)

// ConstraintRangeConfig is one entry of a chain's constraints list (spec §6
// "Src/Dst constraint ranges").
type ConstraintRangeConfig struct {
	ThresholdAmountUsd      string `yaml:"threshold_amount_in_usd"`
	MinBlockConfirmations   uint64 `yaml:"min_block_confirmations"`
	FulfillmentDelay        uint64 `yaml:"fulfillment_delay"`
	PreFulfillSwapRecipient string `yaml:"pre_fulfill_swap_change_recipient"`
}

// ChainConfig is the per-chain configuration block (spec §6 "Per chain").
type ChainConfig struct {
	Chain                     uint64                  `yaml:"chain"`
	ChainRPC                  string                  `yaml:"chain_rpc"`
	TakerPrivateKey           string                  `yaml:"taker_private_key"`
	UnlockAuthorityPrivateKey string                  `yaml:"unlock_authority_private_key"`
	Beneficiary               string                  `yaml:"beneficiary"`
	Disabled                  bool                    `yaml:"disabled"`
	SrcFilters                []string                `yaml:"src_filters"`
	DstFilters                []string                `yaml:"dst_filters"`
	OrderProcessor            string                  `yaml:"order_processor"`
	Constraints               []ConstraintRangeConfig `yaml:"constraints"`
	DstConstraints            []ConstraintRangeConfig `yaml:"dst_constraints"`
}

// BucketConfig is one equivalence class in the operator's `buckets` map
// (spec §6: "values may be a single token string or a list").
type BucketConfig map[string]any

// Config is the top-level recognized configuration (spec §6 "Top-level").
type Config struct {
	Chains            []ChainConfig  `yaml:"chains"`
	Buckets           []BucketConfig `yaml:"buckets"`
	OrderFeed         string         `yaml:"order_feed"`
	TokenPriceService string         `yaml:"token_price_service"`
	SwapConnector     string         `yaml:"swap_connector"`
	OrderProcessor    string         `yaml:"order_processor"`
	Filters           []string       `yaml:"filters"`
	HookHandlers      []string       `yaml:"hook_handlers"`

	BatchUnlockSize     int   `yaml:"batch_unlock_size"`
	MinProfitabilityBps int64 `yaml:"min_profitability_bps"`
	DryRun              bool  `yaml:"-"`
}

const (
	defaultTokenPriceService = "coingecko"
	defaultSwapConnector     = "1inch+jupiter"
	defaultOrderProcessor    = "universal"
)

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TokenPriceService == "" {
		c.TokenPriceService = defaultTokenPriceService
	}
	if c.SwapConnector == "" {
		c.SwapConnector = defaultSwapConnector
	}
	if c.OrderProcessor == "" {
		c.OrderProcessor = defaultOrderProcessor
	}
}

// Validate enforces the checks knowable from configuration alone:
// batch_unlock_size within [1, 10], the default swap_connector, and a
// non-zero chain id on every chain. min_block_confirmations against each
// chain's hard cap is checked later, by chain.New.
func (c *Config) Validate() error {
	if c.BatchUnlockSize < 1 || c.BatchUnlockSize > 10 {
		return &errs.ConfigError{Reason: fmt.Sprintf("batch_unlock_size %d outside [1,10]", c.BatchUnlockSize)}
	}
	// swap_connector is rejected if custom (spec §6: "default: 1inch +
	// Jupiter; custom is rejected").
	if c.SwapConnector != defaultSwapConnector {
		return &errs.ConfigError{Reason: fmt.Sprintf("unsupported swap_connector %q", c.SwapConnector)}
	}
	for _, ch := range c.Chains {
		if ch.Chain == 0 {
			return &errs.ConfigError{Reason: "chain config missing chain id"}
		}
	}
	return nil
}

// DecodePrivateKey selects hex or base58 decoding by the `0x` prefix (spec
// §6 "Private-key encoding"). For EVM keys it returns the parsed ECDSA key;
// for Solana keys, the raw private key bytes wrapped as solana.PrivateKey.
func DecodePrivateKey(raw string) (evm *ecdsa.PrivateKey, sol solana.PrivateKey, err error) {
	if strings.HasPrefix(raw, "0x") {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, nil, &errs.ConfigError{Reason: fmt.Sprintf("invalid EVM private key: %v", err)}
		}
		return key, nil, nil
	}
	decoded, err := base58.Decode(raw)
	if err != nil {
		return nil, nil, &errs.ConfigError{Reason: fmt.Sprintf("invalid base58 private key: %v", err)}
	}
	return nil, solana.PrivateKey(decoded), nil
}
