package stablecoin

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"dscengine/crypto"
)

// Config is the on-disk form of the risk parameters and the collateral
// registry.
type Config struct {
	LiquidationThresholdBps uint64             `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64             `toml:"LiquidationBonusBps"`
	MinHealthFactor         string             `toml:"MinHealthFactor"`
	OracleTimeout           string             `toml:"OracleTimeout"`
	Collateral              []CollateralConfig `toml:"collateral"`
}

// CollateralConfig describes one registry entry. Asset and Feed accept bech32
// addresses; when empty they are derived from Label.
type CollateralConfig struct {
	Label    string `toml:"label"`
	Asset    string `toml:"asset"`
	Feed     string `toml:"feed"`
	Decimals *uint8 `toml:"decimals"`
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stablecoin config: read %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a TOML document, rejecting unknown keys.
func ParseConfig(data []byte) (*Config, error) {
	cfg := new(Config)
	meta, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("stablecoin config: decode: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown config fields %v", ErrConfigurationMismatch, undecoded)
	}
	return cfg, nil
}

// RiskParameters converts the configured values, filling defaults for unset
// fields.
func (c *Config) RiskParameters() (RiskParameters, error) {
	params := RiskParameters{
		LiquidationThresholdBps: c.LiquidationThresholdBps,
		LiquidationBonusBps:     c.LiquidationBonusBps,
		OracleTimeout:           DefaultOracleTimeout,
	}
	if raw := strings.TrimSpace(c.MinHealthFactor); raw != "" {
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return RiskParameters{}, fmt.Errorf("%w: MinHealthFactor %q", ErrInvalidParameters, raw)
		}
		params.MinHealthFactor = value
	}
	if raw := strings.TrimSpace(c.OracleTimeout); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return RiskParameters{}, fmt.Errorf("%w: OracleTimeout %q: %v", ErrInvalidParameters, raw, err)
		}
		params.OracleTimeout = timeout
	}
	params.EnsureDefaults()
	if err := params.Validate(); err != nil {
		return RiskParameters{}, err
	}
	return params, nil
}

// Registry builds the collateral registry in configuration order.
func (c *Config) Registry() (*Registry, error) {
	assets := make([]crypto.Address, 0, len(c.Collateral))
	feeds := make([]crypto.Address, 0, len(c.Collateral))
	decimals := make([]uint8, 0, len(c.Collateral))
	for i, entry := range c.Collateral {
		asset, err := entry.resolve(entry.Asset, crypto.AssetPrefix)
		if err != nil {
			return nil, fmt.Errorf("collateral %d asset: %w", i, err)
		}
		feed, err := entry.resolve(entry.Feed, crypto.FeedPrefix)
		if err != nil {
			return nil, fmt.Errorf("collateral %d feed: %w", i, err)
		}
		assets = append(assets, asset)
		feeds = append(feeds, feed)
		if entry.Decimals != nil {
			decimals = append(decimals, *entry.Decimals)
		} else {
			decimals = append(decimals, PrecisionDecimals)
		}
	}
	return NewRegistryWithDecimals(assets, feeds, decimals)
}

func (c CollateralConfig) resolve(raw string, prefix crypto.AddressPrefix) (crypto.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return crypto.Address{}, fmt.Errorf("%w: %v", ErrConfigurationMismatch, err)
		}
		return addr, nil
	}
	label := strings.ToLower(strings.TrimSpace(c.Label))
	if label == "" {
		return crypto.Address{}, fmt.Errorf("%w: address or label required", ErrConfigurationMismatch)
	}
	return crypto.DeriveAddress(prefix, string(prefix)+"/"+label), nil
}

// NewEngineFromConfig builds an engine from a decoded configuration.
func NewEngineFromConfig(cfg *Config, dsc LiabilityToken) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfigurationMismatch)
	}
	params, err := cfg.RiskParameters()
	if err != nil {
		return nil, err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	return NewEngineWithRegistry(registry, dsc, params)
}
