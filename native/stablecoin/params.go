package stablecoin

import (
	"fmt"
	"math/big"
	"time"
)

const (
	// DefaultLiquidationThresholdBps discounts collateral to 50% of its value
	// when computing borrowing power, i.e. positions must be 200% collateralised.
	DefaultLiquidationThresholdBps uint64 = 5_000
	// DefaultLiquidationBonusBps grants liquidators 10% extra collateral.
	DefaultLiquidationBonusBps uint64 = 1_000
	// DefaultOracleTimeout is the maximum age of a price round.
	DefaultOracleTimeout = 3 * time.Hour

	// PrecisionDecimals is the engine's internal fixed-point precision for USD
	// values, debt and health factors.
	PrecisionDecimals = 18
	// MaxFeedDecimals bounds feed and asset decimals so 10^decimals fits a
	// 256-bit word.
	MaxFeedDecimals = 77
)

// RiskParameters groups the safety limits governing minting, redemption and
// liquidation. Ratios are expressed in basis points.
type RiskParameters struct {
	// LiquidationThresholdBps is the share of collateral value counted towards
	// borrowing power.
	LiquidationThresholdBps uint64
	// LiquidationBonusBps is the extra collateral granted to liquidators on top
	// of the value of the debt they cover.
	LiquidationBonusBps uint64
	// MinHealthFactor is the lowest health factor (1e18 scale) an operation may
	// leave behind.
	MinHealthFactor *big.Int
	// OracleTimeout rejects price rounds older than this window. Zero disables
	// the age check.
	OracleTimeout time.Duration
}

// DefaultRiskParameters returns the reference parameter set.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		LiquidationThresholdBps: DefaultLiquidationThresholdBps,
		LiquidationBonusBps:     DefaultLiquidationBonusBps,
		MinHealthFactor:         new(big.Int).Set(precisionBig),
		OracleTimeout:           DefaultOracleTimeout,
	}
}

// Clone returns a deep copy of the parameters.
func (p RiskParameters) Clone() RiskParameters {
	clone := p
	if p.MinHealthFactor != nil {
		clone.MinHealthFactor = new(big.Int).Set(p.MinHealthFactor)
	}
	return clone
}

// EnsureDefaults fills unset fields with the reference values.
func (p *RiskParameters) EnsureDefaults() {
	if p.LiquidationThresholdBps == 0 {
		p.LiquidationThresholdBps = DefaultLiquidationThresholdBps
	}
	if p.MinHealthFactor == nil || p.MinHealthFactor.Sign() == 0 {
		p.MinHealthFactor = new(big.Int).Set(precisionBig)
	}
	if p.OracleTimeout < 0 {
		p.OracleTimeout = 0
	}
}

// Validate rejects parameter sets that cannot keep the system solvent.
func (p RiskParameters) Validate() error {
	if p.LiquidationThresholdBps == 0 || p.LiquidationThresholdBps > 10_000 {
		return fmt.Errorf("%w: liquidation threshold %d bps outside (0, 10000]", ErrInvalidParameters, p.LiquidationThresholdBps)
	}
	if p.LiquidationBonusBps > 10_000 {
		return fmt.Errorf("%w: liquidation bonus %d bps exceeds 10000", ErrInvalidParameters, p.LiquidationBonusBps)
	}
	if p.MinHealthFactor == nil || p.MinHealthFactor.Sign() <= 0 {
		return fmt.Errorf("%w: minimum health factor must be positive", ErrInvalidParameters)
	}
	if p.OracleTimeout < 0 {
		return fmt.Errorf("%w: negative oracle timeout", ErrInvalidParameters)
	}
	return nil
}
