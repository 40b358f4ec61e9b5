package stablecoin

import (
	"context"
	"math/big"

	"dscengine/crypto"
)

// CollateralLedger moves collateral between accounts and engine custody.
// TransferIn pulls from an account that previously approved the engine;
// TransferOut pays out of custody.
//
// Implementations that call back into the engine must pass the ctx they were
// given. The engine holds its lock during the call and recognises callbacks
// only through that context; a callback on a fresh context deadlocks.
type CollateralLedger interface {
	TransferIn(ctx context.Context, asset, from crypto.Address, amount *big.Int) error
	TransferOut(ctx context.Context, asset, to crypto.Address, amount *big.Int) error
}

// LiabilityToken is the pegged token ledger. Implementations must only honour
// Mint and Burn calls originating from the engine. Callbacks into the engine
// must reuse the supplied ctx, as for CollateralLedger.
type LiabilityToken interface {
	Mint(ctx context.Context, to crypto.Address, amount *big.Int) error
	Burn(ctx context.Context, from crypto.Address, amount *big.Int) error
}

// Metrics receives operation outcomes. observability.StablecoinMetrics
// satisfies it.
type Metrics interface {
	RecordOperation(op, outcome string)
	RecordRollback(op string)
	RecordLiquidation(asset string, seized *big.Int)
	RecordOracleFailure(feed string)
	ObserveHealthFactor(op string, hf *big.Int)
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(string, string)       {}
func (noopMetrics) RecordRollback(string)                {}
func (noopMetrics) RecordLiquidation(string, *big.Int)   {}
func (noopMetrics) RecordOracleFailure(string)           {}
func (noopMetrics) ObserveHealthFactor(string, *big.Int) {}
