package token

import (
	"context"
	"math/big"

	"dscengine/crypto"
)

// CustodyAccount is the module account holding deposited collateral.
var CustodyAccount = crypto.DeriveAddress(crypto.AccountPrefix, "module/stablecoin-custody")

// CollateralAdapter moves collateral between holders and the custody account.
// Deposits are pulled through the allowance holders grant to the custody
// account.
type CollateralAdapter struct {
	ledger  *Ledger
	custody crypto.Address
}

// NewCollateralAdapter binds ledger to the custody account. A zero custody
// address selects CustodyAccount.
func NewCollateralAdapter(ledger *Ledger, custody crypto.Address) *CollateralAdapter {
	if len(custody.Bytes()) == 0 {
		custody = CustodyAccount
	}
	return &CollateralAdapter{ledger: ledger, custody: custody}
}

// Custody returns the account holding deposited collateral.
func (a *CollateralAdapter) Custody() crypto.Address {
	return a.custody
}

func (a *CollateralAdapter) TransferIn(ctx context.Context, asset, from crypto.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.ledger.TransferFrom(asset, a.custody, from, a.custody, amount)
}

func (a *CollateralAdapter) TransferOut(ctx context.Context, asset, to crypto.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.ledger.Transfer(asset, a.custody, to, amount)
}

// LiabilityAdapter mints and burns the pegged token using the engine's mint
// authority.
type LiabilityAdapter struct {
	ledger    *Ledger
	asset     crypto.Address
	authority crypto.Address
}

// NewLiabilityAdapter returns an adapter for asset acting as authority. The
// authority must already be the asset's mint authority on ledger.
func NewLiabilityAdapter(ledger *Ledger, asset, authority crypto.Address) *LiabilityAdapter {
	return &LiabilityAdapter{ledger: ledger, asset: asset, authority: authority}
}

// Asset returns the liability token address.
func (a *LiabilityAdapter) Asset() crypto.Address {
	return a.asset
}

func (a *LiabilityAdapter) Mint(ctx context.Context, to crypto.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.ledger.Mint(a.asset, a.authority, to, amount)
}

func (a *LiabilityAdapter) Burn(ctx context.Context, from crypto.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.ledger.Burn(a.asset, a.authority, from, amount)
}
