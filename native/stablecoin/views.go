package stablecoin

import (
	"context"
	"math/big"

	"dscengine/crypto"
)

// read runs fn under the read lock. Calls made from inside an engine operation
// (the collaborator context) already sit behind the write lock and read the
// effects persisted so far without locking again.
func (e *Engine) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !e.reentered(ctx) {
		e.mu.RLock()
		defer e.mu.RUnlock()
	}
	if e.state == nil {
		return errNilState
	}
	return fn(ctx)
}

func (e *Engine) loadPosition(addr crypto.Address) (*Position, error) {
	pos, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return newPosition(addr), nil
	}
	pos.Address = addr
	pos.ensureDefaults()
	return pos, nil
}

// GetAccountInformation returns the account's debt and the USD value of its
// collateral, both with 18 decimals.
func (e *Engine) GetAccountInformation(ctx context.Context, account crypto.Address) (*big.Int, *big.Int, error) {
	info, err := e.GetAccountSummary(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return info.TotalDebt, info.CollateralUSD, nil
}

// GetAccountSummary extends GetAccountInformation with the health factor and
// the per-asset balances in registry order.
func (e *Engine) GetAccountSummary(ctx context.Context, account crypto.Address) (*AccountInformation, error) {
	var info *AccountInformation
	err := e.read(ctx, func(ctx context.Context) error {
		pos, err := e.loadPosition(account)
		if err != nil {
			return err
		}
		value, err := e.collateralValue(ctx, pos)
		if err != nil {
			return err
		}
		debt, err := toWord(pos.Debt)
		if err != nil {
			return err
		}
		hf, err := healthFactor(debt, value, e.params.LiquidationThresholdBps)
		if err != nil {
			return err
		}
		info = &AccountInformation{
			TotalDebt:     debt.ToBig(),
			CollateralUSD: value.ToBig(),
			HealthFactor:  hf.ToBig(),
		}
		for _, entry := range e.registry.Assets() {
			info.Collateral = append(info.Collateral, CollateralBalance{
				Asset:  entry.Asset,
				Amount: pos.CollateralOf(entry.Asset),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// GetAccountCollateralValue returns the USD value of every asset the account
// holds.
func (e *Engine) GetAccountCollateralValue(ctx context.Context, account crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := e.read(ctx, func(ctx context.Context) error {
		pos, err := e.loadPosition(account)
		if err != nil {
			return err
		}
		value, err := e.collateralValue(ctx, pos)
		if err != nil {
			return err
		}
		out = value.ToBig()
		return nil
	})
	return out, err
}

// GetCollateralBalanceOfUser returns the recorded deposit of asset for account.
func (e *Engine) GetCollateralBalanceOfUser(ctx context.Context, account, asset crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := e.read(ctx, func(context.Context) error {
		pos, err := e.loadPosition(account)
		if err != nil {
			return err
		}
		out = pos.CollateralOf(asset)
		return nil
	})
	return out, err
}

// GetPosition returns a snapshot of the account's position.
func (e *Engine) GetPosition(ctx context.Context, account crypto.Address) (*Position, error) {
	var out *Position
	err := e.read(ctx, func(context.Context) error {
		pos, err := e.loadPosition(account)
		if err != nil {
			return err
		}
		out = pos.Clone()
		return nil
	})
	return out, err
}

// GetHealthFactor returns the account's health factor. Accounts without debt
// report MaxHealthFactor.
func (e *Engine) GetHealthFactor(ctx context.Context, account crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := e.read(ctx, func(ctx context.Context) error {
		pos, err := e.loadPosition(account)
		if err != nil {
			return err
		}
		hf, err := e.positionHealth(ctx, pos)
		if err != nil {
			return err
		}
		out = hf.ToBig()
		return nil
	})
	return out, err
}

// CalculateHealthFactor applies the health factor formula to explicit inputs.
func (e *Engine) CalculateHealthFactor(totalDebt, collateralUsd *big.Int) (*big.Int, error) {
	debt, err := toWord(totalDebt)
	if err != nil {
		return nil, err
	}
	value, err := toWord(collateralUsd)
	if err != nil {
		return nil, err
	}
	hf, err := healthFactor(debt, value, e.params.LiquidationThresholdBps)
	if err != nil {
		return nil, err
	}
	return hf.ToBig(), nil
}

// GetUsdValue prices amount of asset in USD with 18 decimals.
func (e *Engine) GetUsdValue(ctx context.Context, asset crypto.Address, amount *big.Int) (*big.Int, error) {
	entry, err := e.registry.Require(asset)
	if err != nil {
		return nil, err
	}
	value, err := toWord(amount)
	if err != nil {
		return nil, err
	}
	var out *big.Int
	err = e.read(ctx, func(ctx context.Context) error {
		price, err := e.price(ctx, entry)
		if err != nil {
			return err
		}
		usd, err := usdValue(value, price, entry.Decimals)
		if err != nil {
			return err
		}
		out = usd.ToBig()
		return nil
	})
	return out, err
}

// GetTokenAmountFromUsd converts a USD amount with 18 decimals into units of
// asset, rounding down.
func (e *Engine) GetTokenAmountFromUsd(ctx context.Context, asset crypto.Address, usdAmount *big.Int) (*big.Int, error) {
	entry, err := e.registry.Require(asset)
	if err != nil {
		return nil, err
	}
	usd, err := toWord(usdAmount)
	if err != nil {
		return nil, err
	}
	var out *big.Int
	err = e.read(ctx, func(ctx context.Context) error {
		price, err := e.price(ctx, entry)
		if err != nil {
			return err
		}
		amount, err := tokenAmount(usd, price, entry.Decimals)
		if err != nil {
			return err
		}
		out = amount.ToBig()
		return nil
	})
	return out, err
}

// CollateralTokens lists the registered assets in construction order.
func (e *Engine) CollateralTokens() []crypto.Address {
	assets := e.registry.Assets()
	out := make([]crypto.Address, 0, len(assets))
	for _, entry := range assets {
		out = append(out, entry.Asset)
	}
	return out
}

// CollateralTokenPriceFeed returns the feed bound to asset.
func (e *Engine) CollateralTokenPriceFeed(asset crypto.Address) (crypto.Address, error) {
	entry, err := e.registry.Require(asset)
	if err != nil {
		return crypto.Address{}, err
	}
	return entry.Feed, nil
}

// Registry exposes the collateral registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Params returns a copy of the risk parameters.
func (e *Engine) Params() RiskParameters {
	return e.params.Clone()
}

// TotalDebt returns the liability token supply issued through the engine.
func (e *Engine) TotalDebt(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := e.read(ctx, func(context.Context) error {
		totals, err := e.state.GetTotals()
		if err != nil {
			return err
		}
		if totals == nil || totals.Debt == nil {
			out = big.NewInt(0)
			return nil
		}
		out = new(big.Int).Set(totals.Debt)
		return nil
	})
	return out, err
}

// TotalCollateral returns the engine's recorded custody of asset.
func (e *Engine) TotalCollateral(ctx context.Context, asset crypto.Address) (*big.Int, error) {
	if _, err := e.registry.Require(asset); err != nil {
		return nil, err
	}
	var out *big.Int
	err := e.read(ctx, func(context.Context) error {
		totals, err := e.state.GetTotals()
		if err != nil {
			return err
		}
		out = totals.CollateralOf(asset)
		return nil
	})
	return out, err
}

// LiabilityToken returns the token bound at construction.
func (e *Engine) LiabilityToken() LiabilityToken {
	return e.token
}
