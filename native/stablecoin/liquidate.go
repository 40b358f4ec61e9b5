package stablecoin

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"dscengine/core/events"
	"dscengine/crypto"
)

// Liquidate lets liquidator repay debtToCover of account's debt with its own
// liability tokens in exchange for the equivalent amount of asset plus the
// liquidation bonus. The target must be below the minimum health factor and
// must end strictly healthier than it started.
func (e *Engine) Liquidate(ctx context.Context, liquidator, asset, account crypto.Address, debtToCover *big.Int) (*LiquidationResult, error) {
	if err := requireAccount(liquidator); err != nil {
		return nil, err
	}
	if err := requireAccount(account); err != nil {
		return nil, err
	}
	cover, err := positiveWord(debtToCover)
	if err != nil {
		return nil, err
	}
	entry, err := e.registry.Require(asset)
	if err != nil {
		return nil, err
	}
	var result *LiquidationResult
	err = e.execute(ctx, "liquidate", func(ctx context.Context, s *session) error {
		res, err := e.liquidate(ctx, s, liquidator, account, entry, cover)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.RecordLiquidation(entry.Asset.String(), result.CollateralSeized)
	e.logger.Info("stablecoin position liquidated",
		"liquidator", liquidator.String(),
		"account", account.String(),
		"asset", entry.Asset.String(),
		"debtCovered", result.DebtCovered.String(),
		"collateralSeized", result.CollateralSeized.String(),
		"endingHealth", formatHealthFactor(result.EndingHealth))
	return result, nil
}

func (e *Engine) liquidate(ctx context.Context, s *session, liquidator, account crypto.Address, entry CollateralAsset, cover *uint256.Int) (*LiquidationResult, error) {
	if e.token == nil {
		return nil, errNilToken
	}
	if e.collateral == nil {
		return nil, errNilCollateral
	}
	pos, err := s.position(account)
	if err != nil {
		return nil, err
	}
	totals, err := s.loadTotals()
	if err != nil {
		return nil, err
	}
	starting, err := e.positionHealth(ctx, pos)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveHealthFactor(s.op, starting.ToBig())
	minimum, err := toWord(e.params.MinHealthFactor)
	if err != nil {
		return nil, err
	}
	if !starting.Lt(minimum) {
		return nil, fmt.Errorf("%w: %s at %s", ErrHealthFactorOk, account, formatHealthFactor(starting.ToBig()))
	}
	debt, err := toWord(pos.Debt)
	if err != nil {
		return nil, err
	}
	if debt.Lt(cover) {
		return nil, fmt.Errorf("%w: %s owes %s, requested %s", ErrBurnExceedsDebt, account, debt.Dec(), cover.Dec())
	}
	supply, err := toWord(totals.Debt)
	if err != nil {
		return nil, err
	}
	if supply.Lt(cover) {
		return nil, fmt.Errorf("%w: total debt %s below %s", ErrBurnExceedsDebt, supply.Dec(), cover.Dec())
	}

	price, err := e.price(ctx, entry)
	if err != nil {
		return nil, err
	}
	base, err := tokenAmount(cover, price, entry.Decimals)
	if err != nil {
		return nil, err
	}
	bonus, err := applyBps(base, e.params.LiquidationBonusBps)
	if err != nil {
		return nil, err
	}
	seized, err := addWords(base, bonus)
	if err != nil {
		return nil, err
	}
	held, err := toWord(pos.CollateralOf(entry.Asset))
	if err != nil {
		return nil, err
	}
	if held.Lt(seized) {
		return nil, fmt.Errorf("%w: %s holds %s of %s, liquidation seizes %s", ErrInsufficientCollateral, account, held.Dec(), entry.Asset, seized.Dec())
	}

	seizedBig := seized.ToBig()
	coverBig := cover.ToBig()
	pos.setCollateral(entry.Asset, new(uint256.Int).Sub(held, seized).ToBig())
	pos.Debt = new(uint256.Int).Sub(debt, cover).ToBig()
	ending, err := e.positionHealth(ctx, pos)
	if err != nil {
		return nil, err
	}
	if !starting.Lt(ending) {
		return nil, fmt.Errorf("%w: %s to %s", ErrHealthFactorNotImproved, formatHealthFactor(starting.ToBig()), formatHealthFactor(ending.ToBig()))
	}
	liquidatorPos, err := s.position(liquidator)
	if err != nil {
		return nil, err
	}
	if err := e.requireHealthy(ctx, s.op, liquidatorPos); err != nil {
		return nil, err
	}
	totals.Debt = new(uint256.Int).Sub(supply, cover).ToBig()
	totals.adjustCollateral(entry.Asset, new(big.Int).Neg(seizedBig))
	if err := s.persist(pos); err != nil {
		return nil, err
	}

	if err := e.token.Burn(ctx, liquidator, coverBig); err != nil {
		return nil, wrapLedger(ErrBurnFailed, err)
	}
	s.onRevert("reissue burned", func(ctx context.Context) error {
		return e.token.Mint(ctx, liquidator, coverBig)
	})
	if err := e.collateral.TransferOut(ctx, entry.Asset, liquidator, seizedBig); err != nil {
		return nil, wrapLedger(ErrTransferFailed, err)
	}
	s.onRevert("reclaim seized collateral", func(ctx context.Context) error {
		return e.collateral.TransferIn(ctx, entry.Asset, liquidator, seizedBig)
	})

	result := &LiquidationResult{
		DebtCovered:      coverBig,
		CollateralSeized: seizedBig,
		Bonus:            bonus.ToBig(),
		StartingHealth:   starting.ToBig(),
		EndingHealth:     ending.ToBig(),
	}
	s.emit(events.CollateralRedeemed{From: account, To: liquidator, Asset: entry.Asset, Amount: new(big.Int).Set(seizedBig)})
	s.emit(events.DscBurned{OnBehalfOf: account, Payer: liquidator, Amount: new(big.Int).Set(coverBig)})
	s.emit(events.Liquidated{
		Liquidator:       liquidator,
		Account:          account,
		Asset:            entry.Asset,
		DebtCovered:      new(big.Int).Set(coverBig),
		CollateralSeized: new(big.Int).Set(seizedBig),
		Bonus:            bonus.ToBig(),
		StartingHealth:   starting.ToBig(),
		EndingHealth:     ending.ToBig(),
	})
	return result, nil
}
