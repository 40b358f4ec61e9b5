package events

import (
	"math/big"

	"dscengine/core/types"
	"dscengine/crypto"
)

const (
	// TypeCollateralDeposited is emitted when collateral enters engine custody.
	TypeCollateralDeposited = "stablecoin.collateral_deposited"
	// TypeCollateralRedeemed is emitted when collateral leaves engine custody,
	// either back to its owner or to a liquidator.
	TypeCollateralRedeemed = "stablecoin.collateral_redeemed"
	// TypeDscMinted is emitted when debt is issued against a position.
	TypeDscMinted = "stablecoin.dsc_minted"
	// TypeDscBurned is emitted when debt is repaid.
	TypeDscBurned = "stablecoin.dsc_burned"
	// TypeLiquidated is emitted once per successful liquidation.
	TypeLiquidated = "stablecoin.liquidated"
)

type CollateralDeposited struct {
	Account crypto.Address
	Asset   crypto.Address
	Amount  *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{Type: TypeCollateralDeposited, Attributes: map[string]string{
		"account": e.Account.String(),
		"asset":   e.Asset.String(),
		"amount":  formatAmount(e.Amount),
	}}
}

type CollateralRedeemed struct {
	From   crypto.Address
	To     crypto.Address
	Asset  crypto.Address
	Amount *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Event() *types.Event {
	return &types.Event{Type: TypeCollateralRedeemed, Attributes: map[string]string{
		"from":   e.From.String(),
		"to":     e.To.String(),
		"asset":  e.Asset.String(),
		"amount": formatAmount(e.Amount),
	}}
}

type DscMinted struct {
	Account crypto.Address
	Amount  *big.Int
}

func (DscMinted) EventType() string { return TypeDscMinted }

func (e DscMinted) Event() *types.Event {
	return &types.Event{Type: TypeDscMinted, Attributes: map[string]string{
		"account": e.Account.String(),
		"amount":  formatAmount(e.Amount),
	}}
}

// DscBurned records a repayment. OnBehalfOf owns the debt while Payer supplied
// the tokens; they differ during liquidation.
type DscBurned struct {
	OnBehalfOf crypto.Address
	Payer      crypto.Address
	Amount     *big.Int
}

func (DscBurned) EventType() string { return TypeDscBurned }

func (e DscBurned) Event() *types.Event {
	return &types.Event{Type: TypeDscBurned, Attributes: map[string]string{
		"onBehalfOf": e.OnBehalfOf.String(),
		"payer":      e.Payer.String(),
		"amount":     formatAmount(e.Amount),
	}}
}

type Liquidated struct {
	Liquidator       crypto.Address
	Account          crypto.Address
	Asset            crypto.Address
	DebtCovered      *big.Int
	CollateralSeized *big.Int
	Bonus            *big.Int
	StartingHealth   *big.Int
	EndingHealth     *big.Int
}

func (Liquidated) EventType() string { return TypeLiquidated }

func (e Liquidated) Event() *types.Event {
	return &types.Event{Type: TypeLiquidated, Attributes: map[string]string{
		"liquidator":       e.Liquidator.String(),
		"account":          e.Account.String(),
		"asset":            e.Asset.String(),
		"debtCovered":      formatAmount(e.DebtCovered),
		"collateralSeized": formatAmount(e.CollateralSeized),
		"bonus":            formatAmount(e.Bonus),
		"startingHealth":   formatAmount(e.StartingHealth),
		"endingHealth":     formatAmount(e.EndingHealth),
	}}
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
