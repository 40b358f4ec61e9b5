package stablecoin

import (
	"math/big"
	"sort"

	"dscengine/crypto"
)

// Position maintains the collateral and debt of a single account. Collateral
// is keyed by the asset's raw address bytes (crypto.Address.Key).
type Position struct {
	Address    crypto.Address
	Collateral map[string]*big.Int
	// Debt is the outstanding liability token amount in 18-decimal fixed point.
	Debt *big.Int
}

func newPosition(addr crypto.Address) *Position {
	return &Position{
		Address:    addr,
		Collateral: make(map[string]*big.Int),
		Debt:       big.NewInt(0),
	}
}

// CollateralOf returns a copy of the deposited amount of asset.
func (p *Position) CollateralOf(asset crypto.Address) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	amount, ok := p.Collateral[asset.Key()]
	if !ok || amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}

func (p *Position) setCollateral(asset crypto.Address, amount *big.Int) {
	if p.Collateral == nil {
		p.Collateral = make(map[string]*big.Int)
	}
	if amount == nil || amount.Sign() == 0 {
		delete(p.Collateral, asset.Key())
		return
	}
	p.Collateral[asset.Key()] = new(big.Int).Set(amount)
}

// IsEmpty reports whether the position holds neither collateral nor debt.
func (p *Position) IsEmpty() bool {
	if p == nil {
		return true
	}
	if p.Debt != nil && p.Debt.Sign() != 0 {
		return false
	}
	for _, amount := range p.Collateral {
		if amount != nil && amount.Sign() != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{
		Address:    p.Address,
		Collateral: make(map[string]*big.Int, len(p.Collateral)),
		Debt:       big.NewInt(0),
	}
	for key, amount := range p.Collateral {
		if amount != nil {
			clone.Collateral[key] = new(big.Int).Set(amount)
		}
	}
	if p.Debt != nil {
		clone.Debt.Set(p.Debt)
	}
	return clone
}

func (p *Position) ensureDefaults() {
	if p.Collateral == nil {
		p.Collateral = make(map[string]*big.Int)
	}
	if p.Debt == nil {
		p.Debt = big.NewInt(0)
	}
}

// Totals aggregates all positions. Debt equals the liability token supply
// issued through the engine.
type Totals struct {
	Debt       *big.Int
	Collateral map[string]*big.Int
}

func newTotals() *Totals {
	return &Totals{Debt: big.NewInt(0), Collateral: make(map[string]*big.Int)}
}

// CollateralOf returns a copy of the total custody of asset.
func (t *Totals) CollateralOf(asset crypto.Address) *big.Int {
	if t == nil || t.Collateral == nil {
		return big.NewInt(0)
	}
	amount, ok := t.Collateral[asset.Key()]
	if !ok || amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}

// Clone returns a deep copy of the totals.
func (t *Totals) Clone() *Totals {
	if t == nil {
		return nil
	}
	clone := newTotals()
	if t.Debt != nil {
		clone.Debt.Set(t.Debt)
	}
	for key, amount := range t.Collateral {
		if amount != nil {
			clone.Collateral[key] = new(big.Int).Set(amount)
		}
	}
	return clone
}

func (t *Totals) adjustCollateral(asset crypto.Address, delta *big.Int) {
	if t.Collateral == nil {
		t.Collateral = make(map[string]*big.Int)
	}
	next := new(big.Int).Add(t.CollateralOf(asset), delta)
	if next.Sign() <= 0 {
		delete(t.Collateral, asset.Key())
		return
	}
	t.Collateral[asset.Key()] = next
}

// CollateralBalance pairs an asset with an amount for presentation.
type CollateralBalance struct {
	Asset  crypto.Address
	Amount *big.Int
}

// AccountInformation summarises a position for queries.
type AccountInformation struct {
	TotalDebt     *big.Int
	CollateralUSD *big.Int
	HealthFactor  *big.Int
	Collateral    []CollateralBalance
}

// LiquidationResult reports the outcome of a successful liquidation.
type LiquidationResult struct {
	DebtCovered      *big.Int
	CollateralSeized *big.Int
	Bonus            *big.Int
	StartingHealth   *big.Int
	EndingHealth     *big.Int
}

func sortedKeys(m map[string]*big.Int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
