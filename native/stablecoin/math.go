package stablecoin

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	precision      = pow10(PrecisionDecimals)
	precisionBig   = precision.ToBig()
	bpsDenominator = uint256.NewInt(10_000)
	maxWord        = new(uint256.Int).SetAllOne()
)

// MaxHealthFactor is the sentinel reported for accounts without debt.
func MaxHealthFactor() *big.Int {
	return maxWord.ToBig()
}

// pow10 returns 10^n. Callers bound n by MaxFeedDecimals.
func pow10(n uint8) *uint256.Int {
	out := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		out.Mul(out, ten)
	}
	return out
}

// toWord converts an amount into a 256-bit word, rejecting negative values and
// values that would not fit.
func toWord(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidArgument, v)
	}
	word, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: amount %s exceeds 256 bits", ErrArithmeticOverflow, v)
	}
	return word, nil
}

func positiveWord(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() <= 0 {
		return nil, ErrNeedsMoreThanZero
	}
	return toWord(v)
}

// mulDiv computes x*y/d over a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmeticOverflow)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrArithmeticOverflow, x.Dec(), y.Dec(), d.Dec())
	}
	return out, nil
}

func addWords(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, x.Dec(), y.Dec())
	}
	return out, nil
}

// normalizePrice rescales a feed answer with feedDecimals of precision to the
// engine's 18-decimal scale.
func normalizePrice(answer *big.Int, feedDecimals uint8) (*uint256.Int, error) {
	if answer == nil || answer.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if feedDecimals > MaxFeedDecimals {
		return nil, fmt.Errorf("%w: feed decimals %d", ErrInvalidPrice, feedDecimals)
	}
	word, err := toWord(answer)
	if err != nil {
		return nil, err
	}
	if feedDecimals <= PrecisionDecimals {
		scale := pow10(PrecisionDecimals - feedDecimals)
		out, overflow := new(uint256.Int).MulOverflow(word, scale)
		if overflow {
			return nil, fmt.Errorf("%w: price %s", ErrArithmeticOverflow, answer)
		}
		return out, nil
	}
	out := new(uint256.Int).Div(word, pow10(feedDecimals-PrecisionDecimals))
	if out.IsZero() {
		return nil, fmt.Errorf("%w: price %s below engine precision", ErrInvalidPrice, answer)
	}
	return out, nil
}

// usdValue converts an asset amount with assetDecimals of precision into an
// 18-decimal USD value.
func usdValue(amount, price *uint256.Int, assetDecimals uint8) (*uint256.Int, error) {
	return mulDiv(amount, price, pow10(assetDecimals))
}

// tokenAmount is the inverse of usdValue for the same price.
func tokenAmount(usd, price *uint256.Int, assetDecimals uint8) (*uint256.Int, error) {
	return mulDiv(usd, pow10(assetDecimals), price)
}

// applyBps returns amount * bps / 10_000.
func applyBps(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return mulDiv(amount, uint256.NewInt(bps), bpsDenominator)
}

// healthFactor discounts the collateral value by the liquidation threshold
// and divides by the debt, both in 18-decimal fixed point. Debt-free accounts
// report the maximum word.
func healthFactor(debt, collateralUsd *uint256.Int, thresholdBps uint64) (*uint256.Int, error) {
	if debt.IsZero() {
		return new(uint256.Int).Set(maxWord), nil
	}
	adjusted, err := applyBps(collateralUsd, thresholdBps)
	if err != nil {
		return nil, err
	}
	return mulDiv(adjusted, precision, debt)
}
