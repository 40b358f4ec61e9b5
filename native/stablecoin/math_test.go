package stablecoin

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func word(t *testing.T, v *big.Int) *uint256.Int {
	t.Helper()
	w, err := toWord(v)
	require.NoError(t, err)
	return w
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		answer   *big.Int
		decimals uint8
		want     *big.Int
	}{
		{"eight decimals", feedAnswer(2000), 8, ether(2000)},
		{"eighteen decimals", ether(2000), 18, ether(2000)},
		{"twenty decimals", new(big.Int).Mul(ether(2000), big.NewInt(100)), 20, ether(2000)},
		{"zero decimals", big.NewInt(3), 0, ether(3)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			price, err := normalizePrice(tc.answer, tc.decimals)
			require.NoError(t, err)
			require.Equal(t, tc.want, price.ToBig())
		})
	}

	_, err := normalizePrice(big.NewInt(0), 8)
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = normalizePrice(big.NewInt(-5), 8)
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = normalizePrice(big.NewInt(1), 20)
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = normalizePrice(new(big.Int).Lsh(big.NewInt(1), 250), 0)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestUsdValueAndInverse(t *testing.T) {
	price := word(t, ether(2000))

	usd, err := usdValue(word(t, ether(10)), price, 18)
	require.NoError(t, err)
	require.Equal(t, ether(20_000), usd.ToBig())

	amount, err := tokenAmount(word(t, ether(100)), price, 18)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Div(ether(5), big.NewInt(100)), amount.ToBig())

	// Eight-decimal asset: 1.5 units.
	usd, err = usdValue(uint256.NewInt(150_000_000), price, 8)
	require.NoError(t, err)
	require.Equal(t, ether(3_000), usd.ToBig())
}

func TestUsdValueUsesWideIntermediate(t *testing.T) {
	// amount*price exceeds 256 bits but the quotient fits.
	amount := new(big.Int).Lsh(big.NewInt(1), 200)
	usd, err := usdValue(word(t, amount), word(t, ether(2000)), 18)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(amount, big.NewInt(2000)), usd.ToBig())

	huge := new(big.Int).Lsh(big.NewInt(1), 250)
	_, err = usdValue(word(t, huge), word(t, ether(2000)), 0)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestHealthFactorFormula(t *testing.T) {
	hf, err := healthFactor(new(uint256.Int), word(t, ether(1)), DefaultLiquidationThresholdBps)
	require.NoError(t, err)
	require.Equal(t, MaxHealthFactor(), hf.ToBig())

	hf, err = healthFactor(word(t, ether(100)), word(t, ether(20_000)), DefaultLiquidationThresholdBps)
	require.NoError(t, err)
	require.Equal(t, ether(100), hf.ToBig())

	hf, err = healthFactor(word(t, ether(100)), new(uint256.Int), DefaultLiquidationThresholdBps)
	require.NoError(t, err)
	require.True(t, hf.IsZero())
}

func TestToWordBounds(t *testing.T) {
	_, err := toWord(big.NewInt(-1))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = toWord(new(big.Int).Lsh(big.NewInt(1), 256))
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	w, err := toWord(nil)
	require.NoError(t, err)
	require.True(t, w.IsZero())
	_, err = positiveWord(big.NewInt(0))
	require.ErrorIs(t, err, ErrNeedsMoreThanZero)
}
