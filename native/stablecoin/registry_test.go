package stablecoin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dscengine/crypto"
)

func TestRegistryPreservesOrder(t *testing.T) {
	assets := []crypto.Address{
		crypto.DeriveAddress(crypto.AssetPrefix, "weth"),
		crypto.DeriveAddress(crypto.AssetPrefix, "wbtc"),
	}
	feeds := []crypto.Address{
		crypto.DeriveAddress(crypto.FeedPrefix, "eth-usd"),
		crypto.DeriveAddress(crypto.FeedPrefix, "btc-usd"),
	}
	reg, err := NewRegistry(assets, feeds)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	for i, entry := range reg.Assets() {
		require.True(t, entry.Asset.Equal(assets[i]))
		require.True(t, entry.Feed.Equal(feeds[i]))
		require.Equal(t, uint8(PrecisionDecimals), entry.Decimals)
	}

	entry, ok := reg.Lookup(assets[1])
	require.True(t, ok)
	require.True(t, entry.Feed.Equal(feeds[1]))

	_, err = reg.Require(crypto.DeriveAddress(crypto.AssetPrefix, "doge"))
	var notAllowed *TokenNotAllowedError
	require.ErrorAs(t, err, &notAllowed)
}

func TestRegistryRejectsBadInput(t *testing.T) {
	weth := crypto.DeriveAddress(crypto.AssetPrefix, "weth")
	feed := crypto.DeriveAddress(crypto.FeedPrefix, "eth-usd")

	tests := []struct {
		name     string
		assets   []crypto.Address
		feeds    []crypto.Address
		decimals []uint8
		want     error
	}{
		{
			name:     "length mismatch",
			assets:   []crypto.Address{weth},
			feeds:    nil,
			decimals: []uint8{18},
			want:     ErrTokenAddressesAndPriceFeedAddressesAmountsDontMatch,
		},
		{
			name:     "duplicate asset",
			assets:   []crypto.Address{weth, weth},
			feeds:    []crypto.Address{feed, feed},
			decimals: []uint8{18, 18},
			want:     ErrDuplicateCollateral,
		},
		{
			name:     "zero asset",
			assets:   []crypto.Address{crypto.NewAddress(crypto.AssetPrefix, make([]byte, crypto.AddressLength))},
			feeds:    []crypto.Address{feed},
			decimals: []uint8{18},
			want:     ErrConfigurationMismatch,
		},
		{
			name:     "missing feed",
			assets:   []crypto.Address{weth},
			feeds:    []crypto.Address{{}},
			decimals: []uint8{18},
			want:     ErrConfigurationMismatch,
		},
		{
			name:     "decimals out of range",
			assets:   []crypto.Address{weth},
			feeds:    []crypto.Address{feed},
			decimals: []uint8{78},
			want:     ErrConfigurationMismatch,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg, err := NewRegistryWithDecimals(tc.assets, tc.feeds, tc.decimals)
			require.Nil(t, reg)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegistryEmpty(t *testing.T) {
	reg, err := NewRegistry(nil, nil)
	require.NoError(t, err)
	require.Zero(t, reg.Len())
	_, ok := reg.Lookup(crypto.DeriveAddress(crypto.AssetPrefix, "weth"))
	require.False(t, ok)
}
