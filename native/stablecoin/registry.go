package stablecoin

import (
	"fmt"

	"dscengine/crypto"
)

// CollateralAsset binds an approved collateral asset to the price feed used to
// value it.
type CollateralAsset struct {
	Asset    crypto.Address
	Feed     crypto.Address
	Decimals uint8
}

// Registry is the immutable table of approved collateral assets. It is built
// once and only read afterwards, so it is safe to share between goroutines.
type Registry struct {
	ordered []CollateralAsset
	byAsset map[string]int
}

// NewRegistry binds assets[i] to feeds[i]. Assets are assumed to carry 18
// decimals of precision.
func NewRegistry(assets, feeds []crypto.Address) (*Registry, error) {
	decimals := make([]uint8, len(assets))
	for i := range decimals {
		decimals[i] = PrecisionDecimals
	}
	return NewRegistryWithDecimals(assets, feeds, decimals)
}

// NewRegistryWithDecimals is NewRegistry with explicit per-asset decimals.
// All three sequences must have equal length.
func NewRegistryWithDecimals(assets, feeds []crypto.Address, decimals []uint8) (*Registry, error) {
	if len(assets) != len(feeds) || len(assets) != len(decimals) {
		return nil, ErrTokenAddressesAndPriceFeedAddressesAmountsDontMatch
	}
	reg := &Registry{
		ordered: make([]CollateralAsset, 0, len(assets)),
		byAsset: make(map[string]int, len(assets)),
	}
	for i, asset := range assets {
		if len(asset.Bytes()) == 0 || asset.IsZero() {
			return nil, fmt.Errorf("%w: empty asset at index %d", ErrConfigurationMismatch, i)
		}
		if len(feeds[i].Bytes()) == 0 || feeds[i].IsZero() {
			return nil, fmt.Errorf("%w: empty price feed for %s", ErrConfigurationMismatch, asset)
		}
		if decimals[i] > MaxFeedDecimals {
			return nil, fmt.Errorf("%w: %s declares %d decimals", ErrConfigurationMismatch, asset, decimals[i])
		}
		if _, exists := reg.byAsset[asset.Key()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCollateral, asset)
		}
		reg.byAsset[asset.Key()] = len(reg.ordered)
		reg.ordered = append(reg.ordered, CollateralAsset{
			Asset:    crypto.NewAddress(asset.Prefix(), asset.Bytes()),
			Feed:     crypto.NewAddress(feeds[i].Prefix(), feeds[i].Bytes()),
			Decimals: decimals[i],
		})
	}
	return reg, nil
}

// Lookup returns the registry entry for asset.
func (r *Registry) Lookup(asset crypto.Address) (CollateralAsset, bool) {
	if r == nil {
		return CollateralAsset{}, false
	}
	idx, ok := r.byAsset[asset.Key()]
	if !ok {
		return CollateralAsset{}, false
	}
	return r.ordered[idx], true
}

// Require is Lookup returning TokenNotAllowedError for unknown assets.
func (r *Registry) Require(asset crypto.Address) (CollateralAsset, error) {
	entry, ok := r.Lookup(asset)
	if !ok {
		return CollateralAsset{}, &TokenNotAllowedError{Asset: asset}
	}
	return entry, nil
}

// Assets returns the registered entries in construction order.
func (r *Registry) Assets() []CollateralAsset {
	if r == nil {
		return nil
	}
	return append([]CollateralAsset(nil), r.ordered...)
}

// Len reports the number of registered assets.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ordered)
}
