package stablecoin

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dscengine/crypto"
)

const sampleConfig = `
LiquidationThresholdBps = 5000
LiquidationBonusBps = 1000
MinHealthFactor = "1000000000000000000"
OracleTimeout = "90m"

[[collateral]]
label = "weth"

[[collateral]]
label = "wbtc"
decimals = 8
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stablecoin.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	params, err := cfg.RiskParameters()
	require.NoError(t, err)
	require.Equal(t, DefaultLiquidationThresholdBps, params.LiquidationThresholdBps)
	require.Equal(t, DefaultLiquidationBonusBps, params.LiquidationBonusBps)
	require.Equal(t, 0, params.MinHealthFactor.Cmp(big.NewInt(1e18)))
	require.Equal(t, 90*time.Minute, params.OracleTimeout)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	entries := reg.Assets()
	require.Len(t, entries, 2)
	require.True(t, entries[0].Asset.Equal(crypto.DeriveAddress(crypto.AssetPrefix, "col/weth")))
	require.True(t, entries[0].Feed.Equal(crypto.DeriveAddress(crypto.FeedPrefix, "feed/weth")))
	require.Equal(t, uint8(18), entries[0].Decimals)
	require.Equal(t, uint8(8), entries[1].Decimals)

	engine, err := NewEngineFromConfig(cfg, newFakeToken())
	require.NoError(t, err)
	require.Len(t, engine.CollateralTokens(), 2)
}

func TestParseConfigDefaultsAndErrors(t *testing.T) {
	cfg, err := ParseConfig([]byte(`[[collateral]]
label = "weth"
`))
	require.NoError(t, err)
	params, err := cfg.RiskParameters()
	require.NoError(t, err)
	require.Equal(t, DefaultRiskParameters(), params)

	_, err = ParseConfig([]byte(`Unknown = 1`))
	require.ErrorIs(t, err, ErrConfigurationMismatch)

	cfg, err = ParseConfig([]byte(`OracleTimeout = "soon"`))
	require.NoError(t, err)
	_, err = cfg.RiskParameters()
	require.ErrorIs(t, err, ErrInvalidParameters)

	cfg, err = ParseConfig([]byte(`[[collateral]]
asset = "not-an-address"
label = "weth"
`))
	require.NoError(t, err)
	_, err = cfg.Registry()
	require.ErrorIs(t, err, ErrConfigurationMismatch)
}
