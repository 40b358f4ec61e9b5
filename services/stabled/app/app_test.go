package app

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dscengine/core/events"
	"dscengine/crypto"
	"dscengine/native/stablecoin"
	"dscengine/storage"
)

const engineTOML = `
LiquidationThresholdBps = 5000
LiquidationBonusBps = 1000
OracleTimeout = "3h"

[[collateral]]
label = "weth"

[[collateral]]
label = "wbtc"
decimals = 8
`

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newTestApp(t *testing.T, db storage.Database, recorder *events.Recorder) *App {
	t.Helper()
	cfg, err := stablecoin.ParseConfig([]byte(engineTOML))
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a, err := New(Options{
		DB:           db,
		EngineConfig: cfg,
		Emitter:      recorder,
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return a
}

func TestNewBootstrapsTokensAndFeeds(t *testing.T) {
	db := storage.NewMemDB()
	a := newTestApp(t, db, nil)

	list := a.CollateralList()
	require.Len(t, list, 2)
	require.Equal(t, "WETH", list[0].Symbol)
	require.Equal(t, uint8(8), list[1].Decimals)

	meta, err := a.Ledger.Token(list[1].Asset)
	require.NoError(t, err)
	require.Equal(t, "WBTC", meta.Symbol)
	require.Equal(t, FaucetAccount.Bytes(), meta.MintAuthority)

	dsc, err := a.Ledger.Token(LiabilityAsset)
	require.NoError(t, err)
	require.Equal(t, EngineAccount.Bytes(), dsc.MintAuthority)

	feed, err := a.Prices.Feed(list[0].Feed)
	require.NoError(t, err)
	require.Equal(t, uint8(8), feed.Decimals)

	// A second boot over the same database keeps existing registrations.
	again := newTestApp(t, db, nil)
	require.Len(t, again.CollateralList(), 2)
}

func TestAppRunsEngineEndToEnd(t *testing.T) {
	ctx := context.Background()
	recorder := new(events.Recorder)
	a := newTestApp(t, storage.NewMemDB(), recorder)
	weth := a.CollateralList()[0]
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")

	_, err := a.Prices.Submit(ctx, weth.Feed, big.NewInt(2000_00000000))
	require.NoError(t, err)
	require.NoError(t, a.Faucet(weth.Asset, alice, ether(10)))
	require.NoError(t, a.Ledger.Approve(weth.Asset, alice, a.Collateral.Custody(), ether(10)))

	require.NoError(t, a.Engine.DepositCollateralAndMintDsc(ctx, alice, weth.Asset, ether(10), ether(1000)))
	balance, err := a.Ledger.Balance(LiabilityAsset, alice)
	require.NoError(t, err)
	require.Equal(t, ether(1000), balance)
	require.Equal(t, []string{events.TypeCollateralDeposited, events.TypeDscMinted}, recorder.Types())

	a.Pauses.Set(stablecoin.ModuleName, true)
	err = a.Engine.MintDsc(ctx, alice, ether(1))
	require.Error(t, err)
}

func TestFaucetRejectsUnknownAsset(t *testing.T) {
	a := newTestApp(t, storage.NewMemDB(), nil)
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")
	err := a.Faucet(LiabilityAsset, alice, ether(1))
	require.ErrorIs(t, err, stablecoin.ErrUnregisteredAsset)
}

func TestNewRequiresInputs(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{DB: storage.NewMemDB()})
	require.Error(t, err)
}
