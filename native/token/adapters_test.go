package token

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dscengine/crypto"
	"dscengine/native/pricefeed"
	"dscengine/native/stablecoin"
	"dscengine/storage"
)

var (
	_ stablecoin.CollateralLedger = (*CollateralAdapter)(nil)
	_ stablecoin.LiabilityToken   = (*LiabilityAdapter)(nil)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestEngineOverLedger(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	ledger := NewLedger(db)
	weth := crypto.DeriveAddress(crypto.AssetPrefix, "weth")
	dsc := crypto.DeriveAddress(crypto.AssetPrefix, "dsc")
	feed := crypto.DeriveAddress(crypto.FeedPrefix, "eth-usd")
	faucet := crypto.DeriveAddress(crypto.AccountPrefix, "faucet")
	engineAccount := crypto.DeriveAddress(crypto.AccountPrefix, "module/stablecoin")
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")

	require.NoError(t, ledger.RegisterToken(weth, "WETH", "Wrapped Ether", 18))
	require.NoError(t, ledger.SetMintAuthority(weth, faucet))
	require.NoError(t, ledger.RegisterToken(dsc, "DSC", "Decentralized Stable Coin", 18))
	require.NoError(t, ledger.SetMintAuthority(dsc, engineAccount))

	prices := pricefeed.NewStore(db)
	require.NoError(t, prices.RegisterFeed(feed, 8, "ETH / USD"))
	_, err := prices.Submit(ctx, feed, big.NewInt(2000_00000000))
	require.NoError(t, err)

	collateral := NewCollateralAdapter(ledger, crypto.Address{})
	liability := NewLiabilityAdapter(ledger, dsc, engineAccount)
	engine, err := stablecoin.NewEngine([]crypto.Address{weth}, []crypto.Address{feed}, liability, stablecoin.DefaultRiskParameters())
	require.NoError(t, err)
	engine.SetCollateralLedger(collateral)
	engine.SetOracle(prices)
	engine.SetState(stablecoin.NewStore(db))
	engine.SetClock(func() time.Time { return time.Now().Add(time.Second) })

	require.NoError(t, ledger.Mint(weth, faucet, alice, ether(10)))

	// Without an allowance the pull fails and nothing is recorded.
	err = engine.DepositCollateralAndMintDsc(ctx, alice, weth, ether(10), ether(100))
	require.ErrorIs(t, err, stablecoin.ErrTransferFailed)
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, ledger.Approve(weth, alice, collateral.Custody(), ether(10)))
	require.NoError(t, engine.DepositCollateralAndMintDsc(ctx, alice, weth, ether(10), ether(100)))

	custody, err := ledger.Balance(weth, collateral.Custody())
	require.NoError(t, err)
	require.Equal(t, ether(10), custody)
	minted, err := ledger.Balance(dsc, alice)
	require.NoError(t, err)
	require.Equal(t, ether(100), minted)

	require.NoError(t, engine.RedeemCollateralForDsc(ctx, alice, weth, ether(5), ether(100)))
	supply, err := ledger.TotalSupply(dsc)
	require.NoError(t, err)
	require.Zero(t, supply.Sign())
	total, err := engine.TotalDebt(ctx)
	require.NoError(t, err)
	require.Zero(t, total.Sign())
	back, err := ledger.Balance(weth, alice)
	require.NoError(t, err)
	require.Equal(t, ether(5), back)
}

func TestAdaptersHonourCancellation(t *testing.T) {
	ledger, asset, _ := setupLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	adapter := NewCollateralAdapter(ledger, crypto.Address{})
	require.ErrorIs(t, adapter.TransferOut(ctx, asset, CustodyAccount, big.NewInt(1)), context.Canceled)
	liability := NewLiabilityAdapter(ledger, asset, CustodyAccount)
	require.ErrorIs(t, liability.Mint(ctx, CustodyAccount, big.NewInt(1)), context.Canceled)
}

// cancellingOracle answers normally and then cancels the caller's context, as
// a disconnecting HTTP client would.
type cancellingOracle struct {
	stablecoin.PriceOracle
	cancel context.CancelFunc
}

func (o *cancellingOracle) LatestRoundData(ctx context.Context, feed crypto.Address) (stablecoin.RoundData, error) {
	round, err := o.PriceOracle.LatestRoundData(ctx, feed)
	o.cancel()
	return round, err
}

func TestCancelledRequestStillRollsBackTransfers(t *testing.T) {
	db := storage.NewMemDB()
	ledger := NewLedger(db)
	weth := crypto.DeriveAddress(crypto.AssetPrefix, "weth")
	dsc := crypto.DeriveAddress(crypto.AssetPrefix, "dsc")
	feed := crypto.DeriveAddress(crypto.FeedPrefix, "eth-usd")
	faucet := crypto.DeriveAddress(crypto.AccountPrefix, "faucet")
	engineAccount := crypto.DeriveAddress(crypto.AccountPrefix, "module/stablecoin")
	alice := crypto.DeriveAddress(crypto.AccountPrefix, "alice")

	require.NoError(t, ledger.RegisterToken(weth, "WETH", "Wrapped Ether", 18))
	require.NoError(t, ledger.SetMintAuthority(weth, faucet))
	require.NoError(t, ledger.RegisterToken(dsc, "DSC", "Decentralized Stable Coin", 18))
	require.NoError(t, ledger.SetMintAuthority(dsc, engineAccount))

	prices := pricefeed.NewStore(db)
	require.NoError(t, prices.RegisterFeed(feed, 8, "ETH / USD"))
	_, err := prices.Submit(context.Background(), feed, big.NewInt(2000_00000000))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collateral := NewCollateralAdapter(ledger, crypto.Address{})
	engine, err := stablecoin.NewEngine([]crypto.Address{weth}, []crypto.Address{feed}, NewLiabilityAdapter(ledger, dsc, engineAccount), stablecoin.DefaultRiskParameters())
	require.NoError(t, err)
	engine.SetCollateralLedger(collateral)
	engine.SetOracle(&cancellingOracle{PriceOracle: prices, cancel: cancel})
	engine.SetState(stablecoin.NewStore(db))
	engine.SetClock(func() time.Time { return time.Now().Add(time.Second) })

	require.NoError(t, ledger.Mint(weth, faucet, alice, ether(10)))
	require.NoError(t, ledger.Approve(weth, alice, collateral.Custody(), ether(10)))

	err = engine.DepositCollateralAndMintDsc(ctx, alice, weth, ether(10), ether(100))
	require.ErrorIs(t, err, stablecoin.ErrMintFailed)
	require.ErrorIs(t, err, context.Canceled)
	require.NotContains(t, err.Error(), "rollback")

	wallet, err := ledger.Balance(weth, alice)
	require.NoError(t, err)
	require.Equal(t, ether(10), wallet)
	custody, err := ledger.Balance(weth, collateral.Custody())
	require.NoError(t, err)
	require.Zero(t, custody.Sign())
	recorded, err := engine.GetCollateralBalanceOfUser(context.Background(), alice, weth)
	require.NoError(t, err)
	require.Zero(t, recorded.Sign())
	supply, err := ledger.TotalSupply(dsc)
	require.NoError(t, err)
	require.Zero(t, supply.Sign())
}
