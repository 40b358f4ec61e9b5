package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"dscengine/core/events"
	"dscengine/crypto"
	nativecommon "dscengine/native/common"
	"dscengine/native/pricefeed"
	"dscengine/native/stablecoin"
	"dscengine/native/token"
	"dscengine/storage"
)

var (
	// EngineAccount is the mint authority of the liability token.
	EngineAccount = crypto.DeriveAddress(crypto.AccountPrefix, "module/stablecoin")
	// FaucetAccount is the mint authority of bootstrapped collateral tokens.
	FaucetAccount = crypto.DeriveAddress(crypto.AccountPrefix, "module/collateral-faucet")
	// LiabilityAsset is the pegged token minted against collateral.
	LiabilityAsset = crypto.DeriveAddress(crypto.AssetPrefix, "dsc")
)

// Options configures New. DB and EngineConfig are required.
type Options struct {
	DB              storage.Database
	EngineConfig    *stablecoin.Config
	FeedDecimals    uint8
	MaxDeviationBps uint64
	Emitter         events.Emitter
	Logger          *slog.Logger
	Metrics         stablecoin.Metrics
	Clock           func() time.Time
}

// CollateralInfo describes a registry entry together with its ledger symbol.
type CollateralInfo struct {
	Label    string
	Symbol   string
	Asset    crypto.Address
	Feed     crypto.Address
	Decimals uint8
}

// App holds the wired components of the daemon.
type App struct {
	Engine     *stablecoin.Engine
	Ledger     *token.Ledger
	Prices     *pricefeed.Store
	Collateral *token.CollateralAdapter
	Liability  *token.LiabilityAdapter
	Pauses     *nativecommon.PauseSet

	collateral []CollateralInfo
}

// New builds the engine over a token ledger and price-feed store sharing
// opts.DB, registering missing tokens and feeds.
func New(opts Options) (*App, error) {
	if opts.DB == nil {
		return nil, errors.New("app: database required")
	}
	if opts.EngineConfig == nil {
		return nil, errors.New("app: engine config required")
	}
	if opts.FeedDecimals == 0 {
		opts.FeedDecimals = 8
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ledger := token.NewLedger(opts.DB)
	prices := pricefeed.NewStore(opts.DB)
	prices.SetClock(clock)
	prices.SetMaxDeviationBps(opts.MaxDeviationBps)

	liability := token.NewLiabilityAdapter(ledger, LiabilityAsset, EngineAccount)
	engine, err := stablecoin.NewEngineFromConfig(opts.EngineConfig, liability)
	if err != nil {
		return nil, err
	}

	a := &App{
		Engine:     engine,
		Ledger:     ledger,
		Prices:     prices,
		Collateral: token.NewCollateralAdapter(ledger, crypto.Address{}),
		Liability:  liability,
		Pauses:     nativecommon.NewPauseSet(),
	}
	if err := a.bootstrap(opts.EngineConfig, opts.FeedDecimals); err != nil {
		return nil, err
	}

	engine.SetState(stablecoin.NewStore(opts.DB))
	engine.SetCollateralLedger(a.Collateral)
	engine.SetOracle(prices)
	engine.SetPauses(a.Pauses)
	engine.SetClock(clock)
	if opts.Emitter != nil {
		engine.SetEmitter(opts.Emitter)
	}
	if opts.Logger != nil {
		engine.SetLogger(opts.Logger)
	}
	if opts.Metrics != nil {
		engine.SetMetrics(opts.Metrics)
	}
	return a, nil
}

func (a *App) bootstrap(cfg *stablecoin.Config, feedDecimals uint8) error {
	if err := ensureToken(a.Ledger, LiabilityAsset, "DSC", "Decentralized Stable Coin", stablecoin.PrecisionDecimals, EngineAccount); err != nil {
		return err
	}
	entries := a.Engine.Registry().Assets()
	if len(entries) != len(cfg.Collateral) {
		return fmt.Errorf("app: registry has %d entries, config %d", len(entries), len(cfg.Collateral))
	}
	a.collateral = make([]CollateralInfo, 0, len(entries))
	for i, entry := range entries {
		label := strings.ToLower(strings.TrimSpace(cfg.Collateral[i].Label))
		symbol := strings.ToUpper(label)
		if symbol == "" {
			symbol = fmt.Sprintf("COL%d", i)
		}
		if err := ensureToken(a.Ledger, entry.Asset, symbol, symbol, entry.Decimals, FaucetAccount); err != nil {
			return err
		}
		if err := a.Prices.RegisterFeed(entry.Feed, feedDecimals, symbol+" / USD"); err != nil && !errors.Is(err, pricefeed.ErrFeedExists) {
			return fmt.Errorf("app: register feed %s: %w", entry.Feed, err)
		}
		a.collateral = append(a.collateral, CollateralInfo{
			Label:    label,
			Symbol:   symbol,
			Asset:    entry.Asset,
			Feed:     entry.Feed,
			Decimals: entry.Decimals,
		})
	}
	return nil
}

func ensureToken(ledger *token.Ledger, asset crypto.Address, symbol, name string, decimals uint8, authority crypto.Address) error {
	if _, err := ledger.Token(asset); err == nil {
		return nil
	} else if !errors.Is(err, token.ErrTokenNotRegistered) {
		return err
	}
	if err := ledger.RegisterToken(asset, symbol, name, decimals); err != nil {
		return fmt.Errorf("app: register %s: %w", symbol, err)
	}
	if err := ledger.SetMintAuthority(asset, authority); err != nil {
		return fmt.Errorf("app: mint authority %s: %w", symbol, err)
	}
	return nil
}

// CollateralList returns the registry with ledger symbols, in registry order.
func (a *App) CollateralList() []CollateralInfo {
	return append([]CollateralInfo(nil), a.collateral...)
}

// Faucet mints collateral test tokens to an account.
func (a *App) Faucet(asset, to crypto.Address, amount *big.Int) error {
	if _, ok := a.Engine.Registry().Lookup(asset); !ok {
		return &stablecoin.TokenNotAllowedError{Asset: asset}
	}
	return a.Ledger.Mint(asset, FaucetAccount, to, amount)
}
