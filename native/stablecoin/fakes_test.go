package stablecoin

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dscengine/core/events"
	"dscengine/crypto"
)

var (
	errLedgerDown = errors.New("ledger unavailable")
	errTokenDown  = errors.New("token unavailable")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func feedAnswer(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), big.NewInt(1e8))
}

func account(label string) crypto.Address {
	return crypto.DeriveAddress(crypto.AccountPrefix, label)
}

type fakeOracle struct {
	mu     sync.Mutex
	rounds map[string]RoundData
	err    error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{rounds: make(map[string]RoundData)}
}

func (o *fakeOracle) set(feed crypto.Address, round RoundData) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rounds[feed.Key()] = round
}

func (o *fakeOracle) LatestRoundData(_ context.Context, feed crypto.Address) (RoundData, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return RoundData{}, o.err
	}
	round, ok := o.rounds[feed.Key()]
	if !ok {
		return RoundData{}, fmt.Errorf("no round for %s", feed)
	}
	return round.Clone(), nil
}

type fakeLedger struct {
	mu         sync.Mutex
	wallets    map[string]*big.Int
	custody    map[string]*big.Int
	failIn     bool
	failOut    bool
	onTransfer func(ctx context.Context)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{wallets: make(map[string]*big.Int), custody: make(map[string]*big.Int)}
}

func walletKey(asset, owner crypto.Address) string {
	return asset.Key() + "/" + owner.Key()
}

func (l *fakeLedger) fund(asset, owner crypto.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets[walletKey(asset, owner)] = new(big.Int).Add(l.balanceLocked(asset, owner), amount)
}

func (l *fakeLedger) balanceLocked(asset, owner crypto.Address) *big.Int {
	if bal, ok := l.wallets[walletKey(asset, owner)]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (l *fakeLedger) balance(asset, owner crypto.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(asset, owner)
}

func (l *fakeLedger) held(asset crypto.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.custody[asset.Key()]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (l *fakeLedger) TransferIn(ctx context.Context, asset, from crypto.Address, amount *big.Int) error {
	if hook := l.onTransfer; hook != nil {
		hook(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failIn {
		return errLedgerDown
	}
	bal := l.balanceLocked(asset, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient wallet balance %s < %s", bal, amount)
	}
	l.wallets[walletKey(asset, from)] = bal.Sub(bal, amount)
	held := new(big.Int)
	if current, ok := l.custody[asset.Key()]; ok {
		held.Set(current)
	}
	l.custody[asset.Key()] = held.Add(held, amount)
	return nil
}

func (l *fakeLedger) TransferOut(ctx context.Context, asset, to crypto.Address, amount *big.Int) error {
	if hook := l.onTransfer; hook != nil {
		hook(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failOut {
		return errLedgerDown
	}
	held := new(big.Int)
	if current, ok := l.custody[asset.Key()]; ok {
		held.Set(current)
	}
	if held.Cmp(amount) < 0 {
		return fmt.Errorf("custody %s below %s", held, amount)
	}
	l.custody[asset.Key()] = held.Sub(held, amount)
	bal := l.balanceLocked(asset, to)
	l.wallets[walletKey(asset, to)] = bal.Add(bal, amount)
	return nil
}

type fakeToken struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	supply   *big.Int
	failMint bool
	failBurn bool
}

func newFakeToken() *fakeToken {
	return &fakeToken{balances: make(map[string]*big.Int), supply: big.NewInt(0)}
}

func (t *fakeToken) balanceOf(owner crypto.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bal, ok := t.balances[owner.Key()]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (t *fakeToken) totalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.supply)
}

// transfer moves tokens between holders outside the engine, as a secondary
// market would.
func (t *fakeToken) transfer(from, to crypto.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fromBal := big.NewInt(0)
	if current, ok := t.balances[from.Key()]; ok {
		fromBal.Set(current)
	}
	toBal := big.NewInt(0)
	if current, ok := t.balances[to.Key()]; ok {
		toBal.Set(current)
	}
	t.balances[from.Key()] = fromBal.Sub(fromBal, amount)
	t.balances[to.Key()] = toBal.Add(toBal, amount)
}

func (t *fakeToken) Mint(_ context.Context, to crypto.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failMint {
		return errTokenDown
	}
	bal := big.NewInt(0)
	if current, ok := t.balances[to.Key()]; ok {
		bal.Set(current)
	}
	t.balances[to.Key()] = bal.Add(bal, amount)
	t.supply = new(big.Int).Add(t.supply, amount)
	return nil
}

func (t *fakeToken) Burn(_ context.Context, from crypto.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failBurn {
		return errTokenDown
	}
	bal := big.NewInt(0)
	if current, ok := t.balances[from.Key()]; ok {
		bal.Set(current)
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("burn %s exceeds balance %s", amount, bal)
	}
	t.balances[from.Key()] = bal.Sub(bal, amount)
	t.supply = new(big.Int).Sub(t.supply, amount)
	return nil
}

type harness struct {
	engine   *Engine
	oracle   *fakeOracle
	ledger   *fakeLedger
	token    *fakeToken
	recorder *events.Recorder
	now      time.Time
	weth     crypto.Address
	wbtc     crypto.Address
	wethFeed crypto.Address
	wbtcFeed crypto.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		oracle:   newFakeOracle(),
		ledger:   newFakeLedger(),
		token:    newFakeToken(),
		recorder: &events.Recorder{},
		now:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		weth:     crypto.DeriveAddress(crypto.AssetPrefix, "weth"),
		wbtc:     crypto.DeriveAddress(crypto.AssetPrefix, "wbtc"),
		wethFeed: crypto.DeriveAddress(crypto.FeedPrefix, "eth-usd"),
		wbtcFeed: crypto.DeriveAddress(crypto.FeedPrefix, "btc-usd"),
	}
	engine, err := NewEngine(
		[]crypto.Address{h.weth, h.wbtc},
		[]crypto.Address{h.wethFeed, h.wbtcFeed},
		h.token,
		DefaultRiskParameters(),
	)
	require.NoError(t, err)
	engine.SetOracle(h.oracle)
	engine.SetCollateralLedger(h.ledger)
	engine.SetEmitter(h.recorder)
	engine.SetClock(func() time.Time { return h.now })
	h.engine = engine
	h.setPrice(h.wethFeed, 2000)
	h.setPrice(h.wbtcFeed, 1000)
	return h
}

func (h *harness) setPrice(feed crypto.Address, dollars int64) {
	h.setAnswer(feed, feedAnswer(dollars))
}

func (h *harness) setAnswer(feed crypto.Address, answer *big.Int) {
	h.oracle.set(feed, RoundData{
		RoundID:         1,
		Answer:          answer,
		Decimals:        8,
		StartedAt:       h.now,
		UpdatedAt:       h.now,
		AnsweredInRound: 1,
	})
}

// open funds owner, deposits collateral and mints debt.
func (h *harness) open(t *testing.T, owner crypto.Address, collateral, debt *big.Int) {
	t.Helper()
	h.ledger.fund(h.weth, owner, collateral)
	require.NoError(t, h.engine.DepositCollateralAndMintDsc(context.Background(), owner, h.weth, collateral, debt))
}

func (h *harness) requireSupplyMatchesDebt(t *testing.T) {
	t.Helper()
	total, err := h.engine.TotalDebt(context.Background())
	require.NoError(t, err)
	require.Zero(t, total.Cmp(h.token.totalSupply()), "total debt %s != supply %s", total, h.token.totalSupply())
}
