package stablecoin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"dscengine/core/events"
	"dscengine/crypto"
	nativecommon "dscengine/native/common"
	"dscengine/storage"
)

// ModuleName is the key the engine checks in its PauseView.
const ModuleName = "stablecoin"

type engineContextKey struct{}

// Engine is the collateral and debt accounting core. Every mutating operation
// holds the write lock for its whole duration, persists its effects before
// calling out to the collateral ledger or the liability token, and undoes all
// of them when a later step fails.
type Engine struct {
	mu sync.RWMutex

	registry   *Registry
	params     RiskParameters
	state      engineState
	collateral CollateralLedger
	token      LiabilityToken
	oracle     PriceOracle
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	logger     *slog.Logger
	metrics    Metrics
	clock      func() time.Time
}

// NewEngine builds the collateral registry from the parallel assets and feeds
// lists and binds the liability token. Positions are kept in memory until
// SetState installs a persistent store.
func NewEngine(assets, feeds []crypto.Address, dsc LiabilityToken, params RiskParameters) (*Engine, error) {
	registry, err := NewRegistry(assets, feeds)
	if err != nil {
		return nil, err
	}
	return NewEngineWithRegistry(registry, dsc, params)
}

// NewEngineWithRegistry is NewEngine for a prebuilt registry.
func NewEngineWithRegistry(registry *Registry, dsc LiabilityToken, params RiskParameters) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrConfigurationMismatch)
	}
	params = params.Clone()
	params.EnsureDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		registry: registry,
		params:   params,
		state:    NewStore(storage.NewMemDB()),
		token:    dsc,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		metrics:  noopMetrics{},
		clock:    time.Now,
	}, nil
}

// SetState replaces the position store.
func (e *Engine) SetState(state engineState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
}

func (e *Engine) SetCollateralLedger(ledger CollateralLedger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collateral = ledger
}

func (e *Engine) SetOracle(oracle PriceOracle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oracle = oracle
}

// SetPauses wires the pause registry consulted before every mutating call.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses = p
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetClock overrides the time source used for oracle staleness checks.
func (e *Engine) SetClock(clock func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if clock == nil {
		clock = time.Now
	}
	e.clock = clock
}

func (e *Engine) SetMetrics(metrics Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if metrics == nil {
		metrics = noopMetrics{}
	}
	e.metrics = metrics
}

func (e *Engine) now() time.Time {
	return e.clock()
}

func (e *Engine) reentered(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(engineContextKey{}).(*Engine)
	return owner == e
}

// execute runs fn inside a session while holding the write lock. The context
// handed to fn, and from there to every collaborator, is tagged so that calls
// back into a mutating operation are refused.
func (e *Engine) execute(ctx context.Context, op string, fn func(ctx context.Context, s *session) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.reentered(ctx) {
		return ErrReentrantCall
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		e.metrics.RecordOperation(op, "paused")
		return err
	}
	if e.state == nil {
		return errNilState
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	inner := context.WithValue(ctx, engineContextKey{}, e)
	s := newSession(e, op)
	if err := fn(inner, s); err != nil {
		// Compensating steps must run even when the caller has gone away.
		if rbErr := s.rollback(context.WithoutCancel(inner)); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		e.logger.Warn("stablecoin operation reverted", "op", op, "error", err)
		e.metrics.RecordOperation(op, "error")
		return err
	}
	s.commit()
	e.metrics.RecordOperation(op, "ok")
	return nil
}

func requireAccount(addr crypto.Address) error {
	if len(addr.Bytes()) == 0 || addr.IsZero() {
		return fmt.Errorf("%w: empty account", ErrInvalidArgument)
	}
	return nil
}

// DepositCollateral moves amount of asset from account into engine custody.
func (e *Engine) DepositCollateral(ctx context.Context, account, asset crypto.Address, amount *big.Int) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	value, err := positiveWord(amount)
	if err != nil {
		return err
	}
	entry, err := e.registry.Require(asset)
	if err != nil {
		return err
	}
	return e.execute(ctx, "deposit", func(ctx context.Context, s *session) error {
		return e.deposit(ctx, s, account, entry, value)
	})
}

// MintDsc issues amount of the liability token to account provided the
// position stays above the minimum health factor.
func (e *Engine) MintDsc(ctx context.Context, account crypto.Address, amount *big.Int) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	value, err := positiveWord(amount)
	if err != nil {
		return err
	}
	return e.execute(ctx, "mint", func(ctx context.Context, s *session) error {
		return e.mint(ctx, s, account, value)
	})
}

// DepositCollateralAndMintDsc deposits and mints in one call. Either both
// steps take effect or neither does.
func (e *Engine) DepositCollateralAndMintDsc(ctx context.Context, account, asset crypto.Address, collateralAmount, mintAmount *big.Int) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	collateral, err := positiveWord(collateralAmount)
	if err != nil {
		return err
	}
	debt, err := positiveWord(mintAmount)
	if err != nil {
		return err
	}
	entry, err := e.registry.Require(asset)
	if err != nil {
		return err
	}
	return e.execute(ctx, "deposit_and_mint", func(ctx context.Context, s *session) error {
		if err := e.deposit(ctx, s, account, entry, collateral); err != nil {
			return err
		}
		return e.mint(ctx, s, account, debt)
	})
}

// RedeemCollateral returns amount of asset from custody to account.
func (e *Engine) RedeemCollateral(ctx context.Context, account, asset crypto.Address, amount *big.Int) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	value, err := positiveWord(amount)
	if err != nil {
		return err
	}
	entry, err := e.registry.Require(asset)
	if err != nil {
		return err
	}
	return e.execute(ctx, "redeem", func(ctx context.Context, s *session) error {
		return e.redeem(ctx, s, account, account, entry, value)
	})
}

// RedeemCollateralForDsc burns burnAmount of debt and then redeems
// collateralAmount of asset. The health factor is checked once, on the final
// position.
func (e *Engine) RedeemCollateralForDsc(ctx context.Context, account, asset crypto.Address, collateralAmount, burnAmount *big.Int) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	collateral, err := positiveWord(collateralAmount)
	if err != nil {
		return err
	}
	burn, err := positiveWord(burnAmount)
	if err != nil {
		return err
	}
	entry, err := e.registry.Require(asset)
	if err != nil {
		return err
	}
	return e.execute(ctx, "redeem_for_dsc", func(ctx context.Context, s *session) error {
		if err := e.burn(ctx, s, account, account, burn); err != nil {
			return err
		}
		return e.redeem(ctx, s, account, account, entry, collateral)
	})
}

// BurnDsc repays amount of account's debt with tokens held by account.
func (e *Engine) BurnDsc(ctx context.Context, account crypto.Address, amount *big.Int) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	value, err := positiveWord(amount)
	if err != nil {
		return err
	}
	return e.execute(ctx, "burn", func(ctx context.Context, s *session) error {
		return e.burn(ctx, s, account, account, value)
	})
}

func (e *Engine) deposit(ctx context.Context, s *session, account crypto.Address, entry CollateralAsset, amount *uint256.Int) error {
	if e.collateral == nil {
		return errNilCollateral
	}
	pos, err := s.position(account)
	if err != nil {
		return err
	}
	totals, err := s.loadTotals()
	if err != nil {
		return err
	}
	current, err := toWord(pos.CollateralOf(entry.Asset))
	if err != nil {
		return err
	}
	next, err := addWords(current, amount)
	if err != nil {
		return err
	}
	custody, err := toWord(totals.CollateralOf(entry.Asset))
	if err != nil {
		return err
	}
	if _, err := addWords(custody, amount); err != nil {
		return err
	}
	delta := amount.ToBig()
	pos.setCollateral(entry.Asset, next.ToBig())
	totals.adjustCollateral(entry.Asset, delta)
	if err := s.persist(pos); err != nil {
		return err
	}
	if err := e.collateral.TransferIn(ctx, entry.Asset, account, delta); err != nil {
		return wrapLedger(ErrTransferFailed, err)
	}
	s.onRevert("return deposit", func(ctx context.Context) error {
		return e.collateral.TransferOut(ctx, entry.Asset, account, delta)
	})
	s.emit(events.CollateralDeposited{Account: account, Asset: entry.Asset, Amount: delta})
	return nil
}

func (e *Engine) mint(ctx context.Context, s *session, account crypto.Address, amount *uint256.Int) error {
	if e.token == nil {
		return errNilToken
	}
	pos, err := s.position(account)
	if err != nil {
		return err
	}
	totals, err := s.loadTotals()
	if err != nil {
		return err
	}
	debt, err := toWord(pos.Debt)
	if err != nil {
		return err
	}
	nextDebt, err := addWords(debt, amount)
	if err != nil {
		return err
	}
	supply, err := toWord(totals.Debt)
	if err != nil {
		return err
	}
	nextSupply, err := addWords(supply, amount)
	if err != nil {
		return err
	}
	pos.Debt = nextDebt.ToBig()
	if err := e.requireHealthy(ctx, s.op, pos); err != nil {
		return err
	}
	totals.Debt = nextSupply.ToBig()
	if err := s.persist(pos); err != nil {
		return err
	}
	delta := amount.ToBig()
	if err := e.token.Mint(ctx, account, delta); err != nil {
		return wrapLedger(ErrMintFailed, err)
	}
	s.onRevert("burn minted", func(ctx context.Context) error {
		return e.token.Burn(ctx, account, delta)
	})
	s.emit(events.DscMinted{Account: account, Amount: delta})
	return nil
}

// redeem moves collateral out of from's position to the recipient to. The
// resulting position must stay healthy.
func (e *Engine) redeem(ctx context.Context, s *session, from, to crypto.Address, entry CollateralAsset, amount *uint256.Int) error {
	if e.collateral == nil {
		return errNilCollateral
	}
	pos, err := s.position(from)
	if err != nil {
		return err
	}
	totals, err := s.loadTotals()
	if err != nil {
		return err
	}
	current, err := toWord(pos.CollateralOf(entry.Asset))
	if err != nil {
		return err
	}
	if current.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, requested %s", ErrInsufficientCollateral, from, current.Dec(), entry.Asset, amount.Dec())
	}
	delta := amount.ToBig()
	pos.setCollateral(entry.Asset, new(uint256.Int).Sub(current, amount).ToBig())
	if err := e.requireHealthy(ctx, s.op, pos); err != nil {
		return err
	}
	totals.adjustCollateral(entry.Asset, new(big.Int).Neg(delta))
	if err := s.persist(pos); err != nil {
		return err
	}
	if err := e.collateral.TransferOut(ctx, entry.Asset, to, delta); err != nil {
		return wrapLedger(ErrTransferFailed, err)
	}
	s.onRevert("reclaim redemption", func(ctx context.Context) error {
		return e.collateral.TransferIn(ctx, entry.Asset, to, delta)
	})
	s.emit(events.CollateralRedeemed{From: from, To: to, Asset: entry.Asset, Amount: delta})
	return nil
}

// burn reduces onBehalfOf's debt by amount, destroying tokens held by payer.
func (e *Engine) burn(ctx context.Context, s *session, onBehalfOf, payer crypto.Address, amount *uint256.Int) error {
	if e.token == nil {
		return errNilToken
	}
	pos, err := s.position(onBehalfOf)
	if err != nil {
		return err
	}
	totals, err := s.loadTotals()
	if err != nil {
		return err
	}
	debt, err := toWord(pos.Debt)
	if err != nil {
		return err
	}
	if debt.Lt(amount) {
		return fmt.Errorf("%w: %s owes %s, requested %s", ErrBurnExceedsDebt, onBehalfOf, debt.Dec(), amount.Dec())
	}
	supply, err := toWord(totals.Debt)
	if err != nil {
		return err
	}
	if supply.Lt(amount) {
		return fmt.Errorf("%w: total debt %s below %s", ErrBurnExceedsDebt, supply.Dec(), amount.Dec())
	}
	delta := amount.ToBig()
	pos.Debt = new(uint256.Int).Sub(debt, amount).ToBig()
	totals.Debt = new(uint256.Int).Sub(supply, amount).ToBig()
	if err := s.persist(pos); err != nil {
		return err
	}
	if err := e.token.Burn(ctx, payer, delta); err != nil {
		return wrapLedger(ErrBurnFailed, err)
	}
	s.onRevert("reissue burned", func(ctx context.Context) error {
		return e.token.Mint(ctx, payer, delta)
	})
	s.emit(events.DscBurned{OnBehalfOf: onBehalfOf, Payer: payer, Amount: delta})
	return nil
}

// requireHealthy rejects positions with debt whose health factor is below the
// configured minimum. Debt-free positions pass without pricing.
func (e *Engine) requireHealthy(ctx context.Context, op string, pos *Position) error {
	if pos.Debt == nil || pos.Debt.Sign() == 0 {
		return nil
	}
	hf, err := e.positionHealth(ctx, pos)
	if err != nil {
		return err
	}
	e.metrics.ObserveHealthFactor(op, hf.ToBig())
	minimum, err := toWord(e.params.MinHealthFactor)
	if err != nil {
		return err
	}
	if hf.Lt(minimum) {
		return &BreaksHealthFactorError{HealthFactor: hf.ToBig()}
	}
	return nil
}

// collateralValue sums the USD value of every registered asset held by pos,
// pricing each asset afresh.
func (e *Engine) collateralValue(ctx context.Context, pos *Position) (*uint256.Int, error) {
	total := new(uint256.Int)
	if pos == nil {
		return total, nil
	}
	for _, entry := range e.registry.Assets() {
		amount, err := toWord(pos.CollateralOf(entry.Asset))
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			continue
		}
		price, err := e.price(ctx, entry)
		if err != nil {
			return nil, err
		}
		value, err := usdValue(amount, price, entry.Decimals)
		if err != nil {
			return nil, err
		}
		if total, err = addWords(total, value); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func (e *Engine) positionHealth(ctx context.Context, pos *Position) (*uint256.Int, error) {
	debt, err := toWord(pos.Debt)
	if err != nil {
		return nil, err
	}
	if debt.IsZero() {
		return new(uint256.Int).Set(maxWord), nil
	}
	value, err := e.collateralValue(ctx, pos)
	if err != nil {
		return nil, err
	}
	return healthFactor(debt, value, e.params.LiquidationThresholdBps)
}
