package stablecoin

import (
	"errors"
	"fmt"
	"math/big"

	"dscengine/crypto"
)

// Error kinds. Every error returned by the engine matches exactly one of these
// through errors.Is, so callers can branch without parsing messages.
var (
	ErrInvalidArgument         = errors.New("stablecoin engine: invalid argument")
	ErrUnregisteredAsset       = errors.New("stablecoin engine: unregistered asset")
	ErrConfigurationMismatch   = errors.New("stablecoin engine: configuration mismatch")
	ErrInsufficientBalance     = errors.New("stablecoin engine: insufficient balance")
	ErrHealthFactorViolation   = errors.New("stablecoin engine: health factor violation")
	ErrLiquidationNotEligible  = errors.New("stablecoin engine: liquidation not eligible")
	ErrExternalTransferFailure = errors.New("stablecoin engine: external transfer failure")
	ErrOracleFailure           = errors.New("stablecoin engine: oracle failure")
	ErrArithmeticOverflow      = errors.New("stablecoin engine: arithmetic overflow")
	ErrReentrantCall           = errors.New("stablecoin engine: reentrant call")
)

var (
	errNilState      = errors.New("stablecoin engine: state not configured")
	errNilOracle     = errors.New("stablecoin engine: price oracle not configured")
	errNilCollateral = errors.New("stablecoin engine: collateral ledger not configured")
	errNilToken      = errors.New("stablecoin engine: liability token not configured")
)

var (
	ErrNeedsMoreThanZero = fmt.Errorf("%w: amount must be more than zero", ErrInvalidArgument)

	ErrTokenAddressesAndPriceFeedAddressesAmountsDontMatch = fmt.Errorf("%w: token addresses and price feed addresses amounts don't match", ErrConfigurationMismatch)
	ErrDuplicateCollateral                                 = fmt.Errorf("%w: duplicate collateral asset", ErrConfigurationMismatch)
	ErrInvalidParameters                                   = fmt.Errorf("%w: invalid risk parameters", ErrConfigurationMismatch)

	ErrInsufficientCollateral = fmt.Errorf("%w: collateral below requested amount", ErrInsufficientBalance)
	ErrBurnExceedsDebt        = fmt.Errorf("%w: amount exceeds outstanding debt", ErrInsufficientBalance)

	ErrHealthFactorNotImproved = fmt.Errorf("%w: health factor not improved", ErrHealthFactorViolation)
	ErrHealthFactorOk          = fmt.Errorf("%w: health factor ok", ErrLiquidationNotEligible)

	ErrTransferFailed = fmt.Errorf("%w: collateral transfer failed", ErrExternalTransferFailure)
	ErrMintFailed     = fmt.Errorf("%w: mint failed", ErrExternalTransferFailure)
	ErrBurnFailed     = fmt.Errorf("%w: burn failed", ErrExternalTransferFailure)

	ErrStalePrice       = fmt.Errorf("%w: stale price", ErrOracleFailure)
	ErrInvalidPrice     = fmt.Errorf("%w: invalid price", ErrOracleFailure)
	ErrPriceUnavailable = fmt.Errorf("%w: price unavailable", ErrOracleFailure)
)

// TokenNotAllowedError reports an asset that is absent from the collateral
// registry.
type TokenNotAllowedError struct {
	Asset crypto.Address
}

func (e *TokenNotAllowedError) Error() string {
	return fmt.Sprintf("stablecoin engine: token not allowed: %s", e.Asset)
}

func (e *TokenNotAllowedError) Unwrap() error { return ErrUnregisteredAsset }

// BreaksHealthFactorError carries the health factor the rejected operation
// would have produced.
type BreaksHealthFactorError struct {
	HealthFactor *big.Int
}

func (e *BreaksHealthFactorError) Error() string {
	return fmt.Sprintf("stablecoin engine: breaks health factor: %s", formatHealthFactor(e.HealthFactor))
}

func (e *BreaksHealthFactorError) Unwrap() error { return ErrHealthFactorViolation }

// ledgerError ties a collaborator failure to the engine error describing the
// step that failed while keeping the collaborator's error reachable.
type ledgerError struct {
	step  error
	cause error
}

func (e *ledgerError) Error() string {
	if e.cause == nil {
		return e.step.Error()
	}
	return e.step.Error() + ": " + e.cause.Error()
}

func (e *ledgerError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.step}
	}
	return []error{e.step, e.cause}
}

func wrapLedger(step, cause error) error {
	return &ledgerError{step: step, cause: cause}
}

func formatHealthFactor(hf *big.Int) string {
	if hf == nil {
		return "0"
	}
	if hf.Cmp(MaxHealthFactor()) == 0 {
		return "max"
	}
	return hf.String()
}
