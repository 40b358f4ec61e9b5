package server

import (
	"errors"
	"net/http"

	nativecommon "dscengine/native/common"
	"dscengine/native/pricefeed"
	"dscengine/native/stablecoin"
	"dscengine/native/token"
)

var (
	errMissingCaller  = errors.New("caller identity required")
	errInvalidAmount  = errors.New("amount must be a non-negative base-10 integer")
	errInvalidAddress = errors.New("invalid address")
)

// decodeError marks a malformed request body.
type decodeError struct{ err error }

func (e decodeError) Error() string { return e.err.Error() }
func (e decodeError) Unwrap() error { return e.err }

// toStatus maps an error to the HTTP status and the message exposed to the
// client. Server-side failures never leak their cause.
func toStatus(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	var malformed decodeError
	switch {
	case errors.As(err, &malformed), errors.Is(err, errInvalidAddress):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errMissingCaller):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "stablecoin module paused"
	case errors.Is(err, stablecoin.ErrInvalidArgument),
		errors.Is(err, stablecoin.ErrUnregisteredAsset),
		errors.Is(err, errInvalidAmount),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, pricefeed.ErrInvalidAnswer),
		errors.Is(err, pricefeed.ErrDeviation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, stablecoin.ErrInsufficientBalance),
		errors.Is(err, stablecoin.ErrHealthFactorViolation),
		errors.Is(err, stablecoin.ErrLiquidationNotEligible):
		return http.StatusUnprocessableEntity, err.Error()
	// Ledger failures carry their cause; a caller's own balance or allowance
	// shortfall is not an upstream fault.
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, stablecoin.ErrExternalTransferFailure):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, stablecoin.ErrOracleFailure):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, token.ErrUnauthorizedMinter):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, token.ErrTokenNotRegistered),
		errors.Is(err, pricefeed.ErrFeedNotFound),
		errors.Is(err, pricefeed.ErrNoRounds):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
