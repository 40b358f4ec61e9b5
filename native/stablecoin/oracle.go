package stablecoin

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"dscengine/crypto"
)

// RoundData is a single price observation reported by a feed. Answer carries
// Decimals digits of precision.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	Decimals        uint8
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// Clone returns a deep copy of the round.
func (r RoundData) Clone() RoundData {
	clone := r
	if r.Answer != nil {
		clone.Answer = new(big.Int).Set(r.Answer)
	}
	return clone
}

// PriceOracle resolves the latest round for a price feed. It is called with
// the engine lock held, so any call back into the engine must reuse ctx.
type PriceOracle interface {
	LatestRoundData(ctx context.Context, feed crypto.Address) (RoundData, error)
}

// checkRound rejects rounds that are incomplete, carried over from an earlier
// round, or older than timeout relative to now.
func checkRound(round RoundData, now time.Time, timeout time.Duration) error {
	if round.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: round %d never updated", ErrStalePrice, round.RoundID)
	}
	if round.AnsweredInRound < round.RoundID {
		return fmt.Errorf("%w: round %d answered in round %d", ErrStalePrice, round.RoundID, round.AnsweredInRound)
	}
	if timeout > 0 && now.Sub(round.UpdatedAt) > timeout {
		return fmt.Errorf("%w: round %d is %s old", ErrStalePrice, round.RoundID, now.Sub(round.UpdatedAt).Truncate(time.Second))
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// price returns the guarded 18-decimal price for a registry entry.
func (e *Engine) price(ctx context.Context, entry CollateralAsset) (*uint256.Int, error) {
	if e.oracle == nil {
		return nil, errNilOracle
	}
	round, err := e.oracle.LatestRoundData(ctx, entry.Feed)
	if err != nil {
		e.metrics.RecordOracleFailure(entry.Feed.String())
		if errors.Is(err, ErrOracleFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: feed %s: %w", ErrPriceUnavailable, entry.Feed, err)
	}
	if err := checkRound(round, e.now(), e.params.OracleTimeout); err != nil {
		e.metrics.RecordOracleFailure(entry.Feed.String())
		return nil, fmt.Errorf("feed %s: %w", entry.Feed, err)
	}
	return normalizePrice(round.Answer, round.Decimals)
}
