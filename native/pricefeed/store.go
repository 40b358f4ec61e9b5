package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"dscengine/crypto"
	"dscengine/native/stablecoin"
	"dscengine/storage"
)

var (
	ErrFeedNotFound  = errors.New("pricefeed: feed not registered")
	ErrFeedExists    = errors.New("pricefeed: feed already registered")
	ErrNoRounds      = errors.New("pricefeed: no rounds reported")
	ErrRoundNotFound = errors.New("pricefeed: round not found")
	ErrInvalidAnswer = errors.New("pricefeed: answer must be positive")
	ErrDeviation     = errors.New("pricefeed: answer deviates beyond limit")
)

// FeedInfo describes a registered feed.
type FeedInfo struct {
	Feed        crypto.Address
	Description string
	Decimals    uint8
	LatestRound uint64
}

type storedFeed struct {
	Description string
	Decimals    uint8
	LatestRound uint64
}

type storedRound struct {
	RoundID   uint64
	Answer    *big.Int
	StartedAt uint64
	UpdatedAt uint64
}

var (
	feedPrefix  = []byte("pricefeed/feed/")
	roundPrefix = []byte("pricefeed/round/")
)

func feedKey(feed crypto.Address) []byte {
	return ethcrypto.Keccak256(append(append([]byte(nil), feedPrefix...), feed.Bytes()...))
}

func roundKey(feed crypto.Address, id uint64) []byte {
	buf := append(append([]byte(nil), roundPrefix...), feed.Bytes()...)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, id, 10)
	return ethcrypto.Keccak256(buf)
}

// Store keeps submitted price rounds per feed and serves the latest one to
// the stablecoin engine.
type Store struct {
	mu              sync.RWMutex
	db              storage.Database
	clock           func() time.Time
	maxDeviationBps uint64
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db, clock: time.Now}
}

// SetClock overrides the timestamp source for new rounds.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clock == nil {
		clock = time.Now
	}
	s.clock = clock
}

// SetMaxDeviationBps rejects submissions moving more than bps away from the
// previous round. Zero disables the check.
func (s *Store) SetMaxDeviationBps(bps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxDeviationBps = bps
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

func (s *Store) loadFeed(feed crypto.Address) (*storedFeed, error) {
	record := new(storedFeed)
	ok, err := s.get(feedKey(feed), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, feed)
	}
	return record, nil
}

// RegisterFeed declares a feed reporting answers with decimals digits.
func (s *Store) RegisterFeed(feed crypto.Address, decimals uint8, description string) error {
	if len(feed.Bytes()) == 0 {
		return fmt.Errorf("%w: empty feed address", ErrFeedNotFound)
	}
	if decimals > stablecoin.MaxFeedDecimals {
		return fmt.Errorf("pricefeed: %d decimals exceeds %d", decimals, stablecoin.MaxFeedDecimals)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadFeed(feed); err == nil {
		return fmt.Errorf("%w: %s", ErrFeedExists, feed)
	} else if !errors.Is(err, ErrFeedNotFound) {
		return err
	}
	return s.put(feedKey(feed), &storedFeed{Description: strings.TrimSpace(description), Decimals: decimals})
}

// Feed returns the registration of feed.
func (s *Store) Feed(feed crypto.Address) (*FeedInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, err := s.loadFeed(feed)
	if err != nil {
		return nil, err
	}
	return &FeedInfo{Feed: feed, Description: record.Description, Decimals: record.Decimals, LatestRound: record.LatestRound}, nil
}

// Submit records a new round for feed and returns it.
func (s *Store) Submit(ctx context.Context, feed crypto.Address, answer *big.Int) (stablecoin.RoundData, error) {
	if err := ctx.Err(); err != nil {
		return stablecoin.RoundData{}, err
	}
	if answer == nil || answer.Sign() <= 0 {
		return stablecoin.RoundData{}, ErrInvalidAnswer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.loadFeed(feed)
	if err != nil {
		return stablecoin.RoundData{}, err
	}
	if record.LatestRound > 0 && s.maxDeviationBps > 0 {
		previous := new(storedRound)
		if _, err := s.get(roundKey(feed, record.LatestRound), previous); err != nil {
			return stablecoin.RoundData{}, err
		}
		if deviates(previous.Answer, answer, s.maxDeviationBps) {
			return stablecoin.RoundData{}, fmt.Errorf("%w: %s -> %s", ErrDeviation, previous.Answer, answer)
		}
	}
	now := uint64(s.clock().Unix())
	round := &storedRound{
		RoundID:   record.LatestRound + 1,
		Answer:    new(big.Int).Set(answer),
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(roundKey(feed, round.RoundID), round); err != nil {
		return stablecoin.RoundData{}, err
	}
	record.LatestRound = round.RoundID
	if err := s.put(feedKey(feed), record); err != nil {
		return stablecoin.RoundData{}, err
	}
	return toRoundData(round, record.Decimals), nil
}

// LatestRoundData implements stablecoin.PriceOracle.
func (s *Store) LatestRoundData(ctx context.Context, feed crypto.Address) (stablecoin.RoundData, error) {
	if err := ctx.Err(); err != nil {
		return stablecoin.RoundData{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, err := s.loadFeed(feed)
	if err != nil {
		return stablecoin.RoundData{}, err
	}
	if record.LatestRound == 0 {
		return stablecoin.RoundData{}, fmt.Errorf("%w: %s", ErrNoRounds, feed)
	}
	return s.round(feed, record, record.LatestRound)
}

// Round returns a historical round.
func (s *Store) Round(feed crypto.Address, id uint64) (stablecoin.RoundData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, err := s.loadFeed(feed)
	if err != nil {
		return stablecoin.RoundData{}, err
	}
	if id == 0 || id > record.LatestRound {
		return stablecoin.RoundData{}, fmt.Errorf("%w: %s round %d", ErrRoundNotFound, feed, id)
	}
	return s.round(feed, record, id)
}

func (s *Store) round(feed crypto.Address, record *storedFeed, id uint64) (stablecoin.RoundData, error) {
	stored := new(storedRound)
	ok, err := s.get(roundKey(feed, id), stored)
	if err != nil {
		return stablecoin.RoundData{}, err
	}
	if !ok {
		return stablecoin.RoundData{}, fmt.Errorf("%w: %s round %d", ErrRoundNotFound, feed, id)
	}
	return toRoundData(stored, record.Decimals), nil
}

func toRoundData(round *storedRound, decimals uint8) stablecoin.RoundData {
	return stablecoin.RoundData{
		RoundID:         round.RoundID,
		Answer:          new(big.Int).Set(round.Answer),
		Decimals:        decimals,
		StartedAt:       time.Unix(int64(round.StartedAt), 0).UTC(),
		UpdatedAt:       time.Unix(int64(round.UpdatedAt), 0).UTC(),
		AnsweredInRound: round.RoundID,
	}
}

func deviates(previous, next *big.Int, bps uint64) bool {
	if previous == nil || previous.Sign() <= 0 {
		return false
	}
	diff := new(big.Int).Sub(next, previous)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10_000))
	limit := new(big.Int).Mul(previous, new(big.Int).SetUint64(bps))
	return diff.Cmp(limit) > 0
}
