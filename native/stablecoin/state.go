package stablecoin

import (
	"errors"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"dscengine/crypto"
	"dscengine/storage"
)

type engineState interface {
	GetPosition(addr crypto.Address) (*Position, error)
	PutPosition(pos *Position) error
	GetTotals() (*Totals, error)
	PutTotals(totals *Totals) error
}

var (
	positionPrefix = []byte("stablecoin/position/")
	totalsKey      = ethcrypto.Keccak256([]byte("stablecoin/totals"))
)

func positionKey(addr []byte) []byte {
	buf := make([]byte, len(positionPrefix)+len(addr))
	copy(buf, positionPrefix)
	copy(buf[len(positionPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

type storedAmount struct {
	Key    []byte
	Amount *big.Int
}

type storedPosition struct {
	Prefix     string
	Address    []byte
	Debt       *big.Int
	Collateral []storedAmount
}

type storedTotals struct {
	Debt       *big.Int
	Collateral []storedAmount
}

func encodeAmounts(m map[string]*big.Int) []storedAmount {
	out := make([]storedAmount, 0, len(m))
	for _, key := range sortedKeys(m) {
		amount := m[key]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		out = append(out, storedAmount{Key: []byte(key), Amount: new(big.Int).Set(amount)})
	}
	return out
}

func decodeAmounts(list []storedAmount) map[string]*big.Int {
	out := make(map[string]*big.Int, len(list))
	for _, entry := range list {
		if entry.Amount == nil {
			continue
		}
		out[string(entry.Key)] = new(big.Int).Set(entry.Amount)
	}
	return out
}

// Store persists positions and totals as RLP records in a key-value database.
type Store struct {
	mu sync.RWMutex
	db storage.Database
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// GetPosition loads the position for addr. Unknown accounts yield nil.
func (s *Store) GetPosition(addr crypto.Address) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get(positionKey(addr.Bytes()))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := new(storedPosition)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, err
	}
	pos := &Position{
		Address:    addr,
		Debt:       big.NewInt(0),
		Collateral: decodeAmounts(record.Collateral),
	}
	if record.Debt != nil {
		pos.Debt.Set(record.Debt)
	}
	return pos, nil
}

// PutPosition writes pos. Empty positions are deleted.
func (s *Store) PutPosition(pos *Position) error {
	if pos == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey(pos.Address.Bytes())
	if pos.IsEmpty() {
		return s.db.Delete(key)
	}
	debt := big.NewInt(0)
	if pos.Debt != nil {
		debt.Set(pos.Debt)
	}
	encoded, err := rlp.EncodeToBytes(&storedPosition{
		Prefix:     string(pos.Address.Prefix()),
		Address:    append([]byte(nil), pos.Address.Bytes()...),
		Debt:       debt,
		Collateral: encodeAmounts(pos.Collateral),
	})
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

// GetTotals loads the aggregate record.
func (s *Store) GetTotals() (*Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get(totalsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return newTotals(), nil
	}
	if err != nil {
		return nil, err
	}
	record := new(storedTotals)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, err
	}
	totals := &Totals{Debt: big.NewInt(0), Collateral: decodeAmounts(record.Collateral)}
	if record.Debt != nil {
		totals.Debt.Set(record.Debt)
	}
	return totals, nil
}

// PutTotals writes the aggregate record.
func (s *Store) PutTotals(totals *Totals) error {
	if totals == nil {
		totals = newTotals()
	}
	debt := big.NewInt(0)
	if totals.Debt != nil {
		debt.Set(totals.Debt)
	}
	encoded, err := rlp.EncodeToBytes(&storedTotals{Debt: debt, Collateral: encodeAmounts(totals.Collateral)})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(totalsKey, encoded)
}
