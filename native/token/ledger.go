package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"dscengine/crypto"
	"dscengine/storage"
)

var (
	ErrTokenNotRegistered     = errors.New("token: not registered")
	ErrTokenExists            = errors.New("token: already registered")
	ErrInvalidAmount          = errors.New("token: invalid amount")
	ErrInsufficientBalance    = errors.New("token: insufficient balance")
	ErrInsufficientAllowance  = errors.New("token: insufficient allowance")
	ErrUnauthorizedMinter     = errors.New("token: caller is not the mint authority")
	ErrMintPaused             = errors.New("token: minting paused")
	ErrSupplyOverflow         = errors.New("token: supply overflow")
	errEmptyAddress           = errors.New("token: address must not be empty")
	errMetadataSymbolRequired = errors.New("token: symbol must not be empty")
)

// Metadata describes a ledger-managed token.
type Metadata struct {
	Symbol        string
	Name          string
	Decimals      uint8
	MintAuthority []byte
	MintPaused    bool
}

var (
	tokenPrefix     = []byte("token:")
	tokenListKey    = ethcrypto.Keccak256([]byte("token-list"))
	balancePrefix   = []byte("balance:")
	allowancePrefix = []byte("allowance:")
	supplyPrefix    = []byte("supply:")
)

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func metadataKey(asset crypto.Address) []byte {
	return joinKey(tokenPrefix, asset.Bytes())
}

func balanceKey(asset, owner crypto.Address) []byte {
	return joinKey(balancePrefix, asset.Bytes(), owner.Bytes())
}

func allowanceKey(asset, owner, spender crypto.Address) []byte {
	return joinKey(allowancePrefix, asset.Bytes(), owner.Bytes(), spender.Bytes())
}

func supplyKey(asset crypto.Address) []byte {
	return joinKey(supplyPrefix, asset.Bytes())
}

// Ledger keeps balances, allowances and supply for any number of tokens in a
// key-value database. Every exported method is atomic with respect to the
// others.
type Ledger struct {
	mu sync.Mutex
	db storage.Database
}

// NewLedger wraps db.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) get(key []byte, out interface{}) (bool, error) {
	data, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return l.db.Put(key, encoded)
}

func (l *Ledger) loadMetadata(asset crypto.Address) (*Metadata, error) {
	meta := new(Metadata)
	ok, err := l.get(metadataKey(asset), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotRegistered, asset)
	}
	return meta, nil
}

func (l *Ledger) loadAmount(key []byte) (*uint256.Int, error) {
	amount := new(big.Int)
	ok, err := l.get(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrSupplyOverflow
	}
	return word, nil
}

func (l *Ledger) storeAmount(key []byte, amount *uint256.Int) error {
	if amount.IsZero() {
		return l.db.Delete(key)
	}
	return l.put(key, amount.ToBig())
}

func amountWord(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds 256 bits", ErrInvalidAmount, amount)
	}
	return word, nil
}

func requireAddress(addrs ...crypto.Address) error {
	for _, addr := range addrs {
		if len(addr.Bytes()) == 0 {
			return errEmptyAddress
		}
	}
	return nil
}

// RegisterToken records metadata for asset and adds it to the token index.
func (l *Ledger) RegisterToken(asset crypto.Address, symbol, name string, decimals uint8) error {
	if err := requireAddress(asset); err != nil {
		return err
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return errMetadataSymbolRequired
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.loadMetadata(asset); err == nil {
		return fmt.Errorf("%w: %s", ErrTokenExists, asset)
	} else if !errors.Is(err, ErrTokenNotRegistered) {
		return err
	}
	var list [][]byte
	if _, err := l.get(tokenListKey, &list); err != nil {
		return err
	}
	list = append(list, append([]byte(nil), asset.Bytes()...))
	if err := l.put(tokenListKey, list); err != nil {
		return err
	}
	return l.put(metadataKey(asset), &Metadata{Symbol: normalized, Name: strings.TrimSpace(name), Decimals: decimals})
}

// Token returns the metadata registered for asset.
func (l *Ledger) Token(asset crypto.Address) (*Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadMetadata(asset)
}

// TokenList returns the registered assets in registration order.
func (l *Ledger) TokenList() ([]crypto.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var list [][]byte
	if _, err := l.get(tokenListKey, &list); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(list))
	for _, raw := range list {
		out = append(out, crypto.NewAddress(crypto.AssetPrefix, raw))
	}
	return out, nil
}

// SetMintAuthority grants the exclusive right to mint and burn asset.
func (l *Ledger) SetMintAuthority(asset, authority crypto.Address) error {
	if err := requireAddress(authority); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	meta, err := l.loadMetadata(asset)
	if err != nil {
		return err
	}
	meta.MintAuthority = append([]byte(nil), authority.Bytes()...)
	return l.put(metadataKey(asset), meta)
}

// SetMintPaused stops or resumes minting of asset. Burns are unaffected.
func (l *Ledger) SetMintPaused(asset crypto.Address, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	meta, err := l.loadMetadata(asset)
	if err != nil {
		return err
	}
	meta.MintPaused = paused
	return l.put(metadataKey(asset), meta)
}

// Balance returns owner's holding of asset.
func (l *Ledger) Balance(asset, owner crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, err := l.loadAmount(balanceKey(asset, owner))
	if err != nil {
		return nil, err
	}
	return amount.ToBig(), nil
}

// Allowance returns how much of owner's asset spender may move.
func (l *Ledger) Allowance(asset, owner, spender crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, err := l.loadAmount(allowanceKey(asset, owner, spender))
	if err != nil {
		return nil, err
	}
	return amount.ToBig(), nil
}

// TotalSupply returns the minted supply of asset.
func (l *Ledger) TotalSupply(asset crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, err := l.loadAmount(supplyKey(asset))
	if err != nil {
		return nil, err
	}
	return amount.ToBig(), nil
}

// Approve sets spender's allowance over owner's asset. A zero amount revokes.
func (l *Ledger) Approve(asset, owner, spender crypto.Address, amount *big.Int) error {
	if err := requireAddress(owner, spender); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.loadMetadata(asset); err != nil {
		return err
	}
	return l.storeAmount(allowanceKey(asset, owner, spender), word)
}

// Transfer moves amount of asset from one holder to another.
func (l *Ledger) Transfer(asset, from, to crypto.Address, amount *big.Int) error {
	if err := requireAddress(from, to); err != nil {
		return err
	}
	word, err := amountWord(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.loadMetadata(asset); err != nil {
		return err
	}
	return l.move(asset, from, to, word)
}

// TransferFrom moves amount of asset from owner to to on behalf of spender,
// consuming allowance.
func (l *Ledger) TransferFrom(asset, spender, owner, to crypto.Address, amount *big.Int) error {
	if err := requireAddress(spender, owner, to); err != nil {
		return err
	}
	word, err := amountWord(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.loadMetadata(asset); err != nil {
		return err
	}
	key := allowanceKey(asset, owner, spender)
	allowance, err := l.loadAmount(key)
	if err != nil {
		return err
	}
	if allowance.Lt(word) {
		return fmt.Errorf("%w: %s approved %s, need %s", ErrInsufficientAllowance, owner, allowance.Dec(), word.Dec())
	}
	if err := l.move(asset, owner, to, word); err != nil {
		return err
	}
	return l.storeAmount(key, new(uint256.Int).Sub(allowance, word))
}

func (l *Ledger) move(asset, from, to crypto.Address, amount *uint256.Int) error {
	fromKey := balanceKey(asset, from)
	fromBal, err := l.loadAmount(fromKey)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, from, fromBal.Dec(), amount.Dec())
	}
	if from.Equal(to) {
		return nil
	}
	toKey := balanceKey(asset, to)
	toBal, err := l.loadAmount(toKey)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	if err := l.storeAmount(fromKey, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.storeAmount(toKey, next)
}

func (l *Ledger) requireAuthority(asset, caller crypto.Address) (*Metadata, error) {
	meta, err := l.loadMetadata(asset)
	if err != nil {
		return nil, err
	}
	if len(meta.MintAuthority) == 0 || !caller.Equal(crypto.NewAddress(caller.Prefix(), meta.MintAuthority)) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorizedMinter, caller)
	}
	return meta, nil
}

// Mint creates amount of asset for to. Only the mint authority may call it.
func (l *Ledger) Mint(asset, caller, to crypto.Address, amount *big.Int) error {
	if err := requireAddress(caller, to); err != nil {
		return err
	}
	word, err := amountWord(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	meta, err := l.requireAuthority(asset, caller)
	if err != nil {
		return err
	}
	if meta.MintPaused {
		return fmt.Errorf("%w: %s", ErrMintPaused, meta.Symbol)
	}
	supply, err := l.loadAmount(supplyKey(asset))
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, word)
	if overflow {
		return ErrSupplyOverflow
	}
	balKey := balanceKey(asset, to)
	balance, err := l.loadAmount(balKey)
	if err != nil {
		return err
	}
	if err := l.storeAmount(balKey, new(uint256.Int).Add(balance, word)); err != nil {
		return err
	}
	return l.storeAmount(supplyKey(asset), nextSupply)
}

// Burn destroys amount of asset held by from. Only the mint authority may
// call it.
func (l *Ledger) Burn(asset, caller, from crypto.Address, amount *big.Int) error {
	if err := requireAddress(caller, from); err != nil {
		return err
	}
	word, err := amountWord(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.requireAuthority(asset, caller); err != nil {
		return err
	}
	balKey := balanceKey(asset, from)
	balance, err := l.loadAmount(balKey)
	if err != nil {
		return err
	}
	if balance.Lt(word) {
		return fmt.Errorf("%w: %s holds %s, burn %s", ErrInsufficientBalance, from, balance.Dec(), word.Dec())
	}
	supply, err := l.loadAmount(supplyKey(asset))
	if err != nil {
		return err
	}
	if supply.Lt(word) {
		return fmt.Errorf("%w: supply %s below burn %s", ErrInsufficientBalance, supply.Dec(), word.Dec())
	}
	if err := l.storeAmount(balKey, new(uint256.Int).Sub(balance, word)); err != nil {
		return err
	}
	return l.storeAmount(supplyKey(asset), new(uint256.Int).Sub(supply, word))
}
