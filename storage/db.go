package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	leveldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("storage: key not found")
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("storage: database closed")
)

// Database is the key-value store behind positions, token ledgers and price
// feeds. Get returns a copy the caller may retain.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Close() error
}

// MemDB keeps everything in a map. Used by tests and by stabled when no
// data_dir is configured.
type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	delete(db.data, string(key))
	return nil
}

// Len reports the number of stored keys.
func (db *MemDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data)
}

func (db *MemDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

// LevelOptions tunes the on-disk store. Zero values use goleveldb defaults.
type LevelOptions struct {
	CacheMB     int
	OpenFiles   int
	ReadOnly    bool
	NoSync      bool
	AutoRecover bool
}

// LevelDB is the persistent Database.
type LevelDB struct {
	db   *leveldb.DB
	sync bool
}

// NewLevelDB opens or creates a store at path with default options and
// automatic recovery of a corrupted manifest.
func NewLevelDB(path string) (*LevelDB, error) {
	return OpenLevelDB(path, LevelOptions{AutoRecover: true})
}

// OpenLevelDB opens path with explicit options.
func OpenLevelDB(path string, opts LevelOptions) (*LevelDB, error) {
	o := &opt.Options{
		ReadOnly:               opts.ReadOnly,
		OpenFilesCacheCapacity: opts.OpenFiles,
	}
	if opts.CacheMB > 0 {
		o.BlockCacheCapacity = opts.CacheMB * opt.MiB
	}
	db, err := leveldb.OpenFile(path, o)
	if leveldberrors.IsCorrupted(err) && opts.AutoRecover && !opts.ReadOnly {
		db, err = leveldb.RecoverFile(path, o)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &LevelDB{db: db, sync: !opts.NoSync}, nil
}

func (ldb *LevelDB) writeOptions() *opt.WriteOptions {
	return &opt.WriteOptions{Sync: ldb.sync}
}

func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return translate(ldb.db.Put(key, value, ldb.writeOptions()))
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if err != nil {
		return nil, translate(err)
	}
	return value, nil
}

// Delete removes the key. Missing keys are not an error.
func (ldb *LevelDB) Delete(key []byte) error {
	return translate(ldb.db.Delete(key, ldb.writeOptions()))
}

func (ldb *LevelDB) Close() error {
	return translate(ldb.db.Close())
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return ErrClosed
	default:
		return err
	}
}
