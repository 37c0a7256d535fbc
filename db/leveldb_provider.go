package db

import (
	"errors"
	"os"
	"syscall"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mezonai/blockfs/errx"
)

// syncWrites forces every write through to stable storage, which the
// catalog's durability contract requires.
var syncWrites = &opt.WriteOptions{Sync: true}

// LevelDBProvider implements Provider for LevelDB. LevelDB's LOCK file
// provides the repository instance lock.
type LevelDBProvider struct {
	db *leveldb.DB
}

// NewLevelDBProvider opens the LevelDB database at directory. With create
// set, a pre-existing database is refused; without it, a missing one is.
func NewLevelDBProvider(directory string, create bool) (Provider, error) {
	_, statErr := os.Stat(directory)
	if create {
		if statErr == nil {
			return nil, errx.Newf(errx.CodeAlreadyExists, "repository catalog already exists at %s", directory)
		}
	} else if os.IsNotExist(statErr) {
		return nil, errx.Newf(errx.CodeNotFound, "no repository catalog at %s", directory)
	}

	ldb, err := leveldb.OpenFile(directory, &opt.Options{
		ErrorIfMissing: !create,
	})
	if err != nil {
		switch {
		case ldberrors.IsCorrupted(err):
			return nil, errx.Wrap(errx.CodeCorruptState, "catalog database unreadable", err)
		case os.IsNotExist(err):
			return nil, errx.Wrapf(errx.CodeNotFound, err, "no repository catalog at %s", directory)
		case errors.Is(err, syscall.EAGAIN):
			// The LOCK file is flocked by a live instance.
			return nil, errx.Wrap(errx.CodeAlreadyExists, "repository is locked by another instance", err)
		default:
			return nil, errx.Wrap(errx.CodeIO, "failed to open catalog database", err)
		}
	}

	return &LevelDBProvider{db: ldb}, nil
}

// Get retrieves a value by key
func (p *LevelDBProvider) Get(key []byte) ([]byte, error) {
	value, err := p.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil // Return nil for not found, consistent with interface
		}
		return nil, errx.Wrap(errx.CodeIO, "catalog read failed", err)
	}
	return value, nil
}

// Put durably stores a key-value pair
func (p *LevelDBProvider) Put(key, value []byte) error {
	if err := p.db.Put(key, value, syncWrites); err != nil {
		return errx.Wrap(errx.CodeIO, "catalog write failed", err)
	}
	return nil
}

// Delete durably removes a key-value pair
func (p *LevelDBProvider) Delete(key []byte) error {
	if err := p.db.Delete(key, syncWrites); err != nil {
		return errx.Wrap(errx.CodeIO, "catalog delete failed", err)
	}
	return nil
}

// Has checks if a key exists
func (p *LevelDBProvider) Has(key []byte) (bool, error) {
	found, err := p.db.Has(key, nil)
	if err != nil {
		return false, errx.Wrap(errx.CodeIO, "catalog read failed", err)
	}
	return found, nil
}

// IteratePrefix iterates over all key-value pairs with the given prefix
func (p *LevelDBProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	iter := p.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		// Iterator buffers are reused between Next calls
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		if !callback(k, v) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return errx.Wrap(errx.CodeIO, "catalog scan failed", err)
	}
	return nil
}

// Close closes the database and releases the instance lock
func (p *LevelDBProvider) Close() error {
	if err := p.db.Close(); err != nil {
		return errx.Wrap(errx.CodeIO, "catalog close failed", err)
	}
	return nil
}
