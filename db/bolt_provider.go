package db

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mezonai/blockfs/errx"
)

const (
	boltFileName    = "catalog.db"
	boltOpenTimeout = time.Second
)

var boltBucket = []byte("catalog")

// BoltProvider implements Provider on a single bbolt file. bbolt holds an
// exclusive flock on the file for the life of the handle, which doubles as
// the repository instance lock, and fsyncs every update transaction, which
// gives Put/Delete their durability guarantee.
type BoltProvider struct {
	db *bolt.DB
}

// NewBoltProvider opens the bbolt database inside directory. With create
// set, a pre-existing database is refused; without it, a missing one is.
func NewBoltProvider(directory string, create bool) (Provider, error) {
	path := filepath.Join(directory, boltFileName)
	_, statErr := os.Stat(path)
	if create {
		if statErr == nil {
			return nil, errx.Newf(errx.CodeAlreadyExists, "repository catalog already exists at %s", path)
		}
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return nil, errx.Wrap(errx.CodeIO, "failed to create catalog directory", err)
		}
	} else if os.IsNotExist(statErr) {
		return nil, errx.Newf(errx.CodeNotFound, "no repository catalog at %s", path)
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, classifyBoltOpenErr(err)
	}

	if create {
		err = bdb.Update(func(tx *bolt.Tx) error {
			_, e := tx.CreateBucketIfNotExists(boltBucket)
			return e
		})
		if err != nil {
			bdb.Close()
			return nil, errx.Wrap(errx.CodeIO, "failed to initialize catalog bucket", err)
		}
	} else {
		err = bdb.View(func(tx *bolt.Tx) error {
			if tx.Bucket(boltBucket) == nil {
				return errx.New(errx.CodeCorruptState, "catalog bucket missing")
			}
			return nil
		})
		if err != nil {
			bdb.Close()
			return nil, err
		}
	}

	return &BoltProvider{db: bdb}, nil
}

func classifyBoltOpenErr(err error) error {
	switch {
	case errors.Is(err, bolt.ErrTimeout):
		return errx.Wrap(errx.CodeAlreadyExists, "repository is locked by another instance", err)
	case errors.Is(err, bolt.ErrInvalid),
		errors.Is(err, bolt.ErrVersionMismatch),
		errors.Is(err, bolt.ErrChecksum):
		return errx.Wrap(errx.CodeCorruptState, "catalog database unreadable", err)
	default:
		return errx.Wrap(errx.CodeIO, "failed to open catalog database", err)
	}
}

// Get retrieves a value by key
func (p *BoltProvider) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get(key); v != nil {
			// bolt values are only valid inside the transaction
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errx.Wrap(errx.CodeIO, "catalog read failed", err)
	}
	return value, nil
}

// Put durably stores a key-value pair
func (p *BoltProvider) Put(key, value []byte) error {
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
	if err != nil {
		return errx.Wrap(errx.CodeIO, "catalog write failed", err)
	}
	return nil
}

// Delete durably removes a key-value pair
func (p *BoltProvider) Delete(key []byte) error {
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
	if err != nil {
		return errx.Wrap(errx.CodeIO, "catalog delete failed", err)
	}
	return nil
}

// Has checks if a key exists
func (p *BoltProvider) Has(key []byte) (bool, error) {
	var found bool
	err := p.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(boltBucket).Get(key) != nil
		return nil
	})
	if err != nil {
		return false, errx.Wrap(errx.CodeIO, "catalog read failed", err)
	}
	return found, nil
}

// IteratePrefix iterates over all key-value pairs with the given prefix
func (p *BoltProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	err := p.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !callback(append([]byte(nil), k...), append([]byte(nil), v...)) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return errx.Wrap(errx.CodeIO, "catalog scan failed", err)
	}
	return nil
}

// Close closes the database and releases the instance lock
func (p *BoltProvider) Close() error {
	if err := p.db.Close(); err != nil {
		return errx.Wrap(errx.CodeIO, "catalog close failed", err)
	}
	return nil
}
