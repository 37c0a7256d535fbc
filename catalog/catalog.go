// Package catalog persists the repository's block mapping: which block ids
// exist, how large they are, and where their bytes live. It is the
// crash-consistency anchor of the store — a block is durable exactly when
// its entry is committed here.
package catalog

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/mezonai/blockfs/block"
	"github.com/mezonai/blockfs/db"
	"github.com/mezonai/blockfs/errx"
	"github.com/mezonai/blockfs/jsonx"
)

const (
	// Key prefixes
	prefixMeta   = "meta:"
	prefixBlocks = "blocks:"

	// Metadata keys
	keyInfo = "info"

	// Key sizes
	idKeySize = 8

	// FormatVersion is bumped on incompatible record layout changes.
	FormatVersion = 1
)

// EntryState tracks whether a block is reachable or awaiting reclamation.
type EntryState string

const (
	// EntryLive marks a committed, openable block.
	EntryLive EntryState = "live"
	// EntryDeleted marks a tombstoned block whose space has not been
	// reclaimed yet.
	EntryDeleted EntryState = "deleted"
)

// Entry is one block's durable record.
type Entry struct {
	ID        block.ID   `json:"id"`
	Size      uint64     `json:"size"`
	State     EntryState `json:"state"`
	Extent    string     `json:"extent"`
	CreatedAt int64      `json:"created_at_unix_nano"`
	DeletedAt int64      `json:"deleted_at_unix_nano,omitempty"`
}

// Meta identifies the repository itself.
type Meta struct {
	FormatVersion int    `json:"format_version"`
	RepositoryID  string `json:"repository_id"`
	CreatedAt     int64  `json:"created_at_unix_nano"`
}

// Catalog is the block mapping over a db.Provider. Reads are safe for
// concurrent use; writers (Commit/MarkDeleted/Purge) are serialized by the
// managing block store.
type Catalog struct {
	provider db.Provider
	meta     Meta
}

// idToKey converts a block id to its catalog key with the blocks prefix
func idToKey(id block.ID) []byte {
	idBytes := make([]byte, idKeySize)
	binary.BigEndian.PutUint64(idBytes, uint64(id))
	return append([]byte(prefixBlocks), idBytes...)
}

func metaKey() []byte {
	return []byte(prefixMeta + keyInfo)
}

// Create initializes a fresh catalog on an empty provider.
func Create(provider db.Provider) (*Catalog, error) {
	existing, err := provider.Get(metaKey())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errx.New(errx.CodeAlreadyExists, "catalog is already initialized")
	}

	meta := Meta{
		FormatVersion: FormatVersion,
		RepositoryID:  uuid.NewString(),
		CreatedAt:     time.Now().UnixNano(),
	}
	raw, err := jsonx.Marshal(meta)
	if err != nil {
		return nil, errx.Wrap(errx.CodeIO, "failed to encode catalog meta", err)
	}
	if err := provider.Put(metaKey(), raw); err != nil {
		return nil, err
	}
	return &Catalog{provider: provider, meta: meta}, nil
}

// Open loads and validates an existing catalog.
func Open(provider db.Provider) (*Catalog, error) {
	raw, err := provider.Get(metaKey())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errx.New(errx.CodeCorruptState, "catalog meta record missing")
	}

	var meta Meta
	if err := jsonx.Unmarshal(raw, &meta); err != nil {
		return nil, errx.Wrap(errx.CodeCorruptState, "catalog meta record unreadable", err)
	}
	if meta.FormatVersion != FormatVersion {
		return nil, errx.Newf(errx.CodeCorruptState,
			"catalog format version %d, want %d", meta.FormatVersion, FormatVersion)
	}
	return &Catalog{provider: provider, meta: meta}, nil
}

// Meta returns the repository identity record loaded at Create/Open time.
func (c *Catalog) Meta() Meta {
	return c.meta
}

// Commit durably inserts a freshly closed block. The id becomes openable
// the moment this returns.
func (c *Catalog) Commit(e Entry) error {
	key := idToKey(e.ID)
	found, err := c.provider.Has(key)
	if err != nil {
		return err
	}
	if found {
		return errx.Newf(errx.CodeAlreadyExists, "block %s is already cataloged", e.ID)
	}

	raw, err := jsonx.Marshal(e)
	if err != nil {
		return errx.Wrapf(errx.CodeIO, err, "failed to encode entry for block %s", e.ID)
	}
	return c.provider.Put(key, raw)
}

// Get returns the entry for id, tombstoned or not. Absent ids report
// not-found; callers distinguish deletion by Entry.State.
func (c *Catalog) Get(id block.ID) (Entry, error) {
	raw, err := c.provider.Get(idToKey(id))
	if err != nil {
		return Entry{}, err
	}
	if raw == nil {
		return Entry{}, errx.Newf(errx.CodeNotFound, "block %s not found", id)
	}

	var e Entry
	if err := jsonx.Unmarshal(raw, &e); err != nil {
		return Entry{}, errx.Wrapf(errx.CodeCorruptState, err, "entry for block %s unreadable", id)
	}
	return e, nil
}

// Has reports whether any entry, live or tombstoned, exists for id.
// Tombstoned ids still count: their space is not reclaimed yet, so the id
// cannot be reused.
func (c *Catalog) Has(id block.ID) (bool, error) {
	return c.provider.Has(idToKey(id))
}

// MarkDeleted durably tombstones a live block, making it unreachable to
// opens. Absent and already tombstoned ids report not-found.
func (c *Catalog) MarkDeleted(id block.ID) error {
	e, err := c.Get(id)
	if err != nil {
		return err
	}
	if e.State == EntryDeleted {
		return errx.Newf(errx.CodeNotFound, "block %s not found", id)
	}

	e.State = EntryDeleted
	e.DeletedAt = time.Now().UnixNano()
	raw, err := jsonx.Marshal(e)
	if err != nil {
		return errx.Wrapf(errx.CodeIO, err, "failed to encode tombstone for block %s", id)
	}
	return c.provider.Put(idToKey(id), raw)
}

// Purge removes an entry outright once its space has been reclaimed,
// freeing the id for reuse.
func (c *Catalog) Purge(id block.ID) error {
	return c.provider.Delete(idToKey(id))
}

// ForEach scans every entry in ascending id order. The callback returns
// false to stop early.
func (c *Catalog) ForEach(fn func(Entry) bool) error {
	var decodeErr error
	err := c.provider.IteratePrefix([]byte(prefixBlocks), func(key, value []byte) bool {
		var e Entry
		if err := jsonx.Unmarshal(value, &e); err != nil {
			decodeErr = errx.Wrapf(errx.CodeCorruptState, err, "entry at key %q unreadable", key)
			return false
		}
		return fn(e)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// Close closes the underlying provider.
func (c *Catalog) Close() error {
	return c.provider.Close()
}
