package blockstore

import (
	"path/filepath"

	"github.com/mezonai/blockfs/catalog"
	"github.com/mezonai/blockfs/db"
	"github.com/mezonai/blockfs/device"
	"github.com/mezonai/blockfs/errx"
	"github.com/mezonai/blockfs/logx"
)

// StoreKind selects where block bytes live.
type StoreKind string

const (
	// FileStore persists extents as files under the repository directory.
	FileStore StoreKind = "file"
	// MemStore keeps everything in process memory. Nothing survives Close.
	MemStore StoreKind = "mem"
)

// CatalogBackend selects the database holding the id-to-extent mapping.
type CatalogBackend string

const (
	CatalogBolt    CatalogBackend = "bolt"
	CatalogLevelDB CatalogBackend = "leveldb"
)

const levelDBCatalogDir = "catalog"

// Options configures a repository. Use the constructors: the durability
// knobs default to on there, and a zero Options value would silently turn
// them off.
type Options struct {
	Kind      StoreKind
	Directory string
	// Catalog picks the file-store catalog database. Mem repositories
	// always keep their catalog in memory.
	Catalog CatalogBackend

	// SyncOnClose runs the data barrier during block close. Off trades
	// crash durability for speed; only for throwaway data.
	SyncOnClose bool
	// SyncDirs makes directory entries durable before blocks are
	// registered. Same warning as SyncOnClose.
	SyncDirs bool
}

// NewFileStoreOptions returns options for a file-backed repository rooted
// at directory, with the default (bolt) catalog and full durability.
func NewFileStoreOptions(directory string) *Options {
	return &Options{
		Kind:        FileStore,
		Directory:   directory,
		Catalog:     CatalogBolt,
		SyncOnClose: true,
		SyncDirs:    true,
	}
}

// NewMemStoreOptions returns options for an in-memory repository.
func NewMemStoreOptions() *Options {
	return &Options{
		Kind:        MemStore,
		SyncOnClose: true,
		SyncDirs:    true,
	}
}

func (o *Options) Validate() error {
	switch o.Kind {
	case FileStore:
		if o.Directory == "" {
			return errx.New(errx.CodeInvalidState, "file store requires a directory")
		}
	case MemStore:
	default:
		return errx.Newf(errx.CodeInvalidState, "unsupported store kind %q", o.Kind)
	}
	switch o.Catalog {
	case "", CatalogBolt, CatalogLevelDB:
	default:
		return errx.Newf(errx.CodeInvalidState, "unsupported catalog backend %q", o.Catalog)
	}
	return nil
}

func (o *Options) catalogBackend() CatalogBackend {
	if o.Catalog == "" {
		return CatalogBolt
	}
	return o.Catalog
}

// CreateStore initializes a fresh repository and returns its manager.
// Fails with already-exists if a repository is present at the directory.
func CreateStore(opts *Options) (Manager, error) {
	return buildStore(opts, true)
}

// OpenStore loads an existing repository, takes its instance lock, and
// finishes any recovery work a previous instance left behind. Fails with
// not-found if no repository is present, corrupt-state if one is present
// but unreadable, already-exists if another live instance holds the lock.
func OpenStore(opts *Options) (Manager, error) {
	return buildStore(opts, false)
}

func buildStore(opts *Options, create bool) (Manager, error) {
	if opts == nil {
		return nil, errx.New(errx.CodeInvalidState, "options cannot be nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Kind == MemStore {
		return buildMemStore(opts, create)
	}
	return buildFileStore(opts, create)
}

func buildMemStore(opts *Options, create bool) (Manager, error) {
	if !create {
		return nil, errx.New(errx.CodeNotFound, "mem repositories are not persistent and cannot be reopened")
	}
	cat, err := catalog.Create(db.NewMemProvider())
	if err != nil {
		return nil, err
	}
	logx.Info("BLOCKSTORE", "created mem repository", cat.Meta().RepositoryID)
	return newBlockStore(cat, device.NewMemDevice(), opts), nil
}

func buildFileStore(opts *Options, create bool) (Manager, error) {
	if create {
		return createFileStore(opts)
	}
	return openFileStore(opts)
}

func createFileStore(opts *Options) (Manager, error) {
	// Device directories first: they are idempotent and carry no
	// repository-present signal. The catalog database is the gate that
	// makes double creation fail.
	dev, err := device.NewFileDevice(opts.Directory, true)
	if err != nil {
		return nil, err
	}
	provider, err := newCatalogProvider(opts, true)
	if err != nil {
		dev.Close()
		return nil, err
	}
	cat, err := catalog.Create(provider)
	if err != nil {
		provider.Close()
		dev.Close()
		return nil, err
	}
	logx.Info("BLOCKSTORE", "created repository", cat.Meta().RepositoryID, "at", opts.Directory)
	return newBlockStore(cat, dev, opts), nil
}

func openFileStore(opts *Options) (Manager, error) {
	// Catalog first: it holds the instance lock and decides between
	// absent (not-found) and unreadable (corrupt-state).
	provider, err := newCatalogProvider(opts, false)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(provider)
	if err != nil {
		provider.Close()
		return nil, err
	}
	dev, err := device.NewFileDevice(opts.Directory, false)
	if err != nil {
		cat.Close()
		if errx.IsNotFound(err) {
			// A catalog without its data directory is a broken
			// repository, not a missing one.
			return nil, errx.Wrap(errx.CodeCorruptState, "repository has no data directory", err)
		}
		return nil, err
	}
	store := newBlockStore(cat, dev, opts)
	if err := store.recoverRepository(); err != nil {
		dev.Close()
		cat.Close()
		return nil, err
	}
	logx.Info("BLOCKSTORE", "opened repository", cat.Meta().RepositoryID, "at", opts.Directory)
	return store, nil
}

func newCatalogProvider(opts *Options, create bool) (db.Provider, error) {
	switch opts.catalogBackend() {
	case CatalogBolt:
		return db.NewBoltProvider(opts.Directory, create)
	case CatalogLevelDB:
		return db.NewLevelDBProvider(filepath.Join(opts.Directory, levelDBCatalogDir), create)
	default:
		return nil, errx.Newf(errx.CodeInvalidState, "unsupported catalog backend %q", opts.Catalog)
	}
}
