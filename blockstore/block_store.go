package blockstore

import (
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/mezonai/blockfs/block"
	"github.com/mezonai/blockfs/catalog"
	"github.com/mezonai/blockfs/device"
	"github.com/mezonai/blockfs/errx"
	"github.com/mezonai/blockfs/logx"
	"github.com/mezonai/blockfs/monitoring"
)

// handleRefs tracks the open reader handles for one block id, plus whether
// the block has been deleted while they were open.
type handleRefs struct {
	count   int
	deleted bool
}

// BlockStore is the one concrete Manager. It is generic over its two
// collaborators: the catalog that durably maps ids to extents, and the
// device that stores extent bytes. Variants (file- or memory-backed, bolt
// or leveldb catalog) differ only in what the factory plugs in here.
//
// The mutex guards the id reservations, the open-handle set, and catalog
// registration. Block data I/O runs outside it, against extents owned by
// the individual handles.
type BlockStore struct {
	catalog *catalog.Catalog
	device  device.Device

	syncOnClose bool
	syncDirs    bool

	mu      sync.Mutex
	writers map[block.ID]struct{}
	refs    map[block.ID]*handleRefs
	closed  bool
}

var _ Manager = (*BlockStore)(nil)

func newBlockStore(cat *catalog.Catalog, dev device.Device, opts *Options) *BlockStore {
	return &BlockStore{
		catalog:     cat,
		device:      dev,
		syncOnClose: opts.SyncOnClose,
		syncDirs:    opts.SyncDirs,
		writers:     make(map[block.ID]struct{}),
		refs:        make(map[block.ID]*handleRefs),
	}
}

func (s *BlockStore) CreateAnonymousBlock(opts *CreateBlockOptions) (block.Writable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errx.New(errx.CodeInvalidState, "block store is closed")
	}
	id, err := s.nextIDLocked()
	if err != nil {
		return nil, err
	}
	return s.newWriterLocked(id)
}

func (s *BlockStore) CreateNamedBlock(opts *CreateBlockOptions, id block.ID) (block.Writable, error) {
	if id.IsNull() {
		return nil, errx.New(errx.CodeInvalidState, "null block id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errx.New(errx.CodeInvalidState, "block store is closed")
	}
	if _, busy := s.writers[id]; busy {
		return nil, errx.Newf(errx.CodeAlreadyExists, "block %s is already being written", id)
	}
	found, err := s.catalog.Has(id)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, errx.Newf(errx.CodeAlreadyExists, "block %s already exists", id)
	}
	return s.newWriterLocked(id)
}

// nextIDLocked draws ids until one collides with neither a cataloged block
// nor an in-progress writer. With 64 random bits the loop all but never
// repeats.
func (s *BlockStore) nextIDLocked() (block.ID, error) {
	for {
		id, err := block.GenerateID()
		if err != nil {
			return block.NullID, err
		}
		if _, busy := s.writers[id]; busy {
			continue
		}
		found, err := s.catalog.Has(id)
		if err != nil {
			return block.NullID, err
		}
		if !found {
			return id, nil
		}
	}
}

func (s *BlockStore) newWriterLocked(id block.ID) (block.Writable, error) {
	extent, err := s.device.Create(id.String())
	if err != nil {
		return nil, err
	}
	s.writers[id] = struct{}{}
	monitoring.IncreaseBlocksCreated()
	monitoring.AddOpenWriters(1)
	return newWritableBlock(s, id, extent), nil
}

func (s *BlockStore) OpenBlock(id block.ID) (block.Readable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errx.New(errx.CodeInvalidState, "block store is closed")
	}
	entry, err := s.catalog.Get(id)
	if err != nil {
		return nil, err
	}
	if entry.State == catalog.EntryDeleted {
		return nil, errx.Newf(errx.CodeNotFound, "block %s not found", id)
	}
	extent, err := s.device.OpenRead(entry.Extent)
	if err != nil {
		if errx.IsNotFound(err) {
			// The catalog promises an extent the device does not have.
			return nil, errx.Wrapf(errx.CodeCorruptState, err, "block %s has no backing extent", id)
		}
		return nil, err
	}
	refs := s.refs[id]
	if refs == nil {
		refs = &handleRefs{}
		s.refs[id] = refs
	}
	refs.count++
	monitoring.AddOpenReaders(1)
	return newReadableBlock(s, id, entry.Size, extent), nil
}

func (s *BlockStore) DeleteBlock(id block.ID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errx.New(errx.CodeInvalidState, "block store is closed")
	}
	// Ids still being written are not in the catalog, so they correctly
	// report not-found here.
	if err := s.catalog.MarkDeleted(id); err != nil {
		s.mu.Unlock()
		return err
	}
	refs := s.refs[id]
	reclaimNow := refs == nil
	if refs != nil {
		refs.deleted = true
	}
	s.mu.Unlock()

	monitoring.IncreaseBlocksDeleted()
	if reclaimNow {
		if err := s.reclaim(id); err != nil {
			// The tombstone is durable, so the id is already gone for
			// callers; recovery retries reclamation at the next open.
			monitoring.RecordIOError(monitoring.IOOpDelete)
			logx.Error("BLOCKSTORE", "reclaiming block", id.String(), "failed:", err)
		}
	}
	return nil
}

// releaseReader is called by every reader handle exactly once, on Close.
func (s *BlockStore) releaseReader(id block.ID) {
	s.mu.Lock()
	refs := s.refs[id]
	if refs == nil {
		s.mu.Unlock()
		return
	}
	refs.count--
	last := refs.count == 0
	if last {
		delete(s.refs, id)
	}
	reclaim := last && refs.deleted && !s.closed
	s.mu.Unlock()

	monitoring.AddOpenReaders(-1)
	if reclaim {
		if err := s.reclaim(id); err != nil {
			monitoring.RecordIOError(monitoring.IOOpDelete)
			logx.Error("BLOCKSTORE", "deferred reclaim of block", id.String(), "failed:", err)
		}
	}
}

// reclaim frees a tombstoned block's space and then purges the tombstone.
// It runs at most once per deletion: either synchronously from DeleteBlock,
// from the last reader's Close, or from recovery after a restart. A crash
// between the two steps leaves the tombstone for recovery to finish.
func (s *BlockStore) reclaim(id block.ID) error {
	entry, err := s.catalog.Get(id)
	if err != nil {
		return err
	}
	if err := s.device.Remove(entry.Extent); err != nil && !errx.IsNotFound(err) {
		return err
	}
	if s.syncDirs {
		if err := s.device.SyncMeta(); err != nil {
			return err
		}
	}
	if err := s.catalog.Purge(id); err != nil {
		return err
	}
	monitoring.IncreaseBlocksReclaimed()
	return nil
}

// registerBlock is the commit point of a writer's Close: the block becomes
// durable, visible and openable here, or not at all.
func (s *BlockStore) registerBlock(id block.ID, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errx.New(errx.CodeInvalidState, "block store is closed")
	}
	err := s.catalog.Commit(catalog.Entry{
		ID:        id,
		Size:      size,
		State:     catalog.EntryLive,
		Extent:    id.String(),
		CreatedAt: time.Now().UnixNano(),
	})
	if err != nil {
		return err
	}
	delete(s.writers, id)
	monitoring.AddOpenWriters(-1)
	return nil
}

// abandonBlock releases a failed writer's id reservation and scrubs its
// extent best-effort. The id was never registered, so no caller can see it.
func (s *BlockStore) abandonBlock(id block.ID) {
	if err := s.device.Remove(id.String()); err != nil && !errx.IsNotFound(err) {
		logx.Error("BLOCKSTORE", "removing abandoned extent", id.String(), "failed:", err)
	}
	s.mu.Lock()
	if _, ok := s.writers[id]; ok {
		delete(s.writers, id)
		monitoring.AddOpenWriters(-1)
	}
	s.mu.Unlock()
}

func (s *BlockStore) CloseBlocks(blocks []block.Writable) error {
	var errs error
	// Phase 1: get flushes moving on every dirty member so their writeback
	// overlaps.
	for _, b := range blocks {
		if b.State() == block.StateDirty {
			if err := b.FlushDataAsync(); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	// Phase 2: close each member. Outcomes are independent; a block that
	// fails here stays out of StateClosed while the rest close durably.
	for _, b := range blocks {
		if err := b.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// recoverRepository finishes what a previous instance left behind: deleted
// blocks whose space was never reclaimed, and extents of writers that never
// reached their commit point.
func (s *BlockStore) recoverRepository() error {
	var tombstoned []block.ID
	liveExtents := make(map[string]struct{})
	live := 0
	err := s.catalog.ForEach(func(e catalog.Entry) bool {
		if e.State == catalog.EntryDeleted {
			tombstoned = append(tombstoned, e.ID)
		} else {
			liveExtents[e.Extent] = struct{}{}
			live++
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, id := range tombstoned {
		if err := s.reclaim(id); err != nil {
			return err
		}
	}
	if len(tombstoned) > 0 {
		logx.Info("BLOCKSTORE", "finished deferred reclamation of", len(tombstoned), "block(s)")
	}

	names, err := s.device.List()
	if err != nil {
		return err
	}
	orphans := 0
	for _, name := range names {
		if _, ok := liveExtents[name]; ok {
			continue
		}
		if err := s.device.Remove(name); err != nil {
			return err
		}
		monitoring.IncreaseOrphansRemoved()
		orphans++
	}
	if orphans > 0 {
		if err := s.device.SyncMeta(); err != nil {
			return err
		}
		logx.Warn("BLOCKSTORE", "removed", orphans, "orphan extent(s) left behind by interrupted writers")
	}

	logx.Info("BLOCKSTORE", "repository opened with", live, "block(s)")
	return nil
}

// Catalog exposes the repository mapping read-only, for inspection tooling.
func (s *BlockStore) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *BlockStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errx.New(errx.CodeInvalidState, "block store is already closed")
	}
	s.closed = true
	writers := len(s.writers)
	readers := len(s.refs)
	s.mu.Unlock()

	if writers > 0 {
		logx.Warn("BLOCKSTORE", writers, "writer(s) still open at shutdown; their unregistered blocks will be discarded by recovery")
	}
	if readers > 0 {
		logx.Warn("BLOCKSTORE", readers, "block(s) still have open readers at shutdown; pending reclamation resumes at the next open")
	}

	var errs error
	if err := s.device.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := s.catalog.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	logx.Info("BLOCKSTORE", "block store closed")
	return errs
}
