package blockstore

import (
	"github.com/mezonai/blockfs/block"
)

// CreateBlockOptions carries placement hints for new blocks. A nil options
// pointer means defaults. The struct is empty today; it exists so store
// variants can grow placement knobs without changing the Manager surface.
type CreateBlockOptions struct{}

// Manager is the long-lived block registry. It owns the on-disk repository,
// allocates identifiers, hands out writer and reader handles, tracks which
// handles are open, and serializes lifecycle transitions.
// All methods are safe for concurrent use.
type Manager interface {
	// CreateAnonymousBlock allocates a fresh, collision-free id and returns
	// a writer for it in StateClean. The id becomes durable and openable
	// only when the writer closes successfully.
	CreateAnonymousBlock(opts *CreateBlockOptions) (block.Writable, error)

	// CreateNamedBlock is CreateAnonymousBlock with a caller-chosen id.
	// Fails with an already-exists error if the id denotes a closed block,
	// a block being written, or a deleted block whose space is not yet
	// reclaimed.
	CreateNamedBlock(opts *CreateBlockOptions, id block.ID) (block.Writable, error)

	// OpenBlock returns a reader for a closed block. Unknown ids, ids still
	// open for writing, and deleted ids report not-found.
	OpenBlock(id block.ID) (block.Readable, error)

	// DeleteBlock durably makes id unreachable to new opens before it
	// returns. Physical reclamation happens immediately when no readers
	// hold the block open, otherwise when the last of them closes.
	DeleteBlock(id block.ID) error

	// CloseBlocks closes a group of writers, overlapping their flush waits
	// instead of paying for each in sequence. Per-block outcomes are
	// independent; the aggregate error never masks that some blocks may
	// have closed durably. Callers inspect each writer's State to tell
	// durable blocks (StateClosed) from failed ones.
	CloseBlocks(blocks []block.Writable) error

	// Close shuts the manager down and releases the repository lock. Open
	// handles are the caller's to close first; blocks left mid-write are
	// discarded by recovery at the next open.
	Close() error
}
