// Package block defines the smallest unit of engine data that is backed by
// local storage, and the capabilities of open block handles.
//
// The handle interfaces reflect the on-disk storage design principles:
//   - Blocks are append only.
//   - Blocks are immutable once written.
//   - Blocks opened for reading are thread-safe and may be used by multiple
//     concurrent readers.
//   - Blocks opened for writing are not thread-safe; each writable handle is
//     owned and driven by a single goroutine from creation to Close.
package block

// Block is the capability shared by every open block handle: identity.
type Block interface {
	// ID returns the identifier for this block.
	ID() ID
}

// Writable is a block that has been opened for writing. Data may only be
// appended, and only by one goroutine.
//
// Close is an expensive operation: it must flush both dirty block data and
// metadata to durable storage. Two ways to cheapen it:
//  1. FlushDataAsync before Close. If there is enough work to do between the
//     two calls, there is less outstanding I/O to wait for during Close.
//  2. Manager.CloseBlocks on a group of blocks, which overlaps the waiting
//     for outstanding I/O across the group.
type Writable interface {
	Block

	// Append appends data to the logical end of the block. It does not
	// guarantee durability; Close must be called for the data to reach
	// durable storage. Appending is permitted only in StateClean or
	// StateDirty. An I/O failure leaves BytesAppended unchanged and the
	// block unusable for further writes; the caller should abandon the
	// block by closing it.
	Append(data []byte) error

	// FlushDataAsync begins an asynchronous flush of dirty block data
	// toward durable storage and returns without waiting for completion.
	// Purely a latency optimization for Close. Appending is rejected once
	// this has been invoked. A no-op in StateClean.
	FlushDataAsync() error

	// Close waits for any outstanding flush, synchronously flushes
	// remaining dirty data, durably records the block in the repository
	// and makes its id openable, then transitions to StateClosed. On
	// success every previously appended byte is durable. On failure the
	// block is not registered, durability is unknown, and the handle does
	// not reach StateClosed.
	Close() error

	// BytesAppended returns the number of bytes successfully appended via
	// Append, independent of flush or close progress.
	BytesAppended() uint64

	// State returns the current lifecycle state.
	State() State
}

// Readable is a block that has been opened for reading. Multiple in-memory
// handles may exist for the same stored block, and one handle may be shared
// among goroutines for concurrent reads.
type Readable interface {
	Block

	// Size returns the durable byte length of the block. Stable for the
	// lifetime of the handle; blocks are immutable once openable.
	Size() uint64

	// Read reads exactly length bytes beginning at off, failing with an
	// out-of-range error (and leaving no partial result) if fewer exist.
	// The returned slice may be backed by scratch, which must be at least
	// length bytes and must remain untouched while the result is in use.
	Read(off, length uint64, scratch []byte) ([]byte, error)

	// Close releases the in-memory handle, which may trigger deferred
	// physical deletion of the block. Exactly one Close is legal; a second
	// call reports an invalid-state error.
	Close() error
}
