// Package device abstracts the storage medium that holds block payloads.
//
// A device stores one extent per block, addressed by an opaque name. It
// knows nothing about block identity or the catalog; the store above it
// pairs extents with catalog entries and decides when each durability
// barrier happens.
package device

// Device is the durable-medium driver behind a block store.
type Device interface {
	// Create makes a new, empty, writable extent. The extent's data is not
	// durable until Sync, and its existence is not durable until SyncMeta.
	Create(name string) (Extent, error)

	// OpenRead opens an existing extent for reading. Any number of read
	// handles may be open on the same extent at once.
	OpenRead(name string) (Extent, error)

	// Remove deletes the extent's backing storage. The removal becomes
	// durable at the next SyncMeta.
	Remove(name string) error

	// SyncMeta makes all prior Create and Remove calls durable.
	SyncMeta() error

	// List returns the names of every extent on the device, in ascending
	// order. Used by recovery scans.
	List() ([]string, error)

	// Close releases the device. Extents opened from it must be closed
	// first.
	Close() error
}

// Extent is a single block's backing storage.
//
// ReadAt is safe for concurrent use; all other methods require external
// synchronization.
type Extent interface {
	// Append writes p at the end of the extent. Only valid on extents
	// obtained from Create.
	Append(p []byte) error

	// SubmitFlush starts pushing appended data toward the durable medium
	// and returns a handle to wait on. The data is guaranteed durable only
	// once the returned op's Wait has returned nil.
	SubmitFlush() *FlushOp

	// Sync blocks until all appended data is durable.
	Sync() error

	// ReadAt fills p with the bytes at off. Reads past the end of the
	// extent fail; p is filled completely or not at all.
	ReadAt(p []byte, off uint64) error

	// Size returns the extent's length in bytes.
	Size() uint64

	// Close releases the handle. Closing without a prior Sync makes no
	// durability promise for appended data.
	Close() error
}

// FlushOp is the completion handle for an asynchronous extent flush.
// Device implementations create one per SubmitFlush and complete it exactly
// once when the flushed bytes are durable.
type FlushOp struct {
	done chan struct{}
	err  error
}

func NewFlushOp() *FlushOp {
	return &FlushOp{done: make(chan struct{})}
}

// Complete finishes the op with the flush result. Must be called exactly
// once.
func (op *FlushOp) Complete(err error) {
	op.err = err
	close(op.done)
}

// CompletedFlushOp returns an op that is already finished.
func CompletedFlushOp(err error) *FlushOp {
	op := NewFlushOp()
	op.Complete(err)
	return op
}

// Wait blocks until the flush has finished and returns its result. Wait
// may be called any number of times.
func (op *FlushOp) Wait() error {
	<-op.done
	return op.err
}
