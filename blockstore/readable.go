package blockstore

import (
	"sync/atomic"

	"github.com/mezonai/blockfs/block"
	"github.com/mezonai/blockfs/device"
	"github.com/mezonai/blockfs/errx"
	"github.com/mezonai/blockfs/monitoring"
)

// readableBlock is an open handle over a closed, immutable block. Reads
// carry no shared cursor, so one handle may serve many goroutines at once.
// Only Close mutates the handle, guarded by an atomic flag so racing closes
// release the manager's reference exactly once.
type readableBlock struct {
	store  *BlockStore
	id     block.ID
	size   uint64
	extent device.Extent
	closed atomic.Bool
}

var _ block.Readable = (*readableBlock)(nil)

func newReadableBlock(s *BlockStore, id block.ID, size uint64, extent device.Extent) *readableBlock {
	return &readableBlock{
		store:  s,
		id:     id,
		size:   size,
		extent: extent,
	}
}

func (r *readableBlock) ID() block.ID {
	return r.id
}

func (r *readableBlock) Size() uint64 {
	return r.size
}

func (r *readableBlock) Read(off, length uint64, scratch []byte) ([]byte, error) {
	if r.closed.Load() {
		return nil, errx.Newf(errx.CodeInvalidState, "block %s: reader is closed", r.id)
	}
	if off > r.size || length > r.size-off {
		return nil, errx.Newf(errx.CodeOutOfRange, "block %s: read of %d bytes at offset %d beyond size %d", r.id, length, off, r.size)
	}
	if uint64(len(scratch)) < length {
		return nil, errx.Newf(errx.CodeOutOfRange, "block %s: scratch holds %d bytes, read needs %d", r.id, len(scratch), length)
	}
	out := scratch[:length]
	if length == 0 {
		return out, nil
	}
	if err := r.extent.ReadAt(out, off); err != nil {
		monitoring.RecordIOError(monitoring.IOOpRead)
		return nil, err
	}
	return out, nil
}

func (r *readableBlock) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return errx.Newf(errx.CodeInvalidState, "block %s: reader is already closed", r.id)
	}
	err := r.extent.Close()
	r.store.releaseReader(r.id)
	return err
}
