package blockstore

import (
	"time"

	"github.com/mezonai/blockfs/block"
	"github.com/mezonai/blockfs/device"
	"github.com/mezonai/blockfs/errx"
	"github.com/mezonai/blockfs/monitoring"
)

// writableBlock drives one block's append/flush/close lifecycle. It is
// owned by a single goroutine; nothing here is synchronized.
//
// The first I/O failure latches the handle as failed. Closing a failed
// handle abandons the block: its extent is scrubbed best-effort, its id
// reservation is released, and the id is never registered. The handle then
// reports the failure and stays out of StateClosed, which is how batch
// callers tell durable blocks from lost ones.
type writableBlock struct {
	store  *BlockStore
	id     block.ID
	extent device.Extent

	state     block.State
	bytes     uint64
	flushOp   *device.FlushOp
	failed    error
	abandoned bool
}

var _ block.Writable = (*writableBlock)(nil)

func newWritableBlock(s *BlockStore, id block.ID, extent device.Extent) *writableBlock {
	return &writableBlock{
		store:  s,
		id:     id,
		extent: extent,
		state:  block.StateClean,
	}
}

func (w *writableBlock) ID() block.ID {
	return w.id
}

func (w *writableBlock) State() block.State {
	return w.state
}

func (w *writableBlock) BytesAppended() uint64 {
	return w.bytes
}

func (w *writableBlock) Append(data []byte) error {
	if w.abandoned {
		return errx.Newf(errx.CodeInvalidState, "block %s has been abandoned", w.id)
	}
	if w.failed != nil {
		return errx.Wrapf(errx.CodeIO, w.failed, "block %s is unusable after an earlier write failure", w.id)
	}
	if w.state != block.StateClean && w.state != block.StateDirty {
		return errx.Newf(errx.CodeInvalidState, "block %s: append in state %s", w.id, w.state)
	}
	if err := w.extent.Append(data); err != nil {
		w.failed = err
		monitoring.RecordIOError(monitoring.IOOpAppend)
		return err
	}
	w.bytes += uint64(len(data))
	w.state = block.StateDirty
	monitoring.RecordBytesAppended(len(data))
	return nil
}

func (w *writableBlock) FlushDataAsync() error {
	if w.abandoned {
		return errx.Newf(errx.CodeInvalidState, "block %s has been abandoned", w.id)
	}
	if w.failed != nil {
		return errx.Wrapf(errx.CodeIO, w.failed, "block %s is unusable after an earlier write failure", w.id)
	}
	switch w.state {
	case block.StateClean:
		// Nothing appended yet, nothing to flush.
		return nil
	case block.StateDirty:
	default:
		return errx.Newf(errx.CodeInvalidState, "block %s: flush in state %s", w.id, w.state)
	}
	w.flushOp = w.extent.SubmitFlush()
	w.state = block.StateFlushing
	monitoring.AddFlushesInflight(1)
	return nil
}

func (w *writableBlock) Close() error {
	if w.abandoned {
		return errx.Newf(errx.CodeInvalidState, "block %s has been abandoned", w.id)
	}
	if w.state == block.StateClosed {
		return errx.Newf(errx.CodeInvalidState, "block %s is already closed", w.id)
	}
	if w.failed != nil {
		w.abandon()
		return errx.Wrapf(errx.CodeIO, w.failed, "block %s abandoned after write failure", w.id)
	}

	start := time.Now()

	// Settle the data: wait out a submitted flush, or run the barrier here
	// if no flush was ever submitted.
	var err error
	if w.flushOp != nil {
		err = w.flushOp.Wait()
		w.flushOp = nil
		monitoring.AddFlushesInflight(-1)
		if err != nil {
			monitoring.RecordIOError(monitoring.IOOpFlush)
		}
	} else if w.store.syncOnClose {
		if err = w.extent.Sync(); err != nil {
			monitoring.RecordIOError(monitoring.IOOpFlush)
		}
	}

	if err == nil {
		if err = w.extent.Close(); err != nil {
			monitoring.RecordIOError(monitoring.IOOpClose)
		}
	}

	// The extent's directory entry must be durable before the catalog names
	// it, never after.
	if err == nil && w.store.syncDirs {
		if err = w.store.device.SyncMeta(); err != nil {
			monitoring.RecordIOError(monitoring.IOOpClose)
		}
	}

	if err == nil {
		if err = w.store.registerBlock(w.id, w.bytes); err != nil {
			monitoring.RecordIOError(monitoring.IOOpCatalog)
		}
	}

	if err != nil {
		w.failed = err
		w.abandon()
		return err
	}

	w.state = block.StateClosed
	monitoring.RecordBlockSizeBytes(w.bytes)
	monitoring.RecordCloseDuration(time.Since(start))
	return nil
}

func (w *writableBlock) abandon() {
	w.abandoned = true
	_ = w.extent.Close()
	w.store.abandonBlock(w.id)
}
