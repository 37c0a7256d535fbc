package device

import (
	"sort"
	"sync"

	"github.com/mezonai/blockfs/errx"
)

// MemDevice keeps extents in process memory. It backs the mem store variant
// and most unit tests; durability calls succeed without doing anything.
type MemDevice struct {
	mu      sync.RWMutex
	extents map[string]*memBuf
}

type memBuf struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemDevice() *MemDevice {
	return &MemDevice{extents: make(map[string]*memBuf)}
}

func (d *MemDevice) Create(name string) (Extent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.extents[name]; ok {
		return nil, errx.Newf(errx.CodeAlreadyExists, "extent %s already exists", name)
	}
	buf := &memBuf{}
	d.extents[name] = buf
	return &memExtent{name: name, buf: buf, writable: true}, nil
}

func (d *MemDevice) OpenRead(name string) (Extent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	buf, ok := d.extents[name]
	if !ok {
		return nil, errx.Newf(errx.CodeNotFound, "extent %s not found", name)
	}
	return &memExtent{name: name, buf: buf}, nil
}

func (d *MemDevice) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.extents[name]; !ok {
		return errx.Newf(errx.CodeNotFound, "extent %s not found", name)
	}
	delete(d.extents, name)
	return nil
}

func (d *MemDevice) SyncMeta() error {
	return nil
}

func (d *MemDevice) List() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.extents))
	for name := range d.extents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *MemDevice) Close() error {
	return nil
}

// memExtent is a handle on a shared in-memory buffer. Removing an extent
// from the device does not invalidate handles already open on it, the same
// way an unlinked file stays readable through open descriptors.
type memExtent struct {
	name     string
	buf      *memBuf
	writable bool
}

func (e *memExtent) Append(p []byte) error {
	if !e.writable {
		return errx.Newf(errx.CodeInvalidState, "extent %s is read-only", e.name)
	}
	e.buf.mu.Lock()
	defer e.buf.mu.Unlock()
	e.buf.data = append(e.buf.data, p...)
	return nil
}

func (e *memExtent) SubmitFlush() *FlushOp {
	if !e.writable {
		return CompletedFlushOp(errx.Newf(errx.CodeInvalidState, "extent %s is read-only", e.name))
	}
	return CompletedFlushOp(nil)
}

func (e *memExtent) Sync() error {
	return nil
}

func (e *memExtent) ReadAt(p []byte, off uint64) error {
	e.buf.mu.RLock()
	defer e.buf.mu.RUnlock()
	size := uint64(len(e.buf.data))
	if off > size || uint64(len(p)) > size-off {
		return errx.Newf(errx.CodeIO, "short read on extent %s: want %d bytes at offset %d, have %d", e.name, len(p), off, size)
	}
	copy(p, e.buf.data[off:off+uint64(len(p))])
	return nil
}

func (e *memExtent) Size() uint64 {
	e.buf.mu.RLock()
	defer e.buf.mu.RUnlock()
	return uint64(len(e.buf.data))
}

func (e *memExtent) Close() error {
	return nil
}
