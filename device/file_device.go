package device

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mezonai/blockfs/errx"
	"github.com/mezonai/blockfs/exception"
)

const dataDirName = "data"

// FileDevice stores each extent as one file under <root>/data, sharded two
// directory levels deep by the leading hex characters of the extent name so
// no single directory grows unbounded.
//
// Directory entries are made durable lazily: Create and Remove record the
// touched directories in a dirty set, and SyncMeta fsyncs them all at once.
// Batch closers pay for one directory fsync per shard instead of one per
// block.
type FileDevice struct {
	root    string
	dataDir string

	mu        sync.Mutex
	dirtyDirs map[string]struct{}
}

// NewFileDevice opens the extent area under root. With create set the data
// directory is built and made durable; otherwise it must already exist.
func NewFileDevice(root string, create bool) (*FileDevice, error) {
	dataDir := filepath.Join(root, dataDirName)
	if create {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, errx.Wrapf(errx.CodeIO, err, "create device data dir %s", dataDir)
		}
		if err := syncDir(root); err != nil {
			return nil, err
		}
	} else {
		info, err := os.Stat(dataDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errx.Newf(errx.CodeNotFound, "device data dir %s not found", dataDir)
			}
			return nil, errx.Wrapf(errx.CodeIO, err, "stat device data dir %s", dataDir)
		}
		if !info.IsDir() {
			return nil, errx.Newf(errx.CodeCorruptState, "device data path %s is not a directory", dataDir)
		}
	}
	return &FileDevice{
		root:      root,
		dataDir:   dataDir,
		dirtyDirs: make(map[string]struct{}),
	}, nil
}

// extentPath shards 16-hex extent names as data/ab/cd/abcd...; anything too
// short to shard lands flat in data/.
func (d *FileDevice) extentPath(name string) string {
	if len(name) >= 4 {
		return filepath.Join(d.dataDir, name[0:2], name[2:4], name)
	}
	return filepath.Join(d.dataDir, name)
}

func (d *FileDevice) markDirty(dirs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dir := range dirs {
		d.dirtyDirs[dir] = struct{}{}
	}
}

func (d *FileDevice) Create(name string) (Extent, error) {
	path := d.extentPath(name)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errx.Wrapf(errx.CodeIO, err, "create shard dir %s", dir)
	}
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL, 0o644)
	if err != nil {
		if err == unix.EEXIST {
			return nil, errx.Newf(errx.CodeAlreadyExists, "extent %s already exists", name)
		}
		return nil, errx.Wrapf(errx.CodeIO, err, "create extent %s", name)
	}
	// The new file's entry lives in dir; dir itself (and its parent) may
	// also be new. Mark the whole chain and let SyncMeta settle it.
	d.markDirty(dir, filepath.Dir(dir), d.dataDir)
	return &fileExtent{fd: fd, name: name, writable: true}, nil
}

func (d *FileDevice) OpenRead(name string) (Extent, error) {
	path := d.extentPath(name)
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, errx.Newf(errx.CodeNotFound, "extent %s not found", name)
		}
		return nil, errx.Wrapf(errx.CodeIO, err, "open extent %s", name)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, errx.Wrapf(errx.CodeIO, err, "stat extent %s", name)
	}
	return &fileExtent{fd: fd, name: name, size: uint64(st.Size)}, nil
}

func (d *FileDevice) Remove(name string) error {
	path := d.extentPath(name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errx.Newf(errx.CodeNotFound, "extent %s not found", name)
		}
		return errx.Wrapf(errx.CodeIO, err, "remove extent %s", name)
	}
	d.markDirty(filepath.Dir(path))
	return nil
}

func (d *FileDevice) SyncMeta() error {
	d.mu.Lock()
	dirs := make([]string, 0, len(d.dirtyDirs))
	for dir := range d.dirtyDirs {
		dirs = append(dirs, dir)
	}
	d.dirtyDirs = make(map[string]struct{})
	d.mu.Unlock()

	// Children before parents, so a parent's entry for a child directory
	// is never durable ahead of the child's own contents.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		if err := syncDir(dir); err != nil {
			d.markDirty(dir)
			return err
		}
	}
	return nil
}

func (d *FileDevice) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.dataDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
		return nil
	})
	if err != nil {
		return nil, errx.Wrapf(errx.CodeIO, err, "scan device at %s", d.dataDir)
	}
	sort.Strings(names)
	return names, nil
}

func (d *FileDevice) Close() error {
	return d.SyncMeta()
}

func syncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return errx.Wrapf(errx.CodeIO, err, "open dir %s for sync", dir)
	}
	defer unix.Close(fd)
	if err := unix.Fsync(fd); err != nil {
		return errx.Wrapf(errx.CodeIO, err, "sync dir %s", dir)
	}
	return nil
}

// fileExtent is one extent file. Writable extents track their own length;
// read extents learn it from fstat at open time.
type fileExtent struct {
	fd       int
	name     string
	writable bool
	size     uint64
	closed   bool
}

func (e *fileExtent) Append(p []byte) error {
	if !e.writable {
		return errx.Newf(errx.CodeInvalidState, "extent %s is read-only", e.name)
	}
	written := 0
	for written < len(p) {
		n, err := unix.Pwrite(e.fd, p[written:], int64(e.size)+int64(written))
		if err != nil {
			return errx.Wrapf(errx.CodeIO, err, "append %d bytes to extent %s", len(p), e.name)
		}
		written += n
	}
	e.size += uint64(len(p))
	return nil
}

func (e *fileExtent) SubmitFlush() *FlushOp {
	if !e.writable {
		return CompletedFlushOp(errx.Newf(errx.CodeInvalidState, "extent %s is read-only", e.name))
	}
	// Nudge the kernel into writeback immediately so the barrier below has
	// less left to wait for.
	initiateWriteback(e.fd, e.size)
	op := NewFlushOp()
	exception.SafeGo("extent-flush", func() {
		op.Complete(e.Sync())
	})
	return op
}

func (e *fileExtent) Sync() error {
	if err := syncData(e.fd); err != nil {
		return errx.Wrapf(errx.CodeIO, err, "sync extent %s", e.name)
	}
	return nil
}

func (e *fileExtent) ReadAt(p []byte, off uint64) error {
	read := 0
	for read < len(p) {
		n, err := unix.Pread(e.fd, p[read:], int64(off)+int64(read))
		if err != nil {
			return errx.Wrapf(errx.CodeIO, err, "read extent %s at offset %d", e.name, off)
		}
		if n == 0 {
			return errx.Newf(errx.CodeIO, "short read on extent %s: %d of %d bytes at offset %d", e.name, read, len(p), off)
		}
		read += n
	}
	return nil
}

func (e *fileExtent) Size() uint64 {
	return e.size
}

func (e *fileExtent) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := unix.Close(e.fd); err != nil {
		return errx.Wrapf(errx.CodeIO, err, "close extent %s", e.name)
	}
	return nil
}
