package blockstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/blockfs/block"
	"github.com/mezonai/blockfs/errx"
)

func mustWrite(t *testing.T, m Manager, id block.ID, data []byte) {
	t.Helper()
	var w block.Writable
	var err error
	if id.IsNull() {
		w, err = m.CreateAnonymousBlock(nil)
	} else {
		w, err = m.CreateNamedBlock(nil, id)
	}
	require.NoError(t, err)
	require.NoError(t, w.Append(data))
	require.NoError(t, w.Close())
}

func mustRead(t *testing.T, m Manager, id block.ID) []byte {
	t.Helper()
	r, err := m.OpenBlock(id)
	require.NoError(t, err)
	defer r.Close()
	out, err := r.Read(0, r.Size(), make([]byte, r.Size()))
	require.NoError(t, err)
	return append([]byte(nil), out...)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())

	st, err := CreateStore(opts)
	require.NoError(t, err)
	repoID := st.(*BlockStore).Catalog().Meta().RepositoryID

	named := block.ID(0xfeed)
	mustWrite(t, st, named, []byte("named payload"))

	anon, err := st.CreateAnonymousBlock(nil)
	require.NoError(t, err)
	require.NoError(t, anon.Append([]byte("anon payload")))
	require.NoError(t, anon.Close())

	doomed := block.ID(0xd00d)
	mustWrite(t, st, doomed, []byte("deleted before close"))
	require.NoError(t, st.DeleteBlock(doomed))

	require.NoError(t, st.Close())

	st, err = OpenStore(opts)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, repoID, st.(*BlockStore).Catalog().Meta().RepositoryID)
	assert.Equal(t, []byte("named payload"), mustRead(t, st, named))
	assert.Equal(t, []byte("anon payload"), mustRead(t, st, anon.ID()))

	_, err = st.OpenBlock(doomed)
	assert.True(t, errx.IsNotFound(err))

	// The named id is still taken, the deleted one is free again.
	_, err = st.CreateNamedBlock(nil, named)
	assert.True(t, errx.IsAlreadyExists(err))
	w, err := st.CreateNamedBlock(nil, doomed)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestCreateStoreRefusesExisting(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())

	st, err := CreateStore(opts)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = CreateStore(opts)
	require.Error(t, err)
	assert.True(t, errx.IsAlreadyExists(err))
}

func TestOpenStoreMissingRepository(t *testing.T) {
	_, err := OpenStore(NewFileStoreOptions(t.TempDir()))
	require.Error(t, err)
	assert.True(t, errx.IsNotFound(err))
}

func TestOpenStoreWhileLocked(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())

	st, err := CreateStore(opts)
	require.NoError(t, err)
	defer st.Close()

	_, err = OpenStore(opts)
	require.Error(t, err)
	assert.True(t, errx.IsAlreadyExists(err), "second instance must be fenced out")
}

func TestReopenSweepsOrphanedExtent(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())

	st, err := CreateStore(opts)
	require.NoError(t, err)

	// A writer that never reaches Close leaves an extent with no catalog
	// entry, the same shape a crash mid-write leaves behind.
	orphan := block.ID(0x0a11)
	w, err := st.CreateNamedBlock(nil, orphan)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("half-written")))

	survivor := block.ID(0x0b22)
	mustWrite(t, st, survivor, []byte("committed"))

	require.NoError(t, st.Close())

	st, err = OpenStore(opts)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.OpenBlock(orphan)
	assert.True(t, errx.IsNotFound(err))
	assert.Equal(t, []byte("committed"), mustRead(t, st, survivor))

	// Recovery freed the orphan's extent, so its id is usable again.
	w2, err := st.CreateNamedBlock(nil, orphan)
	require.NoError(t, err)
	require.NoError(t, w2.Append([]byte("whole")))
	require.NoError(t, w2.Close())
	assert.Equal(t, []byte("whole"), mustRead(t, st, orphan))
}

func TestReopenFinishesDeferredReclamation(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())

	st, err := CreateStore(opts)
	require.NoError(t, err)

	id := block.ID(0x0c33)
	mustWrite(t, st, id, []byte("tombstoned"))

	r, err := st.OpenBlock(id)
	require.NoError(t, err)

	// The open reader defers reclamation, so only the tombstone goes
	// down with the instance.
	require.NoError(t, st.DeleteBlock(id))
	require.NoError(t, st.Close())

	st2, err := OpenStore(opts)
	require.NoError(t, err)
	defer st2.Close()

	_, err = st2.OpenBlock(id)
	assert.True(t, errx.IsNotFound(err))

	// Recovery unlinked the extent, but the stale handle still reads its
	// inode until it closes.
	out, err := r.Read(0, r.Size(), make([]byte, r.Size()))
	require.NoError(t, err)
	assert.Equal(t, []byte("tombstoned"), out)
	require.NoError(t, r.Close())

	w, err := st2.CreateNamedBlock(nil, id)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestOpenStoreCorruptCatalog(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())

	st, err := CreateStore(opts)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	garbage := make([]byte, 64<<10)
	for i := range garbage {
		garbage[i] = 0xff
	}
	require.NoError(t, os.WriteFile(filepath.Join(opts.Directory, "catalog.db"), garbage, 0o600))

	_, err = OpenStore(opts)
	require.Error(t, err)
	assert.True(t, errx.IsCorruptState(err))
}

func TestOpenStoreMissingDataDir(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())

	st, err := CreateStore(opts)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.NoError(t, os.RemoveAll(filepath.Join(opts.Directory, "data")))

	_, err = OpenStore(opts)
	require.Error(t, err)
	assert.True(t, errx.IsCorruptState(err), "catalog without data directory is corruption, not absence")
}

func TestLevelDBCatalogRoundTrip(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())
	opts.Catalog = CatalogLevelDB

	st, err := CreateStore(opts)
	require.NoError(t, err)

	id := block.ID(0x1db)
	mustWrite(t, st, id, []byte("leveldb backed"))

	// A second instance trips over the LOCK file immediately.
	_, err = OpenStore(opts)
	require.Error(t, err)
	assert.True(t, errx.IsAlreadyExists(err))

	require.NoError(t, st.Close())

	st, err = OpenStore(opts)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, []byte("leveldb backed"), mustRead(t, st, id))
}

func TestStoreWithDurabilityOff(t *testing.T) {
	opts := NewFileStoreOptions(t.TempDir())
	opts.SyncOnClose = false
	opts.SyncDirs = false

	st, err := CreateStore(opts)
	require.NoError(t, err)

	id := block.ID(0xfa57)
	mustWrite(t, st, id, []byte("fast and loose"))
	assert.Equal(t, []byte("fast and loose"), mustRead(t, st, id))
	require.NoError(t, st.Close())
}

func TestOptionsValidation(t *testing.T) {
	cases := []struct {
		name string
		opts *Options
		want func(error) bool
	}{
		{"nil options", nil, errx.IsInvalidState},
		{"unknown kind", &Options{Kind: "tape"}, errx.IsInvalidState},
		{"file without directory", &Options{Kind: FileStore}, errx.IsInvalidState},
		{"unknown catalog", &Options{Kind: MemStore, Catalog: "etcd"}, errx.IsInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CreateStore(tc.opts)
			require.Error(t, err)
			assert.True(t, tc.want(err))
		})
	}

	_, err := OpenStore(NewMemStoreOptions())
	require.Error(t, err)
	assert.True(t, errx.IsNotFound(err), "mem repositories cannot be reopened")
}
