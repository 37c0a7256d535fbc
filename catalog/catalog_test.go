package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/blockfs/block"
	"github.com/mezonai/blockfs/db"
	"github.com/mezonai/blockfs/errx"
)

func newTestCatalog(t *testing.T) *Catalog {
	c, err := Create(db.NewMemProvider())
	require.NoError(t, err)
	return c
}

func liveEntry(id block.ID, size uint64) Entry {
	return Entry{
		ID:        id,
		Size:      size,
		State:     EntryLive,
		Extent:    id.String(),
		CreatedAt: time.Now().UnixNano(),
	}
}

func TestCreateWritesMeta(t *testing.T) {
	c := newTestCatalog(t)
	meta := c.Meta()
	assert.Equal(t, FormatVersion, meta.FormatVersion)
	assert.NotEmpty(t, meta.RepositoryID)
	assert.NotZero(t, meta.CreatedAt)
}

func TestCreateTwiceFails(t *testing.T) {
	p := db.NewMemProvider()
	_, err := Create(p)
	require.NoError(t, err)

	_, err = Create(p)
	require.Error(t, err)
	assert.True(t, errx.IsAlreadyExists(err))
}

func TestOpenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	p, err := db.NewBoltProvider(dir, true)
	require.NoError(t, err)

	c, err := Create(p)
	require.NoError(t, err)
	want := c.Meta()
	require.NoError(t, c.Commit(liveEntry(block.ID(7), 128)))
	require.NoError(t, c.Close())

	p, err = db.NewBoltProvider(dir, false)
	require.NoError(t, err)
	c, err = Open(p)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, want, c.Meta())
	e, err := c.Get(block.ID(7))
	require.NoError(t, err)
	assert.Equal(t, uint64(128), e.Size)
	assert.Equal(t, EntryLive, e.State)
}

func TestOpenEmptyProviderIsCorrupt(t *testing.T) {
	_, err := Open(db.NewMemProvider())
	require.Error(t, err)
	assert.True(t, errx.IsCorruptState(err))
}

func TestOpenGarbageMetaIsCorrupt(t *testing.T) {
	p := db.NewMemProvider()
	require.NoError(t, p.Put([]byte("meta:info"), []byte("{not json")))
	_, err := Open(p)
	require.Error(t, err)
	assert.True(t, errx.IsCorruptState(err))
}

func TestOpenVersionMismatchIsCorrupt(t *testing.T) {
	p := db.NewMemProvider()
	require.NoError(t, p.Put([]byte("meta:info"), []byte(`{"format_version":99,"repository_id":"x"}`)))
	_, err := Open(p)
	require.Error(t, err)
	assert.True(t, errx.IsCorruptState(err))
}

func TestCommitAndGet(t *testing.T) {
	c := newTestCatalog(t)
	id := block.ID(42)

	_, err := c.Get(id)
	require.Error(t, err)
	assert.True(t, errx.IsNotFound(err))

	require.NoError(t, c.Commit(liveEntry(id, 4096)))

	e, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, uint64(4096), e.Size)

	// Double commit is an id collision.
	err = c.Commit(liveEntry(id, 1))
	require.Error(t, err)
	assert.True(t, errx.IsAlreadyExists(err))
}

func TestMarkDeletedLifecycle(t *testing.T) {
	c := newTestCatalog(t)
	id := block.ID(9)

	// Tombstoning an unknown id is not-found.
	err := c.MarkDeleted(id)
	require.Error(t, err)
	assert.True(t, errx.IsNotFound(err))

	require.NoError(t, c.Commit(liveEntry(id, 10)))
	require.NoError(t, c.MarkDeleted(id))

	// The entry survives as a tombstone: still present, state deleted.
	e, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, EntryDeleted, e.State)
	assert.NotZero(t, e.DeletedAt)

	found, err := c.Has(id)
	require.NoError(t, err)
	assert.True(t, found, "tombstoned ids still occupy their slot")

	// A second tombstone reports not-found, same as any unreachable id.
	err = c.MarkDeleted(id)
	require.Error(t, err)
	assert.True(t, errx.IsNotFound(err))

	require.NoError(t, c.Purge(id))
	found, err = c.Has(id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestForEachOrderAndStop(t *testing.T) {
	c := newTestCatalog(t)
	for _, id := range []block.ID{30, 10, 20} {
		require.NoError(t, c.Commit(liveEntry(id, uint64(id))))
	}

	var ids []block.ID
	require.NoError(t, c.ForEach(func(e Entry) bool {
		ids = append(ids, e.ID)
		return true
	}))
	assert.Equal(t, []block.ID{10, 20, 30}, ids, "entries scan in ascending id order")

	ids = nil
	require.NoError(t, c.ForEach(func(e Entry) bool {
		ids = append(ids, e.ID)
		return false
	}))
	assert.Equal(t, []block.ID{10}, ids)
}

func TestForEachCorruptEntry(t *testing.T) {
	p := db.NewMemProvider()
	c, err := Create(p)
	require.NoError(t, err)
	require.NoError(t, c.Commit(liveEntry(block.ID(1), 1)))
	require.NoError(t, p.Put(idToKey(block.ID(2)), []byte("broken")))

	err = c.ForEach(func(Entry) bool { return true })
	require.Error(t, err)
	assert.True(t, errx.IsCorruptState(err))
}
