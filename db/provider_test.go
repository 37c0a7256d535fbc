package db

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/blockfs/errx"
)

type providerCase struct {
	name string
	open func(t *testing.T) Provider
}

func providerCases() []providerCase {
	return []providerCase{
		{
			name: "bolt",
			open: func(t *testing.T) Provider {
				p, err := NewBoltProvider(filepath.Join(t.TempDir(), "catalog"), true)
				require.NoError(t, err)
				return p
			},
		},
		{
			name: "leveldb",
			open: func(t *testing.T) Provider {
				p, err := NewLevelDBProvider(filepath.Join(t.TempDir(), "catalog"), true)
				require.NoError(t, err)
				return p
			},
		},
		{
			name: "mem",
			open: func(t *testing.T) Provider {
				return NewMemProvider()
			},
		},
	}
}

func TestProviderBasicOps(t *testing.T) {
	for _, tc := range providerCases() {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.open(t)
			defer p.Close()

			// Missing keys read as nil without error.
			v, err := p.Get([]byte("blocks:nope"))
			require.NoError(t, err)
			assert.Nil(t, v)

			found, err := p.Has([]byte("blocks:nope"))
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, p.Put([]byte("blocks:a"), []byte("alpha")))
			require.NoError(t, p.Put([]byte("blocks:b"), []byte("beta")))

			v, err = p.Get([]byte("blocks:a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("alpha"), v)

			found, err = p.Has([]byte("blocks:b"))
			require.NoError(t, err)
			assert.True(t, found)

			// Overwrite is a plain put.
			require.NoError(t, p.Put([]byte("blocks:a"), []byte("alpha2")))
			v, err = p.Get([]byte("blocks:a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("alpha2"), v)

			require.NoError(t, p.Delete([]byte("blocks:a")))
			v, err = p.Get([]byte("blocks:a"))
			require.NoError(t, err)
			assert.Nil(t, v)

			// Deleting an absent key is not an error.
			require.NoError(t, p.Delete([]byte("blocks:a")))
		})
	}
}

func TestProviderIteratePrefix(t *testing.T) {
	for _, tc := range providerCases() {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.open(t)
			defer p.Close()

			require.NoError(t, p.Put([]byte("meta:info"), []byte("m")))
			for i := 0; i < 5; i++ {
				key := fmt.Sprintf("blocks:%02d", i)
				require.NoError(t, p.Put([]byte(key), []byte{byte(i)}))
			}

			var keys []string
			err := p.IteratePrefix([]byte("blocks:"), func(k, v []byte) bool {
				keys = append(keys, string(k))
				return true
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"blocks:00", "blocks:01", "blocks:02", "blocks:03", "blocks:04"}, keys)

			// Early stop.
			keys = nil
			err = p.IteratePrefix([]byte("blocks:"), func(k, v []byte) bool {
				keys = append(keys, string(k))
				return len(keys) < 2
			})
			require.NoError(t, err)
			assert.Len(t, keys, 2)
		})
	}
}

func TestPersistentProviderReopen(t *testing.T) {
	cases := []struct {
		name string
		open func(dir string, create bool) (Provider, error)
	}{
		{"bolt", NewBoltProvider},
		{"leveldb", NewLevelDBProvider},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "catalog")

			// Opening before creation reports not-found.
			_, err := tc.open(dir, false)
			require.Error(t, err)
			assert.True(t, errx.IsNotFound(err), "got %v", err)

			p, err := tc.open(dir, true)
			require.NoError(t, err)
			require.NoError(t, p.Put([]byte("meta:info"), []byte("v1")))
			require.NoError(t, p.Close())

			// A second create against the same directory is refused.
			_, err = tc.open(dir, true)
			require.Error(t, err)
			assert.True(t, errx.IsAlreadyExists(err), "got %v", err)

			// Reopen sees the durable write.
			p, err = tc.open(dir, false)
			require.NoError(t, err)
			v, err := p.Get([]byte("meta:info"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), v)
			require.NoError(t, p.Close())
		})
	}
}

func TestBoltInstanceLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	p, err := NewBoltProvider(dir, true)
	require.NoError(t, err)
	defer p.Close()

	// While the first handle lives, a second open times out on the flock.
	_, err = NewBoltProvider(dir, false)
	require.Error(t, err)
	assert.True(t, errx.IsAlreadyExists(err), "got %v", err)
}
