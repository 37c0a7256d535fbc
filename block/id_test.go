package block

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/blockfs/errx"
)

func TestIDStringRoundTrip(t *testing.T) {
	id := ID(0xdeadbeef)
	assert.Equal(t, "00000000deadbeef", id.String())

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	// Unpadded hex is accepted too.
	parsed, err = ParseID("deadbeef")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestIDTextCodec(t *testing.T) {
	id := ID(0xdeadbeef)

	text, err := id.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "00000000deadbeef", string(text))

	var decoded ID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, id, decoded)

	assert.Error(t, decoded.UnmarshalText([]byte("not-hex")))
	assert.Error(t, decoded.UnmarshalText([]byte("0000000000000000")))
}

func TestParseIDRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "zzzz", "0x10", "-1", "00000000000000000000"} {
		_, err := ParseID(s)
		require.Error(t, err, "input %q", s)
		assert.True(t, errx.IsInvalidState(err))
	}
}

func TestParseIDRejectsNull(t *testing.T) {
	_, err := ParseID("0000000000000000")
	require.Error(t, err)
	assert.True(t, errx.IsInvalidState(err))
}

func TestGenerateIDNeverNull(t *testing.T) {
	seen := make(map[ID]struct{})
	for i := 0; i < 1000; i++ {
		id, err := GenerateID()
		require.NoError(t, err)
		assert.False(t, id.IsNull())
		seen[id] = struct{}{}
	}
	// 1000 draws from a 64-bit space should not collide.
	assert.Len(t, seen, 1000)
}

func TestIDOrdering(t *testing.T) {
	ids := []ID{ID(30), ID(1), ID(0xffffffffffffffff), ID(2)}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []ID{ID(1), ID(2), ID(30), ID(0xffffffffffffffff)}, ids)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "clean", StateClean.String())
	assert.Equal(t, "dirty", StateDirty.String())
	assert.Equal(t, "flushing", StateFlushing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}
