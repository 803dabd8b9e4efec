package share

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareMapAddAndToVirtual(t *testing.T) {
	m := NewShareMap()
	require.NoError(t, m.Add("/data/music", "Music"))

	v, ok := m.ToVirtual("/data/music")
	assert.True(t, ok)
	assert.Equal(t, "Music", v)
}

func TestShareMapDuplicateDifferentVirtual(t *testing.T) {
	m := NewShareMap()
	require.NoError(t, m.Add("/data/music", "Music"))
	err := m.Add("/data/music", "Tunes")
	assert.ErrorIs(t, err, ErrShareDuplicate)
}

func TestShareMapDuplicateSameVirtualIsNoop(t *testing.T) {
	m := NewShareMap()
	require.NoError(t, m.Add("/data/music", "Music"))
	require.NoError(t, m.Add("/data/music", "Music"))
	assert.Len(t, m.Entries(), 1)
}

func TestShareMapSubpathConflict(t *testing.T) {
	m := NewShareMap()
	require.NoError(t, m.Add("/data/music", "Music"))

	err := m.Add("/data/music/rock", "Rock")
	assert.ErrorIs(t, err, ErrShareInsideShare)

	err = m.Add("/data", "Data")
	assert.ErrorIs(t, err, ErrShareInsideShare)
}

func TestShareMapRemove(t *testing.T) {
	m := NewShareMap()
	require.NoError(t, m.Add("/data/music", "Music"))
	require.NoError(t, m.Remove("/data/music"))

	_, ok := m.ToVirtual("/data/music")
	assert.False(t, ok)
}

func TestShareMapRemoveNotFound(t *testing.T) {
	m := NewShareMap()
	err := m.Remove("/nope")
	assert.ErrorIs(t, err, ErrShareNotFound)
}

func TestShareMapRename(t *testing.T) {
	m := NewShareMap()
	require.NoError(t, m.Add("/data/music", "Music"))
	require.NoError(t, m.Rename("/data/music", "Tunes"))

	v, _ := m.ToVirtual("/data/music")
	assert.Equal(t, "Tunes", v)
}

func TestShareMapMultipleRealPathsSameVirtual(t *testing.T) {
	m := NewShareMap()
	require.NoError(t, m.Add("/data/a", "Merged"))
	require.NoError(t, m.Add("/data/b", "Merged"))

	reals := m.RealPathsFor("Merged")
	assert.Len(t, reals, 2)
}

func TestShareMapXMLRoundTrip(t *testing.T) {
	m := NewShareMap()
	require.NoError(t, m.Add("/data/music", "Music"))
	require.NoError(t, m.Add("/data/books", "Books"))

	data, err := m.MarshalXML()
	require.NoError(t, err)

	parsed, err := UnmarshalShareMap(data)
	require.NoError(t, err)
	assert.Len(t, parsed.Entries(), 2)

	v, ok := parsed.ToVirtual("/data/music")
	assert.True(t, ok)
	assert.Equal(t, "Music", v)
}
