package share

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshare/shareindex/config"
	"github.com/dcshare/shareindex/share/collab"
)

func TestParseADCQueryAllTokens(t *testing.T) {
	q := ParseADCQuery("AN foo NO bar EX .mp3 GR 100 LE 1000 TR " + TTH{5}.String() + " TY2")
	assert.Equal(t, []string{"foo"}, q.Include)
	assert.Equal(t, []string{"bar"}, q.Exclude)
	assert.Equal(t, []string{"mp3"}, q.Ext)
	assert.Equal(t, int64(100), q.Gt)
	assert.True(t, q.HasGt)
	assert.Equal(t, int64(1000), q.Lt)
	assert.True(t, q.HasLt)
	assert.True(t, q.HasRoot)
	assert.True(t, q.IsDirectory)
}

func TestParseADCQueryToleratesUnknownTokens(t *testing.T) {
	q := ParseADCQuery("ZZ whatever AN foo")
	assert.Equal(t, []string{"foo"}, q.Include)
}

func TestParseADCQueryToleratesTrailingPrefixWithoutValue(t *testing.T) {
	q := ParseADCQuery("AN")
	assert.Empty(t, q.Include)
}

// TestStructuredSearchWorkedExample mirrors the specification's worked
// example: AN foo NO bar EX .mp3 GR 100 LE 1000 against four candidate
// files should match exactly foo-a.mp3 (size 500).
func TestStructuredSearchWorkedExample(t *testing.T) {
	dir := t.TempDir()
	files := map[string]int{
		"foo-a.mp3":   500,
		"foo-bar.mp3": 500,
		"foo-a.txt":   500,
		"foo-b.mp3":   50,
	}
	hasher := collab.NewInMemoryHasher()
	for name, size := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
		var h TTH
		copy(h[:], name)
		hasher.Set(p, h)
	}

	idx := NewIndex(config.ShareConfig{}, hasher, collab.NewInMemoryQueueManager(), collab.NewInMemoryTimerSource(), collab.NewInMemorySettingsStore())
	t.Cleanup(idx.Close)
	require.NoError(t, idx.AddDirectory(dir, "Share"))
	require.NoError(t, idx.Refresh(true, false, true))

	q := ParseADCQuery("AN foo NO bar EX .mp3 GR 100 LE 1000")
	results := idx.SearchStructured(q)

	require.Len(t, results, 1)
	assert.Equal(t, "/Share/foo-a.mp3", results[0].VirtualPath)
	assert.Equal(t, int64(500), results[0].Size)
}

func TestSearchStructuredDirectoryMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Rock"), 0o755))

	idx := NewIndex(config.ShareConfig{}, collab.NewInMemoryHasher(), collab.NewInMemoryQueueManager(), collab.NewInMemoryTimerSource(), collab.NewInMemorySettingsStore())
	t.Cleanup(idx.Close)
	require.NoError(t, idx.AddDirectory(dir, "Share"))
	require.NoError(t, idx.Refresh(true, false, true))

	q := ParseADCQuery("AN Rock TY2")
	results := idx.SearchStructured(q)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsDirectory)
}

func TestSearchStructuredTTHShortCircuit(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	var h TTH
	copy(h[:], "root-hash")
	hasher := collab.NewInMemoryHasher()
	hasher.Set(p, h)

	idx := NewIndex(config.ShareConfig{}, hasher, collab.NewInMemoryQueueManager(), collab.NewInMemoryTimerSource(), collab.NewInMemorySettingsStore())
	t.Cleanup(idx.Close)
	require.NoError(t, idx.AddDirectory(dir, "Share"))
	require.NoError(t, idx.Refresh(true, false, true))

	q := ParseADCQuery("TR " + h.String())
	results := idx.SearchStructured(q)
	require.Len(t, results, 1)
	assert.Equal(t, "/Share/a.mp3", results[0].VirtualPath)
}
