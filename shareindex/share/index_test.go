package share

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshare/shareindex/config"
	"github.com/dcshare/shareindex/share/collab"
)

func newTestIndex(t *testing.T, cfg config.ShareConfig) (*Index, *collab.InMemoryHasher, *collab.InMemoryQueueManager, *collab.InMemoryTimerSource) {
	t.Helper()
	hasher := collab.NewInMemoryHasher()
	queue := collab.NewInMemoryQueueManager()
	timer := collab.NewInMemoryTimerSource()
	settings := collab.NewInMemorySettingsStore()
	idx := NewIndex(cfg, hasher, queue, timer, settings)
	t.Cleanup(idx.Close)
	return idx, hasher, queue, timer
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestAddDirectoryAndResolve(t *testing.T) {
	dir := t.TempDir()
	idx, _, _, _ := newTestIndex(t, config.ShareConfig{})

	require.NoError(t, idx.AddDirectory(dir, "Music"))
	assert.True(t, idx.HasVirtual("Music"))

	_, _, err := idx.Resolve("Music")
	require.NoError(t, err)
}

func TestAddDirectoryRejectsHiddenByDefault(t *testing.T) {
	base := t.TempDir()
	hidden := filepath.Join(base, ".secret")
	require.NoError(t, os.MkdirAll(hidden, 0o755))

	idx, _, _, _ := newTestIndex(t, config.ShareConfig{})
	err := idx.AddDirectory(hidden, "Secret")
	assert.ErrorIs(t, err, ErrShareHidden)
}

func TestAddDirectoryDuplicateVirtualConflict(t *testing.T) {
	a := t.TempDir()
	idx, _, _, _ := newTestIndex(t, config.ShareConfig{})

	require.NoError(t, idx.AddDirectory(a, "Music"))
	err := idx.AddDirectory(a, "Tunes")
	assert.ErrorIs(t, err, ErrShareDuplicate)
}

func TestRemoveDirectoryDropsEmptyRoot(t *testing.T) {
	dir := t.TempDir()
	idx, _, _, _ := newTestIndex(t, config.ShareConfig{})
	require.NoError(t, idx.AddDirectory(dir, "Music"))
	require.NoError(t, idx.RemoveDirectory(dir))
	assert.False(t, idx.HasVirtual("Music"))
}

func TestRescanIndexesFilesAndSupportsSearch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.mp3"), []byte("audio-bytes"))
	writeFile(t, filepath.Join(dir, "Rock", "other.mp3"), []byte("more-audio"))

	idx, hasher, _, _ := newTestIndex(t, config.ShareConfig{})
	hasher.Set(filepath.Join(dir, "song.mp3"), TTH{1})
	hasher.Set(filepath.Join(dir, "Rock", "other.mp3"), TTH{2})

	require.NoError(t, idx.AddDirectory(dir, "Music"))
	require.NoError(t, idx.Refresh(true, false, true))

	assert.Equal(t, 2, idx.GetSharedFiles())
	assert.True(t, idx.IsTTHShared(TTH{1}))

	results := idx.Search(SearchQuery{Tokens: []string{"song"}})
	require.Len(t, results, 1)
	assert.Equal(t, "/Music/song.mp3", results[0].VirtualPath)
}

func TestRescanRequestsHashForUnhashedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "unhashed.mp3"), []byte("x"))

	idx, hasher, _, _ := newTestIndex(t, config.ShareConfig{})
	require.NoError(t, idx.AddDirectory(dir, "Music"))
	require.NoError(t, idx.Refresh(true, false, true))

	assert.Equal(t, 0, idx.GetSharedFiles())
	assert.Contains(t, hasher.Requests, filepath.Join(dir, "unhashed.mp3"))
}

func TestOnHashDoneInsertsFileIncrementally(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.mp3"), []byte("audio"))

	idx, _, _, _ := newTestIndex(t, config.ShareConfig{})
	require.NoError(t, idx.AddDirectory(dir, "Music"))

	require.NoError(t, idx.OnHashDone(filepath.Join(dir, "song.mp3"), TTH{9}))

	assert.True(t, idx.IsTTHShared(TTH{9}))
	f, _, err := idx.Resolve("Music/song.mp3")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, TTH{9}, f.TTH)
}

func TestOnFileMovedRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	realPath := filepath.Join(dir, "song.mp3")
	writeFile(t, realPath, []byte("audio"))

	idx, _, queue, _ := newTestIndex(t, config.ShareConfig{})
	require.NoError(t, idx.AddDirectory(dir, "Music"))
	require.NoError(t, idx.OnHashDone(realPath, TTH{9}))

	queue.Move(realPath)

	assert.False(t, idx.IsTTHShared(TTH{9}))
}

func TestConcurrentRescanRequestsAbsorbIntoOnePending(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp3"), []byte("a"))

	idx, hasher, _, _ := newTestIndex(t, config.ShareConfig{})
	hasher.Set(filepath.Join(dir, "a.mp3"), TTH{1})
	require.NoError(t, idx.AddDirectory(dir, "Music"))

	require.NoError(t, idx.Refresh(true, false, false))
	require.NoError(t, idx.Refresh(true, false, false))
	require.NoError(t, idx.Refresh(true, false, true))

	assert.False(t, idx.IsRefreshing())
	assert.Equal(t, 1, idx.GetSharedFiles())
}

func TestFileInfoResolvesVirtualPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.mp3"), []byte("audio"))

	idx, _, _, _ := newTestIndex(t, config.ShareConfig{})
	require.NoError(t, idx.AddDirectory(dir, "Music"))
	require.NoError(t, idx.OnHashDone(filepath.Join(dir, "song.mp3"), TTH{3}))

	info, err := idx.FileInfo("Music/song.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, TTH{3}, info.TTH)
}

func TestResolveTTHVirtualPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.mp3"), []byte("audio"))

	idx, _, _, _ := newTestIndex(t, config.ShareConfig{})
	require.NoError(t, idx.AddDirectory(dir, "Music"))
	require.NoError(t, idx.OnHashDone(filepath.Join(dir, "song.mp3"), TTH{7}))

	f, _, err := idx.Resolve("TTH/" + TTH{7}.String())
	require.NoError(t, err)
	assert.Equal(t, "song.mp3", f.Name)
}

func TestSaveAndLoadSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := collab.NewInMemorySettingsStore()

	idx := NewIndex(config.ShareConfig{}, collab.NewInMemoryHasher(), collab.NewInMemoryQueueManager(), collab.NewInMemoryTimerSource(), store)
	require.NoError(t, idx.AddDirectory(dir, "Music"))
	require.NoError(t, idx.SaveSettings())
	idx.Close()

	reloaded := NewIndex(config.ShareConfig{}, collab.NewInMemoryHasher(), collab.NewInMemoryQueueManager(), collab.NewInMemoryTimerSource(), store)
	t.Cleanup(reloaded.Close)
	require.NoError(t, reloaded.LoadSettings())

	assert.True(t, reloaded.HasVirtual("Music"))
	reals, err := reloaded.GetRealPaths("Music")
	require.NoError(t, err)
	assert.Equal(t, dir, reals[0])
}

func TestLoadSettingsNoopOnEmptyDocument(t *testing.T) {
	idx, _, _, _ := newTestIndex(t, config.ShareConfig{})
	require.NoError(t, idx.LoadSettings())
	assert.Empty(t, idx.GetDirectories())
}

func TestOnMinuteTickRunsScheduledRescan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp3"), []byte("a"))

	idx, hasher, _, timer := newTestIndex(t, config.ShareConfig{CacheDir: t.TempDir()})
	hasher.Set(filepath.Join(dir, "a.mp3"), TTH{1})
	require.NoError(t, idx.AddDirectory(dir, "Music"))

	timer.Tick()
	// default rescanInterval is one minute; immediately after construction
	// lastFullRescan is zero, so the first tick always triggers a pass.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && idx.GetSharedFiles() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 1, idx.GetSharedFiles())
}
