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

func TestDirPointDims(t *testing.T) {
	p := newDirPoint(&File{Size: 10, ModTime: time.Unix(100, 0)})
	assert.Equal(t, 2, p.Dims())
}

func TestDirPointsPivotPartitionsByDimension(t *testing.T) {
	pts := DirPoints{
		newDirPoint(&File{Size: 30, ModTime: time.Unix(1, 0)}),
		newDirPoint(&File{Size: 10, ModTime: time.Unix(2, 0)}),
		newDirPoint(&File{Size: 20, ModTime: time.Unix(3, 0)}),
	}
	pivot := pts.Pivot(0)
	assert.Equal(t, 1, pivot)
	assert.Equal(t, float64(20), pts[pivot].dims[0])
}

func TestQuerySizeTimeRangeFiltersExactBounds(t *testing.T) {
	dir := t.TempDir()
	hasher := collab.NewInMemoryHasher()

	type spec struct {
		name string
		size int
		mod  time.Time
	}
	now := time.Now()
	specs := []spec{
		{"small-old.bin", 10, now.Add(-48 * time.Hour)},
		{"big-new.bin", 10_000, now},
		{"mid-recent.bin", 500, now.Add(-time.Hour)},
	}
	for _, s := range specs {
		p := filepath.Join(dir, s.name)
		require.NoError(t, os.WriteFile(p, make([]byte, s.size), 0o644))
		require.NoError(t, os.Chtimes(p, s.mod, s.mod))
		var h TTH
		copy(h[:], s.name)
		hasher.Set(p, h)
	}

	idx := NewIndex(config.ShareConfig{}, hasher, collab.NewInMemoryQueueManager(), collab.NewInMemoryTimerSource(), collab.NewInMemorySettingsStore())
	t.Cleanup(idx.Close)
	require.NoError(t, idx.AddDirectory(dir, "Share"))
	require.NoError(t, idx.Refresh(true, false, true))

	results := idx.QuerySizeTimeRange(100, 1000, now.Add(-2*time.Hour), now.Add(2*time.Hour))
	require.Len(t, results, 1)
	assert.Equal(t, "mid-recent.bin", results[0].Name)
}

func TestQuerySizeTimeRangeEmptyIndex(t *testing.T) {
	idx := NewIndex(config.ShareConfig{}, collab.NewInMemoryHasher(), collab.NewInMemoryQueueManager(), collab.NewInMemoryTimerSource(), collab.NewInMemorySettingsStore())
	t.Cleanup(idx.Close)
	assert.Nil(t, idx.QuerySizeTimeRange(0, 100, time.Time{}, time.Time{}))
}
