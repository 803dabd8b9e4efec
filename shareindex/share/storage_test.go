package share

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageRecordAndLoadRescan(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "bookkeeping.db")
	s, err := OpenStorage(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, _, ok, err := s.LastRescan()
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.RecordRescan(now, 2*time.Second, 10, 3, 4096))

	completedAt, took, ok, err := s.LastRescan()
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, now, completedAt, time.Millisecond)
	assert.Equal(t, 2*time.Second, took)
}

func TestStorageRecordListing(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "bookkeeping.db")
	s, err := OpenStorage(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var xmlRoot, bzRoot TTH
	copy(xmlRoot[:], "xml")
	copy(bzRoot[:], "bz")
	require.NoError(t, s.RecordListing(time.Now(), xmlRoot, bzRoot, 100, 40))
}
