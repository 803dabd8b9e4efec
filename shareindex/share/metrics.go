package share

import (
	"sync/atomic"
	"time"
)

// Metrics holds counters and timings for rescan and search, mirroring
// the shape of the tree package's TreeMetrics but scoped to the
// operations this index performs.
type Metrics struct {
	TotalFiles      atomic.Int64
	TotalDirs       atomic.Int64
	TotalSize       atomic.Int64
	Hits            atomic.Uint32
	LastRescan      atomic.Int64 // unix nanos
	LastRescanTook  atomic.Int64 // nanoseconds
	RescanCount     atomic.Int64
	SearchCount     atomic.Int64
	ListingRegenned atomic.Int64
}

// Snapshot is an immutable point-in-time copy of Metrics for callers that
// want to read several fields consistently.
type Snapshot struct {
	TotalFiles     int64
	TotalDirs      int64
	TotalSize      int64
	Hits           uint32
	LastRescan     time.Time
	LastRescanTook time.Duration
	RescanCount    int64
	SearchCount    int64
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TotalFiles:     m.TotalFiles.Load(),
		TotalDirs:      m.TotalDirs.Load(),
		TotalSize:      m.TotalSize.Load(),
		Hits:           m.Hits.Load(),
		LastRescan:     time.Unix(0, m.LastRescan.Load()),
		LastRescanTook: time.Duration(m.LastRescanTook.Load()),
		RescanCount:    m.RescanCount.Load(),
		SearchCount:    m.SearchCount.Load(),
	}
}

// recordRescan updates rescan-related counters after a pass completes.
func (m *Metrics) recordRescan(files, dirs, size int64, took time.Duration) {
	m.TotalFiles.Store(files)
	m.TotalDirs.Store(dirs)
	m.TotalSize.Store(size)
	m.LastRescan.Store(time.Now().UnixNano())
	m.LastRescanTook.Store(int64(took))
	m.RescanCount.Add(1)
}

// AddHits increments the search-hit counter peers' results are expected
// to bump, grounded on ShareManager::addHits/GETSET(uint32_t, hits, Hits).
func (m *Metrics) AddHits(n uint32) {
	m.Hits.Add(n)
}
