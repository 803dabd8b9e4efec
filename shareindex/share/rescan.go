package share

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/dcshare/shareindex/config"
	"github.com/dcshare/shareindex/share/collab"
)

// Refresh schedules a rescan, matching ShareManager::refresh. dirs=true
// forces a full tree walk; dirs=false regenerates the XML listing only if
// the tree is already current. If a rescan is already in progress, the
// call is absorbed into a single pending-rerun bit — there is no queue
// (S4). block=true waits for the triggered pass (if any) to complete.
func (idx *Index) Refresh(dirs, update, block bool) error {
	if !dirs {
		if !idx.IsRefreshing() {
			idx.publishListingIfDue(true)
		}
		return nil
	}

	if !idx.refreshing.CompareAndSwap(false, true) {
		idx.pendingRescan.Store(true)
		if block {
			idx.waitForIdle()
		}
		return nil
	}

	if block {
		idx.runRescan(update)
		return nil
	}
	go idx.runRescan(update)
	return nil
}

// OnMinuteTick evaluates rescan due-time and listing due-time, per the
// timer source's minute-tick contract (§6). Grounded on the debouncer's
// timer-driven batching idiom, adapted from per-event debounce to
// per-interval gating.
func (idx *Index) OnMinuteTick(tick uint64) {
	if !idx.IsRefreshing() && idx.clock.Now().Sub(idx.lastFullRescan) >= idx.rescanInterval {
		idx.lastFullRescan = idx.clock.Now()
		if err := idx.Refresh(true, true, false); err != nil {
			idx.logger.Warn("scheduled rescan failed to start", "error", err)
		}
	}
	idx.publishListingIfDue(false)
}

// waitForIdle busy-polls until no rescan is in flight. The core has no
// task cancellation or condition variable wired here since the source
// itself models completion only via the refreshing flag (§5).
func (idx *Index) waitForIdle() {
	for idx.refreshing.Load() {
		time.Sleep(time.Millisecond)
	}
}

// runRescan drives one full Walking -> Merging -> Indexing pass, then
// re-triggers itself once more if a request was absorbed while it ran.
func (idx *Index) runRescan(update bool) {
	start := idx.clock.Now()
	for {
		idx.doOneRescanPass(update)
		if !idx.pendingRescan.CompareAndSwap(true, false) {
			break
		}
	}
	idx.refreshing.Store(false)
	finished := idx.clock.Now()
	took := finished.Sub(start)
	fileCount := int64(len(idx.hashIndex))
	dirCount := int64(len(idx.roots))
	totalSize := idx.GetShareSize()
	idx.metrics.recordRescan(fileCount, dirCount, totalSize, took)

	if idx.storage != nil {
		if err := idx.storage.RecordRescan(finished, took, fileCount, dirCount, totalSize); err != nil {
			idx.logger.Warn("failed to persist rescan bookkeeping", "error", err)
		}
	}
}

// doOneRescanPass is one Walking -> Merging -> Indexing cycle over every
// configured root.
func (idx *Index) doOneRescanPass(update bool) {
	roots := idx.pendingRoots()

	workers := runtime.GOMAXPROCS(0) * 2
	p := pool.New().WithMaxGoroutines(workers)

	type built struct {
		virtual string
		shadow  *Directory
		errs    []error
	}
	results := make([]built, len(roots))

	for i, r := range roots {
		i, r := i, r
		p.Go(func() {
			shadow, errs := buildShadowTree(idx.cfg, idx.hasher, r.real, r.virtual, idx.policy)
			results[i] = built{virtual: r.virtual, shadow: shadow, errs: errs}
		})
	}
	p.Wait()

	idx.cs.Lock()
	for _, b := range results {
		for _, e := range b.errs {
			idx.logger.Warn("rescan error", "root", b.virtual, "error", e)
		}
		idx.mergeLocked(b.virtual, b.shadow)
	}
	idx.rebuildIndicesLocked()
	idx.xmlDirty.Store(true)
	idx.cs.Unlock()

	if update {
		idx.publishListingIfDue(false)
	}
}

type pendingRoot struct {
	real    string
	virtual string
}

// pendingRoots snapshots the share map's (realPath, virtualName) pairs
// under the read lock, per "the single rescan thread reads a set of
// pending roots taken from the share map".
func (idx *Index) pendingRoots() []pendingRoot {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	entries := idx.shareMap.Entries()
	out := make([]pendingRoot, 0, len(entries))
	for _, e := range entries {
		out = append(out, pendingRoot{real: strings.TrimSuffix(e.RealPath, string(filepath.Separator)), virtual: e.Virtual})
	}
	return out
}

// buildShadowTree walks one real root concurrently and returns a shadow
// Directory with no aliasing to the live tree (§5). Each subdirectory is
// walked on its own goroutine; a semaphore of GOMAXPROCS*2 slots, local
// to this root, bounds how many directory reads run at once. Separate
// roots are built in parallel by doOneRescanPass's conc pool.
func buildShadowTree(cfg config.ShareConfig, hasher collab.Hasher, realPath, virtualName string, policy CasePolicy) (*Directory, []error) {
	root := NewDirectory(virtualName, nil, policy)

	var mu sync.Mutex
	var errs []error
	recordErr := func(err error) {
		mu.Lock()
		errs = append(errs, &RescanError{Root: realPath, Err: err})
		mu.Unlock()
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0)*2)

	var walk func(dir *Directory, real string)
	walk = func(dir *Directory, real string) {
		defer wg.Done()
		sem <- struct{}{}
		entries, err := os.ReadDir(real)
		<-sem
		if err != nil {
			recordErr(fmt.Errorf("%w: read dir %s: %v", ErrIOUnavailable, real, err))
			return
		}
		for _, e := range entries {
			name := e.Name()
			childReal := filepath.Join(real, name)

			if e.IsDir() {
				if skipHidden(cfg, name) {
					continue
				}
				child := dir.addChild(name)
				wg.Add(1)
				go walk(child, childReal)
				continue
			}
			if e.Type()&os.ModeSymlink != 0 || !e.Type().IsRegular() {
				continue
			}
			if skipHidden(cfg, name) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				recordErr(fmt.Errorf("stat %s: %w", childReal, err))
				continue
			}
			if cfg.SkipZeroByte && info.Size() == 0 {
				continue
			}
			tth, ok := hasher.GetHash(childReal)
			if !ok {
				hasher.RequestHash(childReal)
				continue
			}
			dir.insertSorted(&File{Name: name, Size: info.Size(), TTH: tth, ModTime: info.ModTime()})
		}
	}

	wg.Add(1)
	walk(root, realPath)
	wg.Wait()

	root.recompute()
	return root, errs
}

func skipHidden(cfg config.ShareConfig, name string) bool {
	if cfg.ShareHidden {
		return false
	}
	if !cfg.HideHidden {
		return false
	}
	return strings.HasPrefix(name, ".")
}

// mergeLocked implements §4.D's three-way diff: present-only-in-shadow
// inserts, present-only-in-live removes, present-in-both keeps or
// replaces on hash difference. Callers must hold cs for writing.
func (idx *Index) mergeLocked(virtual string, shadow *Directory) {
	key := idx.foldVirtual(virtual)
	live, ok := idx.roots[key]
	if !ok {
		live = NewDirectory(virtual, nil, idx.policy)
		idx.roots[key] = live
		idx.rootNames[key] = virtual
	}
	mergeDirectory(live, shadow)
	live.recompute()
}

// mergeDirectory merges shadow's children and files into live in place.
func mergeDirectory(live, shadow *Directory) {
	liveChildNames := make(map[string]bool, len(live.children))
	for key := range live.children {
		liveChildNames[key] = true
	}
	for _, sc := range shadow.Children() {
		key := live.childKey(sc.Name)
		delete(liveChildNames, key)
		if lc, ok := live.children[key]; ok {
			mergeDirectory(lc, sc)
			continue
		}
		sc.Parent = live
		live.children[key] = sc
		live.childOrder = append(live.childOrder, key)
	}
	for key := range liveChildNames {
		live.removeChild(live.children[key].Name)
	}

	shadowFiles := make(map[string]*File, len(shadow.files))
	for _, f := range shadow.files {
		shadowFiles[live.policy.Fold(f.Name)] = f
	}
	liveFiles := make(map[string]*File, len(live.files))
	for _, f := range live.files {
		liveFiles[live.policy.Fold(f.Name)] = f
	}

	for foldName, lf := range liveFiles {
		sf, present := shadowFiles[foldName]
		if !present {
			live.removeFile(lf.Name)
			continue
		}
		if sf.TTH != lf.TTH {
			live.removeFile(lf.Name)
			live.insertSorted(sf)
		}
	}
	for foldName, sf := range shadowFiles {
		if _, present := liveFiles[foldName]; !present {
			live.insertSorted(sf)
		}
	}
}

// rebuildIndicesLocked rebuilds the hash index, extension index, and
// bloom filter from the live tree in one pass, matching
// ShareManager::rebuildIndices. Callers must hold cs for writing.
func (idx *Index) rebuildIndicesLocked() {
	idx.hashIndex = make(map[TTH]*File)
	idx.extIndex.Clear()
	idx.bloom = NewDefaultFilter()
	idx.pathIndex.Clear()

	var points DirPoints
	for _, root := range idx.roots {
		idx.pathIndex.Put(root.Name, root)
		forEachFile(root, func(f *File) {
			idx.hashIndex[f.TTH] = f // later-inserted wins, per invariant "Hash index"
			idx.extIndex.Add(f)
			idx.bloom.AddName(f.Name)
			points = append(points, newDirPoint(f))
		})
	}
	idx.sizeTime = buildSizeTimeIndex(points)
}
