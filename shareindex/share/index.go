// Package share implements the Share Index: a virtualized directory tree
// with three lookup paths (virtual path, real path, content hash), kept
// consistent across a background rescan while search and listing reads
// continue to hit it.
package share

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dcshare/shareindex/config"
	"github.com/dcshare/shareindex/share/collab"
)

// Index is the process-wide Share Index service. It is constructed once
// and passed explicitly to collaborators; there is no hidden global
// state (design note "Singleton").
type Index struct {
	cs sync.RWMutex

	policy CasePolicy
	cfg    config.ShareConfig
	logger *slog.Logger

	roots     map[string]*Directory // fold(virtual) -> merged root
	rootNames map[string]string     // fold(virtual) -> display name

	shareMap  *ShareMap
	hashIndex map[TTH]*File
	pathIndex *PathIndex
	extIndex  *ExtIndex
	bloom     *Filter
	sizeTime  *sizeTimeIndex

	hasher   collab.Hasher
	queue    collab.QueueManager
	timer    collab.TimerSource
	settings collab.SettingsStore
	clock    collab.Clock

	refreshing      atomic.Bool
	pendingRescan   atomic.Bool
	forceXmlRefresh atomic.Bool
	xmlDirty        atomic.Bool

	lastFullRescan time.Time
	lastListingGen time.Time
	rescanInterval time.Duration

	metrics *Metrics
	listing *Listing

	storage *Storage

	unsubscribes []func()
}

// Option configures an Index at construction time.
type Option func(*Index)

// WithLogger overrides the default stderr text-handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(idx *Index) { idx.logger = l }
}

// WithStorage attaches an optional bookkeeping store for rescan/listing
// freshness so a restart doesn't discard last-known state.
func WithStorage(s *Storage) Option {
	return func(idx *Index) { idx.storage = s }
}

// WithClock overrides the wall clock, for deterministic tests of
// throttle behavior.
func WithClock(c collab.Clock) Option {
	return func(idx *Index) { idx.clock = c }
}

// WithRescanInterval overrides the full-rescan throttle interval
// (default 1 minute, matching the source's minute-tick gate).
func WithRescanInterval(d time.Duration) Option {
	return func(idx *Index) { idx.rescanInterval = d }
}

// NewIndex constructs an Index under the given configuration and
// collaborators. The case policy is captured here and never changes for
// the lifetime of this value (design note "Case policy as global
// switch").
func NewIndex(cfg config.ShareConfig, hasher collab.Hasher, queue collab.QueueManager, timer collab.TimerSource, settings collab.SettingsStore, opts ...Option) *Index {
	policy := CaseInsensitive
	if cfg.CaseSensitiveFilelist {
		policy = CaseSensitive
	}

	idx := &Index{
		policy:         policy,
		cfg:            cfg,
		logger:         slog.New(slog.NewTextHandler(os.Stderr, nil)),
		roots:          make(map[string]*Directory),
		rootNames:      make(map[string]string),
		shareMap:       NewShareMap(),
		hashIndex:      make(map[TTH]*File),
		pathIndex:      NewPathIndex(policy),
		extIndex:       NewExtIndex(),
		bloom:          NewDefaultFilter(),
		hasher:         hasher,
		queue:          queue,
		timer:          timer,
		settings:       settings,
		clock:          collab.SystemClock{},
		metrics:        &Metrics{},
		rescanInterval: time.Minute,
	}

	for _, opt := range opts {
		opt(idx)
	}

	idx.listing = newListing(idx)

	if idx.queue != nil {
		idx.unsubscribes = append(idx.unsubscribes, idx.queue.Subscribe(func(realPath string) {
			if err := idx.OnFileMoved(realPath); err != nil {
				idx.logger.Warn("file-moved handling failed", "real_path", realPath, "error", err)
			}
		}))
	}
	if idx.timer != nil {
		idx.unsubscribes = append(idx.unsubscribes, idx.timer.Subscribe(idx.OnMinuteTick))
	}

	return idx
}

// Close unsubscribes from all collaborators.
func (idx *Index) Close() {
	for _, unsub := range idx.unsubscribes {
		unsub()
	}
}

// LoadSettings loads the persisted share map through the settings
// collaborator and repopulates roots from it (§6 settings_load). An
// empty or absent document is not an error: it means nothing has been
// persisted yet, and the index keeps whatever state it already has.
func (idx *Index) LoadSettings() error {
	doc, err := idx.settings.Load()
	if err != nil {
		return fmt.Errorf("share: load settings: %w", err)
	}
	if len(doc) == 0 {
		return nil
	}
	m, err := UnmarshalShareMap(doc)
	if err != nil {
		return fmt.Errorf("share: load settings: %w", err)
	}

	idx.cs.Lock()
	defer idx.cs.Unlock()

	idx.shareMap = m
	idx.roots = make(map[string]*Directory)
	idx.rootNames = make(map[string]string)
	for _, e := range m.Entries() {
		key := idx.foldVirtual(e.Virtual)
		if _, ok := idx.roots[key]; !ok {
			idx.roots[key] = NewDirectory(e.Virtual, nil, idx.policy)
			idx.rootNames[key] = e.Virtual
		}
	}
	idx.xmlDirty.Store(true)
	return nil
}

// SaveSettings serializes the current share map and persists it through
// the settings collaborator (§6 settings_save).
func (idx *Index) SaveSettings() error {
	idx.cs.RLock()
	doc, err := idx.shareMap.MarshalXML()
	idx.cs.RUnlock()
	if err != nil {
		return fmt.Errorf("share: save settings: %w", err)
	}
	if err := idx.settings.Save(doc); err != nil {
		return fmt.Errorf("share: save settings: %w", err)
	}
	return nil
}

// foldVirtual extracts and folds the first path segment (the virtual
// root name) from a virtual path or bare name.
func (idx *Index) foldVirtual(name string) string {
	return idx.policy.Fold(strings.Trim(name, "/"))
}

// HasVirtual reports whether a root with this virtual name currently
// exists. Supplemental feature from ShareManager::hasVirtual.
func (idx *Index) HasVirtual(name string) bool {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	_, ok := idx.roots[idx.foldVirtual(name)]
	return ok
}

// ValidateVirtual reports whether name is acceptable as a root's virtual
// name: it must be non-empty and contain no path separator. It does not
// check whether the name is already in use. Supplemental feature from
// ShareManager::validateVirtual, giving the assembly layer a cheap
// pre-check before calling AddDirectory.
func (idx *Index) ValidateVirtual(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty virtual name", ErrShareNotFound)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: virtual name must not contain path separators", ErrShareNotFound)
	}
	return nil
}

// AddDirectory shares realPath under the given virtual name, failing
// with a typed error the caller must handle (§7 policy).
func (idx *Index) AddDirectory(realPath, virtual string) error {
	if err := idx.ValidateVirtual(virtual); err != nil {
		return err
	}
	if !idx.cfg.ShareHidden && isHiddenPath(realPath) {
		return fmt.Errorf("%w: %s", ErrShareHidden, realPath)
	}

	idx.cs.Lock()
	defer idx.cs.Unlock()

	if err := idx.shareMap.Add(realPath, virtual); err != nil {
		return err
	}

	key := idx.foldVirtual(virtual)
	if _, ok := idx.roots[key]; !ok {
		idx.roots[key] = NewDirectory(virtual, nil, idx.policy)
		idx.rootNames[key] = virtual
	}
	idx.xmlDirty.Store(true)
	return nil
}

// RemoveDirectory unshares realPath. If it was the last real path backing
// its virtual root, the root is dropped.
func (idx *Index) RemoveDirectory(realPath string) error {
	idx.cs.Lock()
	defer idx.cs.Unlock()

	virtual, ok := idx.shareMap.ToVirtual(realPath)
	if !ok {
		return fmt.Errorf("%w: %s", ErrShareNotFound, realPath)
	}
	if err := idx.shareMap.Remove(realPath); err != nil {
		return err
	}
	if len(idx.shareMap.RealPathsFor(virtual)) == 0 {
		key := idx.foldVirtual(virtual)
		idx.dropRootLocked(key)
	}
	idx.xmlDirty.Store(true)
	return nil
}

// RenameDirectory changes the virtual name realPath is shared under.
func (idx *Index) RenameDirectory(realPath, newVirtual string) error {
	if err := idx.ValidateVirtual(newVirtual); err != nil {
		return err
	}

	idx.cs.Lock()
	defer idx.cs.Unlock()

	oldVirtual, ok := idx.shareMap.ToVirtual(realPath)
	if !ok {
		return fmt.Errorf("%w: %s", ErrShareNotFound, realPath)
	}
	if err := idx.shareMap.Rename(realPath, newVirtual); err != nil {
		return err
	}

	if len(idx.shareMap.RealPathsFor(oldVirtual)) == 0 {
		idx.dropRootLocked(idx.foldVirtual(oldVirtual))
	}
	newKey := idx.foldVirtual(newVirtual)
	if _, ok := idx.roots[newKey]; !ok {
		idx.roots[newKey] = NewDirectory(newVirtual, nil, idx.policy)
		idx.rootNames[newKey] = newVirtual
	}
	idx.xmlDirty.Store(true)
	return nil
}

// dropRootLocked removes a root and its indexed contents. Callers must
// hold cs for writing.
func (idx *Index) dropRootLocked(key string) {
	root, ok := idx.roots[key]
	if !ok {
		return
	}
	forEachFile(root, func(f *File) {
		if idx.hashIndex[f.TTH] == f {
			delete(idx.hashIndex, f.TTH)
		}
		idx.extIndex.Remove(f)
	})
	idx.pathIndex.Delete(root.Name)
	delete(idx.roots, key)
	delete(idx.rootNames, key)
}

// forEachFile walks d's subtree depth-first, invoking fn for every file.
func forEachFile(d *Directory, fn func(*File)) {
	for _, f := range d.Files() {
		fn(f)
	}
	for _, c := range d.Children() {
		forEachFile(c, fn)
	}
}

// IsRefreshing reports whether a rescan is currently in flight, the sole
// visible concurrency signal to callers (§5).
func (idx *Index) IsRefreshing() bool {
	return idx.refreshing.Load()
}

// ToVirtual resolves a real path to the virtual name it is shared under.
func (idx *Index) ToVirtual(realPath string) (string, error) {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	v, ok := idx.shareMap.ToVirtual(realPath)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrShareNotFound, realPath)
	}
	return v, nil
}

// GetRealPaths returns every real path contributing to the directory a
// virtual path resolves to, or the single real path backing a file.
func (idx *Index) GetRealPaths(virtualPath string) ([]string, error) {
	idx.cs.RLock()
	defer idx.cs.RUnlock()

	f, d, err := idx.resolveLocked(virtualPath)
	if err != nil {
		return nil, err
	}
	if f != nil {
		real, err := idx.realPathForFileLocked(f)
		if err != nil {
			return nil, err
		}
		return []string{real}, nil
	}
	root := d
	var rel []string
	for root.Parent != nil {
		rel = append([]string{root.Name}, rel...)
		root = root.Parent
	}
	reals := idx.shareMap.RealPathsFor(root.Name)
	for i := range reals {
		reals[i] = joinPath(reals[i], rel)
	}
	return reals, nil
}

// ToReal resolves a virtual file path to its single real filesystem
// path, failing if more than zero but resolution is ambiguous (it never
// is for a file: a file always belongs to exactly one real directory,
// recorded at insertion time via its root's share-map entries when there
// is only one; when a root merges multiple real paths the first
// contributing real path with a matching relative layout is returned).
func (idx *Index) ToReal(virtualPath string) (string, error) {
	reals, err := idx.GetRealPaths(virtualPath)
	if err != nil {
		return "", err
	}
	return reals[0], nil
}

// realPathForFileLocked walks f's ADC path and resolves it against the
// share map in reverse, per Directory::real_path in §4.B.
func (idx *Index) realPathForFileLocked(f *File) (string, error) {
	root := f.Parent
	for root.Parent != nil {
		root = root.Parent
	}
	reals := idx.shareMap.RealPathsFor(root.Name)
	if len(reals) == 0 {
		return "", fmt.Errorf("%w: %s", ErrShareNotFound, root.Name)
	}

	var rel []string
	for d := f.Parent; d.Parent != nil; d = d.Parent {
		rel = append([]string{d.Name}, rel...)
	}
	rel = append(rel, f.Name)

	for _, real := range reals {
		candidate := joinPath(real, rel)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	// No real path currently backs it on disk (e.g. in tests with no
	// filesystem fixture); fall back to the first contributing real root.
	return joinPath(reals[0], rel), nil
}

func joinPath(base string, segs []string) string {
	out := strings.TrimSuffix(base, "/")
	for _, s := range segs {
		out += "/" + s
	}
	return out
}

// GetTTH resolves a virtual file path to its content hash.
func (idx *Index) GetTTH(virtualPath string) (TTH, error) {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	f, d, err := idx.resolveLocked(virtualPath)
	if err != nil {
		return TTH{}, err
	}
	if f == nil {
		_ = d
		return TTH{}, fmt.Errorf("%w: %s is a directory", ErrShareNotFound, virtualPath)
	}
	return f.TTH, nil
}

// IsTTHShared reports whether a content hash is currently indexed.
func (idx *Index) IsTTHShared(tth TTH) bool {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	_, ok := idx.hashIndex[tth]
	return ok
}

// GetDirectories returns the virtual names of every current root.
func (idx *Index) GetDirectories() []string {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	out := make([]string, 0, len(idx.rootNames))
	for _, n := range idx.rootNames {
		out = append(out, n)
	}
	return out
}

// GetShareSize returns the total byte size of the entire share.
func (idx *Index) GetShareSize() int64 {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	var total int64
	for _, r := range idx.roots {
		total += r.Size()
	}
	return total
}

// GetShareSizeOf returns the size of the root backing a single real
// path. Supplemental feature from ShareManager::getShareSize(realPath);
// because multiple real paths merge into one root, this reports the
// merged root's total size, not an isolated per-real-path figure.
func (idx *Index) GetShareSizeOf(realPath string) (int64, error) {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	virtual, ok := idx.shareMap.ToVirtual(realPath)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrShareNotFound, realPath)
	}
	root, ok := idx.roots[idx.foldVirtual(virtual)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrShareNotFound, virtual)
	}
	return root.Size(), nil
}

// GetSharedFiles returns the total number of files currently indexed.
func (idx *Index) GetSharedFiles() int {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	return len(idx.hashIndex) + idx.countDuplicateHashFilesLocked()
}

// countDuplicateHashFilesLocked accounts for files sharing a hash with
// another file, which the hashIndex map alone undercounts by one per
// collision (S3).
func (idx *Index) countDuplicateHashFilesLocked() int {
	n := 0
	for _, r := range idx.roots {
		forEachFile(r, func(f *File) {
			if idx.hashIndex[f.TTH] != f {
				n++
			}
		})
	}
	return n
}

// AddHits increments the search-hit counter. Supplemental feature from
// ShareManager::addHits.
func (idx *Index) AddHits(n uint32) {
	idx.metrics.AddHits(n)
}

// GetMetrics returns a snapshot of rescan/search counters.
func (idx *Index) GetMetrics() Snapshot {
	return idx.metrics.Snapshot()
}

// SetDirty marks the XML listing stale so a later due-time check
// regenerates it. The 15-minute gate still applies unless a refresh is
// forced (ForceXmlRefresh) or explicit (Refresh with dirs=false).
func (idx *Index) SetDirty() {
	idx.xmlDirty.Store(true)
}

// ForceXmlRefresh requests that the next listing due-time check ignore
// the 15-minute throttle.
func (idx *Index) ForceXmlRefresh() {
	idx.forceXmlRefresh.Store(true)
}

// resolveLocked implements §4.C's three-step virtual path resolution.
// Callers must hold cs for reading.
func (idx *Index) resolveLocked(virtualPath string) (*File, *Directory, error) {
	trimmed := strings.Trim(virtualPath, "/")
	if strings.HasPrefix(trimmed, "TTH/") {
		tth, err := ParseTTH(strings.TrimPrefix(trimmed, "TTH/"))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrShareNotFound, err)
		}
		f, ok := idx.hashIndex[tth]
		if !ok {
			return nil, nil, fmt.Errorf("%w: TTH/%s", ErrShareNotFound, tth)
		}
		return f, f.Parent, nil
	}

	isDir := strings.HasSuffix(virtualPath, "/") || trimmed == ""
	segs := strings.Split(trimmed, "/")
	if len(segs) == 0 || segs[0] == "" {
		return nil, nil, fmt.Errorf("%w: empty virtual path", ErrShareNotFound)
	}

	root, ok := idx.roots[idx.foldVirtual(segs[0])]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrShareNotFound, virtualPath)
	}

	cur := root
	last := len(segs) - 1
	for i := 1; i <= last; i++ {
		seg := segs[i]
		if seg == "" {
			continue
		}
		if i == last && !isDir {
			f, ok := cur.FindFile(seg)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s", ErrShareNotFound, virtualPath)
			}
			return f, cur, nil
		}
		child, ok := cur.Child(seg)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrShareNotFound, virtualPath)
		}
		cur = child
	}
	return nil, cur, nil
}

// Resolve is the exported form of resolveLocked for callers outside the
// package that already understand the read/write contract, e.g. the
// search evaluator.
func (idx *Index) Resolve(virtualPath string) (*File, *Directory, error) {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	return idx.resolveLocked(virtualPath)
}

// FileInfo is a single-file metadata lookup result, used by peer
// protocol handlers to answer GET/$ADCGET requests without a full
// search round trip. Supplemental feature from ShareManager::getFileInfo.
type FileInfo struct {
	VirtualPath string
	Size        int64
	TTH         TTH
}

// FileInfo resolves virtualPath to a single file's metadata.
func (idx *Index) FileInfo(virtualPath string) (*FileInfo, error) {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	f, _, err := idx.resolveLocked(virtualPath)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s is a directory", ErrShareNotFound, virtualPath)
	}
	return &FileInfo{VirtualPath: virtualPath, Size: f.Size, TTH: f.TTH}, nil
}

func isHiddenPath(p string) bool {
	for _, seg := range strings.Split(strings.Trim(p, string(os.PathSeparator)), string(os.PathSeparator)) {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
