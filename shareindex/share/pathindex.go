package share

import (
	"strings"

	"github.com/armon/go-radix"
)

// PathIndex is a patricia-trie cache from normalized virtual path to the
// Directory last recorded there, with O(k) Get and LongestPrefix lookups.
// Rescans record each root and OnHashDone records the directory it
// inserts into. Virtual path resolution and search walk the tree from the
// root and do not consult this cache.
type PathIndex struct {
	tree   *radix.Tree
	policy CasePolicy
}

// NewPathIndex creates an empty path index under the given case policy.
func NewPathIndex(policy CasePolicy) *PathIndex {
	return &PathIndex{tree: radix.New(), policy: policy}
}

func (p *PathIndex) normalize(virtualPath string) string {
	v := strings.Trim(virtualPath, "/")
	return p.policy.Fold(v)
}

// Put records that virtualPath currently resolves to dir.
func (p *PathIndex) Put(virtualPath string, dir *Directory) {
	p.tree.Insert(p.normalize(virtualPath), dir)
}

// Get returns the cached Directory for virtualPath, if any.
func (p *PathIndex) Get(virtualPath string) (*Directory, bool) {
	v, ok := p.tree.Get(p.normalize(virtualPath))
	if !ok {
		return nil, false
	}
	return v.(*Directory), true
}

// Delete drops any cache entry for virtualPath and its descendants,
// called when a directory is removed or renamed so stale entries are
// never served.
func (p *PathIndex) Delete(virtualPath string) {
	prefix := p.normalize(virtualPath)
	var stale []string
	p.tree.WalkPrefix(prefix, func(k string, v interface{}) bool {
		if k == prefix || strings.HasPrefix(k, prefix+"/") {
			stale = append(stale, k)
		}
		return false
	})
	for _, k := range stale {
		p.tree.Delete(k)
	}
	p.tree.Delete(prefix)
}

// Clear empties the index, used before a from-scratch rebuild.
func (p *PathIndex) Clear() {
	p.tree = radix.New()
}

// LongestPrefix returns the deepest cached ancestor of virtualPath, used
// to resume a descent partway down a path instead of from the root.
func (p *PathIndex) LongestPrefix(virtualPath string) (string, *Directory, bool) {
	k, v, ok := p.tree.LongestPrefix(p.normalize(virtualPath))
	if !ok {
		return "", nil, false
	}
	return k, v.(*Directory), true
}
