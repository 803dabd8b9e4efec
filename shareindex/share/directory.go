package share

import (
	"sort"
	"strings"
	"time"
)

// File is a leaf in the directory tree. Files are immutable once
// inserted; "mutation" is modeled as remove-then-insert on the owning
// Directory. ModTime is not part of the spec's core data model but is
// carried for the supplemental size/mtime range pre-filter (share/kdrange.go).
type File struct {
	Name    string
	Size    int64
	TTH     TTH
	ModTime time.Time
	Parent  *Directory
}

// Directory is a node in the virtualized share tree. Children are owned
// by their parent; Parent is a non-owning back-reference, nil for roots.
type Directory struct {
	Name   string
	Parent *Directory

	policy CasePolicy

	childOrder []string             // insertion order of fold(name)
	children   map[string]*Directory // fold(name) -> child

	files []*File // strictly ascending by policy, no duplicates

	size      int64
	fileTypes uint32
}

// NewDirectory creates an empty directory node under the given case
// policy. The policy is carried from the owning Index at construction
// time and never re-read from anywhere else.
func NewDirectory(name string, parent *Directory, policy CasePolicy) *Directory {
	return &Directory{
		Name:     name,
		Parent:   parent,
		policy:   policy,
		children: make(map[string]*Directory),
	}
}

// Size returns the cached subtree byte size (invariant 2 of the data
// model: size == sum of child sizes + sum of file sizes).
func (d *Directory) Size() int64 {
	return d.size
}

// FileTypes returns the 32-bit bitmap of type-classes present anywhere in
// the subtree.
func (d *Directory) FileTypes() uint32 {
	return d.fileTypes
}

// HasType reports whether the subtree contains a file of type t (or any,
// which always matches).
func (d *Directory) HasType(t FileType) bool {
	return Has(d.fileTypes, t)
}

// addType sets bit t on this node and recurses to the parent, exactly as
// the source's Directory::addType does.
func (d *Directory) addType(t FileType) {
	if t == TypeAny {
		return
	}
	for n := d; n != nil; n = n.Parent {
		if n.fileTypes&uint32(t) == uint32(t) {
			break
		}
		n.fileTypes |= uint32(t)
	}
}

// ADCPath returns the slash-separated virtual path from the root to this
// node, with a trailing slash.
func (d *Directory) ADCPath() string {
	if d.Parent == nil {
		return "/" + d.Name + "/"
	}
	return d.Parent.ADCPath() + d.Name + "/"
}

// FindFile looks up a file named name under the directory's case policy
// by binary search over the ascending Files slice.
func (d *Directory) FindFile(name string) (*File, bool) {
	i := d.fileSearchIndex(name)
	if i < len(d.files) && d.policy.Equal(d.files[i].Name, name) {
		return d.files[i], true
	}
	return nil, false
}

func (d *Directory) fileSearchIndex(name string) int {
	return sort.Search(len(d.files), func(i int) bool {
		return !d.policy.Less(d.files[i].Name, name)
	})
}

// addFile inserts a file in sorted position, rejecting a duplicate name,
// and eagerly propagates its size/type contribution to ancestors. Returns
// false if a file with that name already exists (caller should remove
// first, per "mutation is remove-then-insert").
func (d *Directory) addFile(f *File) bool {
	if !d.insertSorted(f) {
		return false
	}
	for n := d; n != nil; n = n.Parent {
		n.size += f.Size
	}
	d.addType(FileTypeOf(f.Name))
	return true
}

// insertSorted inserts f in sorted position without touching size or
// fileTypes, for use during shadow-tree construction where many
// directories are built concurrently and only a single final recompute()
// pass aggregates size/type bottom-up.
func (d *Directory) insertSorted(f *File) bool {
	i := d.fileSearchIndex(f.Name)
	if i < len(d.files) && d.policy.Equal(d.files[i].Name, f.Name) {
		return false
	}
	d.files = append(d.files, nil)
	copy(d.files[i+1:], d.files[i:])
	d.files[i] = f
	f.Parent = d
	return true
}

// removeFile deletes the file named name, if present, returning it.
func (d *Directory) removeFile(name string) (*File, bool) {
	i := d.fileSearchIndex(name)
	if i >= len(d.files) || !d.policy.Equal(d.files[i].Name, name) {
		return nil, false
	}
	f := d.files[i]
	d.files = append(d.files[:i], d.files[i+1:]...)
	for n := d; n != nil; n = n.Parent {
		n.size -= f.Size
	}
	return f, true
}

// Files returns the ordered file slice; callers must not mutate it.
func (d *Directory) Files() []*File {
	return d.files
}

// childKey folds name under the directory's policy for map lookups.
func (d *Directory) childKey(name string) string {
	return d.policy.Fold(name)
}

// Child looks up an existing subdirectory by name, case-policy aware.
func (d *Directory) Child(name string) (*Directory, bool) {
	c, ok := d.children[d.childKey(name)]
	return c, ok
}

// Children returns subdirectories in insertion order.
func (d *Directory) Children() []*Directory {
	out := make([]*Directory, 0, len(d.childOrder))
	for _, k := range d.childOrder {
		out = append(out, d.children[k])
	}
	return out
}

// addChild inserts or returns the existing child directory named name.
func (d *Directory) addChild(name string) *Directory {
	key := d.childKey(name)
	if c, ok := d.children[key]; ok {
		return c
	}
	c := NewDirectory(name, d, d.policy)
	d.children[key] = c
	d.childOrder = append(d.childOrder, key)
	return c
}

// removeChild deletes a subdirectory. It does not adjust the cached
// size/fileTypes of this node or its ancestors; callers must recompute
// them afterward.
func (d *Directory) removeChild(name string) {
	key := d.childKey(name)
	delete(d.children, key)
	for i, k := range d.childOrder {
		if k == key {
			d.childOrder = append(d.childOrder[:i], d.childOrder[i+1:]...)
			break
		}
	}
}

// FindOrCreatePath walks/creates subdirectories for a "/"-joined relative
// path, returning the final directory.
func (d *Directory) FindOrCreatePath(relPath string) *Directory {
	cur := d
	for _, seg := range splitPath(relPath) {
		if seg == "" || seg == "." {
			continue
		}
		cur = cur.addChild(seg)
	}
	return cur
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

// recompute rebuilds size and fileTypes bottom-up from children and
// files, used after a merge so the cached aggregates reflect reality
// without relying on incremental addType/size bookkeeping staying
// perfectly in sync through a diff.
func (d *Directory) recompute() {
	var size int64
	var types uint32
	for _, c := range d.children {
		c.recompute()
		size += c.size
		types |= c.fileTypes
	}
	for _, f := range d.files {
		size += f.Size
	}
	for _, f := range d.files {
		types |= uint32(FileTypeOf(f.Name))
	}
	d.size = size
	d.fileTypes = types
}
