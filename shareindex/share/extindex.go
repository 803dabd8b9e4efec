package share

import (
	"path/filepath"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// PathID is a dense, reusable identifier assigned to a File for use as a
// roaring bitmap member; it is unrelated to filesystem inodes.
type PathID uint32

// ExtIndex accelerates structured search's EX/NO EX extension filters by
// keeping one roaring bitmap of PathIDs per lowercased extension, mirroring
// the teacher's AttributeBitmaps pattern of one roaring.Bitmap per
// attribute value. The bitmap only accelerates extension-equality checks;
// substring matching of include/exclude tokens is always done directly
// against the filename.
type ExtIndex struct {
	byExt map[string]*roaring.Bitmap
	files map[PathID]*File
	ids   map[*File]PathID
	next  PathID
}

// NewExtIndex creates an empty extension index.
func NewExtIndex() *ExtIndex {
	return &ExtIndex{
		byExt: make(map[string]*roaring.Bitmap),
		files: make(map[PathID]*File),
		ids:   make(map[*File]PathID),
	}
}

func ext(name string) string {
	e := strings.ToLower(filepath.Ext(name))
	return strings.TrimPrefix(e, ".")
}

// Add registers f under its extension, assigning it a fresh PathID.
func (x *ExtIndex) Add(f *File) PathID {
	id := x.next
	x.next++
	x.ids[f] = id
	x.files[id] = f

	e := ext(f.Name)
	bm, ok := x.byExt[e]
	if !ok {
		bm = roaring.New()
		x.byExt[e] = bm
	}
	bm.Add(uint32(id))
	return id
}

// Remove drops f from the index.
func (x *ExtIndex) Remove(f *File) {
	id, ok := x.ids[f]
	if !ok {
		return
	}
	delete(x.ids, f)
	delete(x.files, id)
	if bm, ok := x.byExt[ext(f.Name)]; ok {
		bm.Remove(uint32(id))
	}
}

// Clear empties the index, used before a from-scratch rebuild.
func (x *ExtIndex) Clear() {
	x.byExt = make(map[string]*roaring.Bitmap)
	x.files = make(map[PathID]*File)
	x.ids = make(map[*File]PathID)
	x.next = 0
}

// CandidateBitmap unions the per-extension bitmaps for exts (already
// lowercased, without the leading dot) into one roaring bitmap of
// matching PathIDs, computed once per query. A structured search with an
// EX filter builds this once before walking the tree, then tests each
// candidate file against it with Contains, rather than re-scanning exts
// per file.
func (x *ExtIndex) CandidateBitmap(exts []string) *roaring.Bitmap {
	out := roaring.New()
	for _, e := range exts {
		if bm, ok := x.byExt[e]; ok {
			out.Or(bm)
		}
	}
	return out
}

// Contains reports whether f's PathID is a member of bm, a bitmap
// previously produced by CandidateBitmap.
func (x *ExtIndex) Contains(f *File, bm *roaring.Bitmap) bool {
	id, ok := x.ids[f]
	if !ok {
		return false
	}
	return bm.Contains(uint32(id))
}
