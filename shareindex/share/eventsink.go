package share

import (
	"os"
	"path/filepath"
	"strings"
)

// OnHashDone applies a hash-completion event as an incremental index
// edit (§4.E). Idempotent: calling it again with the same (realPath,
// tth) leaves the tree unchanged in effect.
func (idx *Index) OnHashDone(realPath string, tth TTH) error {
	idx.cs.Lock()
	defer idx.cs.Unlock()

	virtual, fileName, ok := idx.realPathToOwnerLocked(realPath)
	if !ok {
		return nil // not (or no longer) a shared path; nothing to do
	}

	root, ok := idx.roots[idx.foldVirtual(virtual)]
	if !ok {
		return nil
	}

	dir := root.FindOrCreatePath(filepath.ToSlash(filepath.Dir(fileName)))
	base := filepath.Base(fileName)

	if old, found := dir.FindFile(base); found {
		if old.TTH == tth {
			return nil
		}
		dir.removeFile(base)
		if idx.hashIndex[old.TTH] == old {
			delete(idx.hashIndex, old.TTH)
		}
		idx.extIndex.Remove(old)
	}

	f := &File{Name: base, TTH: tth}
	if info, err := os.Stat(realPath); err == nil {
		f.Size = info.Size()
		f.ModTime = info.ModTime()
	}
	dir.addFile(f)

	idx.hashIndex[tth] = f
	idx.extIndex.Add(f)
	idx.bloom.AddName(f.Name)
	idx.pathIndex.Put(dir.ADCPath(), dir)
	idx.xmlDirty.Store(true)
	return nil
}

// OnFileMoved applies a file-moved event (§4.E): the moved file's hash is
// not yet available, so any pre-existing entry at realPath is removed. It
// will be reinserted on the next OnHashDone. Idempotent.
func (idx *Index) OnFileMoved(realPath string) error {
	idx.cs.Lock()
	defer idx.cs.Unlock()

	virtual, fileName, ok := idx.realPathToOwnerLocked(realPath)
	if !ok {
		return nil
	}
	root, ok := idx.roots[idx.foldVirtual(virtual)]
	if !ok {
		return nil
	}

	dirPath := filepath.ToSlash(filepath.Dir(fileName))
	dir := root
	if dirPath != "." {
		var found bool
		dir, found = descend(root, dirPath)
		if !found {
			return nil
		}
	}

	base := filepath.Base(fileName)
	if f, ok := dir.removeFile(base); ok {
		if idx.hashIndex[f.TTH] == f {
			delete(idx.hashIndex, f.TTH)
		}
		idx.extIndex.Remove(f)
		idx.xmlDirty.Store(true)
	}
	return nil
}

// realPathToOwnerLocked maps a real path to (virtualRootName,
// pathRelativeToRoot). Callers must hold cs.
func (idx *Index) realPathToOwnerLocked(realPath string) (virtual, relPath string, ok bool) {
	canon := CanonicalRealPath(filepath.Dir(realPath))
	for _, e := range idx.shareMap.Entries() {
		if strings.HasPrefix(canon, e.RealPath) || canon == e.RealPath {
			rel, err := filepath.Rel(strings.TrimSuffix(e.RealPath, string(filepath.Separator)), realPath)
			if err != nil {
				continue
			}
			return e.Virtual, rel, true
		}
	}
	return "", "", false
}

func descend(root *Directory, relPath string) (*Directory, bool) {
	cur := root
	for _, seg := range strings.Split(relPath, "/") {
		if seg == "" || seg == "." {
			continue
		}
		next, ok := cur.Child(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
