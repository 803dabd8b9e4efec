package share

import "strings"

// SearchType selects the keyword search's type filter, extending
// FileType with the two modes that are not bits in the directory bitmap:
// "any directory" and "exact TTH".
type SearchType int

const (
	SearchAny SearchType = iota
	SearchAudio
	SearchCompressed
	SearchDocument
	SearchExecutable
	SearchPicture
	SearchVideo
	SearchDirectory
	SearchTTH
)

func (t SearchType) fileType() FileType {
	switch t {
	case SearchAudio:
		return TypeAudio
	case SearchCompressed:
		return TypeCompressed
	case SearchDocument:
		return TypeDocument
	case SearchExecutable:
		return TypeExecutable
	case SearchPicture:
		return TypePicture
	case SearchVideo:
		return TypeVideo
	default:
		return TypeAny
	}
}

// SizeOp is the keyword search's size comparison operator.
type SizeOp int

const (
	SizeAny SizeOp = iota
	SizeAtLeast
	SizeAtMost
	SizeEqual
)

func (op SizeOp) matches(size, bound int64) bool {
	switch op {
	case SizeAtLeast:
		return size >= bound
	case SizeAtMost:
		return size <= bound
	case SizeEqual:
		return size == bound
	default:
		return true
	}
}

// SearchQuery is a keyword search request.
type SearchQuery struct {
	Tokens     []string
	Type       SearchType
	SizeOp     SizeOp
	SizeBound  int64
	MaxResults int
	TTH        TTH // consulted directly when Type == SearchTTH
}

// SearchResult is one match, carrying everything a peer protocol handler
// needs to answer a search response.
type SearchResult struct {
	VirtualPath string
	Size        int64
	TTH         TTH
	IsDirectory bool
}

// Search evaluates a keyword search against the live tree (§4.F). It
// never fails: on internal inconsistency it returns an empty slice (§7).
func (idx *Index) Search(q SearchQuery) []SearchResult {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	idx.metrics.SearchCount.Add(1)

	if q.Type == SearchTTH {
		f, ok := idx.hashIndex[q.TTH]
		if !ok {
			return nil
		}
		return []SearchResult{{VirtualPath: f.Parent.ADCPath() + f.Name, Size: f.Size, TTH: f.TTH}}
	}

	for _, tok := range q.Tokens {
		for _, sub := range tokenizeForBloom(tok) {
			if !idx.bloom.MaybeContains(sub) {
				return nil
			}
		}
	}

	max := q.MaxResults
	if max <= 0 {
		max = -1 // unbounded
	}

	var out []SearchResult
	seen := make(map[string]bool)

	ft := q.Type.fileType()
	wantDir := q.Type == SearchDirectory

	var walk func(d *Directory)
	walk = func(d *Directory) {
		if len(out) == max {
			return
		}
		if !wantDir && !d.HasType(ft) {
			return
		}
		for _, f := range d.Files() {
			if len(out) == max {
				return
			}
			if wantDir {
				continue
			}
			if !matchesAllTokens(idx.policy, f.Name, q.Tokens) {
				continue
			}
			if !q.SizeOp.matches(f.Size, q.SizeBound) {
				continue
			}
			if ft != TypeAny && FileTypeOf(f.Name) != ft {
				continue
			}
			vp := d.ADCPath() + f.Name
			key := vp + "\x00" + f.TTH.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, SearchResult{VirtualPath: vp, Size: f.Size, TTH: f.TTH})
		}
		for _, c := range d.Children() {
			if len(out) == max {
				return
			}
			if wantDir && matchesAllTokens(idx.policy, c.Name, q.Tokens) {
				vp := c.ADCPath()
				if !seen[vp] {
					seen[vp] = true
					out = append(out, SearchResult{VirtualPath: vp, IsDirectory: true})
				}
			}
			walk(c)
		}
	}

	for _, root := range idx.roots {
		if len(out) == max {
			break
		}
		walk(root)
	}
	return out
}

func matchesAllTokens(policy CasePolicy, name string, tokens []string) bool {
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if !containsUnderPolicy(policy, name, tok) {
			return false
		}
	}
	return true
}

func containsUnderPolicy(policy CasePolicy, name, tok string) bool {
	if policy == CaseSensitive {
		return strings.Contains(name, tok)
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(tok))
}
