package share

import (
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// AdcQuery is a parsed structured (ADC-style) search request (§6).
type AdcQuery struct {
	Include []string
	Exclude []string
	Ext     []string // required extensions, lowercased, no leading dot

	// NoExt holds forbidden extensions. The wire grammar has no token for
	// this, so it is only ever populated by a caller building an AdcQuery
	// programmatically rather than through ParseADCQuery.
	NoExt []string

	Gt          int64 // size lower bound; applies only when HasGt is set
	Lt          int64 // size upper bound; applies only when HasLt is set
	HasGt       bool
	HasLt       bool
	Root        TTH
	HasRoot     bool
	IsDirectory bool
}

// ParseADCQuery parses the wire grammar: whitespace-separated tokens
// prefixed AN (include), NO (exclude), EX (extension), GR/LE (size
// greater/less), TR (TTH root), TY1/TY2 (file/directory mode). Any order
// is accepted and unknown tokens never abort the parse (§6).
func ParseADCQuery(raw string) AdcQuery {
	var q AdcQuery
	fields := splitFields(raw)

	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		switch {
		case tok == "TY1":
			q.IsDirectory = false
		case tok == "TY2":
			q.IsDirectory = true
		case tok == "AN" && i+1 < len(fields):
			q.Include = append(q.Include, fields[i+1])
			i++
		case tok == "NO" && i+1 < len(fields):
			q.Exclude = append(q.Exclude, fields[i+1])
			i++
		case tok == "EX" && i+1 < len(fields):
			q.Ext = append(q.Ext, normalizeExt(fields[i+1]))
			i++
		case tok == "GR" && i+1 < len(fields):
			if v, err := strconv.ParseInt(fields[i+1], 10, 64); err == nil {
				q.Gt = v
				q.HasGt = true
			}
			i++
		case tok == "LE" && i+1 < len(fields):
			if v, err := strconv.ParseInt(fields[i+1], 10, 64); err == nil {
				q.Lt = v
				q.HasLt = true
			}
			i++
		case tok == "TR" && i+1 < len(fields):
			if tth, err := ParseTTH(fields[i+1]); err == nil {
				q.Root = tth
				q.HasRoot = true
			}
			i++
		default:
			// Unknown token (or a known prefix missing its value):
			// tolerated, per the grammar's "unknown tokens must not
			// abort the parse".
		}
	}
	return q
}

func normalizeExt(s string) string {
	for len(s) > 0 && s[0] == '.' {
		s = s[1:]
	}
	return strings.ToLower(s)
}

func splitFields(raw string) []string {
	var out []string
	start := -1
	for i, r := range raw {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				out = append(out, raw[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, raw[start:])
	}
	return out
}

// SearchStructured evaluates a structured query against the live tree
// (§4.F). Never fails; returns an empty slice on internal inconsistency.
func (idx *Index) SearchStructured(q AdcQuery) []SearchResult {
	idx.cs.RLock()
	defer idx.cs.RUnlock()
	idx.metrics.SearchCount.Add(1)

	if q.HasRoot {
		f, ok := idx.hashIndex[q.Root]
		if !ok {
			return nil
		}
		return []SearchResult{{VirtualPath: f.Parent.ADCPath() + f.Name, Size: f.Size, TTH: f.TTH}}
	}

	var extBM, noExtBM *roaring.Bitmap
	if len(q.Ext) > 0 {
		extBM = idx.extIndex.CandidateBitmap(q.Ext)
	}
	if len(q.NoExt) > 0 {
		noExtBM = idx.extIndex.CandidateBitmap(q.NoExt)
	}

	var out []SearchResult
	seen := make(map[string]bool)

	var walk func(d *Directory)
	walk = func(d *Directory) {
		if q.IsDirectory {
			if adcNameMatches(idx.policy, d.Name, q) {
				vp := d.ADCPath()
				if !seen[vp] {
					seen[vp] = true
					out = append(out, SearchResult{VirtualPath: vp, IsDirectory: true})
				}
			}
		} else {
			for _, f := range d.Files() {
				if !adcFileMatches(idx.policy, idx.extIndex, extBM, noExtBM, f, q) {
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
		}
		for _, c := range d.Children() {
			walk(c)
		}
	}
	for _, root := range idx.roots {
		walk(root)
	}
	return out
}

func adcNameMatches(policy CasePolicy, name string, q AdcQuery) bool {
	for _, tok := range q.Include {
		if !containsUnderPolicy(policy, name, tok) {
			return false
		}
	}
	for _, tok := range q.Exclude {
		if containsUnderPolicy(policy, name, tok) {
			return false
		}
	}
	return true
}

func adcFileMatches(policy CasePolicy, ext *ExtIndex, extBM, noExtBM *roaring.Bitmap, f *File, q AdcQuery) bool {
	if !adcNameMatches(policy, f.Name, q) {
		return false
	}
	if extBM != nil && !ext.Contains(f, extBM) {
		return false
	}
	if noExtBM != nil && ext.Contains(f, noExtBM) {
		return false
	}
	if q.HasGt && f.Size <= q.Gt {
		return false
	}
	if q.HasLt && f.Size >= q.Lt {
		return false
	}
	return true
}
