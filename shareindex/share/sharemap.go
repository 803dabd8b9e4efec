package share

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
)

// ShareEntry is one real-path-to-virtual-name mapping.
type ShareEntry struct {
	RealPath string
	Virtual  string
}

// ShareMap is the insertion-order-preserving mapping from canonical real
// filesystem path to virtual name. Multiple real paths may map to the
// same virtual name; their contents are merged into one root directory.
type ShareMap struct {
	entries []ShareEntry
	byReal  map[string]int // canonical real path -> index into entries
}

// NewShareMap creates an empty share map.
func NewShareMap() *ShareMap {
	return &ShareMap{byReal: make(map[string]int)}
}

// CanonicalRealPath normalizes a real filesystem path the way the share
// map keys on it: cleaned, absolute-as-given, with a single trailing
// separator so "/data/music" and "/data/music/" are the same key.
func CanonicalRealPath(p string) string {
	p = filepath.Clean(p)
	return p + string(filepath.Separator)
}

// Add records realPath under virtual, failing if realPath is already
// shared under a different name (ErrShareDuplicate) or is nested inside
// (or an ancestor of) an existing share (ErrShareInsideShare).
func (m *ShareMap) Add(realPath, virtual string) error {
	canon := CanonicalRealPath(realPath)

	if i, ok := m.byReal[canon]; ok {
		if m.entries[i].Virtual != virtual {
			return fmt.Errorf("%w: %s already shared as %s", ErrShareDuplicate, realPath, m.entries[i].Virtual)
		}
		return nil
	}

	for _, e := range m.entries {
		if isSubpath(canon, e.RealPath) || isSubpath(e.RealPath, canon) {
			return fmt.Errorf("%w: %s conflicts with %s", ErrShareInsideShare, realPath, e.RealPath)
		}
	}

	m.entries = append(m.entries, ShareEntry{RealPath: canon, Virtual: virtual})
	m.byReal[canon] = len(m.entries) - 1
	return nil
}

// Remove deletes the mapping for realPath, if present.
func (m *ShareMap) Remove(realPath string) error {
	canon := CanonicalRealPath(realPath)
	i, ok := m.byReal[canon]
	if !ok {
		return fmt.Errorf("%w: %s", ErrShareNotFound, realPath)
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.byReal, canon)
	for real, idx := range m.byReal {
		if idx > i {
			m.byReal[real] = idx - 1
		}
	}
	return nil
}

// Rename changes the virtual name associated with realPath.
func (m *ShareMap) Rename(realPath, newVirtual string) error {
	canon := CanonicalRealPath(realPath)
	i, ok := m.byReal[canon]
	if !ok {
		return fmt.Errorf("%w: %s", ErrShareNotFound, realPath)
	}
	m.entries[i].Virtual = newVirtual
	return nil
}

// ToVirtual returns the virtual name a real path is shared under.
func (m *ShareMap) ToVirtual(realPath string) (string, bool) {
	canon := CanonicalRealPath(realPath)
	i, ok := m.byReal[canon]
	if !ok {
		return "", false
	}
	return m.entries[i].Virtual, true
}

// RealPathsFor returns every real path sharing the given virtual name, in
// insertion order.
func (m *ShareMap) RealPathsFor(virtual string) []string {
	var out []string
	for _, e := range m.entries {
		if e.Virtual == virtual {
			out = append(out, strings.TrimSuffix(e.RealPath, string(filepath.Separator)))
		}
	}
	return out
}

// Entries returns all entries in insertion order; callers must not mutate
// the returned slice.
func (m *ShareMap) Entries() []ShareEntry {
	return m.entries
}

func isSubpath(child, parent string) bool {
	if child == parent {
		return false
	}
	return strings.HasPrefix(child, parent)
}

// shareXML and directoryXML mirror the <Share><Directory Virtual="name">
// RealPath</Directory></Share> persistence grammar.
type shareXML struct {
	XMLName     xml.Name         `xml:"Share"`
	Directories []directoryEntry `xml:"Directory"`
}

type directoryEntry struct {
	Virtual  string `xml:"Virtual,attr"`
	RealPath string `xml:",chardata"`
}

// MarshalXML serializes the share map for settings_save.
func (m *ShareMap) MarshalXML() ([]byte, error) {
	doc := shareXML{}
	for _, e := range m.entries {
		doc.Directories = append(doc.Directories, directoryEntry{
			Virtual:  e.Virtual,
			RealPath: strings.TrimSuffix(e.RealPath, string(filepath.Separator)),
		})
	}
	return xml.MarshalIndent(doc, "", "  ")
}

// UnmarshalShareMap parses a persisted <Share> document, preserving
// declaration order on reload.
func UnmarshalShareMap(data []byte) (*ShareMap, error) {
	var doc shareXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("share: parse share map: %w", err)
	}
	m := NewShareMap()
	for _, d := range doc.Directories {
		if err := m.Add(d.RealPath, d.Virtual); err != nil {
			return nil, err
		}
	}
	return m, nil
}
