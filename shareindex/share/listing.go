package share

import (
	"bytes"
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/google/uuid"

	internal "github.com/dcshare/shareindex"
)

// listingRegenInterval is the "at most once per 15 minutes" gate on full
// listing regeneration (§4.D), bypassed when forceXmlRefresh is set.
const listingRegenInterval = 15 * time.Minute

// Listing holds the cached full XML listing's published identifiers.
// Regeneration happens under the Index's write section (§5); the cached
// blob is held until xmlDirty is set again.
type Listing struct {
	idx *Index

	cid uuid.UUID

	plainPath string
	bzPath    string

	xmlListLen   int64
	bzXmlListLen int64
	xmlRoot      TTH
	bzXmlRoot    TTH
}

func newListing(idx *Index) *Listing {
	dir := idx.cfg.CacheDir
	if dir == "" {
		dir = internal.DefaultCacheDir
	}
	listingDir := filepath.Join(dir, "listing")
	return &Listing{
		idx:       idx,
		cid:       uuid.New(),
		plainPath: filepath.Join(listingDir, "files.xml"),
		bzPath:    filepath.Join(listingDir, "files.xml.bz2"),
	}
}

// BZXmlFile is the path of the compressed listing, advertisable once
// published.
func (l *Listing) BZXmlFile() string { return l.bzPath }

// XMLRoot and BZXmlRoot are the published content hashes of the plain and
// compressed listings.
func (l *Listing) XMLRoot() TTH   { return l.xmlRoot }
func (l *Listing) BZXmlRoot() TTH { return l.bzXmlRoot }

// publishListingIfDue regenerates the full listing when a refresh is
// forced, or when the listing is dirty and either the 15-minute gate has
// elapsed or the request is explicit.
func (idx *Index) publishListingIfDue(explicit bool) {
	if !idx.xmlDirty.Load() && !idx.forceXmlRefresh.Load() {
		return
	}
	force := idx.forceXmlRefresh.Load()
	if !force && !explicit && idx.clock.Now().Sub(idx.lastListingGen) < listingRegenInterval {
		return
	}

	idx.cs.Lock()
	defer idx.cs.Unlock()
	idx.regenerateListingLocked()
}

// regenerateListingLocked builds, compresses and publishes the full
// listing. On write failure, the previous cached listing is left intact
// (§7: "listing generation failures release the partial blob and leave
// the previous cached listing intact").
func (idx *Index) regenerateListingLocked() {
	plain := idx.buildFullXML()

	compressed, err := compressBzip2(plain)
	if err != nil {
		idx.logger.Warn("listing compression failed, keeping previous listing", "error", err)
		return
	}

	if err := writeFileAtomic(idx.listing.plainPath, plain); err != nil {
		idx.logger.Warn("listing write failed, keeping previous listing", "error", err)
		return
	}
	if err := writeFileAtomic(idx.listing.bzPath, compressed); err != nil {
		idx.logger.Warn("compressed listing write failed, keeping previous listing", "error", err)
		return
	}

	idx.listing.xmlListLen = int64(len(plain))
	idx.listing.bzXmlListLen = int64(len(compressed))
	idx.listing.xmlRoot = computeListingHash(plain)
	idx.listing.bzXmlRoot = computeListingHash(compressed)

	idx.xmlDirty.Store(false)
	idx.forceXmlRefresh.Store(false)
	idx.lastListingGen = idx.clock.Now()
	idx.metrics.ListingRegenned.Add(1)

	if idx.storage != nil {
		if err := idx.storage.RecordListing(idx.lastListingGen, idx.listing.xmlRoot, idx.listing.bzXmlRoot, idx.listing.xmlListLen, idx.listing.bzXmlListLen); err != nil {
			idx.logger.Warn("failed to persist listing bookkeeping", "error", err)
		}
	}
}

// buildFullXML emits the entire share as a <FileListing> document by an
// explicit tree-walk that writes each element with fmt.Fprintf and
// escapes names with xml.EscapeText, rather than struct-tag marshaling,
// since nested Directory/File elements must interleave in tree order,
// something a mirrored struct graph would express far more awkwardly.
func (idx *Index) buildFullXML() []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	fmt.Fprintf(&buf, `<FileListing Version="1" CID="%s" Base="/" Generator="shareindex">`+"\n", idx.listing.cid.String())

	names := make([]string, 0, len(idx.roots))
	for key := range idx.roots {
		names = append(names, key)
	}
	sort.Strings(names)
	for _, key := range names {
		writeDirectoryXML(&buf, idx.roots[key], 1)
	}

	buf.WriteString("</FileListing>\n")
	return buf.Bytes()
}

func writeDirectoryXML(buf *bytes.Buffer, d *Directory, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(buf, `%s<Directory Name="%s">`+"\n", indent, xmlEscape(d.Name))
	for _, f := range d.Files() {
		fmt.Fprintf(buf, `%s  <File Name="%s" Size="%d" TTH="%s"/>`+"\n",
			indent, xmlEscape(f.Name), f.Size, f.TTH.String())
	}
	for _, c := range d.Children() {
		writeDirectoryXML(buf, c, depth+1)
	}
	fmt.Fprintf(buf, "%s</Directory>\n", indent)
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// GeneratePartialList emits a document rooted at one subdirectory. It is
// never cached (§4.G). If recurse is false, only immediate children are
// emitted.
func (idx *Index) GeneratePartialList(virtualDir string, recurse bool) ([]byte, error) {
	idx.cs.RLock()
	defer idx.cs.RUnlock()

	_, dir, err := idx.resolveLocked(virtualDir)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	fmt.Fprintf(&buf, `<FileListing Version="1" CID="%s" Base="%s" Generator="shareindex">`+"\n",
		idx.listing.cid.String(), dir.ADCPath())

	if recurse {
		writeDirectoryChildrenXML(&buf, dir, 1, true)
	} else {
		writeDirectoryChildrenXML(&buf, dir, 1, false)
	}

	buf.WriteString("</FileListing>\n")
	return buf.Bytes(), nil
}

func writeDirectoryChildrenXML(buf *bytes.Buffer, d *Directory, depth int, recurse bool) {
	indent := strings.Repeat("  ", depth)
	for _, f := range d.Files() {
		fmt.Fprintf(buf, `%s<File Name="%s" Size="%d" TTH="%s"/>`+"\n",
			indent, xmlEscape(f.Name), f.Size, f.TTH.String())
	}
	for _, c := range d.Children() {
		fmt.Fprintf(buf, `%s<Directory Name="%s">`+"\n", indent, xmlEscape(c.Name))
		if recurse {
			writeDirectoryChildrenXML(buf, c, depth+1, true)
		}
		fmt.Fprintf(buf, "%s</Directory>\n", indent)
	}
}

// compressBzip2 writes a bzip2-compressed copy of data using
// dsnet/compress, the pack's chosen encoder since the standard library's
// compress/bzip2 can only decode.
func compressBzip2(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return nil, fmt.Errorf("bzip2 writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("bzip2 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("bzip2 close: %w", err)
	}
	return buf.Bytes(), nil
}

// computeListingHash derives a stand-in content hash for a generated
// listing. Actual Tiger tree hashing belongs to the external hasher and
// only ever applies to shared files (§1 Out of scope); the listing's own
// identity hash has no such defined algorithm in this specification, so
// a deterministic SHA-256 prefix is used instead.
func computeListingHash(data []byte) TTH {
	sum := sha256.Sum256(data)
	var h TTH
	copy(h[:], sum[:len(h)])
	return h
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
