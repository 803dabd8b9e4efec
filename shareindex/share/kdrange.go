package share

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// DirPoint is a kdtree.Comparable over two dimensions, (size, modTime),
// wrapping the File it was built from. The teacher's own point collection
// type is named but never defined anywhere reachable in this retrieval;
// DirPoint/DirPoints are built fresh against the usage pattern its kdtree
// wrapper exercises: a Comparable carrying a payload pointer, plus a
// slice-based Interface implementation.
type DirPoint struct {
	File *File
	dims [2]float64
}

func newDirPoint(f *File) DirPoint {
	return DirPoint{
		File: f,
		dims: [2]float64{float64(f.Size), float64(f.ModTime.Unix())},
	}
}

// Compare returns the signed difference along dimension d.
func (p DirPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(DirPoint)
	return p.dims[d] - q.dims[d]
}

// Dims reports the two indexed dimensions: size and modification time.
func (p DirPoint) Dims() int { return 2 }

// Distance returns the squared euclidean distance to c, as kdtree.Comparable
// requires.
func (p DirPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(DirPoint)
	dx := p.dims[0] - q.dims[0]
	dy := p.dims[1] - q.dims[1]
	return dx*dx + dy*dy
}

// DirPoints implements kdtree.Interface over a slice of DirPoint.
type DirPoints []DirPoint

func (p DirPoints) Len() int { return len(p) }

func (p DirPoints) Index(i int) kdtree.Comparable { return p[i] }

func (p DirPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot partitions p by dimension d and returns the index of the median,
// via a full sort rather than an in-place partition selection: the
// upstream partition helper used by the pack's own kdtree wrapper isn't
// part of the public API surface available here.
func (p DirPoints) Pivot(d kdtree.Dim) int {
	sort.Sort(dimSorter{p, d})
	return len(p) / 2
}

type dimSorter struct {
	points DirPoints
	dim    kdtree.Dim
}

func (s dimSorter) Len() int { return len(s.points) }
func (s dimSorter) Less(i, j int) bool {
	return s.points[i].dims[s.dim] < s.points[j].dims[s.dim]
}
func (s dimSorter) Swap(i, j int) { s.points[i], s.points[j] = s.points[j], s.points[i] }

// sizeTimeIndex is the supplemental range-query structure described in the
// domain stack's size/mtime pre-filter entry. It's rebuilt alongside the
// hash index on every rescan; queries against it are advisory only, never
// the sole source of truth for a search result set.
type sizeTimeIndex struct {
	tree *kdtree.Tree
}

func buildSizeTimeIndex(points DirPoints) *sizeTimeIndex {
	if len(points) == 0 {
		return &sizeTimeIndex{}
	}
	t := kdtree.New(points, false)
	return &sizeTimeIndex{tree: t}
}

// QuerySizeTimeRange returns files whose size lies in [minSize, maxSize]
// and whose mtime lies in [after, before], using the kd-tree as a coarse
// pre-filter before the exact bounding-box check. A zero value for maxSize
// or before means "no upper bound".
func (idx *Index) QuerySizeTimeRange(minSize, maxSize int64, after, before time.Time) []*File {
	idx.cs.RLock()
	defer idx.cs.RUnlock()

	if idx.sizeTime == nil || idx.sizeTime.tree == nil {
		return nil
	}

	centerSize := float64(minSize)
	if maxSize > minSize {
		centerSize = float64(minSize+maxSize) / 2
	}
	centerTime := float64(after.Unix())
	if !before.IsZero() && before.After(after) {
		centerTime = float64(after.Unix()+before.Unix()) / 2
	}
	center := newDirPoint(&File{Size: int64(centerSize), ModTime: time.Unix(int64(centerTime), 0)})

	radius := idx.sizeTime.boundingRadius(minSize, maxSize, after, before)
	keeper := kdtree.NewDistKeeper(radius * radius)
	idx.sizeTime.tree.NearestSet(keeper, center)

	var out []*File
	for _, h := range keeper.Heap {
		dp := h.Comparable.(DirPoint)
		f := dp.File
		if f.Size < minSize {
			continue
		}
		if maxSize > 0 && f.Size > maxSize {
			continue
		}
		if !after.IsZero() && f.ModTime.Before(after) {
			continue
		}
		if !before.IsZero() && f.ModTime.After(before) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// boundingRadius is a generous euclidean radius covering the requested
// box, traded off against precision: the exact per-field checks in
// QuerySizeTimeRange discard anything the radius over-includes. An open
// upper bound (zero maxSize or before) gives an infinite radius, so every
// indexed file is a candidate.
func (s *sizeTimeIndex) boundingRadius(minSize, maxSize int64, after, before time.Time) float64 {
	if maxSize <= 0 || before.IsZero() {
		return math.Inf(1)
	}
	sizeSpan := float64(maxSize - minSize)
	var timeSpan float64
	if before.After(after) {
		timeSpan = float64(before.Unix() - after.Unix())
	} else {
		timeSpan = 1
	}
	return sizeSpan + timeSpan
}
