// Package spatial provides the quadtree used for pointer hit-testing and
// box selection over screen-projected point coordinates.
package spatial

import (
	"math"

	"github.com/golang/geo/r2"
)

const (
	// nodeCapacity is how many entries a leaf holds before subdividing.
	nodeCapacity = 16
	// maxDepth stops subdivision when many points share one position.
	maxDepth = 24
)

// Entry is one indexed point: its dataset row and projected position.
type Entry struct {
	Row int
	Pos r2.Point
}

// Index is an immutable quadtree over projected point positions, rebuilt
// wholesale whenever the visible point set or the projection scale
// changes. A nil *Index is the absent index: every query returns empty.
type Index struct {
	root *node
	size int
}

type node struct {
	bounds         r2.Rect
	entries        []Entry
	divided        bool
	nw, ne, sw, se *node
}

// Build returns an index over the entries, or nil when entries is empty.
func Build(entries []Entry) *Index {
	if len(entries) == 0 {
		return nil
	}
	rect := r2.RectFromPoints(entries[0].Pos)
	for _, e := range entries[1:] {
		rect = rect.AddPoint(e.Pos)
	}
	root := &node{bounds: rect}
	for _, e := range entries {
		root.insert(e, 0)
	}
	return &Index{root: root, size: len(entries)}
}

// Size returns the number of indexed entries.
func (ix *Index) Size() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// QueryRect returns the rows of all entries inside rect (bounds
// inclusive), via a pruning walk that rejects subtrees whose bounding box
// misses the query rectangle.
func (ix *Index) QueryRect(rect r2.Rect) []int {
	if ix == nil {
		return nil
	}
	var rows []int
	ix.root.query(rect, &rows)
	return rows
}

// Nearest returns the row of the entry closest to (x, y) within radius.
// A radius of zero still hits a point at exactly (x, y).
func (ix *Index) Nearest(x, y, radius float64) (int, bool) {
	if ix == nil || radius < 0 {
		return 0, false
	}
	bestRow := -1
	bestSq := radius * radius
	ix.root.nearest(x, y, &bestRow, &bestSq)
	if bestRow < 0 {
		return 0, false
	}
	return bestRow, true
}

func (n *node) insert(e Entry, depth int) {
	if !n.divided && (len(n.entries) < nodeCapacity || depth >= maxDepth) {
		n.entries = append(n.entries, e)
		return
	}
	if !n.divided {
		n.subdivide(depth)
	}
	n.child(e.Pos).insert(e, depth+1)
}

func (n *node) subdivide(depth int) {
	c := n.bounds.Center()
	n.nw = &node{bounds: r2.RectFromPoints(r2.Point{X: n.bounds.X.Lo, Y: c.Y}, r2.Point{X: c.X, Y: n.bounds.Y.Hi})}
	n.ne = &node{bounds: r2.RectFromPoints(c, r2.Point{X: n.bounds.X.Hi, Y: n.bounds.Y.Hi})}
	n.sw = &node{bounds: r2.RectFromPoints(r2.Point{X: n.bounds.X.Lo, Y: n.bounds.Y.Lo}, c)}
	n.se = &node{bounds: r2.RectFromPoints(r2.Point{X: c.X, Y: n.bounds.Y.Lo}, r2.Point{X: n.bounds.X.Hi, Y: c.Y})}
	n.divided = true

	// Redistribute existing entries into the children.
	for _, e := range n.entries {
		n.child(e.Pos).insert(e, depth+1)
	}
	n.entries = nil
}

func (n *node) child(p r2.Point) *node {
	c := n.bounds.Center()
	if p.X <= c.X {
		if p.Y <= c.Y {
			return n.sw
		}
		return n.nw
	}
	if p.Y <= c.Y {
		return n.se
	}
	return n.ne
}

func (n *node) query(rect r2.Rect, out *[]int) {
	if !n.bounds.Intersects(rect) {
		return
	}
	for _, e := range n.entries {
		if rect.ContainsPoint(e.Pos) {
			*out = append(*out, e.Row)
		}
	}
	if n.divided {
		n.nw.query(rect, out)
		n.ne.query(rect, out)
		n.sw.query(rect, out)
		n.se.query(rect, out)
	}
}

func (n *node) nearest(x, y float64, bestRow *int, bestSq *float64) {
	if rectDistSq(n.bounds, x, y) > *bestSq {
		return
	}
	for _, e := range n.entries {
		dx, dy := e.Pos.X-x, e.Pos.Y-y
		if d := dx*dx + dy*dy; d <= *bestSq {
			*bestSq = d
			*bestRow = e.Row
		}
	}
	if n.divided {
		n.nw.nearest(x, y, bestRow, bestSq)
		n.ne.nearest(x, y, bestRow, bestSq)
		n.sw.nearest(x, y, bestRow, bestSq)
		n.se.nearest(x, y, bestRow, bestSq)
	}
}

// rectDistSq is the squared distance from (x, y) to the closest point of r.
func rectDistSq(r r2.Rect, x, y float64) float64 {
	dx := math.Max(0, math.Max(r.X.Lo-x, x-r.X.Hi))
	dy := math.Max(0, math.Max(r.Y.Lo-y, y-r.Y.Hi))
	return dx*dx + dy*dy
}
