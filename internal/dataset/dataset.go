// Package dataset defines the in-memory point set and its input contract.
package dataset

import (
	"context"
	"fmt"
	"sort"
)

// DefaultChunkSize is the number of points processed between cancellation
// checks during Build.
const DefaultChunkSize = 8192

// ContractError reports an input-contract violation detected at the
// ingestion boundary. Invalid data is rejected whole; nothing partial is
// accepted downstream.
type ContractError struct {
	Rule   string
	Detail string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("input contract violated (%s): %s", e.Rule, e.Detail)
}

// Projection holds one named embedding of all points, aligned with the
// dataset's id order. 2-D projections store z = 0.
type Projection struct {
	Name   string            `json:"name"`
	Dims   int               `json:"dims"`
	Points [][3]float64      `json:"points"`
	Info   map[string]string `json:"info,omitempty"`
}

// CategoryTable describes one classification dimension. Values are unique
// and referenced by index from category data; a nil entry is the N/A value.
// Colors and Shapes are parallel to Values and may be empty.
type CategoryTable struct {
	Values []*string `json:"values"`
	Colors []string  `json:"colors,omitempty"`
	Shapes []string  `json:"shapes,omitempty"`
}

// Len returns the number of values in the table.
func (t *CategoryTable) Len() int {
	return len(t.Values)
}

// ValueAt returns the value at index i, or nil when i is out of range or
// the entry is the N/A value.
func (t *CategoryTable) ValueAt(i int) *string {
	if i < 0 || i >= len(t.Values) {
		return nil
	}
	return t.Values[i]
}

// Bounds represents coordinate bounds of a projection.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// Width returns the bounds extent along x.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the bounds extent along y.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Dataset is a complete point set: identities, projected coordinates, and
// per-category value references. CategoryData maps a category name to one
// index list per point; an index of -1 (or an absent list) means the point
// is unresolved for that category. A point may reference several values of
// one category.
type Dataset struct {
	Name         string
	IDs          []string
	Projections  []Projection
	Categories   map[string]*CategoryTable
	CategoryData map[string][][]int

	// Derived by Build.
	bounds  map[string]Bounds
	idIndex map[string]int
	built   bool
}

// NumPoints returns the number of points.
func (d *Dataset) NumPoints() int {
	return len(d.IDs)
}

// Projection returns the named projection.
func (d *Dataset) Projection(name string) (*Projection, bool) {
	for i := range d.Projections {
		if d.Projections[i].Name == name {
			return &d.Projections[i], true
		}
	}
	return nil, false
}

// ProjectionNames returns projection names in declaration order.
func (d *Dataset) ProjectionNames() []string {
	names := make([]string, len(d.Projections))
	for i := range d.Projections {
		names[i] = d.Projections[i].Name
	}
	return names
}

// CategoryNames returns the available category names in stable sorted order.
func (d *Dataset) CategoryNames() []string {
	names := make([]string, 0, len(d.Categories))
	for name := range d.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Category returns the named category table.
func (d *Dataset) Category(name string) (*CategoryTable, bool) {
	t, ok := d.Categories[name]
	return t, ok
}

// ValuesForPoint returns the category value indices for point i, or nil
// when the point is unresolved for the category.
func (d *Dataset) ValuesForPoint(category string, i int) []int {
	rows, ok := d.CategoryData[category]
	if !ok || i < 0 || i >= len(rows) {
		return nil
	}
	return rows[i]
}

// IndexOf returns the row index of a point id. Requires Build.
func (d *Dataset) IndexOf(id string) (int, bool) {
	i, ok := d.idIndex[id]
	return i, ok
}

// Bounds returns the coordinate bounds of the named projection.
// Requires Build.
func (d *Dataset) Bounds(projection string) (Bounds, bool) {
	b, ok := d.bounds[projection]
	return b, ok
}

// Built reports whether derived state is available.
func (d *Dataset) Built() bool {
	return d.built
}

// Validate enforces the input contract: projections and category data are
// aligned with the id list, value indices are in range or -1, and category
// values are unique. It returns a *ContractError on the first violation.
func (d *Dataset) Validate() error {
	n := len(d.IDs)
	for i := range d.Projections {
		p := &d.Projections[i]
		if len(p.Points) != n {
			return &ContractError{
				Rule:   "projection-length",
				Detail: fmt.Sprintf("projection %q has %d points, expected %d", p.Name, len(p.Points), n),
			}
		}
		if p.Dims != 2 && p.Dims != 3 {
			return &ContractError{
				Rule:   "projection-dims",
				Detail: fmt.Sprintf("projection %q has dimensionality %d, expected 2 or 3", p.Name, p.Dims),
			}
		}
	}
	for name, table := range d.Categories {
		seen := make(map[string]bool, len(table.Values))
		sawNA := false
		for _, v := range table.Values {
			if v == nil {
				if sawNA {
					return &ContractError{
						Rule:   "value-uniqueness",
						Detail: fmt.Sprintf("category %q has more than one N/A value", name),
					}
				}
				sawNA = true
				continue
			}
			if seen[*v] {
				return &ContractError{
					Rule:   "value-uniqueness",
					Detail: fmt.Sprintf("category %q has duplicate value %q", name, *v),
				}
			}
			seen[*v] = true
		}
		if len(table.Colors) != 0 && len(table.Colors) != len(table.Values) {
			return &ContractError{
				Rule:   "table-alignment",
				Detail: fmt.Sprintf("category %q has %d colors for %d values", name, len(table.Colors), len(table.Values)),
			}
		}
		if len(table.Shapes) != 0 && len(table.Shapes) != len(table.Values) {
			return &ContractError{
				Rule:   "table-alignment",
				Detail: fmt.Sprintf("category %q has %d shapes for %d values", name, len(table.Shapes), len(table.Values)),
			}
		}
	}
	for name, rows := range d.CategoryData {
		table, ok := d.Categories[name]
		if !ok {
			return &ContractError{
				Rule:   "category-reference",
				Detail: fmt.Sprintf("category data for unknown category %q", name),
			}
		}
		if len(rows) != n {
			return &ContractError{
				Rule:   "category-data-length",
				Detail: fmt.Sprintf("category %q has %d rows, expected %d", name, len(rows), n),
			}
		}
		for i, indices := range rows {
			for _, idx := range indices {
				if idx < -1 || idx >= table.Len() {
					return &ContractError{
						Rule:   "value-index-range",
						Detail: fmt.Sprintf("category %q point %d references value index %d (table size %d)", name, i, idx, table.Len()),
					}
				}
			}
		}
	}
	return nil
}

// Build computes derived state (projection bounds, id index) in chunks of
// chunkSize points, checking ctx between chunks so large ingests stay
// cancellable. Chunking has no effect on the result.
func (d *Dataset) Build(ctx context.Context, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	n := len(d.IDs)

	idIndex := make(map[string]int, n)
	for start := 0; start < n; start += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + chunkSize
		if end > n {
			end = n
		}
		for i := start; i < end; i++ {
			idIndex[d.IDs[i]] = i
		}
	}

	bounds := make(map[string]Bounds, len(d.Projections))
	for pi := range d.Projections {
		p := &d.Projections[pi]
		b := Bounds{}
		first := true
		for start := 0; start < len(p.Points); start += chunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := start + chunkSize
			if end > len(p.Points) {
				end = len(p.Points)
			}
			for i := start; i < end; i++ {
				x, y := p.Points[i][0], p.Points[i][1]
				if first {
					b = Bounds{MinX: x, MaxX: x, MinY: y, MaxY: y}
					first = false
					continue
				}
				if x < b.MinX {
					b.MinX = x
				}
				if x > b.MaxX {
					b.MaxX = x
				}
				if y < b.MinY {
					b.MinY = y
				}
				if y > b.MaxY {
					b.MaxY = y
				}
			}
		}
		bounds[p.Name] = b
	}

	d.idIndex = idIndex
	d.bounds = bounds
	d.built = true
	return nil
}

// Subset returns a new dataset narrowed to the given point ids, preserving
// category tables and value indices. Unknown ids are skipped. The receiver
// is untouched; the result requires its own Build.
func (d *Dataset) Subset(ids []string) *Dataset {
	rows := make([]int, 0, len(ids))
	for _, id := range ids {
		if i, ok := d.idIndex[id]; ok {
			rows = append(rows, i)
		}
	}

	sub := &Dataset{
		Name:         d.Name,
		IDs:          make([]string, len(rows)),
		Projections:  make([]Projection, len(d.Projections)),
		Categories:   d.Categories,
		CategoryData: make(map[string][][]int, len(d.CategoryData)),
	}
	for j, i := range rows {
		sub.IDs[j] = d.IDs[i]
	}
	for pi := range d.Projections {
		src := &d.Projections[pi]
		dst := &sub.Projections[pi]
		dst.Name = src.Name
		dst.Dims = src.Dims
		dst.Info = src.Info
		dst.Points = make([][3]float64, len(rows))
		for j, i := range rows {
			dst.Points[j] = src.Points[i]
		}
	}
	for name, data := range d.CategoryData {
		narrowed := make([][]int, len(rows))
		for j, i := range rows {
			if i < len(data) {
				narrowed[j] = data[i]
			}
		}
		sub.CategoryData[name] = narrowed
	}
	return sub
}
