// Package style resolves per-point visual style (colors, shape, opacity,
// depth) from the published legend mapping and the selection state.
package style

import (
	"image/color"

	"github.com/scatterview/server/internal/dataset"
	"github.com/scatterview/server/internal/legend"
	"github.com/scatterview/server/pkg/colormap"
)

// depthEpsilon scales the z-order tie-break. It stays well below any
// opacity step so opacity always dominates draw order.
const depthEpsilon = 1e-4

// Config holds size and opacity tuning for style resolution.
type Config struct {
	BaseOpacity     float64
	FadedOpacity    float64
	SelectedOpacity float64
	PointSize       float64
	SizeExponent    float64
	StrokeWidth     float64
	StrokeColor     color.RGBA
	ShapesEnabled   bool
	// FailOpenHiding ignores the hidden filter when it would blank every
	// point of the category.
	FailOpenHiding bool
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		BaseOpacity:     0.8,
		FadedOpacity:    0.25,
		SelectedOpacity: 1.0,
		PointSize:       4.0,
		SizeExponent:    1.0,
		StrokeWidth:     0.5,
		StrokeColor:     color.RGBA{40, 40, 40, 255},
		ShapesEnabled:   true,
		FailOpenHiding:  true,
	}
}

// PointStyle is the resolved visual style of one point.
type PointStyle struct {
	Colors      []color.RGBA // several entries for multilabel points
	Shape       colormap.Shape
	Size        float64
	Opacity     float64
	StrokeColor color.RGBA
	StrokeWidth float64
	Depth       float64
	Multilabel  bool
}

// Inputs freezes everything style resolution depends on. Build a new
// Resolver whenever any of these change.
type Inputs struct {
	Dataset   *dataset.Dataset
	Category  string
	Legend    *legend.Snapshot
	Selection map[string]bool
	Highlight string
	Config    Config
}

// Resolver maps point indices to styles using lookup tables built once at
// construction; Resolve itself allocates only the color list.
type Resolver struct {
	cfg      Config
	ds       *dataset.Dataset
	category string

	colorByIndex  []color.RGBA
	shapeByIndex  []colormap.Shape
	hiddenByIndex []bool
	otherByIndex  []bool
	rankByIndex   []float64

	naColor  color.RGBA
	naHidden bool
	naRank   float64

	selectedRows []bool
	highlightRow int
	hasSelection bool
	ignoreHidden bool
}

// NewResolver builds the lookup tables for the given inputs.
func NewResolver(in Inputs) *Resolver {
	r := &Resolver{
		cfg:          in.Config,
		ds:           in.Dataset,
		category:     in.Category,
		naColor:      colormap.NoValue,
		naRank:       1,
		highlightRow: -1,
	}

	n := in.Dataset.NumPoints()
	r.selectedRows = make([]bool, n)
	for id := range in.Selection {
		if row, ok := in.Dataset.IndexOf(id); ok {
			r.selectedRows[row] = true
			r.hasSelection = true
		}
	}
	if in.Highlight != "" {
		if row, ok := in.Dataset.IndexOf(in.Highlight); ok {
			r.highlightRow = row
		}
	}

	table, ok := in.Dataset.Category(in.Category)
	if !ok || in.Legend == nil {
		return r
	}
	snap := in.Legend

	rankTotal := len(snap.Ranks)
	if rankTotal < 1 {
		rankTotal = 1
	}
	norm := func(v string) float64 {
		if rank, ok := snap.Ranks[v]; ok {
			return float64(rank) / float64(rankTotal)
		}
		return 1
	}

	otherHidden := snap.Hidden[legend.OtherValue]
	r.colorByIndex = make([]color.RGBA, table.Len())
	r.shapeByIndex = make([]colormap.Shape, table.Len())
	r.hiddenByIndex = make([]bool, table.Len())
	r.otherByIndex = make([]bool, table.Len())
	r.rankByIndex = make([]float64, table.Len())
	for i := 0; i < table.Len(); i++ {
		v := table.ValueAt(i)
		if v == nil {
			r.colorByIndex[i] = r.resolveNAColor(snap)
			r.shapeByIndex[i] = colormap.ShapeCircle
			r.hiddenByIndex[i] = snap.Hidden[legend.NAValue]
			r.rankByIndex[i] = norm(legend.NAValue)
			continue
		}
		value := *v
		r.otherByIndex[i] = snap.OtherSet[value]
		r.hiddenByIndex[i] = snap.Hidden[value] || (r.otherByIndex[i] && otherHidden)
		r.rankByIndex[i] = norm(value)
		if r.otherByIndex[i] {
			r.colorByIndex[i] = colormap.Neutral
			r.shapeByIndex[i] = colormap.ShapeCircle
			continue
		}
		r.colorByIndex[i] = colormap.Neutral
		if hex, ok := snap.Colors[value]; ok {
			if c, err := colormap.ParseHex(hex); err == nil {
				r.colorByIndex[i] = c
			}
		}
		r.shapeByIndex[i] = colormap.ShapeCircle
		if s, ok := snap.Shapes[value]; ok && colormap.ValidShape(colormap.Shape(s)) {
			r.shapeByIndex[i] = colormap.Shape(s)
		}
	}

	r.naColor = r.resolveNAColor(snap)
	r.naHidden = snap.Hidden[legend.NAValue]
	r.naRank = norm(legend.NAValue)

	// Fail-open: when every point would resolve to hidden, ignore the
	// hidden filter entirely rather than draw a blank canvas.
	if in.Config.FailOpenHiding && r.anyHidden() {
		allHidden := true
		for row := 0; row < n && allHidden; row++ {
			if !r.fullyHidden(row) {
				allHidden = false
			}
		}
		r.ignoreHidden = allHidden
	}
	return r
}

func (r *Resolver) resolveNAColor(snap *legend.Snapshot) color.RGBA {
	if hex, ok := snap.Colors[legend.NAValue]; ok {
		if c, err := colormap.ParseHex(hex); err == nil {
			return c
		}
	}
	return colormap.NoValue
}

func (r *Resolver) anyHidden() bool {
	if r.naHidden {
		return true
	}
	for _, h := range r.hiddenByIndex {
		if h {
			return true
		}
	}
	return false
}

// fullyHidden reports whether the point would drop out entirely under the
// hidden filter.
func (r *Resolver) fullyHidden(row int) bool {
	indices := r.ds.ValuesForPoint(r.category, row)
	any := false
	for _, idx := range indices {
		if idx < 0 || idx >= len(r.hiddenByIndex) {
			continue
		}
		any = true
		if !r.hiddenByIndex[idx] {
			return false
		}
	}
	if !any {
		return r.naHidden
	}
	return true
}

// Visible reports whether the point draws with opacity above zero.
func (r *Resolver) Visible(row int) bool {
	if r.colorByIndex == nil {
		return true
	}
	if r.ignoreHidden {
		return true
	}
	return !r.fullyHidden(row)
}

// Resolve returns the style of one point.
func (r *Resolver) Resolve(row int) PointStyle {
	st := PointStyle{
		Shape:       colormap.ShapeCircle,
		Size:        r.cfg.PointSize,
		StrokeColor: r.cfg.StrokeColor,
		StrokeWidth: r.cfg.StrokeWidth,
	}

	// No category selected: uniform default styling.
	if r.colorByIndex == nil {
		st.Colors = []color.RGBA{colormap.Categorical.AtIndex(0)}
		st.Opacity = r.opacityFor(row)
		st.Depth = 1 - st.Opacity
		return st
	}

	indices := r.ds.ValuesForPoint(r.category, row)
	resolved := 0
	rank := -1.0
	for _, idx := range indices {
		if idx < 0 || idx >= len(r.colorByIndex) {
			continue
		}
		resolved++
		if r.hiddenByIndex[idx] && !r.ignoreHidden {
			continue
		}
		st.Colors = appendColor(st.Colors, r.colorByIndex[idx])
		if rank < 0 && !r.otherByIndex[idx] {
			rank = r.rankByIndex[idx]
		}
	}

	if resolved == 0 {
		// N/A point.
		if r.naHidden && !r.ignoreHidden {
			return PointStyle{Opacity: 0, Depth: 1}
		}
		st.Colors = []color.RGBA{r.naColor}
		st.Opacity = r.opacityFor(row)
		st.Depth = (1 - st.Opacity) + r.naRank*depthEpsilon
		return st
	}
	if len(st.Colors) == 0 {
		// Every value hidden.
		return PointStyle{Opacity: 0, Depth: 1}
	}
	if rank < 0 {
		rank = 1
	}

	st.Multilabel = len(st.Colors) > 1
	if r.cfg.ShapesEnabled && resolved == 1 {
		idx := firstResolved(indices, len(r.shapeByIndex))
		if idx >= 0 && !r.otherByIndex[idx] {
			st.Shape = r.shapeByIndex[idx]
		}
	}

	st.Opacity = r.opacityFor(row)
	st.Depth = (1 - st.Opacity) + rank*depthEpsilon
	return st
}

func (r *Resolver) opacityFor(row int) float64 {
	if r.highlightRow >= 0 && row == r.highlightRow {
		return r.cfg.SelectedOpacity
	}
	if row < len(r.selectedRows) && r.selectedRows[row] {
		return r.cfg.SelectedOpacity
	}
	if r.hasSelection {
		return r.cfg.FadedOpacity
	}
	return r.cfg.BaseOpacity
}

func appendColor(colors []color.RGBA, c color.RGBA) []color.RGBA {
	for _, got := range colors {
		if got == c {
			return colors
		}
	}
	return append(colors, c)
}

func firstResolved(indices []int, tableLen int) int {
	for _, idx := range indices {
		if idx >= 0 && idx < tableLen {
			return idx
		}
	}
	return -1
}
