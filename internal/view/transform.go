// Package view owns the affine view transform, the domain-to-screen
// projection, brush state, and the dirty flags that coalesce redraws and
// rebuilds.
package view

import (
	"github.com/aclements/go-moremath/scale"

	"github.com/scatterview/server/internal/dataset"
)

// Transform is the pan/zoom affine applied uniformly to the whole canvas.
// It never reprojects points; the renderer applies it to the base plane.
type Transform struct {
	TranslateX float64 `json:"translate_x"`
	TranslateY float64 `json:"translate_y"`
	Scale      float64 `json:"scale"`
}

// Identity returns the untransformed view.
func Identity() Transform {
	return Transform{Scale: 1}
}

// Apply maps a base-plane coordinate onto the canvas.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.Scale + t.TranslateX, y*t.Scale + t.TranslateY
}

// Invert maps a canvas coordinate back onto the base plane.
func (t Transform) Invert(x, y float64) (float64, float64) {
	if t.Scale == 0 {
		return 0, 0
	}
	return (x - t.TranslateX) / t.Scale, (y - t.TranslateY) / t.Scale
}

// Projection maps data-domain coordinates onto the base screen plane the
// renderer caches and the spatial index is built over. Pan and zoom never
// touch it; only a resize or a domain change replaces it.
type Projection struct {
	X, Y          scale.Linear
	Width, Height float64
	Margin        float64
}

// NewProjection fits the domain bounds into width x height with a margin
// on all sides. Degenerate bounds are widened so mapping stays finite.
func NewProjection(b dataset.Bounds, width, height, margin float64) Projection {
	if b.MinX == b.MaxX {
		b.MinX -= 0.5
		b.MaxX += 0.5
	}
	if b.MinY == b.MaxY {
		b.MinY -= 0.5
		b.MaxY += 0.5
	}
	return Projection{
		X:      scale.Linear{Min: b.MinX, Max: b.MaxX},
		Y:      scale.Linear{Min: b.MinY, Max: b.MaxY},
		Width:  width,
		Height: height,
		Margin: margin,
	}
}

// ToScreen projects a domain coordinate onto the base plane. Screen y
// grows downward, so the y axis flips.
func (p Projection) ToScreen(x, y float64) (float64, float64) {
	sx := p.Margin + p.X.Map(x)*(p.Width-2*p.Margin)
	sy := p.Height - (p.Margin + p.Y.Map(y)*(p.Height-2*p.Margin))
	return sx, sy
}

// FromScreen maps a base-plane coordinate back into the domain.
func (p Projection) FromScreen(sx, sy float64) (float64, float64) {
	nx := (sx - p.Margin) / (p.Width - 2*p.Margin)
	ny := (p.Height - sy - p.Margin) / (p.Height - 2*p.Margin)
	x := p.X.Min + nx*(p.X.Max-p.X.Min)
	y := p.Y.Min + ny*(p.Y.Max-p.Y.Min)
	return x, y
}

// XTicks returns up to max major tick positions along the x domain.
func (p Projection) XTicks(max int) []float64 {
	major, _ := p.X.Ticks(scale.TickOptions{Max: max})
	return major
}

// YTicks returns up to max major tick positions along the y domain.
func (p Projection) YTicks(max int) []float64 {
	major, _ := p.Y.Ticks(scale.TickOptions{Max: max})
	return major
}
