package render

import (
	"math"

	"github.com/fogleman/gg"

	"github.com/scatterview/server/pkg/colormap"
)

// appendUnitShape appends the outline of a marker shape to the current path.
// Shapes are drawn in unit coordinates (roughly inscribed in the unit
// circle) and positioned by the caller through the context matrix.
func appendUnitShape(dc *gg.Context, s colormap.Shape) {
	switch s {
	case colormap.ShapeSquare:
		appendPolygon(dc, [][2]float64{
			{-0.85, -0.85}, {0.85, -0.85}, {0.85, 0.85}, {-0.85, 0.85},
		})
	case colormap.ShapeDiamond:
		appendPolygon(dc, [][2]float64{
			{0, -1}, {1, 0}, {0, 1}, {-1, 0},
		})
	case colormap.ShapeTriangle:
		appendPolygon(dc, [][2]float64{
			{0, -1}, {0.866, 0.5}, {-0.866, 0.5},
		})
	case colormap.ShapeTriangleDown:
		appendPolygon(dc, [][2]float64{
			{0, 1}, {0.866, -0.5}, {-0.866, -0.5},
		})
	case colormap.ShapePlus:
		appendPolygon(dc, plusPoints())
	case colormap.ShapeCross:
		dc.Push()
		dc.Rotate(math.Pi / 4)
		appendPolygon(dc, plusPoints())
		dc.Pop()
	case colormap.ShapeStar:
		appendPolygon(dc, starPoints())
	default:
		dc.DrawCircle(0, 0, 1)
	}
}

func appendPolygon(dc *gg.Context, pts [][2]float64) {
	dc.NewSubPath()
	dc.MoveTo(pts[0][0], pts[0][1])
	for _, p := range pts[1:] {
		dc.LineTo(p[0], p[1])
	}
	dc.ClosePath()
}

func plusPoints() [][2]float64 {
	const w = 0.35
	return [][2]float64{
		{-w, -1}, {w, -1}, {w, -w}, {1, -w}, {1, w}, {w, w},
		{w, 1}, {-w, 1}, {-w, w}, {-1, w}, {-1, -w}, {-w, -w},
	}
}

func starPoints() [][2]float64 {
	const inner = 0.45
	pts := make([][2]float64, 10)
	for i := range pts {
		r := 1.0
		if i%2 == 1 {
			r = inner
		}
		a := -math.Pi/2 + float64(i)*math.Pi/5
		pts[i] = [2]float64{r * math.Cos(a), r * math.Sin(a)}
	}
	return pts
}
