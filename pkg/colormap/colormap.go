// Package colormap provides the categorical palette and marker shape
// vocabulary for scatter rendering.
package colormap

import (
	"fmt"
	"image/color"
)

// Palette assigns distinct colors to legend slots.
type Palette struct {
	colors []color.RGBA
}

// AtIndex returns the color for slot i (wraps around).
func (p Palette) AtIndex(i int) color.RGBA {
	if i < 0 {
		return Neutral
	}
	return p.colors[i%len(p.colors)]
}

// HexAtIndex returns the hex string for slot i (wraps around).
func (p Palette) HexAtIndex(i int) string {
	return Hex(p.AtIndex(i))
}

// Len returns the number of distinct palette entries.
func (p Palette) Len() int {
	return len(p.colors)
}

// Neutral is the color of bucketed overflow values and unmapped values.
var Neutral = color.RGBA{127, 127, 127, 255}

// NoValue is the color of points that carry no category value.
var NoValue = color.RGBA{199, 199, 199, 255}

// Categorical is the default palette with 20 distinct colors.
var Categorical = Palette{
	colors: []color.RGBA{
		{31, 119, 180, 255},  // Blue
		{255, 127, 14, 255},  // Orange
		{44, 160, 44, 255},   // Green
		{214, 39, 40, 255},   // Red
		{148, 103, 189, 255}, // Purple
		{140, 86, 75, 255},   // Brown
		{227, 119, 194, 255}, // Pink
		{127, 127, 127, 255}, // Gray
		{188, 189, 34, 255},  // Olive
		{23, 190, 207, 255},  // Cyan
		{174, 199, 232, 255}, // Light blue
		{255, 187, 120, 255}, // Light orange
		{152, 223, 138, 255}, // Light green
		{255, 152, 150, 255}, // Light red
		{197, 176, 213, 255}, // Light purple
		{196, 156, 148, 255}, // Light brown
		{247, 182, 210, 255}, // Light pink
		{199, 199, 199, 255}, // Light gray
		{219, 219, 141, 255}, // Light olive
		{158, 218, 229, 255}, // Light cyan
	},
}

// Shape identifies a marker glyph.
type Shape string

const (
	ShapeCircle       Shape = "circle"
	ShapeSquare       Shape = "square"
	ShapeDiamond      Shape = "diamond"
	ShapeTriangle     Shape = "triangle"
	ShapeTriangleDown Shape = "triangle-down"
	ShapeCross        Shape = "cross"
	ShapePlus         Shape = "plus"
	ShapeStar         Shape = "star"
)

// Shapes is the marker vocabulary in slot order.
var Shapes = []Shape{
	ShapeCircle,
	ShapeSquare,
	ShapeDiamond,
	ShapeTriangle,
	ShapeTriangleDown,
	ShapeCross,
	ShapePlus,
	ShapeStar,
}

// ShapeAtIndex returns the default shape for slot i (wraps around).
func ShapeAtIndex(i int) Shape {
	if i < 0 {
		return ShapeCircle
	}
	return Shapes[i%len(Shapes)]
}

// ValidShape reports whether s names a known marker glyph.
func ValidShape(s Shape) bool {
	for _, v := range Shapes {
		if v == s {
			return true
		}
	}
	return false
}

// ParseHex parses "#rrggbb" or "#rrggbbaa" into an RGBA color.
func ParseHex(s string) (color.RGBA, error) {
	if len(s) == 0 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	var c color.RGBA
	c.A = 255
	switch len(s) {
	case 7:
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
			return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
	case 9:
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
			return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return c, nil
}

// Hex formats c as "#rrggbb".
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
