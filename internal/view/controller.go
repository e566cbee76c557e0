package view

import (
	"github.com/golang/geo/r2"
)

// Zoom clamp range.
const (
	minScale = 1.0 / 64
	maxScale = 64.0
)

// Dirty tracks which derived artifacts need refreshing. Mutations set
// bits; the next render or query consumes them. Multiple triggers within
// one tick collapse into a single rebuild.
type Dirty struct {
	Data      bool // point set or projection changed: rebuild everything
	Style     bool // style signature changed: rebuild batches
	Transform bool // pan/zoom only: redraw, no rebuild
	Index     bool // spatial index needs a rebuild
}

// MarkData flags a full rebuild.
func (d *Dirty) MarkData() {
	d.Data = true
	d.Style = true
	d.Transform = true
	d.Index = true
}

// MarkStyle flags a batch rebuild; visibility may have changed, so the
// index rebuilds too.
func (d *Dirty) MarkStyle() {
	d.Style = true
	d.Index = true
}

// MarkTransform flags a redraw.
func (d *Dirty) MarkTransform() {
	d.Transform = true
}

// Any reports whether anything is pending.
func (d *Dirty) Any() bool {
	return d.Data || d.Style || d.Transform || d.Index
}

// Clear resets all flags.
func (d *Dirty) Clear() {
	*d = Dirty{}
}

// Brush is an in-progress box selection in canvas coordinates.
type Brush struct {
	StartX, StartY float64
	X, Y           float64
}

// Controller owns the view transform and turns gestures into transform
// updates. Pan and zoom request a redraw; only a resize or domain change
// triggers a projection and index rebuild.
type Controller struct {
	transform Transform
	width     float64
	height    float64
	brush     *Brush
	dirty     *Dirty
}

// NewController returns a controller for a canvas of the given size,
// marking dirty bits on the shared flag set.
func NewController(width, height float64, dirty *Dirty) *Controller {
	return &Controller{
		transform: Identity(),
		width:     width,
		height:    height,
		dirty:     dirty,
	}
}

// Transform returns the current view transform.
func (c *Controller) Transform() Transform {
	return c.transform
}

// Size returns the canvas size.
func (c *Controller) Size() (width, height float64) {
	return c.width, c.height
}

// ZoomBy scales the view by factor about the canvas point (cx, cy), so
// the data under the cursor stays put.
func (c *Controller) ZoomBy(factor, cx, cy float64) {
	s := c.transform.Scale * factor
	if s < minScale {
		s = minScale
	}
	if s > maxScale {
		s = maxScale
	}
	ratio := s / c.transform.Scale
	c.transform.TranslateX = cx - (cx-c.transform.TranslateX)*ratio
	c.transform.TranslateY = cy - (cy-c.transform.TranslateY)*ratio
	c.transform.Scale = s
	c.dirty.MarkTransform()
}

// PanBy shifts the view by a canvas-space delta.
func (c *Controller) PanBy(dx, dy float64) {
	c.transform.TranslateX += dx
	c.transform.TranslateY += dy
	c.dirty.MarkTransform()
}

// Reset restores the identity view.
func (c *Controller) Reset() {
	c.transform = Identity()
	c.dirty.MarkTransform()
}

// Resize changes the canvas size. The projection depends on it, so this
// is a full rebuild.
func (c *Controller) Resize(width, height float64) {
	if width == c.width && height == c.height {
		return
	}
	c.width = width
	c.height = height
	c.dirty.MarkData()
}

// BeginBrush starts a box selection at a canvas coordinate.
func (c *Controller) BeginBrush(x, y float64) {
	c.brush = &Brush{StartX: x, StartY: y, X: x, Y: y}
}

// MoveBrush extends the active box selection.
func (c *Controller) MoveBrush(x, y float64) {
	if c.brush == nil {
		return
	}
	c.brush.X = x
	c.brush.Y = y
}

// ActiveBrush returns the in-progress brush, if any.
func (c *Controller) ActiveBrush() *Brush {
	return c.brush
}

// EndBrush finishes the box selection and returns its rectangle on the
// base plane (canvas corners pushed through the inverse transform),
// ready for a spatial index query.
func (c *Controller) EndBrush() (r2.Rect, bool) {
	if c.brush == nil {
		return r2.Rect{}, false
	}
	b := *c.brush
	c.brush = nil
	x0, y0 := c.transform.Invert(b.StartX, b.StartY)
	x1, y1 := c.transform.Invert(b.X, b.Y)
	return r2.RectFromPoints(r2.Point{X: x0, Y: y0}, r2.Point{X: x1, Y: y1}), true
}
