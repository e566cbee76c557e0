// Package render draws scatter frames using fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/scatterview/server/internal/legend"
	"github.com/scatterview/server/internal/style"
	"github.com/scatterview/server/internal/view"
	"github.com/scatterview/server/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	Width        int
	Height       int
	Margin       float64
	Background   color.RGBA
	SizeExponent float64
	ShowAxes     bool
	ShowLegend   bool
	ShowLabels   bool
}

// DefaultConfig returns renderer defaults suitable for an 800x600 frame.
func DefaultConfig() Config {
	return Config{
		Width:        800,
		Height:       600,
		Margin:       40,
		Background:   color.RGBA{255, 255, 255, 255},
		SizeExponent: 1.0,
		ShowAxes:     true,
		ShowLegend:   true,
		ShowLabels:   false,
	}
}

// Label is a text annotation anchored on the base plane, typically a
// category centroid.
type Label struct {
	Text  string
	X     float64
	Y     float64
	Color color.RGBA
}

// Frame describes one render pass over the current batch state.
type Frame struct {
	Transform view.Transform
	Legend    *legend.Snapshot
	Labels    []Label
}

// group is a set of points sharing one resolved style. Members are drawn
// with a single compound path so each group costs one fill and at most one
// stroke, regardless of size.
type group struct {
	key         string
	colors      []color.RGBA
	shape       colormap.Shape
	size        float64
	opacity     float64
	stroke      color.RGBA
	strokeWidth float64
	multilabel  bool
	depth       float64
	rows        []int
}

// BatchRenderer renders point batches grouped by style. Style groups are
// cached under an explicit signature and screen positions are cached
// independently of both the groups and the view transform, so a pan or zoom
// tick re-issues draw calls but recomputes nothing.
//
// The renderer is not internally synchronized; callers serialize access the
// same way they serialize the rest of the plot state.
type BatchRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool

	positions []screenPoint
	proj      *view.Projection

	signature string
	groups    []*group
}

type screenPoint struct {
	x, y float64
}

// NewBatchRenderer creates a renderer for the configured frame size.
func NewBatchRenderer(cfg Config) *BatchRenderer {
	r := &BatchRenderer{config: cfg}
	r.resetPools()
	return r
}

func (r *BatchRenderer) resetPools() {
	w, h := r.config.Width, r.config.Height
	r.contextPool = sync.Pool{
		New: func() interface{} {
			return gg.NewContext(w, h)
		},
	}
	r.bufferPool = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}
}

// Size returns the frame width and height in pixels.
func (r *BatchRenderer) Size() (int, int) {
	return r.config.Width, r.config.Height
}

// Resize changes the frame size. Pooled contexts of the old size are
// discarded.
func (r *BatchRenderer) Resize(width, height int) {
	if width == r.config.Width && height == r.config.Height {
		return
	}
	r.config.Width = width
	r.config.Height = height
	r.resetPools()
}

// SetPositions projects base-plane coordinates to screen space and caches
// them. Call this when the point set or the domain-to-screen scale changes;
// pan and zoom do not require it.
func (r *BatchRenderer) SetPositions(points [][3]float64, proj *view.Projection) {
	r.proj = proj
	if cap(r.positions) < len(points) {
		r.positions = make([]screenPoint, len(points))
	}
	r.positions = r.positions[:len(points)]
	for i, p := range points {
		x, y := proj.ToScreen(p[0], p[1])
		r.positions[i] = screenPoint{x, y}
	}
}

// NumPositions returns the number of cached screen positions.
func (r *BatchRenderer) NumPositions() int {
	return len(r.positions)
}

// ScreenPosition returns the cached pre-transform screen position of a row.
func (r *BatchRenderer) ScreenPosition(row int) (float64, float64, bool) {
	if row < 0 || row >= len(r.positions) {
		return 0, 0, false
	}
	p := r.positions[row]
	return p.x, p.y, true
}

// Signature returns the signature of the cached style groups.
func (r *BatchRenderer) Signature() string {
	return r.signature
}

// GroupCount returns the number of cached style groups.
func (r *BatchRenderer) GroupCount() int {
	return len(r.groups)
}

// VisibleCount returns the number of points in the cached style groups.
func (r *BatchRenderer) VisibleCount() int {
	n := 0
	for _, g := range r.groups {
		n += len(g.rows)
	}
	return n
}

// Invalidate discards the cached style groups and screen positions.
func (r *BatchRenderer) Invalidate() {
	r.signature = ""
	r.groups = nil
	r.positions = r.positions[:0]
	r.proj = nil
}

// Rebuild groups the first numPoints rows by resolved style. The signature
// must change whenever the selected category, the shape toggle, the size
// configuration, or the z-order mapping changes; a call with the cached
// signature is a no-op.
func (r *BatchRenderer) Rebuild(signature string, res *style.Resolver, numPoints int) {
	if signature == r.signature && r.groups != nil {
		return
	}
	byKey := make(map[string]*group)
	var groups []*group
	for i := 0; i < numPoints; i++ {
		st := res.Resolve(i)
		if st.Opacity <= 0 {
			continue
		}
		key := styleKey(st)
		g, ok := byKey[key]
		if !ok {
			g = &group{
				key:         key,
				colors:      st.Colors,
				shape:       st.Shape,
				size:        st.Size,
				opacity:     st.Opacity,
				stroke:      st.StrokeColor,
				strokeWidth: st.StrokeWidth,
				multilabel:  st.Multilabel,
				depth:       st.Depth,
			}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, i)
		if st.Depth > g.depth {
			g.depth = st.Depth
		}
	}
	// Translucent groups first, opaque groups last so they end up on top.
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].depth != groups[j].depth {
			return groups[i].depth > groups[j].depth
		}
		return groups[i].key < groups[j].key
	})
	r.signature = signature
	r.groups = groups
}

// styleKey builds the composite grouping key for one resolved point style.
func styleKey(st style.PointStyle) string {
	var b strings.Builder
	for _, c := range st.Colors {
		b.WriteString(colormap.Hex(c))
		b.WriteByte(',')
	}
	fmt.Fprintf(&b, "|%g|%s|%g|%g|%s|%t",
		st.Size, colormap.Hex(st.StrokeColor), st.StrokeWidth, st.Opacity, st.Shape, st.Multilabel)
	return b.String()
}

// Render draws the cached batches under the frame's view transform and
// encodes the result as PNG.
func (r *BatchRenderer) Render(f Frame) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.Identity()
	dc.SetColor(r.config.Background)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	t := f.Transform
	if t.Scale <= 0 {
		t = view.Identity()
	}

	if r.config.ShowAxes && r.proj != nil {
		r.drawAxes(dc, t)
	}

	// Pan/zoom is a uniform affine on the whole canvas. Point radii are
	// divided by scale^exponent, so exponent 1 keeps constant screen size.
	// Line widths are not matrix-transformed by gg, hence the extra scale
	// factor on strokes.
	factor := math.Pow(t.Scale, -r.config.SizeExponent)
	strokeFactor := factor * t.Scale
	dc.Push()
	dc.Translate(t.TranslateX, t.TranslateY)
	dc.Scale(t.Scale, t.Scale)
	for _, g := range r.groups {
		r.drawGroup(dc, g, factor, strokeFactor)
	}
	dc.Pop()

	if r.config.ShowLabels {
		r.drawLabels(dc, t, f.Labels)
	}
	if r.config.ShowLegend && f.Legend != nil {
		r.drawLegend(dc, f.Legend)
	}

	return r.encodeContext(dc)
}

// EmptyFrame renders a background-only frame for degenerate states.
func (r *BatchRenderer) EmptyFrame() ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.Identity()
	dc.SetColor(r.config.Background)
	dc.Clear()
	return r.encodeContext(dc)
}

func (r *BatchRenderer) drawGroup(dc *gg.Context, g *group, sizeFactor, strokeFactor float64) {
	radius := g.size * sizeFactor / 2
	if radius <= 0 {
		return
	}
	switch {
	case g.multilabel:
		r.drawWedges(dc, g, radius, strokeFactor)
	case g.shape == colormap.ShapeCircle || g.shape == "":
		for _, row := range g.rows {
			p := r.positions[row]
			dc.DrawCircle(p.x, p.y, radius)
		}
		r.fillAndStroke(dc, g, strokeFactor)
	default:
		for _, row := range g.rows {
			p := r.positions[row]
			dc.Push()
			dc.Translate(p.x, p.y)
			dc.Scale(radius, radius)
			appendUnitShape(dc, g.shape)
			dc.Pop()
		}
		r.fillAndStroke(dc, g, strokeFactor)
	}
}

// drawWedges renders a multi-color group as pie wedges: one fill per color,
// each covering that wedge across every member.
func (r *BatchRenderer) drawWedges(dc *gg.Context, g *group, radius, strokeFactor float64) {
	n := len(g.colors)
	if n == 0 {
		return
	}
	span := 2 * math.Pi / float64(n)
	for wi, c := range g.colors {
		a1 := -math.Pi/2 + span*float64(wi)
		a2 := a1 + span
		for _, row := range g.rows {
			p := r.positions[row]
			dc.NewSubPath()
			dc.MoveTo(p.x, p.y)
			dc.DrawArc(p.x, p.y, radius, a1, a2)
			dc.ClosePath()
		}
		setAlphaColor(dc, c, g.opacity)
		dc.Fill()
	}
	if g.strokeWidth > 0 {
		for _, row := range g.rows {
			p := r.positions[row]
			dc.DrawCircle(p.x, p.y, radius)
		}
		dc.SetLineWidth(g.strokeWidth * strokeFactor)
		setAlphaColor(dc, g.stroke, g.opacity)
		dc.Stroke()
	}
}

func (r *BatchRenderer) fillAndStroke(dc *gg.Context, g *group, strokeFactor float64) {
	fill := colormap.Neutral
	if len(g.colors) > 0 {
		fill = g.colors[0]
	}
	setAlphaColor(dc, fill, g.opacity)
	if g.strokeWidth > 0 {
		dc.FillPreserve()
		dc.SetLineWidth(g.strokeWidth * strokeFactor)
		setAlphaColor(dc, g.stroke, g.opacity)
		dc.Stroke()
	} else {
		dc.Fill()
	}
}

func (r *BatchRenderer) drawAxes(dc *gg.Context, t view.Transform) {
	w := float64(r.config.Width)
	h := float64(r.config.Height)
	m := r.config.Margin

	dc.SetColor(color.RGBA{120, 120, 120, 255})
	dc.SetLineWidth(1)
	dc.DrawLine(m, h-m, w-m, h-m)
	dc.DrawLine(m, m, m, h-m)
	dc.Stroke()

	// Tick positions live on the base plane and follow the view transform,
	// so they stay attached to their data values under pan and zoom.
	for _, v := range r.proj.XTicks(6) {
		bx, _ := r.proj.ToScreen(v, 0)
		sx, _ := t.Apply(bx, 0)
		if sx < m || sx > w-m {
			continue
		}
		dc.DrawLine(sx, h-m, sx, h-m+4)
		dc.Stroke()
		dc.DrawStringAnchored(formatTick(v), sx, h-m+12, 0.5, 0.5)
	}
	for _, v := range r.proj.YTicks(6) {
		_, by := r.proj.ToScreen(0, v)
		_, sy := t.Apply(0, by)
		if sy < m || sy > h-m {
			continue
		}
		dc.DrawLine(m-4, sy, m, sy)
		dc.Stroke()
		dc.DrawStringAnchored(formatTick(v), m-8, sy, 1, 0.5)
	}
}

func formatTick(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e6 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2g", v)
}

func (r *BatchRenderer) drawLabels(dc *gg.Context, t view.Transform, labels []Label) {
	for _, l := range labels {
		sx, sy := t.Apply(l.X, l.Y)
		if sx < 0 || sx > float64(r.config.Width) || sy < 0 || sy > float64(r.config.Height) {
			continue
		}
		dc.SetColor(color.RGBA{255, 255, 255, 255})
		for _, d := range [][2]float64{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			dc.DrawStringAnchored(l.Text, sx+d[0], sy+d[1], 0.5, 0.5)
		}
		dc.SetColor(l.Color)
		dc.DrawStringAnchored(l.Text, sx, sy, 0.5, 0.5)
	}
}

const (
	legendRowHeight = 16.0
	legendSwatch    = 9.0
	legendPad       = 8.0
)

func (r *BatchRenderer) drawLegend(dc *gg.Context, snap *legend.Snapshot) {
	if len(snap.Items) == 0 {
		return
	}
	maxw := 0.0
	for _, it := range snap.Items {
		w, _ := dc.MeasureString(legendRowText(it))
		if w > maxw {
			maxw = w
		}
	}
	boxW := legendSwatch + 6 + maxw + 2*legendPad
	boxH := float64(len(snap.Items))*legendRowHeight + 2*legendPad
	x0 := float64(r.config.Width) - boxW - 10
	y0 := 10.0

	dc.SetRGBA(1, 1, 1, 0.85)
	dc.DrawRectangle(x0, y0, boxW, boxH)
	dc.Fill()
	dc.SetColor(color.RGBA{180, 180, 180, 255})
	dc.SetLineWidth(1)
	dc.DrawRectangle(x0, y0, boxW, boxH)
	dc.Stroke()

	for i, it := range snap.Items {
		cy := y0 + legendPad + float64(i)*legendRowHeight + legendRowHeight/2
		cx := x0 + legendPad + legendSwatch/2

		c, err := colormap.ParseHex(it.Color)
		if err != nil {
			c = colormap.Neutral
		}
		dc.SetColor(c)
		shape := colormap.Shape(it.Shape)
		if !colormap.ValidShape(shape) {
			shape = colormap.ShapeCircle
		}
		if shape == colormap.ShapeCircle {
			dc.DrawCircle(cx, cy, legendSwatch/2)
		} else {
			dc.Push()
			dc.Translate(cx, cy)
			dc.Scale(legendSwatch/2, legendSwatch/2)
			appendUnitShape(dc, shape)
			dc.Pop()
		}
		dc.Fill()

		if it.Visible {
			dc.SetColor(color.RGBA{30, 30, 30, 255})
		} else {
			dc.SetColor(color.RGBA{150, 150, 150, 255})
		}
		dc.DrawStringAnchored(legendRowText(it), x0+legendPad+legendSwatch+6, cy, 0, 0.35)
	}
}

func legendRowText(it legend.Item) string {
	if it.Count > 0 {
		return fmt.Sprintf("%s (%d)", it.Value, it.Count)
	}
	return it.Value
}

func setAlphaColor(dc *gg.Context, c color.RGBA, opacity float64) {
	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}
	dc.SetColor(color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(opacity*255 + 0.5)})
}

func (r *BatchRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
