package view

import (
	"math"
	"testing"

	"github.com/scatterview/server/internal/dataset"
)

func TestTransformRoundTrip(t *testing.T) {
	tr := Transform{TranslateX: 12, TranslateY: -7, Scale: 2.5}
	x, y := tr.Apply(3, 4)
	bx, by := tr.Invert(x, y)
	if math.Abs(bx-3) > 1e-12 || math.Abs(by-4) > 1e-12 {
		t.Fatalf("expected round trip to (3,4), got (%v,%v)", bx, by)
	}
}

func TestZoomKeepsAnchorFixed(t *testing.T) {
	var d Dirty
	c := NewController(800, 600, &d)

	// Base point that currently projects to the anchor.
	anchorX, anchorY := 400.0, 300.0
	baseX, baseY := c.Transform().Invert(anchorX, anchorY)

	c.ZoomBy(2, anchorX, anchorY)
	gotX, gotY := c.Transform().Apply(baseX, baseY)
	if math.Abs(gotX-anchorX) > 1e-9 || math.Abs(gotY-anchorY) > 1e-9 {
		t.Fatalf("expected anchor to stay at (%v,%v), got (%v,%v)", anchorX, anchorY, gotX, gotY)
	}
	if c.Transform().Scale != 2 {
		t.Fatalf("expected scale 2, got %v", c.Transform().Scale)
	}

	if !d.Transform || d.Data || d.Index {
		t.Fatalf("expected zoom to mark a redraw only, got %+v", d)
	}
}

func TestZoomClamps(t *testing.T) {
	var d Dirty
	c := NewController(800, 600, &d)
	c.ZoomBy(1e9, 0, 0)
	if got := c.Transform().Scale; got != maxScale {
		t.Fatalf("expected clamp at %v, got %v", maxScale, got)
	}
	c.ZoomBy(1e-12, 0, 0)
	if got := c.Transform().Scale; got != minScale {
		t.Fatalf("expected clamp at %v, got %v", minScale, got)
	}
}

func TestPanAccumulatesAndResetRestores(t *testing.T) {
	var d Dirty
	c := NewController(800, 600, &d)
	c.PanBy(10, 5)
	c.PanBy(-4, 2)
	tr := c.Transform()
	if tr.TranslateX != 6 || tr.TranslateY != 7 {
		t.Fatalf("unexpected pan state: %+v", tr)
	}
	c.Reset()
	if c.Transform() != Identity() {
		t.Fatalf("expected identity after reset, got %+v", c.Transform())
	}
}

func TestResizeMarksFullRebuild(t *testing.T) {
	var d Dirty
	c := NewController(800, 600, &d)
	c.Resize(800, 600) // no-op
	if d.Any() {
		t.Fatalf("expected no dirty bits for same-size resize")
	}
	c.Resize(1024, 768)
	if !d.Data || !d.Style || !d.Index || !d.Transform {
		t.Fatalf("expected resize to mark everything, got %+v", d)
	}
}

func TestProjectionRoundTripAndFlip(t *testing.T) {
	b := dataset.Bounds{MinX: -10, MaxX: 10, MinY: 0, MaxY: 4}
	p := NewProjection(b, 800, 600, 20)

	sx, sy := p.ToScreen(-10, 0)
	if math.Abs(sx-20) > 1e-9 {
		t.Fatalf("expected min x at left margin, got %v", sx)
	}
	if math.Abs(sy-580) > 1e-9 {
		t.Fatalf("expected min y at the bottom (y flips), got %v", sy)
	}

	sx, sy = p.ToScreen(10, 4)
	if math.Abs(sx-780) > 1e-9 || math.Abs(sy-20) > 1e-9 {
		t.Fatalf("expected max corner at top right, got (%v,%v)", sx, sy)
	}

	x, y := p.FromScreen(p.ToScreen(3.25, 1.5))
	if math.Abs(x-3.25) > 1e-9 || math.Abs(y-1.5) > 1e-9 {
		t.Fatalf("expected domain round trip, got (%v,%v)", x, y)
	}
}

func TestProjectionDegenerateBounds(t *testing.T) {
	p := NewProjection(dataset.Bounds{MinX: 5, MaxX: 5, MinY: 5, MaxY: 5}, 100, 100, 10)
	sx, sy := p.ToScreen(5, 5)
	if math.IsNaN(sx) || math.IsNaN(sy) {
		t.Fatalf("expected finite projection for degenerate bounds, got (%v,%v)", sx, sy)
	}
	if math.Abs(sx-50) > 1e-9 || math.Abs(sy-50) > 1e-9 {
		t.Fatalf("expected single point centered, got (%v,%v)", sx, sy)
	}
}

func TestBrushResolvesOnBasePlane(t *testing.T) {
	var d Dirty
	c := NewController(800, 600, &d)
	c.ZoomBy(2, 0, 0)
	c.PanBy(100, 50)

	c.BeginBrush(100, 50) // base (0, 0)
	c.MoveBrush(300, 250) // base (100, 100)
	rect, ok := c.EndBrush()
	if !ok {
		t.Fatalf("expected an active brush")
	}
	if math.Abs(rect.X.Lo) > 1e-9 || math.Abs(rect.Y.Lo) > 1e-9 ||
		math.Abs(rect.X.Hi-100) > 1e-9 || math.Abs(rect.Y.Hi-100) > 1e-9 {
		t.Fatalf("unexpected base-plane rect: %+v", rect)
	}

	if _, ok := c.EndBrush(); ok {
		t.Fatalf("expected brush to be consumed")
	}
}
