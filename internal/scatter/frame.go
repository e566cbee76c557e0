package scatter

import (
	"fmt"
	"log"

	"github.com/scatterview/server/internal/bundle"
	"github.com/scatterview/server/internal/cache"
	"github.com/scatterview/server/internal/render"
	"github.com/scatterview/server/internal/settings"
	"github.com/scatterview/server/pkg/colormap"
)

// FrameOptions adjusts one frame request. Zero width or height keeps the
// current canvas size; a different size resizes the canvas and sticks for
// subsequent frames.
type FrameOptions struct {
	Width  int
	Height int
}

// RenderFrame renders the current plot state to a PNG. Repeated requests
// for an unchanged state are served from the frame cache; a dataset
// without a usable projection renders as an empty frame.
func (e *Engine) RenderFrame(opts FrameOptions) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.Width > 0 && opts.Height > 0 {
		if opts.Width > maxCanvasDim || opts.Height > maxCanvasDim {
			return nil, fmt.Errorf("invalid canvas size %dx%d", opts.Width, opts.Height)
		}
		w, h := e.renderer.Size()
		if opts.Width != w || opts.Height != h {
			e.viewCtl.Resize(float64(opts.Width), float64(opts.Height))
			e.renderer.Resize(opts.Width, opts.Height)
		}
	}

	e.refreshBatches()
	if e.proj == nil {
		e.dirty.Transform = false
		return e.renderer.EmptyFrame()
	}

	t := e.viewCtl.Transform()
	var key string
	if e.caches != nil {
		w, h := e.renderer.Size()
		key = cache.FrameKey(e.name, e.generation, w, h, t.Scale, t.TranslateX, t.TranslateY, e.renderer.Signature())
		if png, ok := e.caches.GetFrame(key); ok {
			e.dirty.Transform = false
			return png, nil
		}
	}

	png, err := e.renderer.Render(render.Frame{
		Transform: t,
		Legend:    e.snapshotLocked(),
		Labels:    e.centroidLabels(),
	})
	if err != nil {
		return nil, err
	}
	if e.caches != nil {
		if err := e.caches.SetFrame(key, png); err != nil {
			log.Printf("frame cache store failed for %s: %v", e.name, err)
		}
	}
	e.dirty.Transform = false
	return png, nil
}

// centroidLabels builds one label per displayed, visible value at the
// mean base-plane position of its points.
func (e *Engine) centroidLabels() []render.Label {
	if !e.renderCfg.ShowLabels {
		return nil
	}
	snap := e.snapshotLocked()
	if snap == nil {
		return nil
	}
	table, ok := e.ds.Category(e.category)
	if !ok {
		return nil
	}
	type accum struct {
		x, y float64
		n    int
	}
	centers := make(map[string]*accum)
	for _, it := range snap.Items {
		if !it.Synthetic && it.Visible {
			centers[it.Value] = &accum{}
		}
	}
	if len(centers) == 0 {
		return nil
	}

	res := e.styleResolver()
	for row := 0; row < e.ds.NumPoints(); row++ {
		if !res.Visible(row) {
			continue
		}
		for _, idx := range e.ds.ValuesForPoint(e.category, row) {
			v := table.ValueAt(idx)
			if v == nil {
				continue
			}
			acc, ok := centers[*v]
			if !ok {
				continue
			}
			x, y, ok := e.renderer.ScreenPosition(row)
			if !ok {
				continue
			}
			acc.x += x
			acc.y += y
			acc.n++
		}
	}

	labels := make([]render.Label, 0, len(centers))
	for _, it := range snap.Items {
		if it.Synthetic || !it.Visible {
			continue
		}
		acc := centers[it.Value]
		if acc == nil || acc.n == 0 {
			continue
		}
		c, err := colormap.ParseHex(it.Color)
		if err != nil {
			c = colormap.Neutral
		}
		labels = append(labels, render.Label{
			Text:  it.Value,
			X:     acc.x / float64(acc.n),
			Y:     acc.y / float64(acc.n),
			Color: c,
		})
	}
	return labels
}

// ExportBundle serializes the full dataset with its current legend
// settings into the portable container format. Settings captured in
// memory take precedence over the stored copy.
func (e *Engine) ExportBundle() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &settings.Settings{}
	if e.store != nil {
		stored, err := e.store.Load(e.name)
		if err != nil {
			log.Printf("settings load failed for %s: %v", e.name, err)
		} else if stored != nil {
			st = stored
		}
	}
	for name, eng := range e.legends {
		st.Set(name, settings.Capture(eng))
	}
	return bundle.Write(e.full, st)
}
