// Package scatter orchestrates the interactive state of one dataset: the
// active category and its legend, selection and hover, isolation history,
// the view transform, style batches, and the spatial index.
//
// All operations serialize on one mutex, so a render or pick observes the
// legend mapping and selection exactly as of the last mutation. Derived
// artifacts refresh lazily: mutations mark dirty flags and the next render
// or query consumes them, collapsing bursts of changes into single
// rebuilds.
package scatter

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/geo/r2"

	"github.com/scatterview/server/internal/cache"
	"github.com/scatterview/server/internal/dataset"
	"github.com/scatterview/server/internal/events"
	"github.com/scatterview/server/internal/legend"
	"github.com/scatterview/server/internal/render"
	"github.com/scatterview/server/internal/settings"
	"github.com/scatterview/server/internal/spatial"
	"github.com/scatterview/server/internal/style"
	"github.com/scatterview/server/internal/view"
)

// pickSlackPx widens the pick radius beyond the drawn point radius, in
// screen pixels.
const pickSlackPx = 4.0

// Options supplies the engine's tuning and shared services. Zero-value
// Style and Render select the package defaults; Cache, Store, and Bus may
// be nil.
type Options struct {
	Style  style.Config
	Render render.Config
	Cache  *cache.Manager
	Store  *settings.Store
	Bus    *events.Bus
}

// Engine owns one dataset's interactive plot state.
type Engine struct {
	mu sync.Mutex

	name       string
	generation uint64
	revision   uint64

	full    *dataset.Dataset
	ds      *dataset.Dataset
	history []*dataset.Dataset

	projection string
	category   string
	legends    map[string]*legend.Engine

	selection map[string]bool
	hover     string

	styleCfg  style.Config
	renderCfg render.Config
	resolver  *style.Resolver

	dirty    view.Dirty
	viewCtl  *view.Controller
	renderer *render.BatchRenderer
	proj     *view.Projection
	index    *spatial.Index

	caches *cache.Manager
	store  *settings.Store
	bus    *events.Bus
}

// New creates an engine for a dataset, which must have been built. A nil
// dataset starts the engine empty, awaiting ReplaceData.
func New(name string, ds *dataset.Dataset, opts Options) *Engine {
	if opts.Style == (style.Config{}) {
		opts.Style = style.DefaultConfig()
	}
	if opts.Render == (render.Config{}) {
		opts.Render = render.DefaultConfig()
	}
	if ds == nil {
		ds = &dataset.Dataset{}
		_ = ds.Build(context.Background(), 0)
	}
	e := &Engine{
		name:      name,
		full:      ds,
		ds:        ds,
		legends:   make(map[string]*legend.Engine),
		selection: make(map[string]bool),
		styleCfg:  opts.Style,
		renderCfg: opts.Render,
		caches:    opts.Cache,
		store:     opts.Store,
		bus:       opts.Bus,
	}
	e.renderer = render.NewBatchRenderer(opts.Render)
	e.viewCtl = view.NewController(float64(opts.Render.Width), float64(opts.Render.Height), &e.dirty)
	if len(ds.Projections) > 0 {
		e.projection = ds.Projections[0].Name
	}
	e.dirty.MarkData()
	return e
}

// Name returns the dataset id this engine serves.
func (e *Engine) Name() string { return e.name }

// Generation returns the data generation, bumped whenever the working
// point set changes.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Revision returns the mutation counter, bumped on every style-affecting
// change.
func (e *Engine) Revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

// NumPoints returns the size of the working point set.
func (e *Engine) NumPoints() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ds.NumPoints()
}

// TotalPoints returns the size of the full dataset, ignoring isolation.
func (e *Engine) TotalPoints() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.full.NumPoints()
}

// Categories returns the category names of the working dataset.
func (e *Engine) Categories() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ds.CategoryNames()
}

// ActiveCategory returns the selected category name, or "".
func (e *Engine) ActiveCategory() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.category
}

// Projections returns the projection names of the working dataset.
func (e *Engine) Projections() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ds.ProjectionNames()
}

// ActiveProjection returns the selected projection name, or "".
func (e *Engine) ActiveProjection() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projection
}

// SetProjection switches the active embedding. Positions reproject and the
// view resets; legend state and style groups carry over untouched.
func (e *Engine) SetProjection(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name == e.projection {
		return nil
	}
	if _, ok := e.ds.Projection(name); !ok {
		return fmt.Errorf("unknown projection %q", name)
	}
	e.projection = name
	e.dirty.MarkData()
	e.viewCtl.Reset()
	return nil
}

// ReplaceData swaps in a new dataset, which must have been validated and
// built. Interaction state resets wholesale; persisted legend settings
// reload lazily on the next category selection.
func (e *Engine) ReplaceData(ds *dataset.Dataset) {
	if ds == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.full = ds
	e.ds = ds
	e.history = nil
	e.legends = make(map[string]*legend.Engine)
	if _, ok := ds.Projection(e.projection); !ok {
		e.projection = ""
		if len(ds.Projections) > 0 {
			e.projection = ds.Projections[0].Name
		}
	}
	e.resetInteraction()
	e.ensureLegend(e.category)
	e.recomputeLegend()
	e.emit(events.Event{Type: events.TypeDataReplaced, Payload: events.DataReplacedPayload{Points: ds.NumPoints()}})
}

// Stats returns a snapshot of engine state for diagnostics.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshBatches()
	e.refreshIndex()
	stats := map[string]interface{}{
		"dataset":         e.name,
		"points_total":    e.full.NumPoints(),
		"points_working":  e.ds.NumPoints(),
		"visible_points":  e.renderer.VisibleCount(),
		"style_groups":    e.renderer.GroupCount(),
		"category":        e.category,
		"projection":      e.projection,
		"selection_size":  len(e.selection),
		"isolation_depth": len(e.history),
		"index_size":      e.index.Size(),
		"generation":      e.generation,
		"transform":       e.viewCtl.Transform(),
	}
	if snap := e.snapshotLocked(); snap != nil {
		stats["distinct_values"] = snap.Distinct
	}
	return stats
}

// touchStyle records a style-affecting mutation: new revision, resolver
// discard, dirty style and index.
func (e *Engine) touchStyle() {
	e.revision++
	e.resolver = nil
	e.dirty.MarkStyle()
}

// resetInteraction clears the transient interaction state after the
// working point set changes.
func (e *Engine) resetInteraction() {
	e.selection = make(map[string]bool)
	e.hover = ""
	e.generation++
	e.revision++
	e.resolver = nil
	e.dirty.MarkData()
	e.viewCtl.Reset()
}

// styleSignature keys the renderer's group cache and the frame cache.
func (e *Engine) styleSignature() string {
	return fmt.Sprintf("%s|%s|g%d|r%d", e.category, e.projection, e.generation, e.revision)
}

func (e *Engine) activeLegend() *legend.Engine {
	if e.category == "" {
		return nil
	}
	return e.legends[e.category]
}

func (e *Engine) snapshotLocked() *legend.Snapshot {
	if eng := e.activeLegend(); eng != nil {
		return eng.Last()
	}
	return nil
}

func (e *Engine) styleResolver() *style.Resolver {
	if e.resolver == nil {
		e.resolver = style.NewResolver(style.Inputs{
			Dataset:   e.ds,
			Category:  e.category,
			Legend:    e.snapshotLocked(),
			Selection: e.selection,
			Highlight: e.hover,
			Config:    e.styleCfg,
		})
	}
	return e.resolver
}

// refreshPositions reprojects the working point set when the data dirty
// flag is set. A missing or empty projection leaves the engine without a
// base plane; renders fall back to an empty frame and queries to empty
// results.
func (e *Engine) refreshPositions() {
	if !e.dirty.Data {
		return
	}
	e.dirty.Data = false
	e.proj = nil
	p, ok := e.ds.Projection(e.projection)
	b, okb := e.ds.Bounds(e.projection)
	if !ok || !okb || len(p.Points) == 0 {
		e.renderer.Invalidate()
		e.index = nil
		return
	}
	w, h := e.viewCtl.Size()
	proj := view.NewProjection(b, w, h, e.renderCfg.Margin)
	e.proj = &proj
	e.renderer.SetPositions(p.Points, e.proj)
}

// refreshBatches brings the style groups up to date with the current
// signature.
func (e *Engine) refreshBatches() {
	e.refreshPositions()
	e.dirty.Style = false
	if e.proj == nil {
		return
	}
	e.renderer.Rebuild(e.styleSignature(), e.styleResolver(), e.ds.NumPoints())
}

// refreshIndex rebuilds the quadtree over the visible points when flagged.
// Rebuild triggers coalesce: any number of mutations between queries cost
// one rebuild.
func (e *Engine) refreshIndex() {
	e.refreshPositions()
	if !e.dirty.Index {
		return
	}
	e.dirty.Index = false
	if e.proj == nil {
		e.index = nil
		return
	}
	res := e.styleResolver()
	entries := make([]spatial.Entry, 0, e.ds.NumPoints())
	for i := 0; i < e.ds.NumPoints(); i++ {
		if !res.Visible(i) {
			continue
		}
		x, y, ok := e.renderer.ScreenPosition(i)
		if !ok {
			continue
		}
		entries = append(entries, spatial.Entry{Row: i, Pos: r2.Point{X: x, Y: y}})
	}
	e.index = spatial.Build(entries)
}

func (e *Engine) emit(ev events.Event) {
	if e.bus == nil {
		return
	}
	ev.Dataset = e.name
	e.bus.Publish(ev)
}
