package scatter

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/scatterview/server/internal/events"
	"github.com/scatterview/server/internal/view"
)

// maxCanvasDim bounds resize requests.
const maxCanvasDim = 4096

// PickResult describes the point nearest a query coordinate. X and Y are
// canvas coordinates under the current transform.
type PickResult struct {
	ID     string              `json:"id"`
	Row    int                 `json:"row"`
	X      float64             `json:"x"`
	Y      float64             `json:"y"`
	Values map[string][]string `json:"values,omitempty"`
}

// Pick returns the nearest visible point within pick range of a canvas
// coordinate. Hidden points never match.
func (e *Engine) Pick(x, y float64) (*PickResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, ok := e.pickLocked(x, y)
	if !ok {
		return nil, false
	}
	return e.pickResult(row), true
}

// Hover picks at a canvas coordinate and highlights the hit; moving off
// all points clears the highlight. An event fires only when the hovered
// point actually changes.
func (e *Engine) Hover(x, y float64) (*PickResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, ok := e.pickLocked(x, y)
	id := ""
	if ok {
		id = e.ds.IDs[row]
	}
	if id != e.hover {
		e.hover = id
		e.touchHighlight()
		e.emit(events.Event{Type: events.TypeHover, Payload: events.HoverPayload{ID: id}})
	}
	if !ok {
		return nil, false
	}
	return e.pickResult(row), true
}

func (e *Engine) pickLocked(x, y float64) (int, bool) {
	e.refreshIndex()
	if e.index == nil {
		return 0, false
	}
	t := e.viewCtl.Transform()
	qx, qy := t.Invert(x, y)
	return e.index.Nearest(qx, qy, e.pickRadius(t.Scale))
}

// pickRadius converts the drawn point radius plus a slack margin into
// base-plane units. The renderer scales radii by scale^-exponent and the
// whole canvas by scale, so the slack divides by scale.
func (e *Engine) pickRadius(scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	r := e.styleCfg.PointSize / 2 * math.Pow(scale, -e.styleCfg.SizeExponent)
	return r + pickSlackPx/scale
}

func (e *Engine) pickResult(row int) *PickResult {
	res := &PickResult{ID: e.ds.IDs[row], Row: row}
	if bx, by, ok := e.renderer.ScreenPosition(row); ok {
		res.X, res.Y = e.viewCtl.Transform().Apply(bx, by)
	}
	values := make(map[string][]string)
	for _, name := range e.ds.CategoryNames() {
		table, _ := e.ds.Category(name)
		var vals []string
		for _, idx := range e.ds.ValuesForPoint(name, row) {
			if v := table.ValueAt(idx); v != nil {
				vals = append(vals, *v)
			}
		}
		if len(vals) > 0 {
			values[name] = vals
		}
	}
	if len(values) > 0 {
		res.Values = values
	}
	return res
}

// touchHighlight is touchStyle without the index rebuild: selection and
// hover change opacity, never visibility or position.
func (e *Engine) touchHighlight() {
	e.revision++
	e.resolver = nil
	e.dirty.Style = true
}

// SelectRect selects every visible point inside the canvas-space
// rectangle. Corners may be given in any order. An empty hit set clears
// the selection.
func (e *Engine) SelectRect(x0, y0, x1, y1 float64) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshIndex()
	e.viewCtl.BeginBrush(x0, y0)
	e.viewCtl.MoveBrush(x1, y1)
	rect, ok := e.viewCtl.EndBrush()
	if !ok {
		return nil
	}
	rows := e.index.QueryRect(rect)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, e.ds.IDs[row])
	}
	e.setSelectionLocked(ids)
	return e.selectionIDs()
}

// SetSelection replaces the selection with the given point ids. Unknown
// ids are dropped; the accepted set is returned.
func (e *Engine) SetSelection(ids []string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setSelectionLocked(ids)
	return e.selectionIDs()
}

// ClearSelection empties the selection.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.selection) == 0 {
		return
	}
	e.setSelectionLocked(nil)
}

// Selection returns the selected point ids in sorted order.
func (e *Engine) Selection() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectionIDs()
}

func (e *Engine) setSelectionLocked(ids []string) {
	sel := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := e.ds.IndexOf(id); ok {
			sel[id] = true
		}
	}
	e.selection = sel
	e.touchHighlight()
	e.emit(events.Event{Type: events.TypeSelection, Payload: events.SelectionPayload{IDs: e.selectionIDs()}})
}

func (e *Engine) selectionIDs() []string {
	ids := make([]string, 0, len(e.selection))
	for id := range e.selection {
		if _, ok := e.ds.IndexOf(id); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Isolate narrows the working point set to the current selection. The
// previous set is pushed onto the isolation history for UndoIsolation.
// An empty or fully stale selection leaves the engine untouched.
func (e *Engine) Isolate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.selectionIDs()
	if len(ids) == 0 {
		return nil
	}
	sub := e.ds.Subset(ids)
	if err := sub.Build(ctx, 0); err != nil {
		return fmt.Errorf("failed to build isolation subset: %w", err)
	}
	e.history = append(e.history, e.ds)
	e.ds = sub
	e.resetInteraction()
	e.recomputeLegend()
	e.emitIsolation()
	return nil
}

// UndoIsolation pops one level of the isolation history. It reports
// whether a level was undone.
func (e *Engine) UndoIsolation() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) == 0 {
		return false
	}
	e.ds = e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	e.resetInteraction()
	e.recomputeLegend()
	e.emitIsolation()
	return true
}

// IsolationDepth returns the number of nested isolations.
func (e *Engine) IsolationDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

func (e *Engine) emitIsolation() {
	e.emit(events.Event{Type: events.TypeIsolationMode, Payload: events.IsolationPayload{
		Active: len(e.history) > 0,
		Depth:  len(e.history),
	}})
}

// ViewPan shifts the view by a canvas-space delta.
func (e *Engine) ViewPan(dx, dy float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewCtl.PanBy(dx, dy)
}

// ViewZoom scales the view by factor about the canvas anchor (cx, cy).
func (e *Engine) ViewZoom(factor, cx, cy float64) error {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return fmt.Errorf("invalid zoom factor %v", factor)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewCtl.ZoomBy(factor, cx, cy)
	return nil
}

// ViewReset restores the identity view.
func (e *Engine) ViewReset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewCtl.Reset()
}

// ViewResize changes the canvas size, reprojecting every point.
func (e *Engine) ViewResize(width, height int) error {
	if width < 1 || height < 1 || width > maxCanvasDim || height > maxCanvasDim {
		return fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewCtl.Resize(float64(width), float64(height))
	e.renderer.Resize(width, height)
	return nil
}

// Transform returns the current view transform.
func (e *Engine) Transform() view.Transform {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewCtl.Transform()
}
