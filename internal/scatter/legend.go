package scatter

import (
	"errors"
	"fmt"
	"log"

	"github.com/scatterview/server/internal/events"
	"github.com/scatterview/server/internal/legend"
	"github.com/scatterview/server/internal/settings"
	"github.com/scatterview/server/pkg/colormap"
)

// ErrNoCategory is returned by legend operations when no category is
// active.
var ErrNoCategory = errors.New("no active category")

// SetCategory switches the active classification dimension. Legend state
// for previously visited categories is retained in memory, so switching
// back restores colors, ordering, and hidden values.
func (e *Engine) SetCategory(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name == e.category {
		return nil
	}
	if name != "" {
		if _, ok := e.ds.Category(name); !ok {
			return fmt.Errorf("unknown category %q", name)
		}
	}
	e.category = name
	e.ensureLegend(name)
	e.recomputeLegend()
	e.touchStyle()
	return nil
}

// Legend returns the current legend snapshot, or nil when no category is
// active.
func (e *Engine) Legend() *legend.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// SetSortMode changes the legend ordering. Slots reassign to follow the
// new display order, so colors change with it.
func (e *Engine) SetSortMode(mode string) (*legend.Snapshot, error) {
	m := legend.SortMode(mode)
	if !legend.ValidSortMode(m) {
		return nil, fmt.Errorf("unknown sort mode %q", mode)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	eng.SetSortMode(m)
	snap := e.finishLegend(eng)
	e.emitZOrder(snap)
	e.emitMapping(snap)
	return snap, nil
}

// SetMaxVisible changes the visible-row limit. Values beyond the limit
// aggregate into the Other bucket.
func (e *Engine) SetMaxVisible(n int) (*legend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	eng.SetMaxVisible(n)
	snap := e.finishLegend(eng)
	e.emitZOrder(snap)
	return snap, nil
}

// HideValue hides a value's points. The value keeps its legend row.
func (e *Engine) HideValue(value string) (*legend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	eng.Hide(value)
	snap := e.finishLegend(eng)
	e.emitVisibility(eng)
	return snap, nil
}

// ShowValue clears a value's hidden state.
func (e *Engine) ShowValue(value string) (*legend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	eng.Show(value)
	snap := e.finishLegend(eng)
	e.emitVisibility(eng)
	return snap, nil
}

// IsolateValue hides every other value of the category, showing only the
// given one. Calling it again for the same value restores full visibility.
func (e *Engine) IsolateValue(value string) (*legend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	last := eng.Last()
	if last == nil {
		return nil, ErrNoCategory
	}
	rest := make([]string, 0, len(last.Items)+len(last.Other))
	for _, v := range last.AllValues() {
		if v != value {
			rest = append(rest, v)
		}
	}
	if sameValues(eng.HiddenValues(), rest) {
		eng.ClearHidden()
	} else {
		eng.SetHidden(rest)
	}
	snap := e.finishLegend(eng)
	e.emitVisibility(eng)
	return snap, nil
}

// Extract pulls a value out of the Other bucket into its own legend row,
// raising the effective limit by one. Values not currently in Other are
// left alone.
func (e *Engine) Extract(value string) (*legend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	last := eng.Last()
	if last == nil {
		return nil, ErrNoCategory
	}
	if !last.OtherSet[value] {
		return last, nil
	}
	eng.Extract(value)
	snap := e.finishLegend(eng)
	e.emitZOrder(snap)
	e.emitMapping(snap)
	return snap, nil
}

// Merge pushes a displayed value back into the Other bucket, lowering the
// effective limit by one. Values not currently displayed are left alone.
func (e *Engine) Merge(value string) (*legend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	last := eng.Last()
	if last == nil {
		return nil, ErrNoCategory
	}
	if !containsValue(last.DisplayedValues(), value) {
		return last, nil
	}
	eng.Merge(value)
	snap := e.finishLegend(eng)
	e.emitZOrder(snap)
	e.emitMapping(snap)
	return snap, nil
}

// Reorder moves a displayed value to a new rank, switching the legend to
// manual ordering.
func (e *Engine) Reorder(value string, rank int) (*legend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	eng.Reorder(value, rank)
	snap := e.finishLegend(eng)
	e.emitZOrder(snap)
	return snap, nil
}

// SetColor overrides a value's color. The color must be a #rrggbb hex
// string.
func (e *Engine) SetColor(value, hexColor string) (*legend.Snapshot, error) {
	if _, err := colormap.ParseHex(hexColor); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	eng.SetColor(value, hexColor)
	snap := e.finishLegend(eng)
	e.emitMapping(snap)
	return snap, nil
}

// SetShape overrides a value's marker shape.
func (e *Engine) SetShape(value, shape string) (*legend.Snapshot, error) {
	if !colormap.ValidShape(colormap.Shape(shape)) {
		return nil, fmt.Errorf("unknown shape %q", shape)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	eng.SetShape(value, shape)
	snap := e.finishLegend(eng)
	e.emitMapping(snap)
	return snap, nil
}

// ResetSettings discards every customization of the active category and
// deletes its persisted settings. Colors and shapes declared by the
// dataset's category table come back as the defaults.
func (e *Engine) ResetSettings() (*legend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eng := e.activeLegend()
	if eng == nil {
		return nil, ErrNoCategory
	}
	eng.Reset()
	e.seedTableDefaults(e.category, eng)
	snap := e.recomputeLegend()
	e.touchStyle()
	if e.store != nil {
		if err := e.store.DeleteCategory(e.name, e.category); err != nil {
			log.Printf("settings delete failed for %s/%s: %v", e.name, e.category, err)
		}
	}
	e.emitVisibility(eng)
	e.emitZOrder(snap)
	e.emitMapping(snap)
	return snap, nil
}

// ensureLegend creates the legend engine for a category on first use,
// loading persisted settings and then seeding color and shape defaults
// from the dataset's category table.
func (e *Engine) ensureLegend(name string) {
	if name == "" {
		return
	}
	if _, ok := e.legends[name]; ok {
		return
	}
	eng := legend.NewEngine(name, 0)
	if e.store != nil {
		if c, ok, err := e.store.LoadCategory(e.name, name); err != nil {
			log.Printf("settings load failed for %s/%s: %v", e.name, name, err)
		} else if ok {
			settings.Apply(c, eng)
		}
	}
	e.seedTableDefaults(name, eng)
	e.legends[name] = eng
}

// seedTableDefaults copies the category table's declared colors and
// shapes into overrides, skipping values the user has already customized.
func (e *Engine) seedTableDefaults(name string, eng *legend.Engine) {
	table, ok := e.ds.Category(name)
	if !ok {
		return
	}
	overrides := eng.Overrides()
	for i, v := range table.Values {
		if v == nil {
			continue
		}
		ov := overrides[*v]
		if ov.Color == "" && i < len(table.Colors) && table.Colors[i] != "" {
			eng.SetColor(*v, table.Colors[i])
		}
		if ov.Shape == "" && i < len(table.Shapes) && table.Shapes[i] != "" {
			eng.SetShape(*v, table.Shapes[i])
		}
	}
}

// recomputeLegend reruns the active legend over the working point set.
func (e *Engine) recomputeLegend() *legend.Snapshot {
	eng := e.activeLegend()
	if eng == nil {
		return nil
	}
	occ, exists := e.occurrences(eng.Category())
	return eng.Recompute(occ, exists)
}

// finishLegend recomputes after a legend mutation, refreshes style state,
// and persists the captured settings.
func (e *Engine) finishLegend(eng *legend.Engine) *legend.Snapshot {
	occ, exists := e.occurrences(eng.Category())
	snap := eng.Recompute(occ, exists)
	e.touchStyle()
	e.persistLegend(eng)
	return snap
}

// occurrences flattens the working point set's values for a category into
// the occurrence list the legend counts. Unresolved points contribute one
// empty occurrence each, tallying into the N/A bucket.
func (e *Engine) occurrences(category string) ([]string, bool) {
	table, ok := e.ds.Category(category)
	if !ok {
		return nil, false
	}
	occ := make([]string, 0, e.ds.NumPoints())
	for i := 0; i < e.ds.NumPoints(); i++ {
		idxs := e.ds.ValuesForPoint(category, i)
		if len(idxs) == 0 {
			occ = append(occ, "")
			continue
		}
		for _, idx := range idxs {
			if v := table.ValueAt(idx); v != nil {
				occ = append(occ, *v)
			} else {
				occ = append(occ, "")
			}
		}
	}
	return occ, true
}

// persistLegend captures the legend's settings into the store. Failures
// are logged, not surfaced: the in-memory state is already correct.
func (e *Engine) persistLegend(eng *legend.Engine) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveCategory(e.name, eng.Category(), settings.Capture(eng)); err != nil {
		log.Printf("settings save failed for %s/%s: %v", e.name, eng.Category(), err)
	}
}

func (e *Engine) emitVisibility(eng *legend.Engine) {
	e.emit(events.Event{Type: events.TypeCategoryVisibility, Payload: events.VisibilityPayload{
		Category: eng.Category(),
		Hidden:   eng.HiddenValues(),
	}})
}

func (e *Engine) emitZOrder(snap *legend.Snapshot) {
	e.emit(events.Event{Type: events.TypeZOrder, Payload: events.ZOrderPayload{
		Category: snap.Category,
		Order:    snap.DisplayedValues(),
	}})
}

func (e *Engine) emitMapping(snap *legend.Snapshot) {
	e.emit(events.Event{Type: events.TypeColorShapeMapping, Payload: events.MappingPayload{
		Category: snap.Category,
		Colors:   snap.Colors,
		Shapes:   snap.Shapes,
	}})
}

func containsValue(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}
