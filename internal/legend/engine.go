package legend

import (
	"sort"
	"strings"

	"github.com/scatterview/server/pkg/colormap"
)

// SortMode orders legend candidates.
type SortMode string

const (
	SortSizeDesc      SortMode = "size-desc"
	SortSizeAsc       SortMode = "size-asc"
	SortAlphaAsc      SortMode = "alpha-asc"
	SortAlphaDesc     SortMode = "alpha-desc"
	SortManual        SortMode = "manual"
	SortManualReverse SortMode = "manual-reverse"
)

// SortModes lists the accepted sort modes.
var SortModes = []SortMode{
	SortSizeDesc, SortSizeAsc, SortAlphaAsc, SortAlphaDesc, SortManual, SortManualReverse,
}

// ValidSortMode reports whether m names a known sort mode.
func ValidSortMode(m SortMode) bool {
	for _, v := range SortModes {
		if v == m {
			return true
		}
	}
	return false
}

// DefaultMaxVisible is the visible-row limit used when none is configured.
const DefaultMaxVisible = 10

// Override carries persisted per-value display settings.
type Override struct {
	ZOrder *int   `json:"z_order,omitempty"`
	Color  string `json:"color,omitempty"`
	Shape  string `json:"shape,omitempty"`
}

// Item is one display-ready legend row. Synthetic rows (Other, N/A) carry
// sentinel slots and are never counted against the visible limit.
type Item struct {
	Value              string `json:"value"`
	Color              string `json:"color"`
	Shape              string `json:"shape"`
	ZOrder             int    `json:"z_order"`
	Slot               int    `json:"slot"`
	Visible            bool   `json:"visible"`
	ExtractedFromOther bool   `json:"extracted_from_other,omitempty"`
	Count              int    `json:"count"`
	Synthetic          bool   `json:"synthetic,omitempty"`
}

// OtherEntry is one overflow value aggregated into the Other bucket.
type OtherEntry struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Snapshot is the pure output of one recompute pass: the ordered item
// list, the Other bucket, and the mappings consumed by style resolution
// and rendering.
type Snapshot struct {
	Category string       `json:"category"`
	Items    []Item       `json:"items"`
	Other    []OtherEntry `json:"other,omitempty"`
	Distinct int          `json:"distinct"`

	Ranks    map[string]int    `json:"-"`
	Colors   map[string]string `json:"-"`
	Shapes   map[string]string `json:"-"`
	Hidden   map[string]bool   `json:"-"`
	OtherSet map[string]bool   `json:"-"`
}

// DisplayedValues returns the non-synthetic item values in display order.
func (s *Snapshot) DisplayedValues() []string {
	values := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		if !it.Synthetic {
			values = append(values, it.Value)
		}
	}
	return values
}

// AllValues returns every distinct value of the pass, displayed and
// bucketed, in display order then bucket order.
func (s *Snapshot) AllValues() []string {
	values := s.DisplayedValues()
	for _, oe := range s.Other {
		values = append(values, oe.Value)
	}
	return values
}

type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingExtract
	pendingMerge
)

// pendingOp is the single-shot extract/merge state: Idle, PendingExtract,
// or PendingMerge. It is consumed by exactly the next recompute pass and
// cleared unconditionally afterwards.
type pendingOp struct {
	kind  pendingKind
	value string
}

// Engine maintains one category's legend state across recomputes: sort
// mode, visible limit, hidden values, persisted overrides, extract/merge
// bookkeeping, and the slot allocator.
type Engine struct {
	category    string
	slots       *SlotAllocator
	sortMode    SortMode
	maxVisible  int
	extra       int
	hidden      map[string]bool
	overrides   map[string]Override
	extracted   map[string]bool
	prevVisible []string
	pending     pendingOp
	reassign    bool
	last        *Snapshot
}

// NewEngine returns a legend engine for one category. A maxVisible of 0
// or less selects DefaultMaxVisible.
func NewEngine(category string, maxVisible int) *Engine {
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisible
	}
	return &Engine{
		category:   category,
		slots:      NewSlotAllocator(),
		sortMode:   SortSizeDesc,
		maxVisible: maxVisible,
		hidden:     make(map[string]bool),
		overrides:  make(map[string]Override),
		extracted:  make(map[string]bool),
	}
}

// Category returns the category this engine serves.
func (e *Engine) Category() string { return e.category }

// SortMode returns the active sort mode.
func (e *Engine) SortMode() SortMode { return e.sortMode }

// MaxVisible returns the configured visible-row limit.
func (e *Engine) MaxVisible() int { return e.maxVisible }

// EffectiveLimit returns the limit after extract/merge adjustments.
func (e *Engine) EffectiveLimit() int {
	limit := e.maxVisible + e.extra
	if limit < 0 {
		limit = 0
	}
	return limit
}

// Last returns the snapshot of the most recent recompute, or nil.
func (e *Engine) Last() *Snapshot { return e.last }

// SetSortMode changes the ordering and schedules a bulk slot reassignment
// so colors follow the new display order.
func (e *Engine) SetSortMode(m SortMode) {
	if !ValidSortMode(m) || m == e.sortMode {
		return
	}
	e.sortMode = m
	e.reassign = true
}

// SetMaxVisible changes the visible-row limit (floor 1) and discards any
// extract/merge limit adjustments.
func (e *Engine) SetMaxVisible(n int) {
	if n < 1 {
		n = 1
	}
	e.maxVisible = n
	e.extra = 0
}

// Hide marks a value's points as hidden. The value keeps its legend row.
func (e *Engine) Hide(value string) {
	e.hidden[value] = true
}

// Show clears a value's hidden state.
func (e *Engine) Show(value string) {
	delete(e.hidden, value)
}

// SetHidden replaces the hidden set wholesale.
func (e *Engine) SetHidden(values []string) {
	e.hidden = make(map[string]bool, len(values))
	for _, v := range values {
		e.hidden[v] = true
	}
}

// ClearHidden unhides every value.
func (e *Engine) ClearHidden() {
	e.hidden = make(map[string]bool)
}

// HiddenValues returns the hidden set in sorted order.
func (e *Engine) HiddenValues() []string {
	values := make([]string, 0, len(e.hidden))
	for v := range e.hidden {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Extract schedules a value to be pulled out of the Other bucket on the
// next recompute, raising the effective limit by one. Single-shot: a
// second Extract or Merge before the recompute replaces the first.
func (e *Engine) Extract(value string) {
	e.pending = pendingOp{kind: pendingExtract, value: value}
}

// Merge schedules a value to be pushed into the Other bucket on the next
// recompute, lowering the effective limit by one. Single-shot like Extract.
func (e *Engine) Merge(value string) {
	e.pending = pendingOp{kind: pendingMerge, value: value}
}

// SetColor persists a color override for a value.
func (e *Engine) SetColor(value, hexColor string) {
	ov := e.overrides[value]
	ov.Color = hexColor
	e.overrides[value] = ov
}

// SetShape persists a shape override for a value.
func (e *Engine) SetShape(value, shape string) {
	ov := e.overrides[value]
	ov.Shape = shape
	e.overrides[value] = ov
}

// SetZOrder persists an explicit z-order for a value.
func (e *Engine) SetZOrder(value string, z int) {
	ov := e.overrides[value]
	ov.ZOrder = &z
	e.overrides[value] = ov
}

// Reorder moves a displayed value to newRank and persists explicit
// z-orders for every displayed value, switching to manual ordering.
func (e *Engine) Reorder(value string, newRank int) {
	if e.last == nil {
		return
	}
	display := e.last.DisplayedValues()
	from := -1
	for i, v := range display {
		if v == value {
			from = i
			break
		}
	}
	if from < 0 {
		return
	}
	if newRank < 0 {
		newRank = 0
	}
	if newRank >= len(display) {
		newRank = len(display) - 1
	}
	display = append(display[:from], display[from+1:]...)
	display = append(display[:newRank], append([]string{value}, display[newRank:]...)...)
	for i, v := range display {
		e.SetZOrder(v, i)
	}
	e.sortMode = SortManual
}

// Overrides returns the persisted per-value settings.
func (e *Engine) Overrides() map[string]Override {
	out := make(map[string]Override, len(e.overrides))
	for v, ov := range e.overrides {
		out[v] = ov
	}
	return out
}

// SetOverrides replaces the persisted per-value settings (used when
// loading stored legend settings).
func (e *Engine) SetOverrides(overrides map[string]Override) {
	e.overrides = make(map[string]Override, len(overrides))
	for v, ov := range overrides {
		e.overrides[v] = ov
	}
}

// Reset discards hidden values, overrides, extract state, slot
// assignments, and ordering, returning the engine to its defaults.
func (e *Engine) Reset() {
	e.slots.Reset()
	e.sortMode = SortSizeDesc
	e.extra = 0
	e.hidden = make(map[string]bool)
	e.overrides = make(map[string]Override)
	e.extracted = make(map[string]bool)
	e.prevVisible = nil
	e.pending = pendingOp{}
	e.reassign = false
	e.last = nil
}

// Recompute runs one full legend pass over the flattened value
// occurrences of the category. Empty or whitespace occurrences tally into
// the synthetic N/A bucket. When the category does not exist in the data,
// the result is an empty legend.
func (e *Engine) Recompute(occurrences []string, exists bool) *Snapshot {
	pending := e.pending
	e.pending = pendingOp{}

	if !exists {
		e.last = &Snapshot{
			Category: e.category,
			Ranks:    map[string]int{},
			Colors:   map[string]string{},
			Shapes:   map[string]string{},
			Hidden:   map[string]bool{},
			OtherSet: map[string]bool{},
		}
		return e.last
	}

	// 1. Tally frequencies; null-ish occurrences feed the N/A bucket.
	counts := make(map[string]int)
	naCount := 0
	for _, v := range occurrences {
		if strings.TrimSpace(v) == "" || v == NAValue {
			naCount++
			continue
		}
		counts[v]++
	}

	// 2. Order candidates by sort mode.
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	e.sortValues(values, counts)

	// 3. Keep-visible rule under the effective limit. A pending extract
	// is force-included and raises the limit for this pass; a pending
	// merge is force-excluded and lowers it.
	limit := e.maxVisible + e.extra
	switch pending.kind {
	case pendingExtract:
		limit++
	case pendingMerge:
		limit--
	}
	if limit < 0 {
		limit = 0
	}

	excluded := ""
	if pending.kind == pendingMerge {
		excluded = pending.value
	}
	chosen := make(map[string]bool, limit)
	if pending.kind == pendingExtract {
		if _, ok := counts[pending.value]; ok {
			chosen[pending.value] = true
		}
	}
	prev := make(map[string]bool, len(e.prevVisible))
	for _, v := range e.prevVisible {
		prev[v] = true
	}
	for _, v := range values {
		if len(chosen) >= limit {
			break
		}
		if chosen[v] || v == excluded || !prev[v] {
			continue
		}
		chosen[v] = true
	}
	for _, v := range values {
		if len(chosen) >= limit {
			break
		}
		if chosen[v] || v == excluded {
			continue
		}
		chosen[v] = true
	}

	// 4. Bucket the overflow into Other.
	display := make([]string, 0, len(chosen))
	var other []OtherEntry
	otherSet := make(map[string]bool)
	for _, v := range values {
		if chosen[v] {
			display = append(display, v)
		} else {
			other = append(other, OtherEntry{Value: v, Count: counts[v]})
			otherSet[v] = true
		}
	}

	// Consume the pending operation before assembly so the extract flag
	// shows on this pass. The limit adjustment persists until the
	// countervailing operation; the value bookkeeping is single-shot.
	switch pending.kind {
	case pendingExtract:
		e.extra++
		e.extracted[pending.value] = true
	case pendingMerge:
		e.extra--
		delete(e.extracted, pending.value)
	}

	// Slot upkeep: a sort-mode change renumbers slots in display order;
	// otherwise bucketed, hidden, and vanished values release theirs.
	if e.reassign {
		unhidden := make([]string, 0, len(display))
		for _, v := range display {
			if !e.hidden[v] {
				unhidden = append(unhidden, v)
			}
		}
		e.slots.Reassign(unhidden)
		e.reassign = false
	} else {
		for _, v := range e.slots.Assigned() {
			if !chosen[v] || e.hidden[v] {
				e.slots.Free(v)
			}
		}
	}

	// 5 + 6. Assemble items in display order with slots, colors, shapes,
	// and z-order.
	items := make([]Item, 0, len(display)+2)
	ranks := make(map[string]int, len(display)+2)
	colors := make(map[string]string, len(display)+2)
	shapes := make(map[string]string, len(display)+2)

	for i, v := range display {
		ov := e.overrides[v]
		slot := SlotNone
		if !e.hidden[v] {
			slot = e.slots.Get(v)
		}
		color := ov.Color
		if color == "" {
			if slot >= 0 {
				color = colormap.Categorical.HexAtIndex(slot)
			} else {
				color = colormap.Hex(colormap.Neutral)
			}
		}
		shape := ov.Shape
		if shape == "" {
			if slot >= 0 {
				shape = string(colormap.ShapeAtIndex(slot))
			} else {
				shape = string(colormap.ShapeCircle)
			}
		}
		// Rank in display order unless an explicit order is persisted.
		z := i
		if ov.ZOrder != nil {
			z = *ov.ZOrder
		}
		items = append(items, Item{
			Value:              v,
			Color:              color,
			Shape:              shape,
			ZOrder:             z,
			Slot:               slot,
			Visible:            !e.hidden[v],
			ExtractedFromOther: e.extracted[v],
			Count:              counts[v],
		})
		ranks[v] = i
		colors[v] = color
		shapes[v] = shape
	}

	rank := len(display)
	if naCount > 0 {
		color := e.overrides[NAValue].Color
		if color == "" {
			color = colormap.Hex(colormap.NoValue)
		}
		items = append(items, Item{
			Value:     NAValue,
			Color:     color,
			Shape:     string(colormap.ShapeCircle),
			ZOrder:    rank,
			Slot:      SlotNA,
			Visible:   !e.hidden[NAValue],
			Count:     naCount,
			Synthetic: true,
		})
		ranks[NAValue] = rank
		colors[NAValue] = color
		shapes[NAValue] = string(colormap.ShapeCircle)
		rank++
	}
	if len(other) > 0 {
		sum := 0
		for _, oe := range other {
			sum += oe.Count
		}
		color := colormap.Hex(colormap.Neutral)
		items = append(items, Item{
			Value:     OtherValue,
			Color:     color,
			Shape:     string(colormap.ShapeCircle),
			ZOrder:    rank,
			Slot:      SlotOther,
			Visible:   !e.hidden[OtherValue],
			Count:     sum,
			Synthetic: true,
		})
		ranks[OtherValue] = rank
		colors[OtherValue] = color
		shapes[OtherValue] = string(colormap.ShapeCircle)
	}

	e.prevVisible = append([]string(nil), display...)

	hidden := make(map[string]bool, len(e.hidden))
	for v := range e.hidden {
		hidden[v] = true
	}
	e.last = &Snapshot{
		Category: e.category,
		Items:    items,
		Other:    other,
		Distinct: len(counts),
		Ranks:    ranks,
		Colors:   colors,
		Shapes:   shapes,
		Hidden:   hidden,
		OtherSet: otherSet,
	}
	return e.last
}

func (e *Engine) sortValues(values []string, counts map[string]int) {
	zKey := func(v string) int {
		if ov, ok := e.overrides[v]; ok && ov.ZOrder != nil {
			return *ov.ZOrder
		}
		return 1 << 30
	}
	var less func(a, b string) bool
	switch e.sortMode {
	case SortSizeAsc:
		less = func(a, b string) bool {
			if counts[a] != counts[b] {
				return counts[a] < counts[b]
			}
			return a < b
		}
	case SortAlphaAsc:
		less = func(a, b string) bool { return a < b }
	case SortAlphaDesc:
		less = func(a, b string) bool { return a > b }
	case SortManual:
		less = func(a, b string) bool {
			if za, zb := zKey(a), zKey(b); za != zb {
				return za < zb
			}
			if counts[a] != counts[b] {
				return counts[a] > counts[b]
			}
			return a < b
		}
	case SortManualReverse:
		less = func(a, b string) bool {
			if za, zb := zKey(a), zKey(b); za != zb {
				return za > zb
			}
			if counts[a] != counts[b] {
				return counts[a] < counts[b]
			}
			return a > b
		}
	default: // SortSizeDesc
		less = func(a, b string) bool {
			if counts[a] != counts[b] {
				return counts[a] > counts[b]
			}
			return a < b
		}
	}
	sort.SliceStable(values, func(i, j int) bool { return less(values[i], values[j]) })
}
