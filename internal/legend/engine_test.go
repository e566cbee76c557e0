package legend

import (
	"reflect"
	"sort"
	"testing"
)

// expand flattens a frequency table into value occurrences, largest value
// names last so tally order never leaks into assertions.
func expand(freqs map[string]int) []string {
	keys := make([]string, 0, len(freqs))
	for v := range freqs {
		keys = append(keys, v)
	}
	sort.Strings(keys)
	var out []string
	for _, v := range keys {
		for i := 0; i < freqs[v]; i++ {
			out = append(out, v)
		}
	}
	return out
}

func displayedValues(s *Snapshot) []string {
	return s.DisplayedValues()
}

func itemSet(s *Snapshot) map[string]bool {
	set := make(map[string]bool)
	for _, it := range s.Items {
		set[it.Value] = true
	}
	for _, oe := range s.Other {
		set["other:"+oe.Value] = true
	}
	return set
}

func TestSizeDescWithOverflow(t *testing.T) {
	e := NewEngine("celltype", 3)
	snap := e.Recompute(expand(map[string]int{"A": 50, "B": 30, "C": 10, "D": 5, "E": 5}), true)

	if got := displayedValues(snap); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("expected visible [A B C], got %v", got)
	}
	for i, v := range []string{"A", "B", "C"} {
		if snap.Items[i].Value != v || snap.Items[i].ZOrder != i {
			t.Fatalf("expected %s with z-order %d, got %s/%d", v, i, snap.Items[i].Value, snap.Items[i].ZOrder)
		}
	}
	want := []OtherEntry{{Value: "D", Count: 5}, {Value: "E", Count: 5}}
	if !reflect.DeepEqual(snap.Other, want) {
		t.Fatalf("expected Other %v, got %v", want, snap.Other)
	}

	// The synthetic Other row trails the list with its sentinel slot.
	last := snap.Items[len(snap.Items)-1]
	if last.Value != OtherValue || !last.Synthetic || last.Slot != SlotOther || last.Count != 10 {
		t.Fatalf("unexpected Other row: %+v", last)
	}
}

func TestVisibleCountInvariants(t *testing.T) {
	freqs := map[string]int{"a": 9, "b": 8, "c": 7, "d": 6, "e": 5, "f": 4, "g": 3, "h": 2}
	for _, maxVisible := range []int{1, 3, 5, 8, 20} {
		e := NewEngine("celltype", maxVisible)
		snap := e.Recompute(expand(freqs), true)

		displayed := len(displayedValues(snap))
		if displayed > maxVisible {
			t.Errorf("maxVisible=%d: %d displayed rows", maxVisible, displayed)
		}
		if displayed+len(snap.Other) != snap.Distinct {
			t.Errorf("maxVisible=%d: displayed %d + other %d != distinct %d",
				maxVisible, displayed, len(snap.Other), snap.Distinct)
		}
	}
}

func TestSlotUniquenessAcrossRecomputes(t *testing.T) {
	e := NewEngine("celltype", 4)
	freqs := map[string]int{"a": 9, "b": 8, "c": 7, "d": 6, "e": 5, "f": 4}

	for pass := 0; pass < 3; pass++ {
		snap := e.Recompute(expand(freqs), true)
		seen := make(map[int]string)
		for _, it := range snap.Items {
			if it.Synthetic || !it.Visible || it.Slot < 0 {
				continue
			}
			if prev, dup := seen[it.Slot]; dup {
				t.Fatalf("pass %d: slot %d held by %q and %q", pass, it.Slot, prev, it.Value)
			}
			seen[it.Slot] = it.Value
		}
		// Perturb frequencies so the keep-visible rule does real work.
		freqs["f"] += 10
	}
}

func TestExtractMergeInverse(t *testing.T) {
	e := NewEngine("celltype", 3)
	freqs := map[string]int{"A": 50, "B": 30, "C": 10, "D": 5, "E": 5}
	before := e.Recompute(expand(freqs), true)

	e.Extract("D")
	mid := e.Recompute(expand(freqs), true)
	if got := displayedValues(mid); !reflect.DeepEqual(got, []string{"A", "B", "C", "D"}) {
		t.Fatalf("expected D extracted into [A B C D], got %v", got)
	}
	var dItem *Item
	for i := range mid.Items {
		if mid.Items[i].Value == "D" {
			dItem = &mid.Items[i]
		}
	}
	if dItem == nil || !dItem.ExtractedFromOther {
		t.Fatalf("expected D flagged as extracted, got %+v", dItem)
	}
	if !reflect.DeepEqual(mid.Other, []OtherEntry{{Value: "E", Count: 5}}) {
		t.Fatalf("expected only E bucketed, got %v", mid.Other)
	}

	e.Merge("D")
	after := e.Recompute(expand(freqs), true)
	if !reflect.DeepEqual(itemSet(after), itemSet(before)) {
		t.Fatalf("extract then merge did not restore the legend set:\nbefore %v\nafter  %v",
			itemSet(before), itemSet(after))
	}
}

func TestPendingIsSingleShot(t *testing.T) {
	e := NewEngine("celltype", 3)
	freqs := map[string]int{"A": 50, "B": 30, "C": 10, "D": 5, "E": 4}

	e.Recompute(expand(freqs), true)
	e.Extract("D")
	first := e.Recompute(expand(freqs), true)
	if got := len(displayedValues(first)); got != 4 {
		t.Fatalf("expected 4 displayed after extract, got %d", got)
	}

	// The pending value was consumed; another recompute sees none and the
	// raised limit simply persists.
	second := e.Recompute(expand(freqs), true)
	if got := displayedValues(second); !reflect.DeepEqual(got, displayedValues(first)) {
		t.Fatalf("expected stable legend after consuming pending op, got %v", got)
	}
}

func TestKeepVisibleSurvivesFrequencyShift(t *testing.T) {
	e := NewEngine("celltype", 2)
	snap := e.Recompute(expand(map[string]int{"A": 50, "B": 30, "C": 10}), true)
	if got := displayedValues(snap); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("expected [A B], got %v", got)
	}

	// C overtakes B, but previously visible values are retained.
	snap = e.Recompute(expand(map[string]int{"A": 50, "B": 30, "C": 40}), true)
	if got := displayedValues(snap); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("expected keep-visible to retain [A B], got %v", got)
	}
}

func TestSortModes(t *testing.T) {
	freqs := map[string]int{"mite": 5, "ant": 20, "bee": 10}

	tests := []struct {
		mode SortMode
		want []string
	}{
		{SortSizeDesc, []string{"ant", "bee", "mite"}},
		{SortSizeAsc, []string{"mite", "bee", "ant"}},
		{SortAlphaAsc, []string{"ant", "bee", "mite"}},
		{SortAlphaDesc, []string{"mite", "bee", "ant"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			e := NewEngine("species", 10)
			e.SetSortMode(tt.mode)
			snap := e.Recompute(expand(freqs), true)
			if got := displayedValues(snap); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestManualOrderFromReorder(t *testing.T) {
	e := NewEngine("species", 10)
	freqs := map[string]int{"ant": 20, "bee": 10, "mite": 5}
	e.Recompute(expand(freqs), true)

	e.Reorder("mite", 0)
	if e.SortMode() != SortManual {
		t.Fatalf("expected reorder to switch to manual mode, got %s", e.SortMode())
	}
	snap := e.Recompute(expand(freqs), true)
	if got := displayedValues(snap); !reflect.DeepEqual(got, []string{"mite", "ant", "bee"}) {
		t.Fatalf("expected [mite ant bee], got %v", got)
	}
	// Persisted z-orders survive further recomputes as-is.
	snap = e.Recompute(expand(freqs), true)
	for i, it := range snap.Items {
		if it.ZOrder != i {
			t.Fatalf("expected persisted z-order %d for %s, got %d", i, it.Value, it.ZOrder)
		}
	}

	e.SetSortMode(SortManualReverse)
	snap = e.Recompute(expand(freqs), true)
	if got := displayedValues(snap); !reflect.DeepEqual(got, []string{"bee", "ant", "mite"}) {
		t.Fatalf("expected [bee ant mite], got %v", got)
	}
}

func TestMissingCategoryYieldsEmptyLegend(t *testing.T) {
	e := NewEngine("nope", 5)
	snap := e.Recompute(nil, false)
	if len(snap.Items) != 0 || len(snap.Other) != 0 || snap.Distinct != 0 {
		t.Fatalf("expected empty legend for missing category, got %+v", snap)
	}
}

func TestNullishOccurrencesFormNABucket(t *testing.T) {
	e := NewEngine("celltype", 5)
	occ := []string{"A", "A", "", "  ", "N/A", "B"}
	snap := e.Recompute(occ, true)

	if snap.Distinct != 2 {
		t.Fatalf("expected 2 distinct real values, got %d", snap.Distinct)
	}
	var na *Item
	for i := range snap.Items {
		if snap.Items[i].Value == NAValue {
			na = &snap.Items[i]
		}
	}
	if na == nil {
		t.Fatalf("expected synthetic N/A row")
	}
	if !na.Synthetic || na.Slot != SlotNA || na.Count != 3 {
		t.Fatalf("unexpected N/A row: %+v", na)
	}
}

func TestHideKeepsRowAndFreesSlot(t *testing.T) {
	e := NewEngine("celltype", 5)
	freqs := map[string]int{"A": 3, "B": 2, "C": 1}
	e.Recompute(expand(freqs), true)

	e.Hide("B")
	snap := e.Recompute(expand(freqs), true)

	var b *Item
	for i := range snap.Items {
		if snap.Items[i].Value == "B" {
			b = &snap.Items[i]
		}
	}
	if b == nil {
		t.Fatalf("expected hidden value to keep its legend row")
	}
	if b.Visible || b.Slot != SlotNone {
		t.Fatalf("expected hidden row without a slot, got %+v", b)
	}
	if !snap.Hidden["B"] {
		t.Fatalf("expected hidden set to carry B")
	}

	// Unhide: the freed slot is the lowest available, so B gets it back.
	e.Show("B")
	snap = e.Recompute(expand(freqs), true)
	for _, it := range snap.Items {
		if it.Value == "B" && (!it.Visible || it.Slot != 1) {
			t.Fatalf("expected B back on slot 1, got %+v", it)
		}
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	e := NewEngine("celltype", 3)
	freqs := map[string]int{"A": 5, "B": 4, "C": 3, "D": 2}
	e.Recompute(expand(freqs), true)
	e.Hide("A")
	e.SetColor("B", "#123456")
	e.SetSortMode(SortAlphaDesc)
	e.Extract("D")
	e.Recompute(expand(freqs), true)

	e.Reset()
	snap := e.Recompute(expand(freqs), true)

	if got := displayedValues(snap); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("expected default size-desc legend, got %v", got)
	}
	for _, it := range snap.Items {
		if it.Value == "A" && !it.Visible {
			t.Fatalf("expected hidden set cleared by reset")
		}
		if it.Value == "B" && it.Color == "#123456" {
			t.Fatalf("expected color override cleared by reset")
		}
	}
	if e.EffectiveLimit() != 3 {
		t.Fatalf("expected extract adjustment cleared, got limit %d", e.EffectiveLimit())
	}
}
