// Package legend derives display-ready category legends: visibility,
// overflow bucketing into Other, z-order, and stable color/shape slot
// assignment with recycling.
package legend

import "sort"

// Reserved synthetic values. They map to fixed sentinel slots and never
// consume or free regular slots.
const (
	OtherValue = "Other"
	NAValue    = "N/A"
)

// Sentinel slots for synthetic and slotless legend entries.
const (
	SlotOther = -1
	SlotNA    = -2
	SlotNone  = -3
)

// SlotAllocator assigns small non-negative integers to visible category
// values and recycles them when values are hidden or demoted to Other.
// Slots address the default palette, so keeping assignments stable across
// legend recomputes keeps colors from churning.
type SlotAllocator struct {
	assigned map[string]int
	free     []int // ascending
	next     int
}

// NewSlotAllocator returns an empty allocator.
func NewSlotAllocator() *SlotAllocator {
	return &SlotAllocator{assigned: make(map[string]int)}
}

// Get returns the slot for value, allocating the lowest available slot if
// the value has none. Reserved values receive their sentinels.
func (a *SlotAllocator) Get(value string) int {
	switch value {
	case OtherValue:
		return SlotOther
	case NAValue:
		return SlotNA
	}
	if s, ok := a.assigned[value]; ok {
		return s
	}
	var s int
	if len(a.free) > 0 {
		s = a.free[0]
		a.free = a.free[1:]
	} else {
		s = a.next
		a.next++
	}
	a.assigned[value] = s
	return s
}

// Free returns value's slot to the free-list in sorted position, so the
// lowest slot is always reissued first.
func (a *SlotAllocator) Free(value string) {
	if value == OtherValue || value == NAValue {
		return
	}
	s, ok := a.assigned[value]
	if !ok {
		return
	}
	delete(a.assigned, value)
	i := sort.SearchInts(a.free, s)
	a.free = append(a.free, 0)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = s
}

// Has reports whether value currently holds a slot.
func (a *SlotAllocator) Has(value string) bool {
	_, ok := a.assigned[value]
	return ok
}

// Assigned returns the values currently holding slots, sorted by slot.
func (a *SlotAllocator) Assigned() []string {
	values := make([]string, 0, len(a.assigned))
	for v := range a.assigned {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		return a.assigned[values[i]] < a.assigned[values[j]]
	})
	return values
}

// Reassign atomically rebuilds all assignments: the given values, in
// display order, receive slots 0..N-1. Slots in use before the call that
// are >= N become the new free-list; lower slots are already reassigned.
// This is the only operation that reorders existing assignments.
func (a *SlotAllocator) Reassign(ordered []string) {
	known := make([]int, 0, len(a.assigned)+len(a.free))
	for _, s := range a.assigned {
		known = append(known, s)
	}
	known = append(known, a.free...)

	a.assigned = make(map[string]int, len(ordered))
	n := 0
	for _, v := range ordered {
		if v == OtherValue || v == NAValue {
			continue
		}
		if _, dup := a.assigned[v]; dup {
			continue
		}
		a.assigned[v] = n
		n++
	}

	a.free = a.free[:0]
	seen := make(map[int]bool, len(known))
	for _, s := range known {
		if s >= n && !seen[s] {
			a.free = append(a.free, s)
			seen[s] = true
		}
	}
	sort.Ints(a.free)
	if a.next < n {
		a.next = n
	}
}

// Reset discards all assignments and the free-list.
func (a *SlotAllocator) Reset() {
	a.assigned = make(map[string]int)
	a.free = a.free[:0]
	a.next = 0
}
