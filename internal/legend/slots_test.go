package legend

import (
	"reflect"
	"testing"
)

func TestSlotAllocatorLowestFirst(t *testing.T) {
	a := NewSlotAllocator()

	if got := a.Get("alpha"); got != 0 {
		t.Fatalf("expected first slot 0, got %d", got)
	}
	if got := a.Get("beta"); got != 1 {
		t.Fatalf("expected second slot 1, got %d", got)
	}
	if got := a.Get("alpha"); got != 0 {
		t.Fatalf("expected repeated Get to be stable, got %d", got)
	}
}

func TestSlotAllocatorFreeThenGetReusesSlot(t *testing.T) {
	a := NewSlotAllocator()
	a.Get("alpha")
	a.Get("beta")
	a.Get("gamma")

	a.Free("beta")
	if got := a.Get("delta"); got != 1 {
		t.Fatalf("expected freed slot 1 to be reissued, got %d", got)
	}

	// Free two, lowest comes back first.
	a.Free("alpha")
	a.Free("gamma")
	if got := a.Get("epsilon"); got != 0 {
		t.Fatalf("expected lowest free slot 0, got %d", got)
	}
	if got := a.Get("zeta"); got != 2 {
		t.Fatalf("expected next free slot 2, got %d", got)
	}
}

func TestSlotAllocatorReservedSentinels(t *testing.T) {
	a := NewSlotAllocator()

	if got := a.Get(OtherValue); got != SlotOther {
		t.Fatalf("expected Other sentinel %d, got %d", SlotOther, got)
	}
	if got := a.Get(NAValue); got != SlotNA {
		t.Fatalf("expected N/A sentinel %d, got %d", SlotNA, got)
	}
	// Sentinels never consume regular slots.
	if got := a.Get("alpha"); got != 0 {
		t.Fatalf("expected slot 0 after reserved gets, got %d", got)
	}
	// Freeing a reserved value is a no-op.
	a.Free(OtherValue)
	if got := a.Get("beta"); got != 1 {
		t.Fatalf("expected slot 1, got %d", got)
	}
}

func TestSlotAllocatorReassign(t *testing.T) {
	a := NewSlotAllocator()
	a.Get("a") // 0
	a.Get("b") // 1
	a.Get("c") // 2
	a.Get("d") // 3

	a.Reassign([]string{"c", "a"})

	if got := a.Get("c"); got != 0 {
		t.Fatalf("expected c reassigned to 0, got %d", got)
	}
	if got := a.Get("a"); got != 1 {
		t.Fatalf("expected a reassigned to 1, got %d", got)
	}
	// Former slots >= 2 form the new free-list, lowest first.
	if got := a.Get("e"); got != 2 {
		t.Fatalf("expected freed slot 2, got %d", got)
	}
	if got := a.Get("f"); got != 3 {
		t.Fatalf("expected freed slot 3, got %d", got)
	}
	if got := a.Get("g"); got != 4 {
		t.Fatalf("expected fresh slot 4, got %d", got)
	}
}

func TestSlotAllocatorNoVisibleDuplicates(t *testing.T) {
	a := NewSlotAllocator()
	values := []string{"a", "b", "c", "d", "e", "f"}
	for _, v := range values {
		a.Get(v)
	}
	a.Free("c")
	a.Get("x")
	a.Reassign([]string{"x", "a", "f"})
	a.Get("y")
	a.Get("z")

	seen := make(map[int]string)
	for _, v := range a.Assigned() {
		s := a.Get(v)
		if prev, dup := seen[s]; dup {
			t.Fatalf("slot %d assigned to both %q and %q", s, prev, v)
		}
		seen[s] = v
	}
}

func TestSlotAllocatorReset(t *testing.T) {
	a := NewSlotAllocator()
	a.Get("a")
	a.Get("b")
	a.Free("a")

	a.Reset()
	if got := a.Get("z"); got != 0 {
		t.Fatalf("expected slot 0 after reset, got %d", got)
	}
	if !reflect.DeepEqual(a.Assigned(), []string{"z"}) {
		t.Fatalf("unexpected assignments after reset: %v", a.Assigned())
	}
}
