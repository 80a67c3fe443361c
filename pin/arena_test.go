package pin

import (
	"errors"
	"testing"

	"github.com/chazu/tether/handle"
)

func obj(id uint64) handle.Object {
	return handle.ObjectFromHandle(handle.FromObjectID(id))
}

func TestArenaFillToCapacity(t *testing.T) {
	for _, capacity := range []int{1, DefaultCapacity, 32} {
		a := NewArena(capacity)

		pins := make([]Pinned[handle.Object], 0, capacity)
		for i := 0; i < capacity; i++ {
			p, err := Allocate(a, handle.ObjectContract, obj(uint64(i+1)))
			if err != nil {
				t.Fatalf("capacity %d: allocation %d failed: %v", capacity, i, err)
			}
			pins = append(pins, p)
		}
		if a.Used() != capacity {
			t.Errorf("capacity %d: Used() = %d, want %d", capacity, a.Used(), capacity)
		}

		// Every reference reads back exactly the handle it pinned.
		for i, p := range pins {
			want := handle.FromObjectID(uint64(i + 1))
			if got := p.Handle(); got != want {
				t.Errorf("capacity %d: slot %d = %s, want %s", capacity, i, got, want)
			}
			if got := p.Get().Handle(); got != want {
				t.Errorf("capacity %d: Get() slot %d = %s, want %s", capacity, i, got, want)
			}
		}
	}
}

func TestArenaExhaustion(t *testing.T) {
	const capacity = 4
	a := NewArena(capacity)

	for i := 0; i < capacity; i++ {
		if _, err := Allocate(a, handle.ObjectContract, obj(uint64(i+1))); err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
	}

	// The (N+1)-th allocation fails fast; nothing spills anywhere.
	_, err := Allocate(a, handle.ObjectContract, obj(99))
	var exhErr *ExhaustedError
	if !errors.As(err, &exhErr) {
		t.Fatalf("overflow allocation error = %v, want *ExhaustedError", err)
	}
	if exhErr.Capacity != capacity {
		t.Errorf("ExhaustedError.Capacity = %d, want %d", exhErr.Capacity, capacity)
	}
	if a.Used() != capacity {
		t.Errorf("Used() after exhaustion = %d, want %d", a.Used(), capacity)
	}
	if a.Cap() != capacity {
		t.Errorf("Cap() = %d, want %d (capacity never grows)", a.Cap(), capacity)
	}
}

func TestArenaDefaultCapacity(t *testing.T) {
	if got := NewArena(0).Cap(); got != DefaultCapacity {
		t.Errorf("NewArena(0).Cap() = %d, want %d", got, DefaultCapacity)
	}
	if got := NewArena(-3).Cap(); got != DefaultCapacity {
		t.Errorf("NewArena(-3).Cap() = %d, want %d", got, DefaultCapacity)
	}
}

func TestArenaLazyBacking(t *testing.T) {
	a := NewArena(8)
	if a.Handles() != nil {
		t.Error("unused arena should expose no scan slots")
	}
}

func TestArenaScanSeesSet(t *testing.T) {
	a := NewArena(2)
	p, err := Allocate(a, handle.ObjectContract, obj(1))
	if err != nil {
		t.Fatal(err)
	}

	p.Set(obj(2))
	want := handle.FromObjectID(2)
	if got := a.Handles()[0]; got != want {
		t.Errorf("scan view after Set = %s, want %s", got, want)
	}
	if got := p.Handle(); got != want {
		t.Errorf("Pinned.Handle() after Set = %s, want %s", got, want)
	}
}

func TestArenaAllocationOrder(t *testing.T) {
	a := NewArena(4)
	for i := 0; i < 3; i++ {
		if _, err := Allocate(a, handle.ObjectContract, obj(uint64(10+i))); err != nil {
			t.Fatal(err)
		}
	}
	for i, h := range a.Handles() {
		want := handle.FromObjectID(uint64(10 + i))
		if h != want {
			t.Errorf("slot %d = %s, want %s (allocation order must match request order)", i, h, want)
		}
	}
}

func TestPinnedAfterRelease(t *testing.T) {
	a := NewArena(1)
	p, err := Allocate(a, handle.ObjectContract, obj(1))
	if err != nil {
		t.Fatal(err)
	}
	a.Release()

	defer func() {
		if recover() == nil {
			t.Error("Pinned access after arena release should panic")
		}
	}()
	_ = p.Handle()
}

func TestAllocateImmediatePanics(t *testing.T) {
	a := NewArena(1)
	defer func() {
		if recover() == nil {
			t.Error("Allocate with an immediate contract should panic")
		}
	}()
	_, _ = Allocate(a, handle.Float64Contract, 1.0)
}
