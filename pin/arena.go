// Package pin provides the two sanctioned holders for managed handles:
// the call-scoped slot arena that keeps handles collector-visible for
// one activation, and the heap-registered box that keeps a handle
// collector-visible for as long as the box is open.
//
// The rule the package enforces: a managed handle obtained from the host
// must sit in an arena slot or a registered box before control can pass
// back to the host. Anything else is a window in which the collector can
// free the referent out from under native code.
package pin

import (
	"github.com/chazu/tether/handle"
)

// DefaultCapacity is the slot count of an arena constructed without an
// explicit capacity. Most boundary functions pin a handful of arguments
// at most; call sites that pin more pass their own capacity.
const DefaultCapacity = 8

// Arena is a fixed-capacity, call-scoped store of managed handles.
//
// Slots fill in allocation order and are never reused or shrunk within
// a call; `used` only grows. The backing array is allocated once, so a
// filled slot's address is fixed for the arena's lifetime — this is what
// lets the collector treat issued references as pinned. Exceeding the
// capacity fails fast with *ExhaustedError rather than spilling to
// relocatable storage, which would reopen the exact visibility gap the
// arena exists to close.
//
// An arena is exclusively owned by one call activation and is not safe
// for concurrent use; the host's execution lock makes that a non-issue
// for boundary code.
type Arena struct {
	slots []handle.Handle // len == used; cap fixed at construction
	cap   int
	gen   uint64
}

// NewArena creates an arena with the given slot capacity.
// A capacity of zero or less selects DefaultCapacity.
func NewArena(capacity int) *Arena {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Arena{cap: capacity, gen: 1}
}

// Used returns the number of filled slots.
func (a *Arena) Used() int {
	return len(a.slots)
}

// Cap returns the construction-time capacity. It never grows.
func (a *Arena) Cap() int {
	return a.cap
}

// Handles returns the collector's view of the filled slots. The slice
// aliases the arena's backing store, so a scan observes slot writes made
// through Pinned.Set. Implements host.Frame.
func (a *Arena) Handles() []handle.Handle {
	return a.slots
}

// Release invalidates the arena and every reference issued from it.
// Subsequent access through a stale Pinned panics rather than reading a
// slot the collector no longer protects. Called by the activation on
// every exit path; not for use by core logic.
func (a *Arena) Release() {
	a.gen++
	a.slots = nil
}

// allocate fills the next slot and returns its index.
func (a *Arena) allocate(h handle.Handle) (int, error) {
	if len(a.slots) == a.cap {
		return 0, &ExhaustedError{Capacity: a.cap}
	}
	if a.slots == nil {
		// Deferred so that boundary executions which pin nothing never
		// allocate a backing array.
		a.slots = make([]handle.Handle, 0, a.cap)
	}
	a.slots = append(a.slots, h)
	return len(a.slots) - 1, nil
}

// Allocate pins a managed value into the next free slot and returns the
// pinned reference core logic holds it by. The slot's location is fixed
// for the rest of the call. Fails with *ExhaustedError once the arena is
// full.
//
// Allocate is only meaningful for managed contracts; pinning an
// immediate value indicates a classification bug and panics.
func Allocate[T any](a *Arena, ct *handle.Contract[T], v T) (Pinned[T], error) {
	if !ct.Managed {
		panic("pin: Allocate with immediate contract " + ct.Name)
	}
	idx, err := a.allocate(ct.To(v))
	if err != nil {
		return Pinned[T]{}, err
	}
	return Pinned[T]{arena: a, index: idx, gen: a.gen, ct: ct}, nil
}
