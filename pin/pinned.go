package pin

import "github.com/chazu/tether/handle"

// Pinned is a borrow of one filled arena slot, tagged immovable. It is
// produced only by Allocate — there is no public constructor — and it
// carries the issuing arena's generation, so any access after the arena
// is released fails deterministically instead of reading an unprotected
// slot.
//
// A Pinned must not outlive its call activation. There is no conversion
// into any relocatable or resizable container; the sole sanctioned exit
// is FromPinned, which copies the handle into a registered box.
type Pinned[T any] struct {
	arena *Arena
	index int
	gen   uint64
	ct    *handle.Contract[T]
}

// check panics if the issuing arena has been released since this
// reference was created.
func (p Pinned[T]) check() {
	if p.arena == nil || p.arena.gen != p.gen {
		panic("pin: Pinned used after its arena was released")
	}
}

// Handle returns the handle word currently in the slot.
func (p Pinned[T]) Handle() handle.Handle {
	p.check()
	return p.arena.slots[p.index]
}

// Get decodes the slot through the reference's contract.
func (p Pinned[T]) Get() T {
	v, err := p.ct.From(p.Handle())
	if err != nil {
		// The slot held a valid T when it was pinned and only Set can
		// write it, so a decode failure here is a corrupted slot.
		panic("pin: slot no longer decodes as " + p.ct.Name + ": " + err.Error())
	}
	return v
}

// Set overwrites the slot with a new value of the same type. The slot
// stays pinned; the collector observes the new handle on its next scan.
//
// Set provides no aliasing protection between concurrent borrows of the
// same slot. Within one activation that is moot (single-owner arena);
// core logic that hands copies of a Pinned to helper code should treat
// the slot as single-writer by convention.
func (p Pinned[T]) Set(v T) {
	p.check()
	p.arena.slots[p.index] = p.ct.To(v)
}
