// Package host declares the capability interface a host runtime must
// supply for extensions built on this module. There is deliberately no
// ambient runtime singleton: every entry point in the module takes an
// explicit Runtime parameter.
//
// The host guarantees at most one boundary function executes at a time
// per Runtime instance (a global execution lock on its side), so nothing
// in this module locks around per-call state. The collector may run
// whenever control is on the host's side of the boundary — including
// re-entrant calls from extension code back into host-level methods —
// and it finds live objects two ways: by scanning the activation frames
// pushed through PushFrame, and by reading the cells registered through
// Register.
package host

import "github.com/chazu/tether/handle"

// Token identifies one registration with the collector. Tokens are never
// reused within the lifetime of a Runtime.
type Token uint64

// BoundaryFunc is the native calling convention for boundary functions:
// an optional receiver plus N raw arguments in, one raw handle out.
// Failure leaves through the host's Raise primitive instead of the
// return value.
type BoundaryFunc func(rt Runtime, receiver handle.Handle, args []handle.Handle) handle.Handle

// Frame is the collector's view of one call activation: the managed
// handles currently pinned in its arena. The returned slice aliases the
// arena's backing store; the collector reads it during a scan and treats
// every object it references as pinned (live and immovable).
//
// Implementations must be pointer types: the host identifies frames by
// identity when popping.
type Frame interface {
	Handles() []handle.Handle
}

// Runtime is the set of host primitives the safety layer consumes.
type Runtime interface {
	// PushFrame makes f's handles visible to the collector's scan.
	// Called by the marshaling layer when an activation begins.
	PushFrame(f Frame)

	// PopFrame removes f from the scan and hands the call's in-flight
	// result to the host: the host re-protects result in the popped
	// frame's parent scope and returns the handle the boundary function
	// must deliver (the host may forward it). Without this handoff the
	// result would be unprotected between the pop and the return — the
	// collector may run inside any host primitive, PopFrame included.
	// Frames are popped in LIFO order; popping a frame that is not on
	// top is a host-side fault. Pass Nil when the call produces no
	// managed result.
	PopFrame(f Frame, result handle.Handle) handle.Handle

	// Register informs the collector of a heap cell it would not
	// otherwise scan. The collector reads the handle through addr on
	// every collection, and may rewrite it through addr when a
	// compaction pass relocates the referent.
	Register(addr *handle.Handle) Token

	// Unregister removes a prior registration. Calling it twice with
	// the same token is a host-side fault; the pin package guarantees
	// exactly-once through its box type.
	Unregister(tok Token)

	// Resolve maps a possibly-stale managed handle to the referent's
	// current handle after any compaction passes. Handles held in
	// registered cells are rewritten in place and never need resolving;
	// Resolve exists for handles the collector cannot see, such as
	// those embedded in wrapped native structs.
	Resolve(h handle.Handle) handle.Handle

	// Raise transfers control to the host's exception machinery.
	// It never returns. The marshaling layer calls it at most once per
	// boundary execution, after all structural teardown has run.
	Raise(class, message string)
}
