package pin

import (
	"runtime"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/tether/handle"
	"github.com/chazu/tether/host"
)

var log = commonlog.GetLogger("tether.pin")

// leakCheck controls the finalizer backstop on boxes. See SetLeakCheck.
var leakCheck atomic.Bool

func init() {
	leakCheck.Store(true)
}

// SetLeakCheck enables or disables the finalizer backstop installed on
// new boxes. When enabled (the default), a box dropped without Close is
// unregistered by its finalizer and a warning is logged naming the leak.
// The backstop exists because Go has no scope-exit destructors; it is a
// diagnostic net, not a substitute for Close.
func SetLeakCheck(enabled bool) {
	leakCheck.Store(enabled)
}

// Box owns one heap-allocated managed handle registered with the host's
// collector. Construction registers the cell's address; Close
// unregisters it exactly once. Between the two, the referent is live no
// matter where the box itself is stored or moved to — this is the
// sanctioned way to keep a managed handle in a relocatable container or
// across call activations.
//
// A Box is exclusively owned. It may be moved and stored freely but must
// not be mutated from two goroutines at once.
type Box[T any] struct {
	cell   *handle.Handle
	token  host.Token
	rt     host.Runtime
	ct     *handle.Contract[T]
	closed atomic.Bool
}

// NewBox registers a fresh heap cell holding v's handle and returns the
// owning box. It always succeeds. Panics if ct is immediate: boxing a
// value with no heap referent indicates a classification bug.
func NewBox[T any](rt host.Runtime, ct *handle.Contract[T], v T) *Box[T] {
	if !ct.Managed {
		panic("pin: NewBox with immediate contract " + ct.Name)
	}
	return newBox(rt, ct, ct.To(v))
}

// FromPinned copies the handle out of a pinned arena slot into a fresh
// registered cell. Registration completes while the slot's own
// protection still holds, so there is no window in which the referent is
// invisible to the collector. The pinned slot is unaffected.
func FromPinned[T any](rt host.Runtime, p Pinned[T]) *Box[T] {
	return newBox(rt, p.ct, p.Handle())
}

func newBox[T any](rt host.Runtime, ct *handle.Contract[T], h handle.Handle) *Box[T] {
	cell := new(handle.Handle)
	*cell = h
	b := &Box[T]{
		cell:  cell,
		token: rt.Register(cell),
		rt:    rt,
		ct:    ct,
	}
	if leakCheck.Load() {
		runtime.SetFinalizer(b, finalizeBox[T])
	}
	return b
}

func finalizeBox[T any](b *Box[T]) {
	if b.closed.CompareAndSwap(false, true) {
		log.Warningf("box of %s leaked without Close; unregistering in finalizer", b.ct.Name)
		b.rt.Unregister(b.token)
	}
}

// Handle returns the handle currently in the registered cell. A
// compaction pass may have rewritten the cell since the box was created;
// the returned word is the referent's current handle. Registration
// persists independent of what the caller does with the returned word;
// extract the handle before closing the box.
func (b *Box[T]) Handle() handle.Handle {
	if b.closed.Load() {
		panic("pin: Box used after Close")
	}
	return *b.cell
}

// Get decodes the boxed value through its contract.
func (b *Box[T]) Get() T {
	v, err := b.ct.From(b.Handle())
	if err != nil {
		panic("pin: box cell no longer decodes as " + b.ct.Name + ": " + err.Error())
	}
	return v
}

// Set replaces the boxed handle. The cell stays registered; the
// collector observes the new referent on its next scan.
func (b *Box[T]) Set(v T) {
	if b.closed.Load() {
		panic("pin: Box used after Close")
	}
	*b.cell = b.ct.To(v)
}

// Close unregisters the cell. Idempotent: the registration is dropped
// exactly once however many times Close runs, including from deferred
// teardown during a panic unwind. After Close the referent is only as
// live as its other references make it.
func (b *Box[T]) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		b.rt.Unregister(b.token)
		runtime.SetFinalizer(b, nil)
	}
	return nil
}
