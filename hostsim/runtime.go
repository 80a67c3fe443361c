// Package hostsim is a reference implementation of the host.Runtime
// contract: an in-process host with a managed object heap, a collector
// that finds live objects only through pushed activation frames and
// registered cells, and an optional compaction pass that relocates
// everything not pinned by a frame.
//
// It exists for two audiences. Tests use it to make the safety layer's
// guarantees observable — an unprotected managed handle really is swept,
// a pinned one really survives, a compacted one really moves. Embedders
// use it as executable documentation of what their real host must
// provide.
package hostsim

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/tether/handle"
	"github.com/chazu/tether/host"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tether.hostsim")

// object is one host heap entry.
type object struct {
	data any
}

// Runtime simulates a host runtime instance. The zero value is not
// usable; construct with NewRuntime.
//
// A real host serializes boundary executions with a global execution
// lock; Invoke models that lock. The remaining state is still guarded
// internally, because tests (and box finalizers) touch the registration
// table from outside any boundary execution.
type Runtime struct {
	mu sync.Mutex

	heap    map[uint64]*object
	nextID  uint64
	forward map[uint64]uint64 // relocations from past compaction passes

	frames   []host.Frame
	inflight []handle.Handle // results handed over at PopFrame, rooted until Invoke returns

	cells     map[host.Token]*handle.Handle
	nextToken uint64

	execLock    sync.Mutex
	collections uint64
	lastStats   *CollectStats
	lastRaised  *RaisedException
}

// NewRuntime creates an empty simulated host.
func NewRuntime() *Runtime {
	return &Runtime{
		heap:    make(map[uint64]*object),
		nextID:  1,
		forward: make(map[uint64]uint64),
		cells:   make(map[host.Token]*handle.Handle),
	}
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// NewObject allocates a host heap object carrying arbitrary payload data
// and returns its managed handle. The new object is unprotected: unless
// it is pinned in a pushed frame or stored in a registered cell before
// the next collection, it will be swept.
func (rt *Runtime) NewObject(data any) handle.Handle {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id := rt.nextID
	rt.nextID++
	rt.heap[id] = &object{data: data}
	return handle.FromObjectID(id)
}

// ObjectData returns the payload of the object h references, following
// any relocations. The second result is false if h is not managed or the
// referent has been swept.
func (rt *Runtime) ObjectData(h handle.Handle) (any, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !h.IsObject() {
		return nil, false
	}
	obj, ok := rt.heap[rt.chase(h.ObjectID())]
	if !ok {
		return nil, false
	}
	return obj.data, true
}

// Live reports whether the object h references still exists, following
// any relocations.
func (rt *Runtime) Live(h handle.Handle) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !h.IsObject() {
		return false
	}
	_, ok := rt.heap[rt.chase(h.ObjectID())]
	return ok
}

// HeapSize returns the number of live heap objects.
func (rt *Runtime) HeapSize() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.heap)
}

// chase follows the forwarding chain to an object's current id.
// Caller holds rt.mu.
func (rt *Runtime) chase(id uint64) uint64 {
	for {
		next, ok := rt.forward[id]
		if !ok {
			return id
		}
		id = next
	}
}

// ---------------------------------------------------------------------------
// host.Runtime implementation
// ---------------------------------------------------------------------------

// PushFrame makes f's handles visible to collection scans.
func (rt *Runtime) PushFrame(f host.Frame) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.frames = append(rt.frames, f)
}

// PopFrame removes the top frame and takes possession of the call's
// in-flight result: a managed result is added to the root set and stays
// there until control returns through Invoke, so a collection triggered
// by any teardown-side host primitive cannot sweep it. Panics if f is
// not the top frame: out-of-order frame teardown is a host-side fault,
// not a recoverable condition.
func (rt *Runtime) PopFrame(f host.Frame, result handle.Handle) handle.Handle {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	n := len(rt.frames)
	if n == 0 || rt.frames[n-1] != f {
		panic("hostsim: PopFrame out of order")
	}
	rt.frames = rt.frames[:n-1]
	if result.IsObject() {
		rt.inflight = append(rt.inflight, result)
	}
	return result
}

// FrameCount returns the number of pushed activation frames.
func (rt *Runtime) FrameCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.frames)
}

// Register adds a heap cell to the collector's root set.
func (rt *Runtime) Register(addr *handle.Handle) host.Token {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.nextToken++
	tok := host.Token(rt.nextToken)
	rt.cells[tok] = addr
	log.Debugf("register cell %d -> %s", tok, *addr)
	return tok
}

// Unregister removes a registered cell. Panics on an unknown token:
// double unregistration is exactly the bug class the box type exists to
// prevent, so the simulator refuses to mask it.
func (rt *Runtime) Unregister(tok host.Token) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.cells[tok]; !ok {
		panic(fmt.Sprintf("hostsim: Unregister of unknown token %d", tok))
	}
	delete(rt.cells, tok)
	log.Debugf("unregister cell %d", tok)
}

// RegisteredCount returns the number of registered cells. Useful for
// testing and debugging.
func (rt *Runtime) RegisteredCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.cells)
}

// Resolve maps a possibly-stale managed handle to the referent's current
// handle. Immediate handles pass through.
func (rt *Runtime) Resolve(h handle.Handle) handle.Handle {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !h.IsObject() {
		return h
	}
	return handle.FromObjectID(rt.chase(h.ObjectID()))
}

// Raise transfers control to the simulated exception machinery: it
// records the exception and unwinds to the nearest Invoke. It never
// returns.
func (rt *Runtime) Raise(class, message string) {
	ex := &RaisedException{Class: class, Message: message}
	rt.mu.Lock()
	rt.lastRaised = ex
	rt.mu.Unlock()
	panic(ex)
}

// LastRaised returns the most recently raised exception, or nil.
func (rt *Runtime) LastRaised() *RaisedException {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastRaised
}

// ---------------------------------------------------------------------------
// The call edge
// ---------------------------------------------------------------------------

// RaisedException is the host-visible failure of one boundary execution.
type RaisedException struct {
	Class   string
	Message string
}

func (e *RaisedException) Error() string {
	return e.Class + ": " + e.Message
}

// Invoke calls a receiverless boundary function the way the host would:
// under the global execution lock, with the raised-exception side
// channel captured. Exactly one of the results is meaningful — a raised
// exception means no handle was returned.
func (rt *Runtime) Invoke(fn host.BoundaryFunc, args ...handle.Handle) (result handle.Handle, raised *RaisedException) {
	return rt.invoke(fn, handle.Nil, args)
}

// InvokeMethod is Invoke with an explicit receiver.
func (rt *Runtime) InvokeMethod(fn host.BoundaryFunc, recv handle.Handle, args ...handle.Handle) (result handle.Handle, raised *RaisedException) {
	return rt.invoke(fn, recv, args)
}

func (rt *Runtime) invoke(fn host.BoundaryFunc, recv handle.Handle, args []handle.Handle) (result handle.Handle, raised *RaisedException) {
	rt.execLock.Lock()
	defer rt.execLock.Unlock()

	// Once control is back on the host's side of the call edge the
	// host owns the result; the in-flight roots from PopFrame are
	// released here.
	defer func() {
		rt.mu.Lock()
		rt.inflight = rt.inflight[:0]
		rt.mu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			ex, ok := r.(*RaisedException)
			if !ok {
				// Anything but a host exception crossing the call edge
				// is the corruption this module exists to prevent.
				panic(r)
			}
			result = handle.Nil
			raised = ex
		}
	}()
	return fn(rt, recv, args), nil
}
