package boundary

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/chazu/tether/handle"
	"github.com/chazu/tether/host"
	"github.com/chazu/tether/pin"
)

// ---------------------------------------------------------------------------
// Argument marshaling
// ---------------------------------------------------------------------------

// In carries one decoded argument into core logic. An immediate argument
// holds its value directly; a managed argument holds a pinned reference
// into the call's arena, which is what keeps the referent
// collector-visible while core logic runs.
type In[T any] struct {
	raw     handle.Handle
	value   T
	pinned  pin.Pinned[T]
	managed bool
}

// Get returns the argument value. For managed arguments this reads
// through the pinned slot.
func (in In[T]) Get() T {
	if in.managed {
		return in.pinned.Get()
	}
	return in.value
}

// Pinned returns the argument's pinned reference and true if the
// argument is managed, or a zero reference and false if it is immediate
// (immediate arguments never occupy a slot).
func (in In[T]) Pinned() (pin.Pinned[T], bool) {
	return in.pinned, in.managed
}

// Handle returns the raw handle the argument arrived as.
func (in In[T]) Handle() handle.Handle {
	return in.raw
}

// decodeArg classifies and converts one raw argument. Immediate types
// convert directly with no allocation. Managed types convert first —
// so a conversion failure short-circuits before any slot is taken — and
// are then pinned into the activation's arena.
func decodeArg[T any](act *Activation, ct *handle.Contract[T], h handle.Handle) (In[T], error) {
	v, err := ct.From(h)
	if err != nil {
		return In[T]{}, err
	}
	if !ct.Managed {
		return In[T]{raw: h, value: v}, nil
	}
	p, err := pin.Allocate(act.arena, ct, v)
	if err != nil {
		return In[T]{}, err
	}
	return In[T]{raw: h, pinned: p, managed: true}, nil
}

// ---------------------------------------------------------------------------
// Result marshaling
// ---------------------------------------------------------------------------

// handleCarrier is satisfied by results that already are protected
// handle holders: pin.Pinned (slot still scanner-visible until the
// activation finishes) and *pin.Box (registration already in force).
type handleCarrier interface {
	Handle() handle.Handle
}

// convertResult encodes a core-logic result as the raw handle handed
// back to the host.
//
// A pin.Pinned result is extracted while its arena frame is still
// pushed; the handle passes to the host at the frame pop, which
// re-protects it. A *pin.Box result is unwrapped and its close deferred
// past the pop — the registration must outlive every host primitive the
// teardown calls, since any of them may trigger a collection. Every
// other result type encodes through its contract.
func convertResult[R any](act *Activation, rct *handle.Contract[R], r R) handle.Handle {
	if hc, ok := any(r).(handleCarrier); ok {
		h := hc.Handle()
		if c, ok := any(r).(io.Closer); ok {
			act.deferClose(c)
		}
		return h
	}
	if rct == nil {
		panic("boundary: result contract required for non-handle result")
	}
	return rct.To(r)
}

// ---------------------------------------------------------------------------
// The failure barrier
// ---------------------------------------------------------------------------

// protected runs one invocation behind the recover barrier. Any panic
// from core logic is converted to a *Fault; nothing unwinds past here.
func protected(act *Activation, invoke func(*Activation) (handle.Handle, error)) (result handle.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Errorf("activation %s: fault: %v", act.id, r)
			err = &Fault{Value: r, Stack: stack}
			result = handle.Nil
		}
	}()
	return invoke(act)
}

// run is the boundary-function skeleton shared by all arities: arity
// check, activation setup, barrier, structural teardown on every exit,
// then exactly one crossing back into the host.
func run(rt host.Runtime, recv handle.Handle, args []handle.Handle, arity int, o options, invoke func(*Activation) (handle.Handle, error)) handle.Handle {
	if len(args) != arity {
		rt.Raise(ClassTypeError, fmt.Sprintf("wrong number of arguments (given %d, expected %d)", len(args), arity))
		panic("boundary: host Raise returned")
	}
	act := begin(rt, recv, args, o.arenaCapacity)
	result, err := protected(act, invoke)
	if err != nil {
		result = handle.Nil
	}
	result = act.finish(result)
	if err != nil {
		raiseError(rt, err)
	}
	return result
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// defaultArenaCapacity is the module-wide default arena capacity for
// generated boundary functions; zero means pin.DefaultCapacity. Set via
// Config.Apply.
var defaultArenaCapacity int

type options struct {
	arenaCapacity int
}

// Option adjusts one generated boundary function.
type Option func(*options)

// WithArenaCapacity overrides the call site's arena capacity. Use it on
// boundary functions whose core logic pins more than the default number
// of handles in one call.
func WithArenaCapacity(n int) Option {
	return func(o *options) {
		o.arenaCapacity = n
	}
}

func applyOptions(opts []Option) options {
	o := options{arenaCapacity: defaultArenaCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ---------------------------------------------------------------------------
// Arity-specialized core-logic signatures
// ---------------------------------------------------------------------------

// Method0Func is core logic taking a receiver and no arguments.
type Method0Func[R any] func(act *Activation, recv handle.Handle) (R, error)

// Method1Func is core logic taking a receiver and one argument.
type Method1Func[A1, R any] func(act *Activation, recv handle.Handle, a1 In[A1]) (R, error)

// Method2Func is core logic taking a receiver and two arguments.
type Method2Func[A1, A2, R any] func(act *Activation, recv handle.Handle, a1 In[A1], a2 In[A2]) (R, error)

// Method3Func is core logic taking a receiver and three arguments.
type Method3Func[A1, A2, A3, R any] func(act *Activation, recv handle.Handle, a1 In[A1], a2 In[A2], a3 In[A3]) (R, error)

// Method4Func is core logic taking a receiver and four arguments.
type Method4Func[A1, A2, A3, A4, R any] func(act *Activation, recv handle.Handle, a1 In[A1], a2 In[A2], a3 In[A3], a4 In[A4]) (R, error)

// Func0Func is receiverless core logic taking no arguments.
type Func0Func[R any] func(act *Activation) (R, error)

// Func1Func is receiverless core logic taking one argument.
type Func1Func[A1, R any] func(act *Activation, a1 In[A1]) (R, error)

// Func2Func is receiverless core logic taking two arguments.
type Func2Func[A1, A2, R any] func(act *Activation, a1 In[A1], a2 In[A2]) (R, error)

// Func3Func is receiverless core logic taking three arguments.
type Func3Func[A1, A2, A3, R any] func(act *Activation, a1 In[A1], a2 In[A2], a3 In[A3]) (R, error)

// Func4Func is receiverless core logic taking four arguments.
type Func4Func[A1, A2, A3, A4, R any] func(act *Activation, a1 In[A1], a2 In[A2], a3 In[A3], a4 In[A4]) (R, error)

// ---------------------------------------------------------------------------
// Boundary-function generators (receiver variants)
// ---------------------------------------------------------------------------
//
// Each generator matches the host's native calling convention for its
// arity. Pass a nil result contract when R carries its own handle
// (pin.Pinned, *pin.Box, or raw-handle results via handle.HandleContract
// instead).

// Method0 generates a zero-argument boundary function. No argument
// classification runs and the arena backing store is never allocated.
func Method0[R any](rct *handle.Contract[R], fn Method0Func[R], opts ...Option) host.BoundaryFunc {
	o := applyOptions(opts)
	return func(rt host.Runtime, recv handle.Handle, args []handle.Handle) handle.Handle {
		return run(rt, recv, args, 0, o, func(act *Activation) (handle.Handle, error) {
			r, err := fn(act, recv)
			if err != nil {
				return handle.Nil, err
			}
			return convertResult(act, rct, r), nil
		})
	}
}

// Method1 generates a one-argument boundary function.
func Method1[A1, R any](c1 *handle.Contract[A1], rct *handle.Contract[R], fn Method1Func[A1, R], opts ...Option) host.BoundaryFunc {
	o := applyOptions(opts)
	return func(rt host.Runtime, recv handle.Handle, args []handle.Handle) handle.Handle {
		return run(rt, recv, args, 1, o, func(act *Activation) (handle.Handle, error) {
			a1, err := decodeArg(act, c1, act.args[0])
			if err != nil {
				return handle.Nil, err
			}
			r, err := fn(act, recv, a1)
			if err != nil {
				return handle.Nil, err
			}
			return convertResult(act, rct, r), nil
		})
	}
}

// Method2 generates a two-argument boundary function.
func Method2[A1, A2, R any](c1 *handle.Contract[A1], c2 *handle.Contract[A2], rct *handle.Contract[R], fn Method2Func[A1, A2, R], opts ...Option) host.BoundaryFunc {
	o := applyOptions(opts)
	return func(rt host.Runtime, recv handle.Handle, args []handle.Handle) handle.Handle {
		return run(rt, recv, args, 2, o, func(act *Activation) (handle.Handle, error) {
			a1, err := decodeArg(act, c1, act.args[0])
			if err != nil {
				return handle.Nil, err
			}
			a2, err := decodeArg(act, c2, act.args[1])
			if err != nil {
				return handle.Nil, err
			}
			r, err := fn(act, recv, a1, a2)
			if err != nil {
				return handle.Nil, err
			}
			return convertResult(act, rct, r), nil
		})
	}
}

// Method3 generates a three-argument boundary function.
func Method3[A1, A2, A3, R any](c1 *handle.Contract[A1], c2 *handle.Contract[A2], c3 *handle.Contract[A3], rct *handle.Contract[R], fn Method3Func[A1, A2, A3, R], opts ...Option) host.BoundaryFunc {
	o := applyOptions(opts)
	return func(rt host.Runtime, recv handle.Handle, args []handle.Handle) handle.Handle {
		return run(rt, recv, args, 3, o, func(act *Activation) (handle.Handle, error) {
			a1, err := decodeArg(act, c1, act.args[0])
			if err != nil {
				return handle.Nil, err
			}
			a2, err := decodeArg(act, c2, act.args[1])
			if err != nil {
				return handle.Nil, err
			}
			a3, err := decodeArg(act, c3, act.args[2])
			if err != nil {
				return handle.Nil, err
			}
			r, err := fn(act, recv, a1, a2, a3)
			if err != nil {
				return handle.Nil, err
			}
			return convertResult(act, rct, r), nil
		})
	}
}

// Method4 generates a four-argument boundary function.
func Method4[A1, A2, A3, A4, R any](c1 *handle.Contract[A1], c2 *handle.Contract[A2], c3 *handle.Contract[A3], c4 *handle.Contract[A4], rct *handle.Contract[R], fn Method4Func[A1, A2, A3, A4, R], opts ...Option) host.BoundaryFunc {
	o := applyOptions(opts)
	return func(rt host.Runtime, recv handle.Handle, args []handle.Handle) handle.Handle {
		return run(rt, recv, args, 4, o, func(act *Activation) (handle.Handle, error) {
			a1, err := decodeArg(act, c1, act.args[0])
			if err != nil {
				return handle.Nil, err
			}
			a2, err := decodeArg(act, c2, act.args[1])
			if err != nil {
				return handle.Nil, err
			}
			a3, err := decodeArg(act, c3, act.args[2])
			if err != nil {
				return handle.Nil, err
			}
			a4, err := decodeArg(act, c4, act.args[3])
			if err != nil {
				return handle.Nil, err
			}
			r, err := fn(act, recv, a1, a2, a3, a4)
			if err != nil {
				return handle.Nil, err
			}
			return convertResult(act, rct, r), nil
		})
	}
}

// ---------------------------------------------------------------------------
// Boundary-function generators (receiverless variants)
// ---------------------------------------------------------------------------

// Func0 generates a receiverless zero-argument boundary function.
func Func0[R any](rct *handle.Contract[R], fn Func0Func[R], opts ...Option) host.BoundaryFunc {
	return Method0(rct, func(act *Activation, _ handle.Handle) (R, error) {
		return fn(act)
	}, opts...)
}

// Func1 generates a receiverless one-argument boundary function.
func Func1[A1, R any](c1 *handle.Contract[A1], rct *handle.Contract[R], fn Func1Func[A1, R], opts ...Option) host.BoundaryFunc {
	return Method1(c1, rct, func(act *Activation, _ handle.Handle, a1 In[A1]) (R, error) {
		return fn(act, a1)
	}, opts...)
}

// Func2 generates a receiverless two-argument boundary function.
func Func2[A1, A2, R any](c1 *handle.Contract[A1], c2 *handle.Contract[A2], rct *handle.Contract[R], fn Func2Func[A1, A2, R], opts ...Option) host.BoundaryFunc {
	return Method2(c1, c2, rct, func(act *Activation, _ handle.Handle, a1 In[A1], a2 In[A2]) (R, error) {
		return fn(act, a1, a2)
	}, opts...)
}

// Func3 generates a receiverless three-argument boundary function.
func Func3[A1, A2, A3, R any](c1 *handle.Contract[A1], c2 *handle.Contract[A2], c3 *handle.Contract[A3], rct *handle.Contract[R], fn Func3Func[A1, A2, A3, R], opts ...Option) host.BoundaryFunc {
	return Method3(c1, c2, c3, rct, func(act *Activation, _ handle.Handle, a1 In[A1], a2 In[A2], a3 In[A3]) (R, error) {
		return fn(act, a1, a2, a3)
	}, opts...)
}

// Func4 generates a receiverless four-argument boundary function.
func Func4[A1, A2, A3, A4, R any](c1 *handle.Contract[A1], c2 *handle.Contract[A2], c3 *handle.Contract[A3], c4 *handle.Contract[A4], rct *handle.Contract[R], fn Func4Func[A1, A2, A3, A4, R], opts ...Option) host.BoundaryFunc {
	return Method4(c1, c2, c3, c4, rct, func(act *Activation, _ handle.Handle, a1 In[A1], a2 In[A2], a3 In[A3], a4 In[A4]) (R, error) {
		return fn(act, a1, a2, a3, a4)
	}, opts...)
}
