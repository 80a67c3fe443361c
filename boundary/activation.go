// Package boundary generates the functions the host calls: it decodes
// and classifies raw arguments, pins managed ones into a call-scoped
// arena, runs core logic inside a failure barrier, converts the result,
// and crosses back into the host exactly once — with a handle on
// success or through the host's Raise primitive on failure.
package boundary

import (
	"io"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/tether/handle"
	"github.com/chazu/tether/host"
	"github.com/chazu/tether/pin"
)

var log = commonlog.GetLogger("tether.boundary")

// Activation is the transient state of one boundary-function execution:
// the incoming raw handles, one slot arena, and a trace ID correlating
// its log lines. Core logic receives the activation and uses it to pin
// further handles it obtains mid-call (via Arena) or to reach host
// primitives (via Runtime). An activation exists only for the duration
// of its boundary function; nothing obtained through it may be stored
// past the call except through a pin.Box.
type Activation struct {
	rt       host.Runtime
	arena    *pin.Arena
	id       uuid.UUID
	receiver handle.Handle
	args     []handle.Handle
	deferred []io.Closer
}

// begin pushes the activation's arena as a collector scan frame and
// hands ownership of the raw arguments to the activation.
func begin(rt host.Runtime, recv handle.Handle, args []handle.Handle, capacity int) *Activation {
	act := &Activation{
		rt:       rt,
		arena:    pin.NewArena(capacity),
		id:       uuid.New(),
		receiver: recv,
		args:     args,
	}
	rt.PushFrame(act.arena)
	log.Debugf("activation %s: begin, %d args", act.id, len(args))
	return act
}

// deferClose schedules c to close during finish, after the frame pop.
// A result box must stay registered until PopFrame has re-protected the
// extracted handle on the host's side; closing it earlier would leave
// the referent rootless while control is inside host primitives.
func (a *Activation) deferClose(c io.Closer) {
	a.deferred = append(a.deferred, c)
}

// finish hands the in-flight result to the host via the frame pop, runs
// deferred closes, and invalidates the arena. Runs on every exit path —
// normal return, error return, and fault — before any failure crosses
// into the host. The returned handle, possibly forwarded by the host,
// is the one to deliver.
func (a *Activation) finish(result handle.Handle) handle.Handle {
	used := a.arena.Used()
	result = a.rt.PopFrame(a.arena, result)
	for _, c := range a.deferred {
		_ = c.Close()
	}
	a.arena.Release()
	log.Debugf("activation %s: finish, %d slots used", a.id, used)
	return result
}

// Runtime returns the host capability the activation executes under.
func (a *Activation) Runtime() host.Runtime {
	return a.rt
}

// Arena returns the call's slot arena, for core logic that obtains
// managed handles mid-call and must pin them before re-entering the
// host.
func (a *Activation) Arena() *pin.Arena {
	return a.arena
}

// ID returns the activation's trace ID.
func (a *Activation) ID() uuid.UUID {
	return a.id
}

// Receiver returns the raw receiver handle. The receiver is resident in
// the host's own activation frame for the duration of the call, so it
// passes through unpinned.
func (a *Activation) Receiver() handle.Handle {
	return a.receiver
}
