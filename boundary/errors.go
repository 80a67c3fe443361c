package boundary

import (
	"errors"
	"fmt"

	"github.com/chazu/tether/handle"
	"github.com/chazu/tether/host"
	"github.com/chazu/tether/pin"
)

// Host exception classes the error boundary maps failures onto.
const (
	ClassTypeError     = "TypeError"
	ClassArgumentError = "ArgumentError"
	ClassRuntimeError  = "RuntimeError"
)

// HostError is a deliberate, user-raised host exception. Core logic
// returns one to make the boundary raise exactly this class and message
// to the host, unchanged.
type HostError struct {
	Class   string
	Message string
}

func (e *HostError) Error() string {
	return e.Class + ": " + e.Message
}

// Raisef builds a HostError with a formatted message.
func Raisef(class, format string, args ...any) *HostError {
	return &HostError{Class: class, Message: fmt.Sprintf(format, args...)}
}

// Fault wraps a panic recovered at the call boundary. A native fault
// must never unwind past the boundary function — unwinding across the
// host's foreign-call edge is undefined — so the barrier converts it to
// a Fault and the boundary surfaces it as a generic host runtime error.
type Fault struct {
	Value any    // the recovered panic value
	Stack []byte // goroutine stack captured at recovery
}

func (f *Fault) Error() string {
	return fmt.Sprintf("internal fault: %v", f.Value)
}

// raiseError converts an internal failure into the host's exception
// machinery. Terminal: rt.Raise does not return. Policy:
//
//   - conversion failures and arena exhaustion surface as TypeError
//   - a HostError re-raises its original class and message
//   - a Fault (and any unclassified error) surfaces as RuntimeError
//
// Retry, where wanted, is a concern for callers above this boundary.
func raiseError(rt host.Runtime, err error) {
	var hostErr *HostError
	var convErr *handle.ConversionError
	var exhErr *pin.ExhaustedError
	var fault *Fault
	switch {
	case errors.As(err, &hostErr):
		rt.Raise(hostErr.Class, hostErr.Message)
	case errors.As(err, &convErr):
		rt.Raise(ClassTypeError, convErr.Error())
	case errors.As(err, &exhErr):
		rt.Raise(ClassTypeError, exhErr.Error())
	case errors.As(err, &fault):
		rt.Raise(ClassRuntimeError, fault.Error())
	default:
		rt.Raise(ClassRuntimeError, err.Error())
	}
	panic("boundary: host Raise returned")
}
