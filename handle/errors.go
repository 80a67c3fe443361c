package handle

import "fmt"

// ConversionError reports a handle that does not carry the requested
// type. It is always recoverable: the error boundary surfaces it to the
// host as a type error.
type ConversionError struct {
	Want string // contract name the conversion was attempted against
	Got  Handle // the offending handle
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("handle: cannot convert %s to %s", e.Got, e.Want)
}
