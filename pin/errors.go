package pin

import "fmt"

// ExhaustedError reports an allocation against a full arena. This is a
// deliberate fail-fast policy: spilling the overflow to heap storage
// would hand the collector a reference it cannot see. Recoverable — the
// error boundary surfaces it to the host as an error, and the fix is a
// larger capacity at the call site.
type ExhaustedError struct {
	Capacity int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("pin: arena exhausted (capacity %d)", e.Capacity)
}
