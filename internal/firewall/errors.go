package firewall

import (
	"errors"
	"fmt"
)

// ErrBackendNotAvailable indicates that no usable firewall backend was found
// on this host (wrong OS or binary not on the search path).
var ErrBackendNotAvailable = errors.New("firewall backend not available")

// ErrDuplicateIdentifier indicates two backends registered the same identifier.
var ErrDuplicateIdentifier = errors.New("duplicate firewall backend identifier")

// ExitError reports that a filter-management command ran but returned a
// non-zero status.
type ExitError struct {
	Binary string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s exited with status %d: %s", e.Binary, e.Code, e.Output)
	}
	return fmt.Sprintf("%s exited with status %d", e.Binary, e.Code)
}

// IsExitError reports whether err is (or wraps) an ExitError.
func IsExitError(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee)
}
