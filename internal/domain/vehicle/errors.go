package vehicle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMultipleMatches: CRM holds more than one record for a VIN. The
// integration assumes at most one; anything else is an anomaly to fail
// safely on, never to resolve by picking the first.
var ErrMultipleMatches = errors.New("multiple CRM records match VIN")

// SchemaError is a file-level failure: the header row does not match the
// expected field set and order exactly. No rows from the file are staged.
type SchemaError struct {
	Expected []string
	Got      []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("header mismatch: expected [%s], got [%s]",
		strings.Join(e.Expected, ","), strings.Join(e.Got, ","))
}

// TransientError wraps an infrastructure failure whose retry budget is
// already spent by the collaborator that produced it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a TransientError anywhere in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
