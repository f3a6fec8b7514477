package isolate

import (
	"errors"
	"fmt"
)

var (
	ErrNotPrepared       = errors.New("root is not prepared: dev/null is missing")
	ErrPrivilegeRequired = errors.New("insufficient privilege")
	ErrUnsupported       = errors.New("isolation is not supported on this platform")
)

// IsolationError reports a failed isolation step. Failures are fatal and
// never retried.
type IsolationError struct {
	Op   string
	Path string
	Err  error
}

func (e *IsolationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IsolationError) Unwrap() error { return e.Err }
