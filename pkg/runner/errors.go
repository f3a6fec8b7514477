package runner

import (
	"fmt"
	"strings"
)

// SpawnError reports a child that could not be started or waited for.
type SpawnError struct {
	Path string
	Args []string
	Err  error
}

func (e *SpawnError) Error() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("spawn %s [%s]: %v", e.Path, strings.Join(e.Args, " "), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
