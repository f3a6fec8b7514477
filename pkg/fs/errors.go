package fs

import (
	"errors"
	"fmt"
)

var (
	ErrPathEscape       = errors.New("entry path escapes the destination")
	ErrUnsupportedEntry = errors.New("unsupported tar entry type")
	ErrNotRegularFile   = errors.New("not a regular file")
)

// ExtractError reports a layer that could not be unpacked. Entry is empty
// when the failure is not tied to a single archive member, e.g. bad gzip
// framing.
type ExtractError struct {
	Dest  string
	Entry string
	Err   error
}

func (e *ExtractError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("extract into %s: %v", e.Dest, e.Err)
	}
	return fmt.Sprintf("extract %q into %s: %v", e.Entry, e.Dest, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }
