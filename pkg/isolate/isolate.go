// Package isolate confines the current process to an extracted image root.
//
// All privileged system calls of the module live here. Callers see three
// operations and a handful of error values; nothing outside this package
// inspects errno.
package isolate

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Isolator confines the process to a prepared root directory.
type Isolator interface {
	// Prepare makes root usable as a process root: dev/ exists and
	// dev/null is present. Existing entries are left untouched.
	Prepare(root string) error

	// Confine changes the process root to root and the working directory to
	// the new "/". It refuses roots that were not prepared. Confinement is
	// never undone.
	Confine(root string) error

	// IsolatePidNamespace makes children started afterwards PID 1 of a new
	// PID namespace. Implementations hand the namespace to the runner as
	// child attributes.
	IsolatePidNamespace() error
}

const nullDevice = "dev/null"

// Prepare creates root/dev and an empty root/dev/null regular file when they
// are missing. Symlinks inside root are resolved without leaving root.
func Prepare(root string) error {
	devDir, err := securejoin.SecureJoin(root, "dev")
	if err != nil {
		return &IsolationError{Op: "prepare", Path: root, Err: err}
	}
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		return &IsolationError{Op: "prepare", Path: devDir, Err: err}
	}

	nullPath, err := securejoin.SecureJoin(root, nullDevice)
	if err != nil {
		return &IsolationError{Op: "prepare", Path: root, Err: err}
	}

	file, err := os.OpenFile(nullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666)
	if errors.Is(err, iofs.ErrExist) {
		return nil
	}
	if err != nil {
		return &IsolationError{Op: "prepare", Path: nullPath, Err: err}
	}
	if err := file.Close(); err != nil {
		return &IsolationError{Op: "prepare", Path: nullPath, Err: err}
	}

	// umask must not narrow the stub
	if err := os.Chmod(nullPath, 0o666); err != nil {
		return &IsolationError{Op: "prepare", Path: nullPath, Err: err}
	}

	return nil
}

// checkPrepared reports ErrNotPrepared when root has no dev/null entry.
func checkPrepared(root string) error {
	nullPath, err := securejoin.SecureJoin(root, nullDevice)
	if err != nil {
		return &IsolationError{Op: "confine", Path: root, Err: err}
	}

	if _, err := os.Lstat(nullPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return &IsolationError{Op: "confine", Path: root, Err: ErrNotPrepared}
		}
		return &IsolationError{Op: "confine", Path: nullPath, Err: fmt.Errorf("stat %s: %w", nullDevice, err)}
	}

	return nil
}
