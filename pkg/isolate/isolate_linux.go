//go:build linux

package isolate

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Chroot confines with chroot(2) and starts children in a new PID namespace.
// Both need CAP_SYS_CHROOT and CAP_SYS_ADMIN respectively.
type Chroot struct {
	pidNamespace bool
}

func New() *Chroot {
	return &Chroot{}
}

func (c *Chroot) Prepare(root string) error {
	return Prepare(root)
}

func (c *Chroot) Confine(root string) error {
	if err := checkPrepared(root); err != nil {
		return err
	}

	if err := unix.Chroot(root); err != nil {
		return &IsolationError{Op: "chroot", Path: root, Err: privileged(err)}
	}

	if err := unix.Chdir("/"); err != nil {
		return &IsolationError{Op: "chdir", Path: "/", Err: privileged(err)}
	}

	return nil
}

// IsolatePidNamespace makes every child started afterwards PID 1 of its own
// namespace. The namespace is created by the child's clone, never by the
// calling process: a process that unshares its own PID namespace loses it to
// the first short-lived helper it forks.
func (c *Chroot) IsolatePidNamespace() error {
	c.pidNamespace = true
	return nil
}

// ChildAttributes returns the clone flags for children once
// IsolatePidNamespace has been called, nil before.
func (c *Chroot) ChildAttributes() *syscall.SysProcAttr {
	if !c.pidNamespace {
		return nil
	}
	return &syscall.SysProcAttr{Cloneflags: unix.CLONE_NEWPID}
}

func privileged(err error) error {
	if errors.Is(err, unix.EPERM) {
		return fmt.Errorf("%w: %w", ErrPrivilegeRequired, err)
	}
	return err
}
