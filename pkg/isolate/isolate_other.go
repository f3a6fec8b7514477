//go:build !linux

package isolate

import "syscall"

// Chroot is unavailable outside Linux. Prepare still works so roots can be
// inspected; confinement fails with ErrUnsupported.
type Chroot struct{}

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
	return &IsolationError{Op: "chroot", Path: root, Err: ErrUnsupported}
}

func (c *Chroot) IsolatePidNamespace() error {
	return &IsolationError{Op: "pid namespace", Err: ErrUnsupported}
}

func (c *Chroot) ChildAttributes() *syscall.SysProcAttr {
	return nil
}
