// Package runner starts the user command inside the confined root and maps
// how it ended.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

// ExitOutcome describes how the child ended.
type ExitOutcome struct {
	Code      int
	Signalled bool
	Signal    syscall.Signal
}

// Success reports whether the launcher should exit 0. Termination by a
// signal counts as success.
func (o ExitOutcome) Success() bool {
	return o.Signalled || o.Code == 0
}

func (o ExitOutcome) String() string {
	if o.Signalled {
		return fmt.Sprintf("signal %s", o.Signal)
	}
	return fmt.Sprintf("exit %d", o.Code)
}

// Isolation supplies process attributes for new children, such as the
// namespaces they are created in.
type Isolation interface {
	// ChildAttributes returns nil when children need no special attributes.
	ChildAttributes() *syscall.SysProcAttr
}

// Runner spawns children with the configured standard streams. The zero
// value is not usable; call New.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Isolation, when set, is asked for the attributes of every child. If
	// the kernel refuses them the child is started without them.
	Isolation Isolation

	logger *slog.Logger
}

// New returns a runner whose children inherit the process's own streams.
func New() *Runner {
	return &Runner{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		logger: slog.Default(),
	}
}

// WithLogger replaces the runner's logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Child is a started process.
type Child struct {
	cmd  *exec.Cmd
	path string
	args []string
}

// Pid returns the child's process id as seen from the launcher.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Start launches path with args. path is used as given and never looked up
// in PATH.
func (r *Runner) Start(ctx context.Context, path string, args []string) (*Child, error) {
	var attr *syscall.SysProcAttr
	if r.Isolation != nil {
		attr = r.Isolation.ChildAttributes()
	}

	cmd := r.command(path, args, attr)
	err := cmd.Start()
	if err != nil && attr != nil && attributesRefused(err) {
		r.logger.WarnContext(ctx, "child isolation refused, starting without it", "path", path, "error", err)
		cmd = r.command(path, args, nil)
		err = cmd.Start()
	}
	if err != nil {
		return nil, &SpawnError{Path: path, Args: args, Err: err}
	}

	r.logger.DebugContext(ctx, "child started", "path", path, "pid", cmd.Process.Pid)

	return &Child{cmd: cmd, path: path, args: args}, nil
}

func (r *Runner) command(path string, args []string, attr *syscall.SysProcAttr) *exec.Cmd {
	return &exec.Cmd{
		Path:        path,
		Args:        append([]string{path}, args...),
		Stdin:       r.Stdin,
		Stdout:      r.Stdout,
		Stderr:      r.Stderr,
		SysProcAttr: attr,
	}
}

// attributesRefused reports a start failure caused by the requested
// attributes rather than by the executable, e.g. creating a namespace
// without CAP_SYS_ADMIN.
func attributesRefused(err error) bool {
	return errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EINVAL)
}

// Wait blocks until the child ends. A nonzero exit or a fatal signal is an
// outcome, not an error.
func (c *Child) Wait() (ExitOutcome, error) {
	err := c.cmd.Wait()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return ExitOutcome{}, &SpawnError{Path: c.path, Args: c.args, Err: err}
	}

	return outcomeFromState(c.cmd.ProcessState), nil
}

// Spawn starts the child and waits for it.
func (r *Runner) Spawn(ctx context.Context, path string, args []string) (ExitOutcome, error) {
	child, err := r.Start(ctx, path, args)
	if err != nil {
		return ExitOutcome{}, err
	}

	outcome, err := child.Wait()
	if err != nil {
		return ExitOutcome{}, err
	}

	r.logger.DebugContext(ctx, "child exited", "path", path, "outcome", outcome.String())

	return outcome, nil
}

func outcomeFromState(state *os.ProcessState) ExitOutcome {
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return ExitOutcome{Signalled: true, Signal: status.Signal()}
	}
	return ExitOutcome{Code: state.ExitCode()}
}
