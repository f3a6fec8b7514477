//go:build linux

package runner

import (
	"context"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type pidNamespace struct{}

func (pidNamespace) ChildAttributes() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Cloneflags: unix.CLONE_NEWPID}
}

// The child starts either in a new PID namespace (privileged) or, after the
// kernel refuses the clone flag, without one. It never fails to start.
func TestSpawnWithPidNamespace(t *testing.T) {
	sh := shell(t)
	r, out := quietRunner()
	r.Isolation = pidNamespace{}

	outcome, err := r.Spawn(context.Background(), sh, []string{"-c", "echo $$"})
	require.NoError(t, err)
	assert.True(t, outcome.Success())

	pid, err := strconv.Atoi(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Positive(t, pid)
}
