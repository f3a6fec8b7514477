//go:build linux

// Runs the real isolator end to end: the test binary re-executes itself, the
// re-executed copy confines itself to a prepared root and spawns a copy of
// the test binary inside it, which reports what it can see.
package integration_test

import (
	"context"
	"debug/elf"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maxdollinger/burrow/pkg/fs"
	"github.com/maxdollinger/burrow/pkg/isolate"
	"github.com/maxdollinger/burrow/pkg/runner"
)

const (
	envRoot     = "BURROW_TEST_CONFINE_ROOT"
	envBinary   = "BURROW_TEST_CONFINE_BINARY"
	envHostPath = "BURROW_TEST_HOST_PATH"
	envReport   = "BURROW_TEST_REPORT"
)

func TestMain(m *testing.M) {
	switch {
	case os.Getenv(envReport) != "":
		report()
	case os.Getenv(envRoot) != "":
		confineAndSpawn()
	}

	os.Exit(m.Run())
}

// report runs inside the confined root.
func report() {
	_, err := os.Stat(os.Getenv(envHostPath))
	cwd, _ := os.Getwd()

	fmt.Printf("pid=%d\n", os.Getpid())
	fmt.Printf("host-visible=%t\n", err == nil)
	fmt.Printf("cwd=%s\n", cwd)
	os.Exit(0)
}

// confineAndSpawn goes through the same isolation steps as a launcher run.
func confineAndSpawn() {
	fail := func(step string, err error) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
		os.Exit(2)
	}

	root := os.Getenv(envRoot)
	isolator := isolate.New()

	if err := isolator.Prepare(root); err != nil {
		fail("prepare", err)
	}
	if err := isolator.Confine(root); err != nil {
		fail("confine", err)
	}
	if err := isolator.IsolatePidNamespace(); err != nil {
		fail("pid namespace", err)
	}

	if err := os.Setenv(envReport, "1"); err != nil {
		fail("setenv", err)
	}

	r := runner.New()
	r.Isolation = isolator

	path := runner.Resolve(runner.PolicyCopied, os.Getenv(envBinary))
	outcome, err := r.Spawn(context.Background(), path, []string{"-test.run=^$"})
	if err != nil {
		fail("spawn", err)
	}

	os.Exit(outcome.Code)
}

func isStatic(path string) (bool, error) {
	f, err := elf.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			return false, nil
		}
	}
	return true, nil
}

func TestConfinedSpawn(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("chroot and PID namespaces require root")
	}

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}
	static, err := isStatic(exe)
	if err != nil {
		t.Fatalf("inspect test binary: %v", err)
	}
	if !static {
		t.Skip("test binary is dynamically linked and cannot run inside an empty root")
	}

	root := filepath.Join(t.TempDir(), "root")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatalf("create root: %v", err)
	}
	binary, err := fs.CopyExecutable(exe, root)
	if err != nil {
		t.Fatalf("seed root: %v", err)
	}

	hostOnly := filepath.Join(t.TempDir(), "host-only")
	if err := os.WriteFile(hostOnly, []byte("host"), 0o644); err != nil {
		t.Fatalf("write host file: %v", err)
	}

	cmd := exec.Command(exe, "-test.run=^$")
	cmd.Env = append(os.Environ(),
		envRoot+"="+root,
		envBinary+"="+filepath.Base(binary),
		envHostPath+"="+hostOnly,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("confined run failed: %v\n%s", err, out)
	}
	output := string(out)

	if strings.Contains(output, "child isolation refused") {
		t.Skipf("kernel refused a new PID namespace:\n%s", output)
	}

	for _, want := range []string{"pid=1\n", "host-visible=false\n", "cwd=/\n"} {
		if !strings.Contains(output, want) {
			t.Errorf("confined child output missing %q:\n%s", strings.TrimSpace(want), output)
		}
	}

	if _, err := os.Stat(hostOnly); err != nil {
		t.Errorf("host file disappeared: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "dev", "null")); err != nil {
		t.Errorf("root was not prepared: %v", err)
	}
}
