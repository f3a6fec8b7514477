package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"syscall"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/maxdollinger/burrow/internal/launcher"
	"github.com/maxdollinger/burrow/pkg/oci"
	"github.com/maxdollinger/burrow/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*Root, *kong.Context) {
	t.Helper()

	var root Root
	parser, err := kong.New(&root, parserOptions(context.Background())...)
	require.NoError(t, err)

	kctx, err := parser.Parse(args)
	require.NoError(t, err)

	return &root, kctx
}

func TestParseRunPassthrough(t *testing.T) {
	root, _ := parse(t, "run", "alpine", "/bin/sh", "-c", "exit 7")

	assert.Equal(t, "alpine", root.Run.Image)
	assert.Equal(t, []string{"/bin/sh", "-c", "exit 7"}, root.Run.Command)
}

func TestParseRunFlags(t *testing.T) {
	root, _ := parse(t, "-d", "--log-json", "run", "--parallel", "3", "--copy", "--whiteouts", "--work-dir", "/scratch", "busybox:1.36", "echo", "hi")

	assert.True(t, root.Debug)
	assert.True(t, root.LogJSON)
	assert.Equal(t, 3, root.Run.Parallel)
	assert.True(t, root.Run.Copy)
	assert.True(t, root.Run.Whiteouts)
	assert.Equal(t, "/scratch", root.Run.WorkDir)
	assert.Equal(t, "busybox:1.36", root.Run.Image)
	assert.Equal(t, []string{"echo", "hi"}, root.Run.Command)
}

func TestParseRunDefaults(t *testing.T) {
	root, _ := parse(t, "run", "alpine", "/bin/true")

	assert.Equal(t, oci.DefaultAuthURL, root.Run.AuthURL)
	assert.Equal(t, oci.DefaultService, root.Run.Service)
	assert.Equal(t, oci.DefaultRegistryURL, root.Run.RegistryURL)
	assert.Equal(t, 1, root.Run.Parallel)
	assert.Empty(t, root.Run.WorkDir)
	assert.False(t, root.Run.Copy)
	assert.False(t, root.Run.Whiteouts)
	assert.Equal(t, "burrow", root.Run.UserAgent)
}

func TestParseRunEnvironment(t *testing.T) {
	t.Setenv("BURROW_REGISTRY_URL", "http://localhost:5000")
	t.Setenv("BURROW_PARALLEL", "8")

	root, _ := parse(t, "run", "alpine", "/bin/true")

	assert.Equal(t, "http://localhost:5000", root.Run.RegistryURL)
	assert.Equal(t, 8, root.Run.Parallel)
}

func TestRunConfig(t *testing.T) {
	root, _ := parse(t, "run", "--registry-url", "http://r", "--parallel", "2", "--whiteouts", "alpine", "/bin/true")
	logger := slog.New(slog.DiscardHandler)

	cfg := root.Run.config(logger)

	assert.Equal(t, "http://r", cfg.Registry.RegistryURL)
	assert.Equal(t, oci.DefaultAuthURL, cfg.Registry.AuthURL)
	assert.Equal(t, 2, cfg.Parallel)
	assert.True(t, cfg.Whiteouts)
	assert.Same(t, logger, cfg.Logger)
}

func TestRunRejectsInvalidImage(t *testing.T) {
	cmd := &RunCmd{Image: "alpine:", Command: []string{"/bin/true"}}

	err := cmd.Run(context.Background(), slog.New(slog.DiscardHandler))
	assert.ErrorIs(t, err, oci.ErrInvalidReference)
}

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		quiet     bool
		wantDebug bool
		wantInfo  bool
	}{
		{name: "default", wantInfo: true},
		{name: "debug", debug: true, wantDebug: true, wantInfo: true},
		{name: "quiet", quiet: true},
		{name: "debug wins over quiet", debug: true, quiet: true, wantDebug: true, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := newLogger(&bytes.Buffer{}, tt.debug, tt.quiet, false)
			ctx := context.Background()

			assert.Equal(t, tt.wantDebug, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.wantInfo, logger.Enabled(ctx, slog.LevelInfo))
			assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, false, false, true)

	logger.Info("hello", "layers", 2)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.EqualValues(t, 2, record["layers"])
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 7}
	assert.Equal(t, "command exited with code 7", err.Error())
}

func TestExitErrorForOutcome(t *testing.T) {
	t.Run("nonzero code is mirrored", func(t *testing.T) {
		err := exitErrorFor(runner.ExitOutcome{Code: 7})

		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, &ExitError{Code: 7}, exitErr)
	})

	t.Run("zero code succeeds", func(t *testing.T) {
		assert.NoError(t, exitErrorFor(runner.ExitOutcome{Code: 0}))
	})

	t.Run("signal counts as success", func(t *testing.T) {
		assert.NoError(t, exitErrorFor(runner.ExitOutcome{Signalled: true, Signal: syscall.SIGKILL}))
	})
}

func TestExitCode(t *testing.T) {
	pipelineErr := &oci.ManifestError{Repository: "library/alpine", Tag: "latest", Err: oci.ErrMediaTypeMismatch}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "command exit code", err: &ExitError{Code: 7}, want: 7},
		{name: "wrapped command exit code", err: fmt.Errorf("run: %w", &ExitError{Code: 3}), want: 3},
		{name: "pipeline failure", err: pipelineErr, want: FrameworkExitCode},
		{name: "wrapped pipeline failure", err: fmt.Errorf("run: %w", pipelineErr), want: FrameworkExitCode},
		{name: "request failure", err: launcher.ErrMissingCommand, want: FrameworkExitCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
