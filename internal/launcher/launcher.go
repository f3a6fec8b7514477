// Package launcher runs one command inside a freshly pulled image: it fetches
// the image from the registry, unpacks it into a private root, confines the
// process to that root and spawns the command.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/maxdollinger/burrow/pkg/fs"
	"github.com/maxdollinger/burrow/pkg/isolate"
	"github.com/maxdollinger/burrow/pkg/oci"
	"github.com/maxdollinger/burrow/pkg/runner"
)

var ErrMissingCommand = errors.New("missing command")

// Extractor unpacks one compressed layer into a root directory.
type Extractor interface {
	Extract(ctx context.Context, blob []byte, destDir string) error
}

// Runner spawns the user command and waits for it.
type Runner interface {
	Spawn(ctx context.Context, path string, args []string) (runner.ExitOutcome, error)
}

// Request is a single run: which image, which command.
type Request struct {
	Reference oci.Reference
	Command   string   // executable path inside the image, or on the host with CopyCommand
	Args      []string // arguments after the command
	// CopyCommand copies the host executable named by Command into the root
	// and runs that copy instead of the image's file.
	CopyCommand bool
}

// NewRequest parses image and validates the command.
func NewRequest(image, command string, args []string) (Request, error) {
	ref, err := oci.ParseReference(image)
	if err != nil {
		return Request{}, err
	}
	if command == "" {
		return Request{}, ErrMissingCommand
	}

	return Request{
		Reference: ref,
		Command:   command,
		Args:      args,
	}, nil
}

// Result summarizes a completed run.
type Result struct {
	RunID     string
	Reference oci.Reference
	Layers    int
	Outcome   runner.ExitOutcome
	Duration  time.Duration
}

type Options struct {
	WorkDir  string // parent of the per-run workspace, os.TempDir() when empty
	Parallel int    // concurrent layer downloads, <= 1 is strictly sequential
}

type Launcher struct {
	source    oci.Source
	extractor Extractor
	isolator  isolate.Isolator
	runner    Runner
	opts      Options
	logger    *slog.Logger
}

// NewWithDeps assembles a launcher from explicit collaborators.
func NewWithDeps(source oci.Source, extractor Extractor, isolator isolate.Isolator, r Runner, opts Options) *Launcher {
	return &Launcher{
		source:    source,
		extractor: extractor,
		isolator:  isolator,
		runner:    r,
		opts:      opts,
		logger:    slog.Default(),
	}
}

// WithLogger replaces the launcher's logger.
func (l *Launcher) WithLogger(logger *slog.Logger) *Launcher {
	l.logger = logger
	return l
}

// RunOnce performs the whole pipeline for req. Steps run strictly in order
// and none is retried: a failure skips every later step. The workspace is
// removed before RunOnce returns, whatever happened.
//
// A child that exits nonzero is not an error; its code is in Result.Outcome.
// Once the root is confined the process cannot leave it again, so RunOnce is
// meant to be called once per process.
func (l *Launcher) RunOnce(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	logger := l.logger.With("run", runID.String(), "image", req.Reference.String())
	logger.InfoContext(ctx, "starting run", "registry", l.source.Info())

	ws, err := fs.NewWorkspace(l.opts.WorkDir, runID.String())
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ws.WithLogger(logger)
	root := ws.Dir()

	defer func() {
		if err := ws.Remove(ctx); err != nil {
			logger.WarnContext(ctx, "failed to cleanup workspace", "error", err, "path", root)
		}
	}()

	token, err := l.source.RequestToken(ctx, req.Reference.Repository)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	manifest, err := l.source.GetManifest(ctx, req.Reference, token)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	logger.InfoContext(ctx, "manifest resolved", "layers", len(manifest.Layers))

	if err := l.unpack(ctx, logger, req.Reference.Repository, token, manifest.Layers, root); err != nil {
		return nil, err
	}

	policy := runner.PolicyImage
	if req.CopyCommand {
		dest, err := fs.CopyExecutable(req.Command, root)
		if err != nil {
			return nil, fmt.Errorf("copy executable: %w", err)
		}
		logger.DebugContext(ctx, "executable copied", "path", dest)
		policy = runner.PolicyCopied
	}

	if err := l.isolator.Prepare(root); err != nil {
		return nil, fmt.Errorf("prepare root: %w", err)
	}

	if err := l.isolator.Confine(root); err != nil {
		return nil, fmt.Errorf("confine root: %w", err)
	}

	if err := l.isolator.IsolatePidNamespace(); err != nil {
		logger.WarnContext(ctx, "continuing without pid namespace", "error", err)
	}

	path := runner.Resolve(policy, req.Command)
	logger.InfoContext(ctx, "spawning command", "path", path, "policy", policy.String())

	outcome, err := l.runner.Spawn(ctx, path, req.Args)
	if err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}

	duration := time.Since(startTime)
	logger.InfoContext(ctx, "command finished", "outcome", outcome.String(), "duration", duration)

	return &Result{
		RunID:     runID.String(),
		Reference: req.Reference,
		Layers:    len(manifest.Layers),
		Outcome:   outcome,
		Duration:  duration,
	}, nil
}

func (l *Launcher) download(ctx context.Context, repository string, token oci.Token, i, n int, layer oci.Layer) ([]byte, error) {
	blob, err := l.source.GetBlob(ctx, repository, layer.Digest, token)
	if err != nil {
		return nil, fmt.Errorf("download layer %d/%d (%s): %w", i+1, n, layer.Digest, err)
	}
	return blob, nil
}

func (l *Launcher) extract(ctx context.Context, logger *slog.Logger, blob []byte, root string, i, n int, layer oci.Layer) error {
	if err := l.extractor.Extract(ctx, blob, root); err != nil {
		return fmt.Errorf("extract layer %d/%d (%s): %w", i+1, n, layer.Digest, err)
	}

	logger.InfoContext(ctx, "layer extracted",
		"layer", fmt.Sprintf("%d/%d", i+1, n),
		"digest", layer.Digest.String(),
		"size", humanize.Bytes(uint64(len(blob))))

	return nil
}
