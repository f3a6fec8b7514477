package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const workspacePrefix = "burrow-"

// Workspace is the private directory a single run extracts its image into.
//
// Removal goes through a handle on the parent directory that is opened when
// the workspace is created. The handle keeps working after the process has
// been confined to the workspace itself, where the host path no longer
// resolves.
type Workspace struct {
	dir    string
	parent *os.Root
	logger *slog.Logger

	once      sync.Once
	removeErr error
}

// NewWorkspace creates a fresh directory named burrow-<id>-* below baseDir.
// An empty baseDir selects os.TempDir().
func NewWorkspace(baseDir, id string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	dir, err := os.MkdirTemp(base, workspacePrefix+id+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	// the root of the image must be traversable by unprivileged users
	if err := os.Chmod(dir, 0o755); err != nil {
		_ = os.Remove(dir)
		return nil, fmt.Errorf("chmod workspace: %w", err)
	}

	parent, err := os.OpenRoot(base)
	if err != nil {
		_ = os.Remove(dir)
		return nil, fmt.Errorf("open work dir: %w", err)
	}

	return &Workspace{
		dir:    dir,
		parent: parent,
		logger: slog.Default(),
	}, nil
}

// WithLogger replaces the workspace's logger.
func (w *Workspace) WithLogger(logger *slog.Logger) *Workspace {
	w.logger = logger
	return w
}

// Dir returns the absolute host path of the workspace.
func (w *Workspace) Dir() string {
	return w.dir
}

// Remove deletes the workspace and everything below it. It is safe to call
// more than once; later calls return the first result.
func (w *Workspace) Remove(ctx context.Context) error {
	w.once.Do(func() {
		name := filepath.Base(w.dir)
		w.logger.DebugContext(ctx, "removing workspace", "path", w.dir)

		if err := w.parent.RemoveAll(name); err != nil {
			w.removeErr = fmt.Errorf("remove workspace %s: %w", w.dir, err)
		}
		if err := w.parent.Close(); err != nil && w.removeErr == nil {
			w.removeErr = fmt.Errorf("close work dir: %w", err)
		}
	})

	return w.removeErr
}
