// Package fs provides the filesystem side of a run: unpacking image layers
// into a root directory, owning that directory's lifetime and placing extra
// executables into it.
//
// The Extractor applies gzip-compressed tar layers one at a time. Applying
// layers in manifest order gives layered-filesystem semantics:
//   - Later layers overwrite files of earlier layers
//   - Directories are merged
//   - Entries climbing out of the root are rejected
//   - Symlinks planted by earlier entries never redirect writes outside the root
//   - Whiteout markers (.wh.*) are plain files unless Whiteouts is set
package fs

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/gzip"
)

const (
	whiteoutPrefix = ".wh."
	opaqueWhiteout = ".wh..wh..opaque"

	// permission and special bits restored from the archive
	modeBits = iofs.ModePerm | iofs.ModeSetuid | iofs.ModeSetgid | iofs.ModeSticky
)

// Extractor unpacks layer blobs into a destination directory.
type Extractor struct {
	// Whiteouts applies OCI whiteout markers as deletions. When false the
	// markers are extracted like any other file.
	Whiteouts bool

	logger *slog.Logger
}

func NewExtractor() *Extractor {
	return &Extractor{
		logger: slog.Default(),
	}
}

// WithLogger replaces the extractor's logger.
func (e *Extractor) WithLogger(logger *slog.Logger) *Extractor {
	e.logger = logger
	return e
}

// Extract treats blob as a gzip-compressed tar stream and unpacks every
// entry into destDir, overwriting whatever earlier layers left there.
func (e *Extractor) Extract(ctx context.Context, blob []byte, destDir string) error {
	return e.ExtractReader(ctx, bytes.NewReader(blob), destDir)
}

// ExtractReader is Extract for a streamed layer.
func (e *Extractor) ExtractReader(ctx context.Context, r io.Reader, destDir string) error {
	root, err := filepath.Abs(destDir)
	if err != nil {
		return &ExtractError{Dest: destDir, Err: fmt.Errorf("resolve destination: %w", err)}
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return &ExtractError{Dest: root, Err: fmt.Errorf("create destination: %w", err)}
	}

	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return &ExtractError{Dest: root, Err: fmt.Errorf("decompress gzip: %w", err)}
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	dirs := newDirModes()

	for {
		if err := ctx.Err(); err != nil {
			return &ExtractError{Dest: root, Err: err}
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ExtractError{Dest: root, Err: fmt.Errorf("read tar header: %w", err)}
		}

		if e.Whiteouts && isWhiteout(header.Name) {
			if err := e.handleWhiteout(root, header.Name); err != nil {
				return &ExtractError{Dest: root, Entry: header.Name, Err: fmt.Errorf("handle whiteout: %w", err)}
			}
			continue
		}

		if err := e.extractTarEntry(ctx, root, header, tarReader, dirs); err != nil {
			return &ExtractError{Dest: root, Entry: header.Name, Err: err}
		}
	}

	if err := dirs.apply(); err != nil {
		return &ExtractError{Dest: root, Err: err}
	}

	return nil
}

// dirModes holds archive directory modes until every entry of a layer is
// written, so a read-only directory does not block its own children.
type dirModes struct {
	paths []string
	modes map[string]os.FileMode
}

func newDirModes() *dirModes {
	return &dirModes{modes: make(map[string]os.FileMode)}
}

func (d *dirModes) record(path string, mode os.FileMode) {
	if _, ok := d.modes[path]; !ok {
		d.paths = append(d.paths, path)
	}
	d.modes[path] = mode
}

// apply walks the directories deepest-first in reverse archive order. Paths
// removed or replaced by a later entry of the same layer are skipped.
func (d *dirModes) apply() error {
	for i := len(d.paths) - 1; i >= 0; i-- {
		path := d.paths[i]
		info, err := os.Lstat(path)
		if errors.Is(err, iofs.ErrNotExist) || (err == nil && !info.IsDir()) {
			continue
		}
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if err := os.Chmod(path, d.modes[path]); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	return nil
}

func isWhiteout(name string) bool {
	return strings.HasPrefix(filepath.Base(filepath.Clean(name)), whiteoutPrefix)
}

// handleWhiteout removes the file named by a whiteout marker, or empties the
// marker's directory for an opaque whiteout.
func (e *Extractor) handleWhiteout(root, marker string) error {
	markerPath, err := entryPath(root, marker)
	if err != nil {
		return err
	}
	dir, file := filepath.Split(markerPath)

	if file == opaqueWhiteout {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("read opaque directory: %w", err)
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("clear opaque directory: %w", err)
			}
		}
		return nil
	}

	target := filepath.Join(dir, strings.TrimPrefix(file, whiteoutPrefix))
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove whited-out path: %w", err)
	}

	return nil
}

// extractTarEntry materializes a single tar entry below root.
func (e *Extractor) extractTarEntry(ctx context.Context, root string, header *tar.Header, reader io.Reader, dirs *dirModes) error {
	targetPath, err := entryPath(root, header.Name)
	if err != nil {
		return err
	}
	mode := header.FileInfo().Mode() & modeBits

	switch header.Typeflag {
	case tar.TypeDir:
		if err := replaceExisting(targetPath, true); err != nil {
			return err
		}
		if err := os.MkdirAll(targetPath, 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// owner keeps write access until the layer is done
		if err := os.Chmod(targetPath, mode|0o700); err != nil {
			return fmt.Errorf("chmod: %w", err)
		}
		dirs.record(targetPath, mode)
		// Restore ownership if possible (may require root)
		_ = os.Lchown(targetPath, header.Uid, header.Gid)

	case tar.TypeReg:
		if err := prepareParent(targetPath); err != nil {
			return err
		}
		if err := replaceExisting(targetPath, false); err != nil {
			return err
		}
		if err := writeFile(targetPath, reader, mode); err != nil {
			return err
		}
		_ = os.Lchown(targetPath, header.Uid, header.Gid)
		_ = os.Chtimes(targetPath, header.AccessTime, header.ModTime)

	case tar.TypeSymlink:
		if err := prepareParent(targetPath); err != nil {
			return err
		}
		if err := replaceExisting(targetPath, false); err != nil {
			return err
		}
		if err := os.Symlink(header.Linkname, targetPath); err != nil {
			return fmt.Errorf("create symlink: %w", err)
		}
		_ = os.Lchown(targetPath, header.Uid, header.Gid)

	case tar.TypeLink:
		linkTarget, err := entryPath(root, header.Linkname)
		if err != nil {
			return fmt.Errorf("hardlink target: %w", err)
		}
		if err := prepareParent(targetPath); err != nil {
			return err
		}
		if err := replaceExisting(targetPath, false); err != nil {
			return err
		}
		if err := os.Link(linkTarget, targetPath); err != nil {
			return fmt.Errorf("create hardlink: %w", err)
		}

	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		// device nodes are synthesized by the isolator
		e.logger.DebugContext(ctx, "skipping special file", "name", header.Name, "type", string(header.Typeflag))

	case tar.TypeXGlobalHeader:
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEntry, string(header.Typeflag))
	}

	return nil
}

// entryPath maps an archive member name to a path below root. Absolute names
// are re-rooted, names climbing above root are rejected and symlinks in the
// parent chain are resolved without leaving root. The final component is
// returned unresolved so an existing symlink there is replaced, not followed.
func entryPath(root, name string) (string, error) {
	rel := filepath.Clean(strings.TrimLeft(filepath.FromSlash(name), string(filepath.Separator)))
	if rel == "." {
		return root, nil
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}

	parent, err := securejoin.SecureJoin(root, filepath.Dir(rel))
	if err != nil {
		return "", fmt.Errorf("resolve parent of %s: %w", name, err)
	}

	return filepath.Join(parent, filepath.Base(rel)), nil
}

func prepareParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}
	return nil
}

// replaceExisting clears path so a new entry can take its place. An existing
// directory survives when keepDir is set, which merges directory entries of
// consecutive layers.
func replaceExisting(path string, keepDir bool) error {
	info, err := os.Lstat(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat existing: %w", err)
	}

	if info.IsDir() {
		if keepDir {
			return nil
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove existing directory: %w", err)
		}
		return nil
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove existing: %w", err)
	}
	return nil
}

func writeFile(path string, content io.Reader, mode os.FileMode) (err error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	if _, err := io.Copy(file, content); err != nil {
		return fmt.Errorf("copy file content: %w", err)
	}

	// explicit chmod so the umask does not alter archive permissions
	if err := file.Chmod(mode); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}

	return nil
}
