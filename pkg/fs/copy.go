package fs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecutableMode is the permission set given to executables copied into a root.
const ExecutableMode os.FileMode = 0o755

// CopyExecutable copies the host executable named by src into the top level
// of rootDir and returns the destination path. A bare name without a path
// separator is looked up in the host PATH first.
func CopyExecutable(src, rootDir string) (string, error) {
	hostPath := src
	if !strings.ContainsRune(src, os.PathSeparator) {
		found, err := exec.LookPath(src)
		if err != nil {
			return "", fmt.Errorf("look up %s: %w", src, err)
		}
		hostPath = found
	}

	file, err := os.Open(hostPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", hostPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", hostPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", hostPath, ErrNotRegularFile)
	}

	dest := filepath.Join(rootDir, filepath.Base(hostPath))
	if err := replaceExisting(dest, false); err != nil {
		return "", err
	}
	if err := WriteFileAtomic(dest, file, ExecutableMode); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}

	return dest, nil
}
