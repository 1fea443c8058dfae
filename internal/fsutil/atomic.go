// Package fsutil holds small filesystem helpers shared by the file-per-record
// stores.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into %q: %w", path, err)
	}
	return nil
}

// ValidateName checks that name can be used as a single path element.
// kind names the value in error messages.
func ValidateName(kind, name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%s is empty", kind)
	}
	if trimmed != name {
		return fmt.Errorf("%s %q has surrounding whitespace", kind, name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%s %q is invalid", kind, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%s %q must not contain path separators", kind, name)
	}
	if filepath.Clean(name) != name {
		return fmt.Errorf("%s %q is invalid", kind, name)
	}
	return nil
}

// Exists reports whether path exists. Errors other than not-exist count as
// existing so callers do not silently overwrite.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
