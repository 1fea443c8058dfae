package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// errDetectUnsupported means the platform cannot report a filesystem type.
// Such paths pass the check.
var errDetectUnsupported = errors.New("filesystem detection unsupported")

// CheckLocalFilesystem rejects paths that live on a network filesystem,
// where SQLite locking and flock(2) cannot be trusted. purpose names the
// file in the error, e.g. "run ledger" or "run lock".
func CheckLocalFilesystem(path, purpose string) error {
	return checkLocalFilesystem(path, purpose, filesystemType)
}

func checkLocalFilesystem(path, purpose string, detect func(string) (string, bool, error)) error {
	if path == "" {
		return fmt.Errorf("%s path is empty", purpose)
	}

	probe, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve %s path %q: %w", purpose, path, err)
	}

	fsType, network, err := detect(probe)
	if errors.Is(err, errDetectUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", probe, err)
	}
	if network {
		return fmt.Errorf("%s path %q is on network filesystem %s; use a path on local disk", purpose, path, fsType)
	}
	return nil
}

// existingAncestor returns path or its closest existing parent.
func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}
