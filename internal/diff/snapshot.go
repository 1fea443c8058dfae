// Package diff captures point-in-time file snapshots and turns before/after
// snapshot pairs into per-file diffs and change sets.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// Snapshot records one file's existence, size, modification time and
// SHA-256 content hash. A missing file has an empty hash and zero size.
type Snapshot struct {
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
	Exists      bool      `json:"exists"`
}

var nowFunc = time.Now

// Missing returns the snapshot of a path that does not exist. ModifiedAt is
// the capture time since there is no file time to record.
func Missing(path string) Snapshot {
	return Snapshot{
		Path:       path,
		ModifiedAt: nowFunc().UTC(),
	}
}

// Capture snapshots path. A non-existent path is not an error and yields
// Missing(path). Any other stat or read failure is returned.
func Capture(path string) (Snapshot, error) {
	snap, _, err := capture(path, 0)
	return snap, err
}

// capture hashes path and, when the file is at most keepBytes long, also
// returns its content so the caller can retain it for line diffs.
func capture(path string, keepBytes int64) (Snapshot, []byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Missing(path), nil, nil
	}
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("stat %q: %w", path, err)
	}
	if info.IsDir() {
		return Snapshot{}, nil, fmt.Errorf("snapshot %q: is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	var content []byte
	if info.Size() <= keepBytes {
		content, err = io.ReadAll(f)
		if err != nil {
			return Snapshot{}, nil, fmt.Errorf("read %q: %w", path, err)
		}
		h.Write(content)
	} else if _, err := io.Copy(h, f); err != nil {
		return Snapshot{}, nil, fmt.Errorf("read %q: %w", path, err)
	}

	return Snapshot{
		Path:        path,
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		Size:        info.Size(),
		ModifiedAt:  info.ModTime().UTC(),
		Exists:      true,
	}, content, nil
}
