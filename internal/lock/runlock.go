// Package lock provides an exclusive advisory file lock that records who
// holds it.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLocked is returned by Acquire when another holder has the lock.
var ErrLocked = errors.New("lock is held")

// Holder describes the current lock owner. It is written into the lock
// file on acquisition.
type Holder struct {
	PID        int       `json:"pid"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// RunLock is an exclusive flock(2) on a file. The lock lives as long as the
// file descriptor stays open.
type RunLock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock at lockPath and records
// owner in it. If the lock is held elsewhere the error wraps ErrLocked.
func Acquire(lockPath, owner string) (*RunLock, error) {
	if lockPath == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", lockPath, ErrLocked)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	l := &RunLock{path: lockPath, f: f}
	if err := l.writeHolder(Holder{PID: os.Getpid(), Owner: owner, AcquiredAt: time.Now().UTC()}); err != nil {
		_ = l.Release()
		return nil, err
	}
	return l, nil
}

func (l *RunLock) writeHolder(h Holder) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode lock holder: %w", err)
	}
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := l.f.WriteAt(append(data, '\n'), 0); err != nil {
		return fmt.Errorf("write lock holder: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

func (l *RunLock) Path() string { return l.path }

// Release clears the holder record and drops the lock. It is safe to call
// more than once.
func (l *RunLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Truncate(0)
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadHolder returns the holder recorded at lockPath. ok is false when the
// file is missing or empty, meaning nobody holds the lock.
func ReadHolder(lockPath string) (h Holder, ok bool, err error) {
	data, err := os.ReadFile(lockPath)
	if errors.Is(err, os.ErrNotExist) {
		return Holder{}, false, nil
	}
	if err != nil {
		return Holder{}, false, fmt.Errorf("read lock file: %w", err)
	}
	if len(data) == 0 {
		return Holder{}, false, nil
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return Holder{}, false, fmt.Errorf("decode lock holder: %w", err)
	}
	return h, true, nil
}
