package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattjoyce/lantrn/internal/fsutil"
)

// ManifestsDir is the store's subdirectory under its base directory.
const ManifestsDir = "manifests"

// Store keeps one JSON file per run under <base>/manifests. Writers for
// different run ids never conflict; the last write for an id wins.
type Store struct {
	dir string
}

// NewStore creates the manifests directory under baseDir.
func NewStore(baseDir string) (*Store, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("manifest store base directory is empty")
	}
	dir := filepath.Join(filepath.Clean(trimmed), ManifestsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifests directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the manifests directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(runID string) (string, error) {
	if err := fsutil.ValidateName("run id", runID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRunID, err)
	}
	return filepath.Join(s.dir, runID+".json"), nil
}

// Save writes m to <run_id>.json, replacing any previous version, and
// returns the file path.
func (s *Store) Save(m *RunManifest) (string, error) {
	path, err := s.path(m.ID)
	if err != nil {
		return "", err
	}
	data, err := m.ToJSON()
	if err != nil {
		return "", fmt.Errorf("encode run manifest %s: %w", m.ID, err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save run manifest %s: %w", m.ID, err)
	}
	return path, nil
}

// Load reads the manifest for runID. It returns nil, nil when no manifest
// exists and an error when the file is corrupt.
func (s *Store) Load(runID string) (*RunManifest, error) {
	path, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run manifest %s: %w", runID, err)
	}
	return FromJSON(data)
}

// List returns manifests newest first. A non-empty status keeps only runs
// in that status; the filter is applied before limit, so up to limit
// matching runs are returned. limit <= 0 means no limit.
func (s *Store) List(status Status, limit int) ([]*RunManifest, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}

	var out []*RunManifest
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		m, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ids lists stored run ids, newest first.
func (s *Store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifests directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Delete removes the manifest for runID and reports whether it existed.
func (s *Store) Delete(runID string) (bool, error) {
	path, err := s.path(runID)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete run manifest %s: %w", runID, err)
	}
	return true, nil
}
