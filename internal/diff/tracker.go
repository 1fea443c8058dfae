package diff

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mattjoyce/lantrn/internal/log"
)

const (
	// SnapshotsDirName is the tracker's internal storage directory under the
	// tracked root. Scans never report files inside it.
	SnapshotsDirName = ".snapshots"

	// DefaultMaxDiffBytes bounds the size of files whose content is retained
	// for line diffs.
	DefaultMaxDiffBytes int64 = 1 << 20
)

// Outcome is the per-path result of a capture.
type Outcome string

const (
	OutcomeCaptured Outcome = "captured"
	OutcomeMissing  Outcome = "missing"
	OutcomeFailed   Outcome = "failed"
)

// CaptureResult is what happened to one path during a capture.
type CaptureResult struct {
	Path     string
	Snapshot Snapshot
	Outcome  Outcome
	Err      error
}

// CaptureReport lists per-path capture results in request order.
type CaptureReport struct {
	Results []CaptureResult
}

// Snapshots returns the captured snapshots keyed by absolute path.
func (r *CaptureReport) Snapshots() map[string]Snapshot {
	out := make(map[string]Snapshot, len(r.Results))
	for _, res := range r.Results {
		out[res.Path] = res.Snapshot
	}
	return out
}

// Failed returns the results whose read failed.
func (r *CaptureReport) Failed() []CaptureResult {
	var out []CaptureResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Partial reports whether any path failed to capture.
func (r *CaptureReport) Partial() bool {
	return len(r.Failed()) > 0
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithMaxDiffBytes bounds the file size retained for line diffs. Zero or
// negative disables content retention, so no diff lines are produced.
func WithMaxDiffBytes(n int64) Option {
	return func(t *Tracker) { t.maxDiffBytes = n }
}

// WithPathFilter limits content retention to paths allow accepts. Paths it
// rejects are still hashed, so their changes are reported without lines.
func WithPathFilter(allow func(path string) bool) Option {
	return func(t *Tracker) { t.allow = allow }
}

// Tracker records before/after snapshots for files under a root directory
// and computes change sets from them. Captures must be issued in order:
// before, then after, then ComputeChangeSet. Nothing detects an
// out-of-order sequence.
type Tracker struct {
	root         string
	realRoot     string
	snapshotsDir string
	allow        func(path string) bool
	blobs        *blobStore
	maxDiffBytes int64
	logger       *slog.Logger

	mu         sync.Mutex
	before     map[string]Snapshot
	after      map[string]Snapshot
	changeSets []*ChangeSet
}

// NewTracker creates a tracker rooted at root, creating root and its
// snapshot directory if needed.
func NewTracker(root string, opts ...Option) (*Tracker, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("tracker root is empty")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve tracker root: %w", err)
	}

	t := &Tracker{
		root:         abs,
		snapshotsDir: filepath.Join(abs, SnapshotsDirName),
		maxDiffBytes: DefaultMaxDiffBytes,
		before:       make(map[string]Snapshot),
		after:        make(map[string]Snapshot),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = log.OrComponent(t.logger, "diff")
	t.blobs = &blobStore{dir: filepath.Join(t.snapshotsDir, "objects")}

	if err := os.MkdirAll(t.snapshotsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	t.realRoot = abs
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		t.realRoot = real
	}
	return t, nil
}

// Root returns the absolute tracked root.
func (t *Tracker) Root() string { return t.root }

// ScanWorkspace lists files under the root whose root-relative path matches
// pattern ("**/*" when empty), excluding the snapshot directory. Unreadable
// directories are logged and skipped. Results are sorted.
func (t *Tracker) ScanWorkspace(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := matchPattern(pattern, "x"); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var files []string
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == t.root {
				return walkErr
			}
			t.logger.Warn("scan skipped unreadable entry", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == t.snapshotsDir {
			return fs.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		if !isRegularFile(path, d) {
			return nil
		}

		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return fmt.Errorf("resolve relative path: %w", err)
		}
		ok, _ := matchPattern(pattern, filepath.ToSlash(rel))
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", t.root, err)
	}
	sort.Strings(files)
	return files, nil
}

func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CaptureBefore snapshots paths into the before table. Relative paths are
// resolved against the root. Repeated calls overwrite only the paths given.
// A cancelled context stops the capture; paths captured so far stay recorded.
func (t *Tracker) CaptureBefore(ctx context.Context, paths []string) (*CaptureReport, error) {
	return t.captureInto(ctx, paths, true)
}

// CaptureAfter snapshots paths into the after table. See CaptureBefore.
func (t *Tracker) CaptureAfter(ctx context.Context, paths []string) (*CaptureReport, error) {
	return t.captureInto(ctx, paths, false)
}

func (t *Tracker) captureInto(ctx context.Context, paths []string, before bool) (*CaptureReport, error) {
	report := &CaptureReport{Results: make([]CaptureResult, 0, len(paths))}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		abs := t.resolve(p)
		res := t.captureOne(abs)
		report.Results = append(report.Results, res)

		t.mu.Lock()
		if before {
			t.before[abs] = res.Snapshot
		} else {
			t.after[abs] = res.Snapshot
		}
		t.mu.Unlock()
	}
	return report, nil
}

func (t *Tracker) captureOne(abs string) CaptureResult {
	keep := t.maxDiffBytes
	if !t.retainable(abs) {
		keep = -1
	}
	snap, content, err := capture(abs, keep)
	if err != nil {
		t.logger.Warn("snapshot capture failed; recording path as absent", "path", abs, "error", err)
		return CaptureResult{Path: abs, Snapshot: Missing(abs), Outcome: OutcomeFailed, Err: err}
	}
	if !snap.Exists {
		return CaptureResult{Path: abs, Snapshot: snap, Outcome: OutcomeMissing}
	}
	if content != nil && isText(content) {
		if err := t.blobs.put(snap.ContentHash, content); err != nil {
			t.logger.Warn("retain snapshot content failed", "path", abs, "error", err)
		}
	}
	return CaptureResult{Path: abs, Snapshot: snap, Outcome: OutcomeCaptured}
}

// retainable reports whether content read through abs may be kept. The
// symlink-resolved target must stay under the root and pass the path filter.
func (t *Tracker) retainable(abs string) bool {
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(t.realRoot, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return t.allow == nil || t.allow(abs)
}

func (t *Tracker) resolve(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(t.root, p)
	}
	return filepath.Clean(p)
}

// ComputeDiff compares the recorded before/after snapshots of path. Missing
// table entries count as not existing.
func (t *Tracker) ComputeDiff(path string) FileDiff {
	abs := t.resolve(path)

	t.mu.Lock()
	var oldSnap, newSnap *Snapshot
	if s, ok := t.before[abs]; ok {
		oldSnap = &s
	}
	if s, ok := t.after[abs]; ok {
		newSnap = &s
	}
	t.mu.Unlock()

	fd := FileDiff{
		Path:       abs,
		Old:        oldSnap,
		New:        newSnap,
		ChangeType: Classify(oldSnap, newSnap),
	}
	if fd.ChangeType == ChangeCreated || fd.ChangeType == ChangeModified {
		fd.Lines = t.diffLines(fd)
	}
	return fd
}

// diffLines builds the unified diff from retained content. Content that was
// not retained (binary, too large, unreadable) yields no lines; the change
// type still stands on the hashes.
func (t *Tracker) diffLines(fd FileDiff) []string {
	newContent, ok := t.blobs.get(fd.New.ContentHash)
	if !ok {
		return nil
	}
	oldContent := ""
	if fd.Old != nil && fd.Old.Exists {
		b, ok := t.blobs.get(fd.Old.ContentHash)
		if !ok {
			return nil
		}
		oldContent = string(b)
	}

	lines, err := UnifiedLines(diffName(fd.Path), oldContent, string(newContent))
	if err != nil {
		t.logger.Debug("unified diff failed", "path", fd.Path, "error", err)
		return nil
	}
	return lines
}

// ComputeChangeSet diffs paths (every path ever captured when nil), orders
// the diffs by path, and appends the resulting change set to the history.
// It does not rescan: paths never captured are absent from the result.
func (t *Tracker) ComputeChangeSet(description string, paths []string) *ChangeSet {
	if paths == nil {
		paths = t.trackedPaths()
	} else {
		resolved := make([]string, 0, len(paths))
		for _, p := range paths {
			resolved = append(resolved, t.resolve(p))
		}
		sort.Strings(resolved)
		paths = resolved
	}

	diffs := make([]FileDiff, 0, len(paths))
	for _, p := range paths {
		diffs = append(diffs, t.ComputeDiff(p))
	}

	cs := newChangeSet(description, diffs)

	t.mu.Lock()
	t.changeSets = append(t.changeSets, cs)
	t.mu.Unlock()
	return cs
}

func (t *Tracker) trackedPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{}, len(t.before)+len(t.after))
	for p := range t.before {
		seen[p] = struct{}{}
	}
	for p := range t.after {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ChangeSets returns the change sets computed so far, oldest first.
func (t *Tracker) ChangeSets() []*ChangeSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*ChangeSet(nil), t.changeSets...)
}

// SaveChangeSet persists cs to path.
func (t *Tracker) SaveChangeSet(cs *ChangeSet, path string) error {
	return SaveChangeSet(cs, path)
}

// ResetSnapshots drops both snapshot tables but keeps the change-set history
// and retained content. Call it before the baseline capture of a new
// interval so entries from an earlier interval cannot leak into its diff.
func (t *Tracker) ResetSnapshots() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.before = make(map[string]Snapshot)
	t.after = make(map[string]Snapshot)
}

// Clear drops both snapshot tables, the change-set history and retained
// content.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	t.before = make(map[string]Snapshot)
	t.after = make(map[string]Snapshot)
	t.changeSets = nil
	t.mu.Unlock()

	if err := t.blobs.clear(); err != nil {
		return fmt.Errorf("clear snapshot content: %w", err)
	}
	return nil
}

// TrackChanges scans and captures the whole root, runs fn, scans and
// captures again, and returns the change set. The after capture covers
// files that existed before as well, so deletions are reported. If fn
// fails, its error is returned together with the change set of whatever it
// did before failing.
func (t *Tracker) TrackChanges(ctx context.Context, description string, fn func(context.Context) error) (*ChangeSet, error) {
	beforeFiles, err := t.ScanWorkspace(ctx, DefaultPattern)
	if err != nil {
		return nil, err
	}
	if _, err := t.CaptureBefore(ctx, beforeFiles); err != nil {
		return nil, err
	}

	fnErr := fn(ctx)

	afterFiles, err := t.ScanWorkspace(ctx, DefaultPattern)
	if err != nil {
		return nil, errors.Join(fnErr, err)
	}
	if _, err := t.CaptureAfter(ctx, union(beforeFiles, afterFiles)); err != nil {
		return nil, errors.Join(fnErr, err)
	}

	return t.ComputeChangeSet(description, nil), fnErr
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
