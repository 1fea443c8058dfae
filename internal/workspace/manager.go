package workspace

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
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/lantrn/internal/diff"
	"github.com/mattjoyce/lantrn/internal/fsutil"
	"github.com/mattjoyce/lantrn/internal/isolation"
	"github.com/mattjoyce/lantrn/internal/lock"
	"github.com/mattjoyce/lantrn/internal/log"
	"github.com/mattjoyce/lantrn/internal/manifest"
	"github.com/mattjoyce/lantrn/internal/storage"
)

// Manager owns every registered workspace. Registration lives in memory;
// OpenWorkspace and Discover rebuild it from disk in a new process.
type Manager struct {
	cfg      Config
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	workspaces map[string]*isolation.Context
	stores     map[string]*manifest.Store
	trackers   map[string]*diff.Tracker
	services   map[string]*isolation.Services
	locks      map[string]runLock
}

type runLock struct {
	runID string
	lock  *lock.RunLock
}

// New creates a manager rooted at cfg.Root. recorder and logger may be nil.
func New(cfg Config, recorder Recorder, logger *slog.Logger) (*Manager, error) {
	trimmed := strings.TrimSpace(cfg.Root)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace root is empty")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	cfg.Root = abs
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if cfg.LockRuns {
		if err := storage.CheckLocalFilesystem(cfg.Root, "run lock"); err != nil {
			return nil, err
		}
	}

	return &Manager{
		cfg:        cfg,
		recorder:   recorder,
		logger:     log.OrComponent(logger, "workspace"),
		now:        time.Now,
		workspaces: make(map[string]*isolation.Context),
		stores:     make(map[string]*manifest.Store),
		trackers:   make(map[string]*diff.Tracker),
		services:   make(map[string]*isolation.Services),
		locks:      make(map[string]runLock),
	}, nil
}

// Root returns the absolute directory holding all workspaces.
func (m *Manager) Root() string { return m.cfg.Root }

func newWorkspaceID() string {
	return "ws_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateWorkspace sets up a new workspace and registers it. id is generated
// when empty; iso falls back to the manager's isolation policy when nil.
func (m *Manager) CreateWorkspace(ctx context.Context, id string, iso *isolation.Config) (string, *isolation.Context, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if id == "" {
		id = newWorkspaceID()
	}
	if err := fsutil.ValidateName("workspace id", id); err != nil {
		return "", nil, err
	}

	policy := m.cfg.Isolation
	if iso != nil {
		policy = *iso
	}
	if !m.cfg.AutoCleanup {
		policy.PreserveOnExit = true
	}

	root := filepath.Join(m.cfg.Root, id)
	if fsutil.Exists(root) {
		return "", nil, fmt.Errorf("workspace %q already exists at %s", id, root)
	}

	ictx, err := m.register(id, root, policy)
	if err != nil {
		return "", nil, err
	}
	m.logger.Info("workspace created", "workspace_id", id, "root", ictx.Root)
	return id, ictx, nil
}

// OpenWorkspace registers a workspace that already exists on disk, using
// the policy recorded in its isolation.json.
func (m *Manager) OpenWorkspace(ctx context.Context, id string) (*isolation.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fsutil.ValidateName("workspace id", id); err != nil {
		return nil, err
	}
	if ictx := m.GetWorkspace(id); ictx != nil {
		return ictx, nil
	}

	root := filepath.Join(m.cfg.Root, id)
	meta, err := isolation.LoadMetadata(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("open workspace %q: %w", id, err)
	}
	if meta.ID != id {
		return nil, fmt.Errorf("open workspace %q: metadata names %q", id, meta.ID)
	}
	return m.register(id, root, meta.Config)
}

// Discover registers every workspace found under the root and returns the
// ids now registered. Directories without isolation metadata are ignored.
func (m *Manager) Discover(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("read workspace root: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return m.ListWorkspaces(), err
		}
		if !entry.IsDir() || !fsutil.Exists(filepath.Join(m.cfg.Root, entry.Name(), isolation.MetadataFile)) {
			continue
		}
		if _, err := m.OpenWorkspace(ctx, entry.Name()); err != nil {
			if errors.Is(err, ErrWorkspaceLimit) {
				return m.ListWorkspaces(), err
			}
			m.logger.Warn("skipping unreadable workspace", "workspace_id", entry.Name(), "error", err)
		}
	}
	return m.ListWorkspaces(), nil
}

func (m *Manager) register(id, root string, policy isolation.Config) (*isolation.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workspaces[id]; ok {
		return nil, fmt.Errorf("workspace %q is already registered", id)
	}
	if m.cfg.MaxWorkspaces > 0 && len(m.workspaces) >= m.cfg.MaxWorkspaces {
		return nil, fmt.Errorf("%w (%d)", ErrWorkspaceLimit, m.cfg.MaxWorkspaces)
	}

	ictx, err := isolation.NewContext(id, root, policy, m.logger)
	if err != nil {
		return nil, err
	}
	if _, err := ictx.Setup(); err != nil {
		return nil, fmt.Errorf("set up workspace %q: %w", id, err)
	}
	store, err := manifest.NewStore(root)
	if err != nil {
		return nil, err
	}
	tracker, err := diff.NewTracker(ictx.WorkspacePath(),
		diff.WithLogger(m.logger.With(slog.String("workspace_id", id))),
		diff.WithMaxDiffBytes(m.cfg.MaxDiffBytes),
		diff.WithPathFilter(ictx.IsPathAllowed),
	)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(root, ChangesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create changes directory: %w", err)
	}

	m.workspaces[id] = ictx
	m.stores[id] = store
	m.trackers[id] = tracker
	m.services[id] = isolation.NewServices(root, m.logger)
	return ictx, nil
}

// GetWorkspace returns the isolation context for id, or nil.
func (m *Manager) GetWorkspace(id string) *isolation.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workspaces[id]
}

// GetManifestStore returns the manifest store for id, or nil.
func (m *Manager) GetManifestStore(id string) *manifest.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores[id]
}

// GetDiffTracker returns the diff tracker for id, or nil.
func (m *Manager) GetDiffTracker(id string) *diff.Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackers[id]
}

// Services returns the per-service isolation registry for id, or nil.
func (m *Manager) Services(id string) *isolation.Services {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services[id]
}

// ListWorkspaces returns registered ids, sorted.
func (m *Manager) ListWorkspaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.workspaces))
	for id := range m.workspaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) lookup(id string) (*isolation.Context, *manifest.Store, *diff.Tracker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workspaces[id], m.stores[id], m.trackers[id]
}

// CleanupWorkspace unregisters id and cleans up its isolation context. The
// workspace disappears from every lookup at once. It reports false when id
// is not registered.
func (m *Manager) CleanupWorkspace(id string) bool {
	m.mu.Lock()
	ictx, ok := m.workspaces[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	services := m.services[id]
	held, locked := m.locks[id]
	delete(m.workspaces, id)
	delete(m.stores, id)
	delete(m.trackers, id)
	delete(m.services, id)
	delete(m.locks, id)
	m.mu.Unlock()

	if locked {
		if err := held.lock.Release(); err != nil {
			m.logger.Warn("release run lock failed", "workspace_id", id, "error", err)
		}
	}
	if services != nil {
		services.CleanupAll()
	}
	ictx.Cleanup()
	m.logger.Info("workspace cleaned up", "workspace_id", id, "preserved", ictx.Config.PreserveOnExit)
	return true
}

// CleanupAll cleans up every registered workspace.
func (m *Manager) CleanupAll() {
	for _, id := range m.ListWorkspaces() {
		m.CleanupWorkspace(id)
	}
}

// RunHistory lists the workspace's runs newest first. limit <= 0 uses
// DefaultHistoryLimit. Unknown workspaces yield nil.
func (m *Manager) RunHistory(id string, status manifest.Status, limit int) ([]*manifest.RunManifest, error) {
	store := m.GetManifestStore(id)
	if store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return store.List(status, limit)
}

// WorkspaceStats aggregates every stored run. Unknown workspaces yield nil.
func (m *Manager) WorkspaceStats(id string) (*Stats, error) {
	ictx, store, _ := m.lookup(id)
	if store == nil {
		return nil, nil
	}
	runs, err := store.List("", 0)
	if err != nil {
		return nil, err
	}

	s := &Stats{WorkspaceID: id, Root: ictx.Root, TotalRuns: len(runs)}
	for _, r := range runs {
		switch r.Status {
		case manifest.StatusCompleted:
			s.SuccessfulRuns++
		case manifest.StatusFailed:
			s.FailedRuns++
		}
		s.TotalTokens += r.TotalTokens
		s.TotalCost += r.TotalCost
	}
	return s, nil
}

// ChangeSetPath is where the change set for runID is persisted.
func (m *Manager) ChangeSetPath(id, runID string) string {
	return filepath.Join(m.cfg.Root, id, ChangesDir, runID+".json")
}

// LoadChangeSet reads the change set persisted for runID. Unknown
// workspaces and runs without a change set yield nil.
func (m *Manager) LoadChangeSet(id, runID string) (*diff.ChangeSet, error) {
	if m.GetWorkspace(id) == nil {
		return nil, nil
	}
	if err := fsutil.ValidateName("run id", runID); err != nil {
		return nil, fmt.Errorf("%w: %v", manifest.ErrInvalidRunID, err)
	}
	cs, err := diff.LoadChangeSet(m.ChangeSetPath(id, runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return cs, err
}

// Prune removes workspace directories under the root whose last activity
// (see lastActivity) is older than olderThan. Workspaces with a held run lock are
// skipped. Pruned workspaces are also unregistered.
func (m *Manager) Prune(ctx context.Context, olderThan time.Duration) (PruneReport, error) {
	if err := ctx.Err(); err != nil {
		return PruneReport{}, err
	}
	if olderThan <= 0 {
		return PruneReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.cfg.Root)
	if os.IsNotExist(err) {
		return PruneReport{}, nil
	}
	if err != nil {
		return PruneReport{}, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := PruneReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.cfg.Root, entry.Name())
		if !fsutil.Exists(filepath.Join(path, isolation.MetadataFile)) {
			continue
		}

		active, err := lastActivity(path)
		if err != nil {
			return report, fmt.Errorf("read workspace activity %q: %w", entry.Name(), err)
		}
		if active.After(cutoff) {
			continue
		}

		held, err := lock.Acquire(filepath.Join(path, RunLockFile), "prune")
		if err != nil {
			m.logger.Warn("prune skipped busy workspace", "workspace_id", entry.Name(), "error", err)
			report.Skipped = append(report.Skipped, entry.Name())
			continue
		}
		m.forget(entry.Name())
		err = os.RemoveAll(path)
		_ = held.Release()
		if err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
		m.logger.Info("workspace pruned", "workspace_id", entry.Name(), "last_activity", active)
	}

	return report, nil
}

// lastActivity is the newest mtime among a workspace root, its working
// directory, and the entries of its manifest, change and log directories.
// Writes deeper in the working directory are not seen.
func lastActivity(root string) (time.Time, error) {
	info, err := os.Stat(root)
	if err != nil {
		return time.Time{}, err
	}
	latest := info.ModTime()
	bump := func(t time.Time) {
		if t.After(latest) {
			latest = t
		}
	}

	if info, err := os.Stat(filepath.Join(root, isolation.WorkspaceDir)); err == nil {
		bump(info.ModTime())
	}
	for _, dir := range []string{manifest.ManifestsDir, ChangesDir, isolation.LogsDir} {
		entries, err := os.ReadDir(filepath.Join(root, dir))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if info, err := e.Info(); err == nil {
				bump(info.ModTime())
			}
		}
	}
	return latest, nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workspaces, id)
	delete(m.stores, id)
	delete(m.trackers, id)
	delete(m.services, id)
	delete(m.locks, id)
}

// LoadRun reads one stored manifest. Unknown workspaces and runs yield nil.
func (m *Manager) LoadRun(id, runID string) (*manifest.RunManifest, error) {
	store := m.GetManifestStore(id)
	if store == nil {
		return nil, nil
	}
	return store.Load(runID)
}
