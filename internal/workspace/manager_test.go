package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lantrn/internal/isolation"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return DefaultConfig(filepath.Join(t.TempDir(), "workspaces"))
}

func newTestManager(t *testing.T, cfg Config, rec Recorder) *Manager {
	t.Helper()
	m, err := New(cfg, rec, nil)
	require.NoError(t, err)
	return m
}

func TestNewRejectsEmptyRoot(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Root: " "}, nil, nil)
	assert.Error(t, err)
}

func TestCreateWorkspaceLayout(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig(t), nil)
	id, ictx, err := m.CreateWorkspace(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Regexp(t, `^ws_[0-9a-f]{8}$`, id)
	assert.Equal(t, filepath.Join(m.Root(), id), ictx.Root)

	for _, dir := range []string{isolation.WorkspaceDir, isolation.OutputDir, isolation.LogsDir, ChangesDir} {
		assert.DirExists(t, filepath.Join(ictx.Root, dir))
	}
	assert.FileExists(t, filepath.Join(ictx.Root, isolation.MetadataFile))

	assert.Same(t, ictx, m.GetWorkspace(id))
	assert.NotNil(t, m.GetManifestStore(id))
	assert.NotNil(t, m.GetDiffTracker(id))
	assert.NotNil(t, m.Services(id))
	assert.Equal(t, []string{id}, m.ListWorkspaces())
}

func TestCreateWorkspaceExplicitIDAndDuplicates(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig(t), nil)
	ctx := context.Background()

	id, _, err := m.CreateWorkspace(ctx, "alpha", nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", id)

	_, _, err = m.CreateWorkspace(ctx, "alpha", nil)
	assert.Error(t, err)

	_, _, err = m.CreateWorkspace(ctx, "../escape", nil)
	assert.Error(t, err)
}

func TestCreateWorkspaceEnforcesLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxWorkspaces = 2
	m := newTestManager(t, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := m.CreateWorkspace(ctx, "", nil)
		require.NoError(t, err)
	}
	_, _, err := m.CreateWorkspace(ctx, "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWorkspaceLimit))

	// Cleaning one up frees a slot.
	m.CleanupWorkspace(m.ListWorkspaces()[0])
	_, _, err = m.CreateWorkspace(ctx, "", nil)
	assert.NoError(t, err)
}

func TestCreateWorkspaceUsesGivenPolicy(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig(t), nil)
	policy := isolation.Config{Enabled: true, AllowedPaths: []string{"/opt/data"}}
	_, ictx, err := m.CreateWorkspace(context.Background(), "custom", &policy)
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/data"}, ictx.Config.AllowedPaths)
}

func TestCleanupWorkspaceIsFinal(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig(t), nil)
	id, ictx, err := m.CreateWorkspace(context.Background(), "", nil)
	require.NoError(t, err)

	assert.True(t, m.CleanupWorkspace(id))
	assert.Nil(t, m.GetWorkspace(id))
	assert.Nil(t, m.GetManifestStore(id))
	assert.Nil(t, m.GetDiffTracker(id))
	assert.Nil(t, m.Services(id))
	assert.Empty(t, m.ListWorkspaces())
	assert.NoDirExists(t, ictx.Root)

	assert.False(t, m.CleanupWorkspace(id), "second cleanup is a no-op")
}

func TestCleanupPreservesWithoutAutoCleanup(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.AutoCleanup = false
	m := newTestManager(t, cfg, nil)
	id, ictx, err := m.CreateWorkspace(context.Background(), "", nil)
	require.NoError(t, err)
	assert.True(t, ictx.Config.PreserveOnExit)

	assert.True(t, m.CleanupWorkspace(id))
	assert.Nil(t, m.GetWorkspace(id))
	assert.DirExists(t, ictx.Root)
}

func TestCleanupAll(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig(t), nil)
	for i := 0; i < 3; i++ {
		_, _, err := m.CreateWorkspace(context.Background(), "", nil)
		require.NoError(t, err)
	}
	m.CleanupAll()
	assert.Empty(t, m.ListWorkspaces())
}

func TestOpenWorkspaceAndDiscover(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.AutoCleanup = false
	ctx := context.Background()

	first := newTestManager(t, cfg, nil)
	_, _, err := first.CreateWorkspace(ctx, "one", nil)
	require.NoError(t, err)
	_, _, err = first.CreateWorkspace(ctx, "two", nil)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Root, "stray"), 0o755))

	second := newTestManager(t, cfg, nil)
	ictx, err := second.OpenWorkspace(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Root, "one"), ictx.Root)
	assert.True(t, ictx.Config.PreserveOnExit, "policy comes from metadata")

	_, err = second.OpenWorkspace(ctx, "missing")
	assert.True(t, errors.Is(err, ErrWorkspaceNotFound))

	ids, err := second.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, ids)
}

func TestUnknownWorkspaceLookups(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig(t), nil)

	runs, err := m.RunHistory("nope", "", 0)
	assert.NoError(t, err)
	assert.Nil(t, runs)

	stats, err := m.WorkspaceStats("nope")
	assert.NoError(t, err)
	assert.Nil(t, stats)

	cs, err := m.LoadChangeSet("nope", "run")
	assert.NoError(t, err)
	assert.Nil(t, cs)
}

func TestPruneRemovesOldWorkspaces(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	m := newTestManager(t, cfg, nil)
	ctx := context.Background()

	_, oldCtx, err := m.CreateWorkspace(ctx, "old", nil)
	require.NoError(t, err)
	_, freshCtx, err := m.CreateWorkspace(ctx, "fresh", nil)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Root, "not-a-workspace"), 0o755))

	old := time.Now().Add(-48 * time.Hour)
	ageTree(t, oldCtx.Root, old)
	require.NoError(t, os.Chtimes(filepath.Join(cfg.Root, "not-a-workspace"), old, old))

	report, err := m.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedDirs)
	assert.Empty(t, report.Skipped)
	assert.NoDirExists(t, oldCtx.Root)
	assert.DirExists(t, freshCtx.Root)
	assert.DirExists(t, filepath.Join(cfg.Root, "not-a-workspace"))
	assert.Nil(t, m.GetWorkspace("old"))
	assert.NotNil(t, m.GetWorkspace("fresh"))

	_, err = m.Prune(ctx, 0)
	assert.Error(t, err)
}

func ageTree(t *testing.T, root string, at time.Time) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Chtimes(path, at, at)
	})
	require.NoError(t, err)
}

func TestPruneKeepsRecentlyActiveWorkspace(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	m := newTestManager(t, cfg, nil)
	ctx := context.Background()

	id, ictx, err := m.CreateWorkspace(ctx, "busy", nil)
	require.NoError(t, err)
	run, err := m.StartRun(ctx, id, "long", "", "")
	require.NoError(t, err)
	_, err = m.CompleteRun(ctx, id, run, true, "")
	require.NoError(t, err)

	// Only the root looks old; the stored manifest and change set are fresh.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(ictx.Root, old, old))
	require.NoError(t, os.Chtimes(ictx.WorkspacePath(), old, old))

	report, err := m.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, report.DeletedDirs)
	assert.DirExists(t, ictx.Root)

	ageTree(t, ictx.Root, old)
	report, err = m.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedDirs)
	assert.NoDirExists(t, ictx.Root)
}

func TestPartitions(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig(t), nil)
	id, ictx, err := m.CreateWorkspace(context.Background(), "", nil)
	require.NoError(t, err)
	pm := NewPartitionManager(m)

	p, err := pm.CreatePartition(id, "shard-b")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, filepath.Join(ictx.Root, PartitionsDir, "shard-b"), p.Root)
	for _, dir := range []string{p.DataDir(), p.CacheDir(), p.LogsDir()} {
		assert.DirExists(t, dir)
	}

	again, err := pm.CreatePartition(id, "shard-b")
	require.NoError(t, err)
	assert.Same(t, p, again)

	_, err = pm.CreatePartition(id, "shard-a")
	require.NoError(t, err)

	ids, err := pm.ListPartitions(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"shard-a", "shard-b"}, ids)

	got := pm.GetPartition(id, "shard-a")
	require.NotNil(t, got)
	assert.Equal(t, id, got.WorkspaceID)
	assert.Nil(t, pm.GetPartition(id, "missing"))

	unknown, err := pm.CreatePartition("nope", "x")
	assert.NoError(t, err)
	assert.Nil(t, unknown)

	_, err = pm.CreatePartition(id, "../x")
	assert.Error(t, err)
}
