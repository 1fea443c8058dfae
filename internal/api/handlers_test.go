package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lantrn/internal/ledger"
	"github.com/mattjoyce/lantrn/internal/storage"
	"github.com/mattjoyce/lantrn/internal/workspace"
)

const testKey = "test-key"

type fixture struct {
	handler http.Handler
	wsID    string
	runID   string
	failID  string
}

func newFixture(t *testing.T, withLedger bool) *fixture {
	t.Helper()
	ctx := context.Background()

	var (
		rec     workspace.Recorder
		history History
	)
	if withLedger {
		db, err := storage.OpenSQLite(ctx, storage.MemoryPath)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		l := ledger.New(db)
		rec, history = l, l
	}

	mgr, err := workspace.New(workspace.DefaultConfig(filepath.Join(t.TempDir(), "ws")), rec, nil)
	require.NoError(t, err)
	id, ictx, err := mgr.CreateWorkspace(ctx, "", nil)
	require.NoError(t, err)

	run, err := mgr.StartRun(ctx, id, "good", "", "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ictx.WorkspacePath(), "out.txt"), []byte("hi\n"), 0o644))
	_, err = mgr.CompleteRun(ctx, id, run, true, "")
	require.NoError(t, err)

	failed, err := mgr.StartRun(ctx, id, "bad", "", "")
	require.NoError(t, err)
	_, err = mgr.CompleteRun(ctx, id, failed, false, "exit 2")
	require.NoError(t, err)

	srv := New(Config{APIKey: testKey}, mgr, history, nil)
	return &fixture{handler: srv.Handler(), wsID: id, runID: run.ID, failID: failed.ID}
}

func (f *fixture) get(t *testing.T, path string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	rr := f.get(t, "/healthz", false)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[HealthzResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Workspaces)
	assert.False(t, resp.LedgerEnabled)
}

func TestProtectedRoutesRequireKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	rr := f.get(t, "/workspaces", false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rr).Error)

	req := httptest.NewRequest(http.MethodGet, "/workspaces", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWorkspacesAndStats(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	list := decode[WorkspacesResponse](t, f.get(t, "/workspaces", true))
	require.Len(t, list.Workspaces, 1)
	assert.Equal(t, f.wsID, list.Workspaces[0].WorkspaceID)

	rr := f.get(t, "/workspaces/"+f.wsID+"/stats", true)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[workspace.Stats](t, rr)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.SuccessfulRuns)
	assert.Equal(t, 1, stats.FailedRuns)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/workspaces/nope/stats", true).Code)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	all := decode[RunsResponse](t, f.get(t, "/workspaces/"+f.wsID+"/runs", true))
	require.Len(t, all.Runs, 2)
	assert.Equal(t, f.failID, all.Runs[0].ID)

	failed := decode[RunsResponse](t, f.get(t, "/workspaces/"+f.wsID+"/runs?status=failed", true))
	require.Len(t, failed.Runs, 1)
	require.NotNil(t, failed.Runs[0].Error)
	assert.Equal(t, "exit 2", *failed.Runs[0].Error)

	limited := decode[RunsResponse](t, f.get(t, "/workspaces/"+f.wsID+"/runs?limit=1", true))
	assert.Len(t, limited.Runs, 1)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/workspaces/"+f.wsID+"/runs?status=bogus", true).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/workspaces/"+f.wsID+"/runs?limit=x", true).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/workspaces/nope/runs", true).Code)
}

func TestGetRunAndChanges(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	rr := f.get(t, "/workspaces/"+f.wsID+"/runs/"+f.runID, true)
	require.Equal(t, http.StatusOK, rr.Code)
	run := decode[map[string]any](t, rr)
	assert.Equal(t, f.runID, run["id"])
	assert.Equal(t, "completed", run["status"])

	rr = f.get(t, "/workspaces/"+f.wsID+"/runs/"+f.runID+"/changes", true)
	require.Equal(t, http.StatusOK, rr.Code)
	cs := decode[map[string]any](t, rr)
	summary, ok := cs["summary"].(map[string]any)
	require.True(t, ok, "change set body has a summary: %v", cs)
	assert.EqualValues(t, 1, summary["created"])

	assert.Equal(t, http.StatusNotFound, f.get(t, "/workspaces/"+f.wsID+"/runs/missing", true).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/workspaces/nope/runs/"+f.runID, true).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/workspaces/"+f.wsID+"/runs/missing/changes", true).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/workspaces/"+f.wsID+"/runs/..", true).Code)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	without := newFixture(t, false)
	assert.Equal(t, http.StatusNotFound, without.get(t, "/history", true).Code)

	f := newFixture(t, true)
	rr := f.get(t, "/history", true)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[HistoryResponse](t, rr)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, 2, resp.Totals.TotalRuns)

	var good *ledger.Entry
	for i := range resp.Entries {
		if resp.Entries[i].RunID == f.runID {
			good = &resp.Entries[i]
		}
	}
	require.NotNil(t, good)
	require.NotNil(t, good.Changes)
	assert.Equal(t, 1, good.Changes.Created)

	failed := decode[HistoryResponse](t, f.get(t, "/history?status=failed&workspace="+f.wsID, true))
	require.Len(t, failed.Entries, 1)
	assert.Equal(t, f.failID, failed.Entries[0].RunID)
}
