package diff

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChangeSet() *ChangeSet {
	return &ChangeSet{
		ID:          "abcdef012345",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Description: "Changes from run 01J",
		Diffs: []FileDiff{
			{
				Path:       "/w/a.txt",
				Old:        &Snapshot{Path: "/w/a.txt", ContentHash: "h1", Exists: true},
				New:        &Snapshot{Path: "/w/a.txt", ContentHash: "h2", Exists: true},
				ChangeType: ChangeModified,
				Lines:      []string{"--- a/a.txt", "+++ b/a.txt"},
			},
			{
				Path:       "/w/b.txt",
				New:        &Snapshot{Path: "/w/b.txt", ContentHash: "h3", Exists: true},
				ChangeType: ChangeCreated,
			},
			{
				Path:       "/w/c.txt",
				Old:        &Snapshot{Path: "/w/c.txt", ContentHash: "h4", Exists: true},
				New:        &Snapshot{Path: "/w/c.txt"},
				ChangeType: ChangeDeleted,
			},
		},
	}
}

func TestChangeSetJSONShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(sampleChangeSet())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "abcdef012345", raw["id"])
	assert.Equal(t, "2026-01-02T03:04:05Z", raw["created_at"])
	assert.Equal(t, map[string]any{"created": 1.0, "modified": 1.0, "deleted": 1.0}, raw["summary"])

	diffs := raw["diffs"].([]any)
	require.Len(t, diffs, 3)
	created := diffs[1].(map[string]any)
	assert.Nil(t, created["old_hash"])
	assert.Equal(t, "h3", created["new_hash"])
	assert.Equal(t, []any{}, created["diff_lines"])

	deleted := diffs[2].(map[string]any)
	assert.Equal(t, "", deleted["new_hash"])
}

func TestSaveLoadChangeSet(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "changes", "run.json")
	cs := sampleChangeSet()
	require.NoError(t, SaveChangeSet(cs, path))

	loaded, err := LoadChangeSet(path)
	require.NoError(t, err)

	assert.Equal(t, cs.ID, loaded.ID)
	assert.True(t, cs.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, cs.Summary(), loaded.Summary())
	assert.Equal(t, cs.FilesModified(), loaded.FilesModified())
	assert.Nil(t, loaded.Diffs[1].Old)
	assert.False(t, loaded.Diffs[2].New.Exists)
	assert.Equal(t, ChangeDeleted, Classify(loaded.Diffs[2].Old, loaded.Diffs[2].New))
}

func TestLoadChangeSetMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := map[string]string{
		"truncated.json": `{"id": "x", "diffs": [`,
		"noid.json":      `{"description": "x"}`,
		"badtype.json":   `{"id": "x", "diffs": [{"path": "a", "change_type": "renamed"}]}`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadChangeSet(path)
		assert.Error(t, err, name)
	}
}

func TestChangeSetIDDependsOnDescription(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := newChangeSetID(ts, "a")
	b := newChangeSetID(ts, "b")
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, newChangeSetID(ts, "a"))
}
