package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lantrn/internal/diff"
	"github.com/mattjoyce/lantrn/internal/manifest"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestMessages(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Info("hello %s", "world")
	u.Success("done %d", 42)
	u.Warning("careful %s", "now")
	u.Error("failed %s", "badly")

	assert.Contains(t, out.String(), "hello world")
	assert.Contains(t, out.String(), "done 42")
	assert.Contains(t, errOut.String(), "careful now")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestStatusAndChangeKeepText(t *testing.T) {
	assert.Contains(t, Status(manifest.StatusFailed), "failed")
	assert.Equal(t, "weird", Status(manifest.Status("weird")))
	assert.Contains(t, Change(diff.ChangeCreated), "created")
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"ID", "STATUS"})
	require.NoError(t, table.Append([]string{"run1", "completed"}))
	require.NoError(t, table.Render())

	assert.Contains(t, out.String(), "run1")
	assert.Contains(t, out.String(), "completed")
}

func TestPrintJSON(t *testing.T) {
	u, out, _ := newTestUI()
	require.NoError(t, u.PrintJSON(map[string]int{"total_runs": 3}))
	assert.JSONEq(t, `{"total_runs": 3}`, out.String())
}

func TestChangeSet(t *testing.T) {
	u, out, _ := newTestUI()
	u.ChangeSet(nil, false)
	assert.Contains(t, out.String(), "no changes")

	out.Reset()
	cs := &diff.ChangeSet{
		ID:        "abc",
		CreatedAt: time.Now(),
		Diffs: []diff.FileDiff{
			{Path: "/w/a.txt", ChangeType: diff.ChangeModified, Lines: []string{"-old", "+new"}},
			{Path: "/w/b.txt", ChangeType: diff.ChangeDeleted},
		},
	}
	u.ChangeSet(cs, true)
	assert.Contains(t, out.String(), "/w/a.txt")
	assert.Contains(t, out.String(), "+new")
	assert.Contains(t, out.String(), "0 created, 1 modified, 1 deleted")
}
