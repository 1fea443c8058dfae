package manifest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	m := New("build", "build the thing", "")
	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, DefaultPipelineType, m.PipelineType)
	assert.Equal(t, DefaultModelProfile, m.ModelProfile)
	assert.Len(t, m.ID, 26)
	assert.NotNil(t, m.Steps)
	assert.NotNil(t, m.InputArtifacts)
	assert.Nil(t, m.ActiveStep())

	custom := New("x", "", "single_agent")
	assert.Equal(t, "single_agent", custom.PipelineType)
}

func TestRunIDsSortInCreationOrder(t *testing.T) {
	t.Parallel()

	prev := NewRunID()
	for range 50 {
		next := NewRunID()
		require.Less(t, prev, next)
		prev = next
	}
}

func TestManifestTransitions(t *testing.T) {
	t.Parallel()

	m := New("r", "", "")
	require.ErrorIs(t, m.Complete(), ErrInvalidTransition)
	require.NoError(t, m.Start())
	require.NotNil(t, m.StartedAt)
	require.ErrorIs(t, m.Start(), ErrInvalidTransition)
	require.NoError(t, m.Complete())
	require.NotNil(t, m.CompletedAt)

	completedAt := *m.CompletedAt
	for name, op := range map[string]func() error{
		"start":    m.Start,
		"complete": m.Complete,
		"fail":     func() error { return m.Fail("late") },
		"cancel":   m.Cancel,
	} {
		err := op()
		assert.True(t, errors.Is(err, ErrInvalidTransition), "%s after completed: %v", name, err)
	}
	assert.Equal(t, StatusCompleted, m.Status)
	assert.Nil(t, m.Error)
	assert.True(t, completedAt.Equal(*m.CompletedAt))
}

func TestManifestFailAndCancel(t *testing.T) {
	t.Parallel()

	pendingFail := New("a", "", "")
	require.NoError(t, pendingFail.Fail("setup broke"))
	assert.Equal(t, StatusFailed, pendingFail.Status)
	require.NotNil(t, pendingFail.Error)
	assert.Equal(t, "setup broke", *pendingFail.Error)
	assert.ErrorIs(t, pendingFail.Complete(), ErrInvalidTransition)
	assert.ErrorIs(t, pendingFail.Cancel(), ErrInvalidTransition)

	running := New("b", "", "")
	require.NoError(t, running.Start())
	require.NoError(t, running.Cancel())
	assert.Equal(t, StatusCancelled, running.Status)
	assert.ErrorIs(t, running.Fail("x"), ErrInvalidTransition)
	assert.Nil(t, running.Error)
}

func TestStepTransitions(t *testing.T) {
	t.Parallel()

	m := New("r", "", "")
	step := m.AddStep("analyze", "analyst")
	assert.Equal(t, StatusPending, step.Status)

	require.ErrorIs(t, step.Complete(nil), ErrInvalidTransition)
	require.NoError(t, step.Start())
	require.NoError(t, step.Complete(map[string]any{"summary": "done"}))
	assert.Equal(t, "done", step.OutputData["summary"])

	startedAt := *step.StartedAt
	err := step.Start()
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCompleted, step.Status)
	assert.True(t, startedAt.Equal(*step.StartedAt))
	assert.ErrorIs(t, step.Fail("nope"), ErrInvalidTransition)
	assert.Nil(t, step.Error)

	failed := m.AddStep("build", "dev")
	require.NoError(t, failed.Start())
	require.NoError(t, failed.Fail("compile error"))
	assert.ErrorIs(t, failed.Start(), ErrInvalidTransition)
	assert.ErrorIs(t, failed.Complete(nil), ErrInvalidTransition)
	assert.Equal(t, StatusFailed, failed.Status)

	pending := m.AddStep("verify", "qa")
	require.NoError(t, pending.Fail("skipped"))
	assert.Equal(t, StatusFailed, pending.Status)
}

func TestAdvanceStep(t *testing.T) {
	t.Parallel()

	m := New("r", "", "")
	a := m.AddStep("a", "x")
	b := m.AddStep("b", "y")

	assert.Same(t, a, m.ActiveStep())
	assert.Same(t, b, m.AdvanceStep())
	assert.Nil(t, m.AdvanceStep())
	assert.Nil(t, m.AdvanceStep())
	assert.Equal(t, 2, m.CurrentStep)
}

func TestArtifactsMetricsAndSummary(t *testing.T) {
	t.Parallel()

	m := New("r", "", "")
	m.AddInputArtifact("brief", "/in/brief.md")
	m.AddOutputArtifact("plan", "/out/plan.md")
	m.UpdateMetrics(100, 0.25)
	m.UpdateMetrics(50, 0.5)

	s := m.AddStep("a", "x")
	require.NoError(t, s.Start())
	require.NoError(t, s.Complete(nil))
	m.AddStep("b", "y")

	assert.Equal(t, "/in/brief.md", m.InputArtifacts["brief"])
	assert.Equal(t, "/out/plan.md", m.OutputArtifacts["plan"])
	assert.EqualValues(t, 150, m.TotalTokens)
	assert.InDelta(t, 0.75, m.TotalCost, 1e-9)

	sum := m.Summary()
	assert.Nil(t, sum.DurationSeconds)
	assert.Equal(t, 1, sum.StepsCompleted)
	assert.Equal(t, 2, sum.StepsTotal)
}

func TestDurationSeconds(t *testing.T) {
	t.Parallel()

	m := New("r", "", "")
	_, ok := m.DurationSeconds()
	assert.False(t, ok)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	m.StartedAt = &start
	m.CompletedAt = &end
	d, ok := m.DurationSeconds()
	require.True(t, ok)
	assert.InDelta(t, 90.0, d, 1e-9)

	m.CompletedAt = nil
	d, ok = m.DurationSeconds()
	require.True(t, ok)
	assert.Greater(t, d, 90.0)
}

func TestManifestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	m := New("pipeline", "full run", "")
	m.Config = map[string]any{"temperature": "low"}
	m.CurrentPhase = "build"
	m.AddInputArtifact("brief", "/w/brief.md")
	m.UpdateMetrics(42, 0.5)
	require.NoError(t, m.Start())

	done := m.AddStep("plan", "pm")
	done.InputData["goal"] = "ship"
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete(map[string]any{"plan": "three steps"}))

	broken := m.AddStep("build", "dev")
	require.NoError(t, broken.Start())
	require.NoError(t, broken.Fail("tests failed"))
	m.AdvanceStep()
	require.NoError(t, m.Fail("build failed"))

	data, err := m.ToJSON()
	require.NoError(t, err)

	loaded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	again, err := loaded.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestFromJSONRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":       `{"id":`,
		"missing id":     `{"status":"pending"}`,
		"bad status":     `{"id":"x","status":"paused"}`,
		"null step":      `{"id":"x","status":"pending","steps":[null]}`,
		"bad step state": `{"id":"x","status":"pending","steps":[{"name":"a","status":"weird"}]}`,
	}
	for name, body := range cases {
		_, err := FromJSON([]byte(body))
		assert.Error(t, err, name)
	}
}

func TestFromJSONFillsMissingCollections(t *testing.T) {
	t.Parallel()

	m, err := FromJSON([]byte(`{"id":"x","status":"running","steps":[{"name":"a","status":"pending"}]}`))
	require.NoError(t, err)
	assert.NotNil(t, m.InputArtifacts)
	assert.NotNil(t, m.OutputArtifacts)
	assert.NotNil(t, m.Config)
	require.Len(t, m.Steps, 1)
	assert.NotNil(t, m.Steps[0].OutputData)
	require.NoError(t, m.Steps[0].Start())
}
