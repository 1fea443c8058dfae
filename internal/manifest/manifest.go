package manifest

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunManifest is the durable record of one pipeline execution.
//
// Status moves pending -> running -> completed, or to failed or cancelled
// from either non-terminal state. Steps and the step cursor evolve
// independently of the top-level status.
type RunManifest struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Status          Status            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at"`
	PipelineType    string            `json:"pipeline_type"`
	CurrentPhase    string            `json:"current_phase"`
	CurrentStep     int               `json:"current_step"`
	Steps           []*RunStep        `json:"steps"`
	InputArtifacts  map[string]string `json:"input_artifacts"`
	OutputArtifacts map[string]string `json:"output_artifacts"`
	Config          map[string]any    `json:"config"`
	ModelProfile    string            `json:"model_profile"`
	TotalTokens     int64             `json:"total_tokens"`
	TotalCost       float64           `json:"total_cost"`
	Error           *string           `json:"error"`
	RetryCount      int               `json:"retry_count"`
}

// Summary is the compact view used by listings.
type Summary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Status          Status   `json:"status"`
	DurationSeconds *float64 `json:"duration_seconds"`
	StepsCompleted  int      `json:"steps_completed"`
	StepsTotal      int      `json:"steps_total"`
	TotalTokens     int64    `json:"total_tokens"`
	TotalCost       float64  `json:"total_cost"`
	Error           *string  `json:"error"`
}

// New returns a pending manifest with a fresh run id.
func New(name, description, pipelineType string) *RunManifest {
	if pipelineType == "" {
		pipelineType = DefaultPipelineType
	}
	m := &RunManifest{
		ID:           NewRunID(),
		Name:         name,
		Description:  description,
		Status:       StatusPending,
		CreatedAt:    now(),
		PipelineType: pipelineType,
		ModelProfile: DefaultModelProfile,
	}
	m.fillDefaults()
	return m
}

func (m *RunManifest) fillDefaults() {
	if m.Steps == nil {
		m.Steps = []*RunStep{}
	}
	if m.InputArtifacts == nil {
		m.InputArtifacts = map[string]string{}
	}
	if m.OutputArtifacts == nil {
		m.OutputArtifacts = map[string]string{}
	}
	if m.Config == nil {
		m.Config = map[string]any{}
	}
}

func (m *RunManifest) transition(op string, to Status, from ...Status) error {
	for _, s := range from {
		if m.Status == s {
			m.Status = to
			return nil
		}
	}
	return fmt.Errorf("%s run %s from %s: %w", op, m.ID, m.Status, ErrInvalidTransition)
}

// Start moves a pending run to running.
func (m *RunManifest) Start() error {
	if err := m.transition("start", StatusRunning, StatusPending); err != nil {
		return err
	}
	t := now()
	m.StartedAt = &t
	return nil
}

// Complete moves a running run to completed.
func (m *RunManifest) Complete() error {
	if err := m.transition("complete", StatusCompleted, StatusRunning); err != nil {
		return err
	}
	t := now()
	m.CompletedAt = &t
	return nil
}

// Fail moves a pending or running run to failed and records msg.
func (m *RunManifest) Fail(msg string) error {
	if err := m.transition("fail", StatusFailed, StatusPending, StatusRunning); err != nil {
		return err
	}
	t := now()
	m.CompletedAt = &t
	m.Error = &msg
	return nil
}

// Cancel moves a pending or running run to cancelled.
func (m *RunManifest) Cancel() error {
	if err := m.transition("cancel", StatusCancelled, StatusPending, StatusRunning); err != nil {
		return err
	}
	t := now()
	m.CompletedAt = &t
	return nil
}

// AddStep appends a pending step and returns it.
func (m *RunManifest) AddStep(name, agent string) *RunStep {
	step := newStep(name, agent)
	m.Steps = append(m.Steps, step)
	return step
}

// ActiveStep returns the step under the cursor, or nil past the end.
func (m *RunManifest) ActiveStep() *RunStep {
	if m.CurrentStep < 0 || m.CurrentStep >= len(m.Steps) {
		return nil
	}
	return m.Steps[m.CurrentStep]
}

// AdvanceStep moves the cursor forward and returns the new active step, or
// nil once the cursor is past the last step. The cursor stops at
// len(Steps).
func (m *RunManifest) AdvanceStep() *RunStep {
	if m.CurrentStep < len(m.Steps) {
		m.CurrentStep++
	}
	return m.ActiveStep()
}

func (m *RunManifest) AddInputArtifact(name, path string) {
	m.InputArtifacts[name] = path
}

func (m *RunManifest) AddOutputArtifact(name, path string) {
	m.OutputArtifacts[name] = path
}

// UpdateMetrics adds tokens and cost to the running totals.
func (m *RunManifest) UpdateMetrics(tokens int64, cost float64) {
	m.TotalTokens += tokens
	m.TotalCost += cost
}

// DurationSeconds returns the elapsed run time, measured to now while the
// run is in flight. ok is false if the run never started.
func (m *RunManifest) DurationSeconds() (seconds float64, ok bool) {
	if m.StartedAt == nil {
		return 0, false
	}
	end := now()
	if m.CompletedAt != nil {
		end = *m.CompletedAt
	}
	return end.Sub(*m.StartedAt).Seconds(), true
}

func (m *RunManifest) Summary() Summary {
	s := Summary{
		ID:          m.ID,
		Name:        m.Name,
		Status:      m.Status,
		StepsTotal:  len(m.Steps),
		TotalTokens: m.TotalTokens,
		TotalCost:   m.TotalCost,
		Error:       m.Error,
	}
	if d, ok := m.DurationSeconds(); ok {
		s.DurationSeconds = &d
	}
	for _, step := range m.Steps {
		if step.Status == StatusCompleted {
			s.StepsCompleted++
		}
	}
	return s
}

// ToJSON serializes the manifest in its persisted form.
func (m *RunManifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON decodes a persisted manifest. Unknown statuses, a missing id and
// null step entries are errors.
func FromJSON(data []byte) (*RunManifest, error) {
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode run manifest: %w", err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("decode run manifest: missing id")
	}
	if !m.Status.Valid() {
		return nil, fmt.Errorf("decode run manifest %s: unknown status %q", m.ID, m.Status)
	}
	for i, step := range m.Steps {
		if step == nil {
			return nil, fmt.Errorf("decode run manifest %s: step %d is null", m.ID, i)
		}
		if !step.Status.Valid() {
			return nil, fmt.Errorf("decode run manifest %s: step %d has unknown status %q", m.ID, i, step.Status)
		}
		if step.InputData == nil {
			step.InputData = map[string]any{}
		}
		if step.OutputData == nil {
			step.OutputData = map[string]any{}
		}
	}
	m.fillDefaults()
	return &m, nil
}
