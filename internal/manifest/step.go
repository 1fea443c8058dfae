package manifest

import (
	"fmt"
	"time"
)

// RunStep is one named unit of work inside a run.
//
//	pending --Start--> running --Complete--> completed
//	pending|running --Fail--> failed
type RunStep struct {
	Name        string         `json:"name"`
	Agent       string         `json:"agent"`
	Status      Status         `json:"status"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	InputData   map[string]any `json:"input_data"`
	OutputData  map[string]any `json:"output_data"`
	Error       *string        `json:"error"`
}

func newStep(name, agent string) *RunStep {
	return &RunStep{
		Name:       name,
		Agent:      agent,
		Status:     StatusPending,
		InputData:  map[string]any{},
		OutputData: map[string]any{},
	}
}

// Start moves a pending step to running.
func (s *RunStep) Start() error {
	if s.Status != StatusPending {
		return fmt.Errorf("start step %q from %s: %w", s.Name, s.Status, ErrInvalidTransition)
	}
	t := now()
	s.Status = StatusRunning
	s.StartedAt = &t
	return nil
}

// Complete moves a running step to completed and records its output.
func (s *RunStep) Complete(output map[string]any) error {
	if s.Status != StatusRunning {
		return fmt.Errorf("complete step %q from %s: %w", s.Name, s.Status, ErrInvalidTransition)
	}
	t := now()
	s.Status = StatusCompleted
	s.CompletedAt = &t
	if output != nil {
		s.OutputData = output
	}
	return nil
}

// Fail moves a pending or running step to failed.
func (s *RunStep) Fail(msg string) error {
	if s.Status.Terminal() {
		return fmt.Errorf("fail step %q from %s: %w", s.Name, s.Status, ErrInvalidTransition)
	}
	t := now()
	s.Status = StatusFailed
	s.CompletedAt = &t
	s.Error = &msg
	return nil
}
