// Package manifest models one pipeline run as a durable record: an ordered
// list of steps with one-way status transitions, artifact references and
// token/cost metrics, persisted one JSON file per run.
package manifest

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Defaults applied by New.
const (
	DefaultPipelineType = "plan_build_verify"
	DefaultModelProfile = "fast"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the current status. The record is left untouched.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidRunID is returned for ids that cannot name a manifest file.
	ErrInvalidRunID = errors.New("invalid run id")
)

var nowFunc = time.Now

func now() time.Time { return nowFunc().UTC() }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// NewRunID returns a ULID. Ids sort lexicographically in creation order.
func NewRunID() string {
	return ulid.Make().String()
}
