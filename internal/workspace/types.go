// Package workspace coordinates workspaces: each pairs one isolation
// context, one manifest store and one diff tracker under a shared root, and
// runs started in it are bracketed by before/after snapshots.
package workspace

import (
	"context"
	"errors"

	"github.com/mattjoyce/lantrn/internal/diff"
	"github.com/mattjoyce/lantrn/internal/isolation"
	"github.com/mattjoyce/lantrn/internal/manifest"
)

// Layout under each workspace root, next to the isolation subdirectories.
const (
	ChangesDir    = "changes"
	PartitionsDir = "partitions"
	RunLockFile   = ".run.lock"
)

const (
	DefaultMaxWorkspaces = 10
	DefaultHistoryLimit  = 50
)

var (
	ErrWorkspaceLimit    = errors.New("workspace limit reached")
	ErrWorkspaceBusy     = errors.New("workspace has a run in progress")
	ErrWorkspaceNotFound = errors.New("workspace not found")
)

// Config controls workspace creation and run bracketing.
type Config struct {
	Root string

	// MaxWorkspaces caps registered workspaces; zero or less means no cap.
	MaxWorkspaces int

	// AutoCleanup lets cleanup delete workspace roots. When false every
	// workspace is created with PreserveOnExit set.
	AutoCleanup bool

	SnapshotOnStart    bool
	SnapshotOnComplete bool

	// LockRuns allows one run at a time per workspace via a file lock. With
	// it off, callers must not overlap runs in one workspace: each StartRun
	// replaces the tracker baseline of any run still in flight.
	LockRuns bool

	// MaxDiffBytes bounds the file size retained for line diffs.
	MaxDiffBytes int64

	// Isolation is the policy applied when CreateWorkspace gets none.
	Isolation isolation.Config
}

// DefaultConfig returns the stock settings rooted at root.
func DefaultConfig(root string) Config {
	return Config{
		Root:               root,
		MaxWorkspaces:      DefaultMaxWorkspaces,
		AutoCleanup:        true,
		SnapshotOnStart:    true,
		SnapshotOnComplete: true,
		LockRuns:           true,
		MaxDiffBytes:       diff.DefaultMaxDiffBytes,
		Isolation:          isolation.DefaultConfig(),
	}
}

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/lantrn/internal/workspace Recorder

// Recorder mirrors persisted runs and change sets somewhere queryable.
type Recorder interface {
	RecordRun(ctx context.Context, workspaceID string, m *manifest.RunManifest) error
	RecordChangeSet(ctx context.Context, workspaceID, runID string, cs *diff.ChangeSet, path string) error
}

// Stats aggregates the runs stored in one workspace.
type Stats struct {
	WorkspaceID    string  `json:"workspace_id"`
	Root           string  `json:"root"`
	TotalRuns      int     `json:"total_runs"`
	SuccessfulRuns int     `json:"successful_runs"`
	FailedRuns     int     `json:"failed_runs"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalCost      float64 `json:"total_cost"`
}

// PruneReport summarizes a Prune pass.
type PruneReport struct {
	DeletedDirs int
	Skipped     []string
}
