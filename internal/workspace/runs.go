package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mattjoyce/lantrn/internal/diff"
	"github.com/mattjoyce/lantrn/internal/lock"
	"github.com/mattjoyce/lantrn/internal/manifest"
)

// StartRun creates, starts and persists a manifest in workspace id, then
// captures the baseline snapshot of the isolated working directory. It
// returns nil, nil for an unknown workspace. When any step fails the
// manifest is persisted as failed and returned along with the error.
//
// Runs in one workspace share its diff tracker, and StartRun resets the
// baseline. With Config.LockRuns a concurrent StartRun fails with
// ErrWorkspaceBusy; without it, overlapping runs are the caller's problem
// and the earlier run's change set will be wrong.
func (m *Manager) StartRun(ctx context.Context, id, name, description, pipelineType string) (*manifest.RunManifest, error) {
	ictx, store, tracker := m.lookup(id)
	if ictx == nil {
		return nil, nil
	}

	run := manifest.New(name, description, pipelineType)
	logger := m.logger.With(slog.String("workspace_id", id), slog.String("run_id", run.ID))

	if m.cfg.LockRuns {
		held, err := lock.Acquire(filepath.Join(ictx.Root, RunLockFile), run.ID)
		if err != nil {
			if errors.Is(err, lock.ErrLocked) {
				err = m.busyError(ictx.Root, id)
			}
			return m.abortStart(ctx, id, store, run, logger, err)
		}
		m.mu.Lock()
		m.locks[id] = runLock{runID: run.ID, lock: held}
		m.mu.Unlock()
	}

	if err := run.Start(); err != nil {
		return m.abortStart(ctx, id, store, run, logger, err)
	}
	if _, err := store.Save(run); err != nil {
		return m.abortStart(ctx, id, store, run, logger, err)
	}

	if m.cfg.SnapshotOnStart {
		tracker.ResetSnapshots()
		files, err := tracker.ScanWorkspace(ctx, diff.DefaultPattern)
		if err != nil {
			return m.abortStart(ctx, id, store, run, logger, fmt.Errorf("baseline scan: %w", err))
		}
		report, err := tracker.CaptureBefore(ctx, files)
		if err != nil {
			return m.abortStart(ctx, id, store, run, logger, fmt.Errorf("baseline capture: %w", err))
		}
		logPartial(logger, "baseline", report)
	}

	m.recordRun(ctx, id, run, logger)
	logger.Info("run started", "name", run.Name, "pipeline_type", run.PipelineType)
	return run, nil
}

func (m *Manager) busyError(root, id string) error {
	holder, ok, err := lock.ReadHolder(filepath.Join(root, RunLockFile))
	if err != nil || !ok {
		return fmt.Errorf("%w: %s", ErrWorkspaceBusy, id)
	}
	return fmt.Errorf("%w: %s (run %s, pid %d)", ErrWorkspaceBusy, id, holder.Owner, holder.PID)
}

// abortStart marks run failed, persists it best-effort, and releases the
// run lock so the workspace is not left busy.
func (m *Manager) abortStart(ctx context.Context, id string, store *manifest.Store, run *manifest.RunManifest, logger *slog.Logger, cause error) (*manifest.RunManifest, error) {
	if !run.Status.Terminal() {
		_ = run.Fail(cause.Error())
	}
	if _, err := store.Save(run); err != nil {
		logger.Error("persist failed run", "error", err)
		cause = errors.Join(cause, err)
	}
	m.releaseRunLock(id, run.ID, logger)
	m.recordRun(ctx, id, run, logger)
	logger.Warn("run failed to start", "error", cause)
	return run, cause
}

// CompleteRun finishes run as completed (success) or failed, captures the
// after snapshot, computes and persists the run's change set, and persists
// the manifest. It returns nil, nil for an unknown workspace. The change
// set is nil when snapshotting on completion is disabled.
func (m *Manager) CompleteRun(ctx context.Context, id string, run *manifest.RunManifest, success bool, errMsg string) (*diff.ChangeSet, error) {
	ictx, store, tracker := m.lookup(id)
	if ictx == nil {
		return nil, nil
	}
	if run == nil {
		return nil, fmt.Errorf("run manifest is nil")
	}
	logger := m.logger.With(slog.String("workspace_id", id), slog.String("run_id", run.ID))
	defer m.releaseRunLock(id, run.ID, logger)

	var err error
	if success {
		err = run.Complete()
	} else {
		err = run.Fail(errMsg)
	}
	if err != nil {
		return nil, err
	}

	var (
		cs      *diff.ChangeSet
		csPath  string
		snapErr error
	)
	if m.cfg.SnapshotOnComplete {
		cs, csPath, snapErr = m.captureChanges(ctx, id, tracker, run, logger)
		if snapErr == nil {
			run.AddOutputArtifact("changes", csPath)
		}
	}

	if _, err := store.Save(run); err != nil {
		return cs, err
	}
	m.recordRun(ctx, id, run, logger)
	if cs != nil && snapErr == nil && m.recorder != nil {
		if err := m.recorder.RecordChangeSet(ctx, id, run.ID, cs, csPath); err != nil {
			logger.Warn("recorder write failed", "error", err)
		}
	}

	attrs := []any{"status", run.Status}
	if cs != nil {
		sum := cs.Summary()
		attrs = append(attrs, "created", sum.Created, "modified", sum.Modified, "deleted", sum.Deleted)
	}
	logger.Info("run finished", attrs...)
	return cs, snapErr
}

func (m *Manager) captureChanges(ctx context.Context, id string, tracker *diff.Tracker, run *manifest.RunManifest, logger *slog.Logger) (*diff.ChangeSet, string, error) {
	files, err := tracker.ScanWorkspace(ctx, diff.DefaultPattern)
	if err != nil {
		return nil, "", fmt.Errorf("final scan: %w", err)
	}
	report, err := tracker.CaptureAfter(ctx, files)
	if err != nil {
		return nil, "", fmt.Errorf("final capture: %w", err)
	}
	logPartial(logger, "final", report)

	cs := tracker.ComputeChangeSet("Changes from run "+run.ID, nil)
	path := m.ChangeSetPath(id, run.ID)
	if err := tracker.SaveChangeSet(cs, path); err != nil {
		return cs, "", fmt.Errorf("save change set: %w", err)
	}
	return cs, path, nil
}

// releaseRunLock drops the workspace lock if runID is the run holding it.
func (m *Manager) releaseRunLock(id, runID string, logger *slog.Logger) {
	m.mu.Lock()
	held, ok := m.locks[id]
	if !ok || held.runID != runID {
		m.mu.Unlock()
		return
	}
	delete(m.locks, id)
	m.mu.Unlock()
	if err := held.lock.Release(); err != nil {
		logger.Warn("release run lock failed", "run_id", runID, "error", err)
	}
}

func (m *Manager) recordRun(ctx context.Context, id string, run *manifest.RunManifest, logger *slog.Logger) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordRun(ctx, id, run); err != nil {
		logger.Warn("recorder write failed", "error", err)
	}
}

func logPartial(logger *slog.Logger, phase string, report *diff.CaptureReport) {
	failed := report.Failed()
	if len(failed) == 0 {
		return
	}
	paths := make([]string, 0, len(failed))
	for _, f := range failed {
		paths = append(paths, f.Path)
	}
	logger.Warn("partial snapshot capture", "phase", phase, "failed", len(failed), "paths", paths)
}
