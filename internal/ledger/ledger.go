// Package ledger mirrors run manifests and change-set summaries into SQLite
// so runs can be queried across workspaces without reading every JSON file.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/lantrn/internal/diff"
	"github.com/mattjoyce/lantrn/internal/manifest"
)

// DefaultHistoryLimit caps History when the filter sets no limit.
const DefaultHistoryLimit = 50

// timeLayout is fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// ChangeSummary is the change_log row for a run.
type ChangeSummary struct {
	ChangeSetID string    `json:"change_set_id"`
	CreatedAt   time.Time `json:"created_at"`
	Created     int       `json:"created"`
	Modified    int       `json:"modified"`
	Deleted     int       `json:"deleted"`
	Path        string    `json:"path"`
}

// Entry is one run as recorded in the ledger.
type Entry struct {
	RunID          string          `json:"run_id"`
	WorkspaceID    string          `json:"workspace_id"`
	Name           string          `json:"name"`
	PipelineType   string          `json:"pipeline_type"`
	Status         manifest.Status `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at"`
	StepsTotal     int             `json:"steps_total"`
	StepsCompleted int             `json:"steps_completed"`
	TotalTokens    int64           `json:"total_tokens"`
	TotalCost      float64         `json:"total_cost"`
	Error          *string         `json:"error"`
	Changes        *ChangeSummary  `json:"changes,omitempty"`
}

// Filter narrows History. Zero values match everything.
type Filter struct {
	WorkspaceID string
	Status      manifest.Status
	Limit       int
}

// Totals aggregates runs for one workspace, or all when the id is empty.
type Totals struct {
	TotalRuns      int     `json:"total_runs"`
	SuccessfulRuns int     `json:"successful_runs"`
	FailedRuns     int     `json:"failed_runs"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalCost      float64 `json:"total_cost"`
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// RecordRun upserts the run_log row for m.
func (l *Ledger) RecordRun(ctx context.Context, workspaceID string, m *manifest.RunManifest) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is empty")
	}
	sum := m.Summary()
	createdAt := m.CreatedAt
	_, err := l.db.ExecContext(ctx, `
INSERT INTO run_log(
  run_id, workspace_id, name, pipeline_type, status, created_at, started_at, completed_at,
  steps_total, steps_completed, total_tokens, total_cost, last_error, updated_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  status = excluded.status,
  started_at = excluded.started_at,
  completed_at = excluded.completed_at,
  steps_total = excluded.steps_total,
  steps_completed = excluded.steps_completed,
  total_tokens = excluded.total_tokens,
  total_cost = excluded.total_cost,
  last_error = excluded.last_error,
  updated_at = excluded.updated_at;
`,
		m.ID, workspaceID, m.Name, m.PipelineType, string(m.Status), formatTime(&createdAt),
		formatTime(m.StartedAt), formatTime(m.CompletedAt),
		sum.StepsTotal, sum.StepsCompleted, m.TotalTokens, m.TotalCost, m.Error,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", m.ID, err)
	}
	return nil
}

// RecordChangeSet upserts the change_log row for runID.
func (l *Ledger) RecordChangeSet(ctx context.Context, workspaceID, runID string, cs *diff.ChangeSet, path string) error {
	if workspaceID == "" || runID == "" {
		return fmt.Errorf("workspace id and run id are required")
	}
	sum := cs.Summary()
	createdAt := cs.CreatedAt
	_, err := l.db.ExecContext(ctx, `
INSERT INTO change_log(run_id, workspace_id, change_set_id, created_at, files_created, files_modified, files_deleted, path)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  change_set_id = excluded.change_set_id,
  created_at = excluded.created_at,
  files_created = excluded.files_created,
  files_modified = excluded.files_modified,
  files_deleted = excluded.files_deleted,
  path = excluded.path;
`, runID, workspaceID, cs.ID, formatTime(&createdAt), sum.Created, sum.Modified, sum.Deleted, path)
	if err != nil {
		return fmt.Errorf("record change set for run %s: %w", runID, err)
	}
	return nil
}

// History returns recorded runs newest first.
func (l *Ledger) History(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.WorkspaceID != "" {
		where = append(where, "r.workspace_id = ?")
		args = append(args, f.WorkspaceID)
	}
	if f.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	q := `
SELECT
  r.run_id, r.workspace_id, r.name, r.pipeline_type, r.status, r.created_at, r.started_at, r.completed_at,
  r.steps_total, r.steps_completed, r.total_tokens, r.total_cost, r.last_error,
  c.change_set_id, c.created_at, c.files_created, c.files_modified, c.files_deleted, c.path
FROM run_log r
LEFT JOIN change_log c ON c.run_id = r.run_id`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY r.created_at DESC, r.run_id DESC\nLIMIT ?;"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			statusS      string
			createdAtS   string
			startedAtS   sql.NullString
			completedAtS sql.NullString
			lastError    sql.NullString
			csID         sql.NullString
			csCreatedAtS sql.NullString
			csCreated    sql.NullInt64
			csModified   sql.NullInt64
			csDeleted    sql.NullInt64
			csPath       sql.NullString
		)
		if err := rows.Scan(
			&e.RunID, &e.WorkspaceID, &e.Name, &e.PipelineType, &statusS, &createdAtS, &startedAtS, &completedAtS,
			&e.StepsTotal, &e.StepsCompleted, &e.TotalTokens, &e.TotalCost, &lastError,
			&csID, &csCreatedAtS, &csCreated, &csModified, &csDeleted, &csPath,
		); err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}

		e.Status = manifest.Status(statusS)
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			e.CreatedAt = t
		}
		e.StartedAt = parseNullTime(startedAtS)
		e.CompletedAt = parseNullTime(completedAtS)
		if lastError.Valid {
			e.Error = &lastError.String
		}
		if csID.Valid {
			cs := &ChangeSummary{
				ChangeSetID: csID.String,
				Created:     int(csCreated.Int64),
				Modified:    int(csModified.Int64),
				Deleted:     int(csDeleted.Int64),
				Path:        csPath.String,
			}
			if t := parseNullTime(csCreatedAtS); t != nil {
				cs.CreatedAt = *t
			}
			e.Changes = cs
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run history: %w", err)
	}
	return out, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// Totals aggregates recorded runs.
func (l *Ledger) Totals(ctx context.Context, workspaceID string) (Totals, error) {
	q := `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(total_tokens), 0),
  COALESCE(SUM(total_cost), 0)
FROM run_log`
	args := []any{string(manifest.StatusCompleted), string(manifest.StatusFailed)}
	if workspaceID != "" {
		q += "\nWHERE workspace_id = ?"
		args = append(args, workspaceID)
	}

	var t Totals
	if err := l.db.QueryRowContext(ctx, q+";", args...).Scan(
		&t.TotalRuns, &t.SuccessfulRuns, &t.FailedRuns, &t.TotalTokens, &t.TotalCost,
	); err != nil {
		return Totals{}, fmt.Errorf("query run totals: %w", err)
	}
	return t, nil
}
