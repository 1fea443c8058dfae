package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/lantrn/internal/ledger"
	"github.com/mattjoyce/lantrn/internal/manifest"
	"github.com/mattjoyce/lantrn/internal/workspace"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Workspaces    int    `json:"workspaces"`
	LedgerEnabled bool   `json:"ledger_enabled"`
}

// WorkspacesResponse is returned by GET /workspaces.
type WorkspacesResponse struct {
	Workspaces []*workspace.Stats `json:"workspaces"`
}

// RunsResponse is returned by GET /workspaces/{id}/runs.
type RunsResponse struct {
	WorkspaceID string             `json:"workspace_id"`
	Runs        []manifest.Summary `json:"runs"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []ledger.Entry `json:"entries"`
	Totals  ledger.Totals  `json:"totals"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workspaces:    len(s.workspaces.ListWorkspaces()),
		LedgerEnabled: s.history != nil,
	})
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	resp := WorkspacesResponse{Workspaces: []*workspace.Stats{}}
	for _, id := range s.workspaces.ListWorkspaces() {
		stats, err := s.workspaces.WorkspaceStats(id)
		if err != nil {
			s.internalError(w, "failed to read workspace stats", err)
			return
		}
		if stats != nil {
			resp.Workspaces = append(resp.Workspaces, stats)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWorkspaceStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stats, err := s.workspaces.WorkspaceStats(id)
	if err != nil {
		s.internalError(w, "failed to read workspace stats", err)
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, limit, ok := parseListQuery(w, r)
	if !ok {
		return
	}
	if stats, err := s.workspaces.WorkspaceStats(id); err != nil || stats == nil {
		if err != nil {
			s.internalError(w, "failed to read workspace", err)
			return
		}
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	runs, err := s.workspaces.RunHistory(id, status, limit)
	if err != nil {
		s.internalError(w, "failed to list runs", err)
		return
	}
	resp := RunsResponse{WorkspaceID: id, Runs: make([]manifest.Summary, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, run.Summary())
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.workspaces.LoadRun(chi.URLParam(r, "id"), chi.URLParam(r, "runID"))
	if errors.Is(err, manifest.ErrInvalidRunID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "failed to load run", err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetChanges(w http.ResponseWriter, r *http.Request) {
	cs, err := s.workspaces.LoadChangeSet(chi.URLParam(r, "id"), chi.URLParam(r, "runID"))
	if errors.Is(err, manifest.ErrInvalidRunID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "failed to load change set", err)
		return
	}
	if cs == nil {
		writeError(w, http.StatusNotFound, "change set not found")
		return
	}
	respondJSON(w, http.StatusOK, cs)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run ledger is not configured")
		return
	}
	status, limit, ok := parseListQuery(w, r)
	if !ok {
		return
	}
	wsID := r.URL.Query().Get("workspace")

	entries, err := s.history.History(r.Context(), ledger.Filter{WorkspaceID: wsID, Status: status, Limit: limit})
	if err != nil {
		s.internalError(w, "failed to query history", err)
		return
	}
	totals, err := s.history.Totals(r.Context(), wsID)
	if err != nil {
		s.internalError(w, "failed to query totals", err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Totals: totals})
}

func parseListQuery(w http.ResponseWriter, r *http.Request) (manifest.Status, int, bool) {
	q := r.URL.Query()
	status := manifest.Status(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return "", 0, false
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return "", 0, false
		}
		limit = n
	}
	return status, limit, true
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}
