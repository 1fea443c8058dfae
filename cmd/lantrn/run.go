package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/lantrn/internal/ledger"
	"github.com/mattjoyce/lantrn/internal/manifest"
	"github.com/mattjoyce/lantrn/internal/output"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect run manifests and change sets",
	}
	cmd.AddCommand(
		newRunListCmd(a),
		newRunShowCmd(a),
		newRunChangesCmd(a),
		newRunHistoryCmd(a),
	)
	return cmd
}

func parseStatus(raw string) (manifest.Status, error) {
	status := manifest.Status(strings.ToLower(raw))
	if status != "" && !status.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}

func formatDuration(s manifest.Summary) string {
	if s.DurationSeconds == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", *s.DurationSeconds)
}

func newRunListCmd(a *app) *cobra.Command {
	var (
		statusFlag string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list <workspace>",
		Short: "List runs in a workspace, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatus(statusFlag)
			if err != nil {
				return err
			}
			if err := a.openWorkspace(cmd.Context(), args[0]); err != nil {
				return err
			}
			runs, err := a.mgr.RunHistory(args[0], status, limit)
			if err != nil {
				return err
			}
			summaries := make([]manifest.Summary, 0, len(runs))
			for _, r := range runs {
				summaries = append(summaries, r.Summary())
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(summaries)
			}
			if len(summaries) == 0 {
				a.ui.Info("No runs")
				return nil
			}
			table := a.ui.Table([]string{"RUN", "NAME", "STATUS", "STEPS", "DURATION", "TOKENS"})
			for _, s := range summaries {
				_ = table.Append([]string{
					s.ID,
					s.Name,
					output.Status(s.Status),
					fmt.Sprintf("%d/%d", s.StepsCompleted, s.StepsTotal),
					formatDuration(s),
					strconv.FormatInt(s.TotalTokens, 10),
				})
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Only runs with this status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to show (default 50)")
	return cmd
}

func newRunShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workspace> <run>",
		Short: "Show a run manifest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openWorkspace(cmd.Context(), args[0]); err != nil {
				return err
			}
			run, err := a.mgr.LoadRun(args[0], args[1])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found in workspace %s", args[1], args[0])
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(run)
			}

			s := run.Summary()
			out := a.ui.Out
			fmt.Fprintf(out, "%s  %s\n", output.Heading(run.ID), output.Status(run.Status))
			fmt.Fprintf(out, "  name:      %s\n", run.Name)
			if run.Description != "" {
				fmt.Fprintf(out, "  about:     %s\n", run.Description)
			}
			fmt.Fprintf(out, "  pipeline:  %s\n", run.PipelineType)
			fmt.Fprintf(out, "  created:   %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  duration:  %s\n", formatDuration(s))
			fmt.Fprintf(out, "  tokens:    %d (cost %.4f)\n", run.TotalTokens, run.TotalCost)
			if run.Error != nil {
				fmt.Fprintf(out, "  error:     %s\n", *run.Error)
			}
			for i, step := range run.Steps {
				fmt.Fprintf(out, "  step %d:    %s/%s %s\n", i+1, step.Name, step.Agent, output.Status(step.Status))
			}
			for name, path := range run.OutputArtifacts {
				fmt.Fprintf(out, "  output:    %s %s\n", name, output.Muted(path))
			}
			return nil
		},
	}
}

func newRunChangesCmd(a *app) *cobra.Command {
	var showDiff bool
	cmd := &cobra.Command{
		Use:   "changes <workspace> <run>",
		Short: "Show the files a run created, modified or deleted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openWorkspace(cmd.Context(), args[0]); err != nil {
				return err
			}
			cs, err := a.mgr.LoadChangeSet(args[0], args[1])
			if err != nil {
				return err
			}
			if cs == nil {
				return fmt.Errorf("no change set recorded for run %s", args[1])
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(cs)
			}
			a.ui.ChangeSet(cs, showDiff)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Include unified diff lines")
	return cmd
}

func newRunHistoryCmd(a *app) *cobra.Command {
	var (
		wsID       string
		statusFlag string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the run ledger across workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			status, err := parseStatus(statusFlag)
			if err != nil {
				return err
			}
			if err := a.open(ctx); err != nil {
				return err
			}
			if a.ledger == nil {
				return fmt.Errorf("run ledger is disabled (state.path is empty)")
			}
			entries, err := a.ledger.History(ctx, ledger.Filter{WorkspaceID: wsID, Status: status, Limit: limit})
			if err != nil {
				return err
			}
			if a.ui.JSON {
				if entries == nil {
					entries = []ledger.Entry{}
				}
				return a.ui.PrintJSON(entries)
			}
			if len(entries) == 0 {
				a.ui.Info("No runs recorded")
				return nil
			}
			table := a.ui.Table([]string{"RUN", "WORKSPACE", "NAME", "STATUS", "CHANGES", "TOKENS"})
			for _, e := range entries {
				changes := "-"
				if e.Changes != nil {
					changes = fmt.Sprintf("+%d ~%d -%d", e.Changes.Created, e.Changes.Modified, e.Changes.Deleted)
				}
				_ = table.Append([]string{
					e.RunID,
					e.WorkspaceID,
					e.Name,
					output.Status(e.Status),
					changes,
					strconv.FormatInt(e.TotalTokens, 10),
				})
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&wsID, "workspace", "", "Only runs in this workspace")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Only runs with this status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to show (default 50)")
	return cmd
}
