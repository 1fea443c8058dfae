package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/lantrn/internal/output"
	"github.com/mattjoyce/lantrn/internal/workspace"
)

func newWorkspaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Create, inspect and remove workspaces",
	}
	cmd.AddCommand(
		newWorkspaceCreateCmd(a),
		newWorkspaceListCmd(a),
		newWorkspaceStatsCmd(a),
		newWorkspaceCleanupCmd(a),
		newWorkspaceArchiveCmd(a),
		newWorkspacePruneCmd(a),
		newPartitionCmd(a),
		newServiceCmd(a),
	)
	return cmd
}

func newWorkspaceCreateCmd(a *app) *cobra.Command {
	var preserve bool
	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create a workspace (id is generated when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			policy := a.cfg.Isolation
			if preserve {
				policy.PreserveOnExit = true
			}
			id, ictx, err := a.mgr.CreateWorkspace(ctx, id, &policy)
			if err != nil {
				return err
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(map[string]string{"workspace_id": id, "root": ictx.Root, "workdir": ictx.WorkspacePath()})
			}
			a.ui.Success("Created workspace %s", id)
			a.ui.Info("workdir: %s", ictx.WorkspacePath())
			return nil
		},
	}
	cmd.Flags().BoolVar(&preserve, "preserve", false, "Keep the workspace on disk when it is cleaned up")
	return cmd
}

func newWorkspaceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces under the configured root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			ids, err := a.mgr.Discover(ctx)
			if err != nil {
				return err
			}
			all := make([]*workspace.Stats, 0, len(ids))
			for _, id := range ids {
				stats, err := a.mgr.WorkspaceStats(id)
				if err != nil {
					return err
				}
				all = append(all, stats)
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(all)
			}
			if len(all) == 0 {
				a.ui.Info("No workspaces in %s", a.mgr.Root())
				return nil
			}
			table := a.ui.Table([]string{"WORKSPACE", "RUNS", "OK", "FAILED", "TOKENS", "COST"})
			for _, s := range all {
				_ = table.Append([]string{
					s.WorkspaceID,
					strconv.Itoa(s.TotalRuns),
					strconv.Itoa(s.SuccessfulRuns),
					strconv.Itoa(s.FailedRuns),
					strconv.FormatInt(s.TotalTokens, 10),
					fmt.Sprintf("%.4f", s.TotalCost),
				})
			}
			return table.Render()
		},
	}
}

func newWorkspaceStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <workspace>",
		Short: "Show aggregate run statistics for a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openWorkspace(cmd.Context(), args[0]); err != nil {
				return err
			}
			s, err := a.mgr.WorkspaceStats(args[0])
			if err != nil {
				return err
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(s)
			}
			out := a.ui.Out
			fmt.Fprintln(out, output.Heading(s.WorkspaceID))
			fmt.Fprintf(out, "  root:            %s\n", s.Root)
			fmt.Fprintf(out, "  total runs:      %d\n", s.TotalRuns)
			fmt.Fprintf(out, "  successful runs: %d\n", s.SuccessfulRuns)
			fmt.Fprintf(out, "  failed runs:     %d\n", s.FailedRuns)
			fmt.Fprintf(out, "  total tokens:    %d\n", s.TotalTokens)
			fmt.Fprintf(out, "  total cost:      %.4f\n", s.TotalCost)
			return nil
		},
	}
}

func newWorkspaceCleanupCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "cleanup <workspace>",
		Short: "Unregister a workspace and delete it unless it is preserved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := a.openWorkspace(cmd.Context(), id); err != nil {
				return err
			}
			ictx := a.mgr.GetWorkspace(id)
			if force {
				a.mgr.CleanupWorkspace(id)
				ictx.Remove()
				a.ui.Success("Removed workspace %s", id)
				return nil
			}
			a.mgr.CleanupWorkspace(id)
			if ictx.Config.PreserveOnExit {
				a.ui.Warning("Workspace %s is preserved; use --force to delete it", id)
				return nil
			}
			a.ui.Success("Removed workspace %s", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Delete even if the workspace is preserved")
	return cmd
}

func newWorkspaceArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <workspace> <file.tar.gz>",
		Short: "Write a gzipped tarball of a workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.openWorkspace(ctx, args[0]); err != nil {
				return err
			}
			ok, err := a.mgr.ArchiveWorkspace(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("workspace %s has no files to archive", args[0])
			}
			a.ui.Success("Archived %s to %s", args[0], args[1])
			return nil
		},
	}
}

func newWorkspacePruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete workspaces not modified within --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			report, err := a.mgr.Prune(ctx, olderThan)
			if err != nil {
				return err
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(report)
			}
			a.ui.Success("Pruned %d workspace(s)", report.DeletedDirs)
			for _, id := range report.Skipped {
				a.ui.Warning("Skipped busy workspace %s", id)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Minimum age of workspaces to delete")
	return cmd
}

func newPartitionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Manage partitions inside a workspace",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <workspace> <partition>",
			Short: "Create a partition with data, cache and logs directories",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.openWorkspace(cmd.Context(), args[0]); err != nil {
					return err
				}
				p, err := workspace.NewPartitionManager(a.mgr).CreatePartition(args[0], args[1])
				if err != nil {
					return err
				}
				if a.ui.JSON {
					return a.ui.PrintJSON(p)
				}
				a.ui.Success("Partition %s ready at %s", p.ID, p.Root)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list <workspace>",
			Short: "List partitions in a workspace",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.openWorkspace(cmd.Context(), args[0]); err != nil {
					return err
				}
				ids, err := workspace.NewPartitionManager(a.mgr).ListPartitions(args[0])
				if err != nil {
					return err
				}
				if a.ui.JSON {
					if ids == nil {
						ids = []string{}
					}
					return a.ui.PrintJSON(ids)
				}
				for _, id := range ids {
					fmt.Fprintln(a.ui.Out, id)
				}
				return nil
			},
		},
	)
	return cmd
}

func newServiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage per-service isolation roots inside a workspace",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <workspace> <service>",
			Short: "Set up an isolated root for a service",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.openWorkspace(cmd.Context(), args[0]); err != nil {
					return err
				}
				ictx := a.mgr.GetWorkspace(args[0])
				svc, err := a.mgr.Services(args[0]).CreateService(args[1], ictx.Config)
				if err != nil {
					return err
				}
				if a.ui.JSON {
					return a.ui.PrintJSON(map[string]string{"service": args[1], "id": svc.ID, "root": svc.Root})
				}
				a.ui.Success("Service %s ready at %s", svc.ID, svc.Root)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list <workspace>",
			Short: "List services in a workspace",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.openWorkspace(cmd.Context(), args[0]); err != nil {
					return err
				}
				services := a.mgr.Services(args[0])
				names := services.List()
				if a.ui.JSON {
					out := make([]map[string]string, 0, len(names))
					for _, name := range names {
						svc, _ := services.Get(name)
						out = append(out, map[string]string{"service": name, "id": svc.ID, "root": svc.Root})
					}
					return a.ui.PrintJSON(out)
				}
				if len(names) == 0 {
					a.ui.Info("No services")
					return nil
				}
				table := a.ui.Table([]string{"SERVICE", "ID", "ROOT"})
				for _, name := range names {
					svc, _ := services.Get(name)
					_ = table.Append([]string{name, svc.ID, svc.Root})
				}
				return table.Render()
			},
		},
	)
	return cmd
}
