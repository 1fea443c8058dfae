package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/lantrn/internal/isolation"
)

func newExecCmd(a *app) *cobra.Command {
	var (
		name        string
		description string
		pipeline    string
	)
	cmd := &cobra.Command{
		Use:   "exec <workspace> -- <command> [args...]",
		Short: "Run a command inside a workspace as a tracked run",
		Long: `exec starts a run in the workspace, executes the command with the
workspace directory as its working directory, and records which files the
command created, modified or deleted. The command's exit code is returned.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, argv := args[0], args[1:]
			if err := a.openWorkspace(ctx, id); err != nil {
				return err
			}
			ictx := a.mgr.GetWorkspace(id)
			if name == "" {
				name = filepath.Base(argv[0])
			}
			if description == "" {
				description = strings.Join(argv, " ")
			}

			run, err := a.mgr.StartRun(ctx, id, name, description, pipeline)
			if err != nil {
				return err
			}
			logger := a.logger.With("workspace_id", id, "run_id", run.ID)

			step := run.AddStep("exec", "shell")
			step.InputData["command"] = argv
			if err := step.Start(); err != nil {
				return err
			}

			logPath := ictx.LogPath(run.ID + ".log")
			exitCode, runErr := runInSession(cmd, ictx, argv, logPath)

			result := map[string]any{"exit_code": exitCode, "log": logPath}
			errMsg := ""
			if runErr != nil {
				errMsg = runErr.Error()
				_ = step.Fail(errMsg)
				step.OutputData = result
			} else {
				_ = step.Complete(result)
			}
			run.AdvanceStep()
			run.AddOutputArtifact("log", logPath)

			cs, err := a.mgr.CompleteRun(ctx, id, run, runErr == nil, errMsg)
			if err != nil {
				logger.Warn("run completion incomplete", "error", err)
				if cs == nil {
					return err
				}
			}

			if a.ui.JSON {
				if err := a.ui.PrintJSON(map[string]any{
					"run":       run.Summary(),
					"exit_code": exitCode,
					"changes":   cs,
				}); err != nil {
					return err
				}
			} else {
				a.ui.Info("run %s %s", run.ID, run.Status)
				a.ui.ChangeSet(cs, false)
			}

			if runErr != nil {
				if exitCode <= 0 {
					exitCode = 1
				}
				return &exitError{code: exitCode, err: runErr}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Run name (default: the command name)")
	cmd.Flags().StringVar(&description, "description", "", "Run description (default: the command line)")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Pipeline type recorded on the run")
	return cmd
}

// runInSession executes argv in an entered isolation session, teeing its
// output to logPath. It returns the process exit code (-1 when the process
// never ran) and any failure.
func runInSession(cmd *cobra.Command, ictx *isolation.Context, argv []string, logPath string) (int, error) {
	session, err := ictx.Enter()
	if err != nil {
		return -1, err
	}
	defer ictx.Exit()

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return -1, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return -1, fmt.Errorf("create run log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	proc := session.Command(cmd.Context(), argv[0], argv[1:]...)
	proc.Stdin = cmd.InOrStdin()
	proc.Stdout = io.MultiWriter(cmd.OutOrStdout(), logFile)
	proc.Stderr = io.MultiWriter(cmd.ErrOrStderr(), logFile)

	err = proc.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), fmt.Errorf("command exited with status %d", exitErr.ExitCode())
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}
