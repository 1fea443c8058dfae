package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/lantrn/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and lock configuration",
	}
	cmd.AddCommand(newConfigCheckCmd(a), newConfigLockCmd(a))
	return cmd
}

func newConfigCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and its integrity manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Discover(a.configPath)
			if path == "" {
				a.ui.Info("No config file found; built-in defaults apply")
				return nil
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			result, err := config.VerifyIntegrity(cfg.SourcePath)
			if err != nil {
				return err
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(map[string]any{
					"path":     cfg.SourcePath,
					"valid":    true,
					"locked":   result.Locked,
					"warnings": result.Warnings,
				})
			}
			a.ui.Success("%s is valid", cfg.SourcePath)
			for _, w := range result.Warnings {
				a.ui.Warning("%s", w)
			}
			return nil
		},
	}
}

func newConfigLockCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Record BLAKE3 checksums of the config in .checksums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Discover(a.configPath)
			if path == "" {
				return fmt.Errorf("no config file to lock; pass --config")
			}
			report, err := config.Lock(path, dryRun)
			if err != nil {
				return err
			}
			if a.ui.JSON {
				return a.ui.PrintJSON(report)
			}
			for _, f := range report.Files {
				if !f.Exists {
					a.ui.Warning("%s missing", f.Path)
					continue
				}
				fmt.Fprintf(a.ui.Out, "%s  %s\n", f.Hash, f.Filename)
			}
			if report.Written {
				a.ui.Success("Wrote %s", report.ChecksumPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute hashes without writing .checksums")
	return cmd
}
