package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func currentVersion() versionInfo {
	info := versionInfo{Version: version, Commit: gitCommit, BuildTime: buildDate}
	if info.Commit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentVersion()
			if a.ui.JSON {
				return a.ui.PrintJSON(info)
			}
			fmt.Fprintf(a.ui.Out, "lantrn %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildTime)
			return nil
		},
	}
}
