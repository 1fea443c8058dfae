package config

import (
	"github.com/mattjoyce/lantrn/internal/diff"
	"github.com/mattjoyce/lantrn/internal/isolation"
	"github.com/mattjoyce/lantrn/internal/workspace"
)

// Config represents the complete lantrn configuration.
type Config struct {
	Service   ServiceConfig    `yaml:"service"`
	Workspace WorkspaceConfig  `yaml:"workspace"`
	Isolation isolation.Config `yaml:"isolation"`
	State     StateConfig      `yaml:"state"`
	API       APIConfig        `yaml:"api,omitempty"`

	// SourcePath is the file the config was loaded from, empty for defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// WorkspaceConfig defines where workspaces live and how runs are bracketed.
type WorkspaceConfig struct {
	Root               string `yaml:"root"`
	MaxWorkspaces      int    `yaml:"max_workspaces"`
	AutoCleanup        bool   `yaml:"auto_cleanup"`
	SnapshotOnStart    bool   `yaml:"snapshot_on_start"`
	SnapshotOnComplete bool   `yaml:"snapshot_on_complete"`
	LockRuns           bool   `yaml:"lock_runs"`
	MaxDiffBytes       int64  `yaml:"max_diff_bytes"`
}

// StateConfig locates the SQLite run ledger. An empty path disables it.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the read-only inspection API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// Defaults returns a Config with the stock settings.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "lantrn",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Workspace: WorkspaceConfig{
			Root:               "./workspaces",
			MaxWorkspaces:      workspace.DefaultMaxWorkspaces,
			AutoCleanup:        true,
			SnapshotOnStart:    true,
			SnapshotOnComplete: true,
			LockRuns:           true,
			MaxDiffBytes:       diff.DefaultMaxDiffBytes,
		},
		Isolation: isolation.DefaultConfig(),
		State: StateConfig{
			Path: "./data/ledger.db",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8080",
		},
	}
}

// WorkspaceManagerConfig converts the workspace and isolation sections into
// the manager's settings.
func (c *Config) WorkspaceManagerConfig() workspace.Config {
	return workspace.Config{
		Root:               c.Workspace.Root,
		MaxWorkspaces:      c.Workspace.MaxWorkspaces,
		AutoCleanup:        c.Workspace.AutoCleanup,
		SnapshotOnStart:    c.Workspace.SnapshotOnStart,
		SnapshotOnComplete: c.Workspace.SnapshotOnComplete,
		LockRuns:           c.Workspace.LockRuns,
		MaxDiffBytes:       c.Workspace.MaxDiffBytes,
		Isolation:          c.Isolation,
	}
}
