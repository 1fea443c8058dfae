package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/lantrn/internal/config"
	"github.com/mattjoyce/lantrn/internal/ledger"
	"github.com/mattjoyce/lantrn/internal/log"
	"github.com/mattjoyce/lantrn/internal/output"
	"github.com/mattjoyce/lantrn/internal/storage"
	"github.com/mattjoyce/lantrn/internal/workspace"
)

// app holds what every command shares. Dependencies are opened lazily so
// commands like version never touch disk.
type app struct {
	configPath string
	jsonOut    bool
	verbose    bool

	stdin io.Reader
	ui    *output.UI

	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	ledger *ledger.Ledger
	mgr    *workspace.Manager
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, ui: &output.UI{Out: stdout, ErrOut: stderr}}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lantrn",
		Short: "Isolated workspaces with tracked runs and file change sets",
		Long: `lantrn gives agent and tool runs their own isolated workspace,
records a manifest for every run, and captures exactly which files each run
created, modified or deleted.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.ui.JSON = a.jsonOut
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default $LANTRN_CONFIG or ~/.config/lantrn/config.yaml)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(
		newWorkspaceCmd(a),
		newRunCmd(a),
		newExecCmd(a),
		newConfigCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return root
}

// loadConfig resolves and loads the config once, and sets up logging.
func (a *app) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Service.LogLevel
	if a.verbose {
		level = "debug"
	}
	log.SetupWriter(a.ui.ErrOut, level, cfg.Service.LogFormat)
	a.cfg = cfg
	a.logger = log.WithComponent("cli")
	return cfg, nil
}

// open loads config and builds the ledger and workspace manager.
func (a *app) open(ctx context.Context) error {
	if a.mgr != nil {
		return nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	var rec workspace.Recorder
	if cfg.State.Path != "" {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open run ledger: %w", err)
		}
		a.db = db
		a.ledger = ledger.New(db)
		rec = a.ledger
	}

	mgr, err := workspace.New(cfg.WorkspaceManagerConfig(), rec, log.WithComponent("workspace"))
	if err != nil {
		return err
	}
	a.mgr = mgr
	return nil
}

// openWorkspace opens the manager and registers workspace id from disk.
func (a *app) openWorkspace(ctx context.Context, id string) error {
	if err := a.open(ctx); err != nil {
		return err
	}
	_, err := a.mgr.OpenWorkspace(ctx, id)
	return err
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.logger != nil {
			a.logger.Warn("close run ledger failed", "error", err)
		}
	}
}
