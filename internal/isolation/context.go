package isolation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/lantrn/internal/fsutil"
	"github.com/mattjoyce/lantrn/internal/log"
)

// Layout of an isolation root.
const (
	WorkspaceDir = "workspace"
	OutputDir    = "output"
	LogsDir      = "logs"
	CacheDir     = "cache"
	ConfigDir    = "config"
	MetadataFile = "isolation.json"
)

// Environment variables describing the active workspace to child processes.
const (
	EnvWorkspaceID   = "LANTRN_WORKSPACE_ID"
	EnvWorkspaceRoot = "LANTRN_WORKSPACE_ROOT"
	EnvIsolated      = "LANTRN_ISOLATED"
)

var layout = []string{WorkspaceDir, OutputDir, LogsDir, CacheDir, ConfigDir}

// Metadata is the descriptor written to isolation.json.
type Metadata struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Config  Config    `json:"config"`
}

// Context owns the directory subtree at Root for one workspace or service.
type Context struct {
	ID     string
	Root   string
	Config Config

	logger *slog.Logger

	mu      sync.Mutex
	entered bool
}

// NewContext builds a context rooted at root. Nothing touches disk until
// Setup.
func NewContext(id, root string, cfg Config, logger *slog.Logger) (*Context, error) {
	if err := fsutil.ValidateName("isolation id", id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("isolation root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve isolation root: %w", err)
	}
	return &Context{
		ID:     id,
		Root:   abs,
		Config: cfg.clone(),
		logger: log.OrComponent(logger, "isolation").With(slog.String("workspace_id", id)),
	}, nil
}

// WorkspacePath is the isolated working directory.
func (c *Context) WorkspacePath() string { return filepath.Join(c.Root, WorkspaceDir) }

// OutputPath returns the path of name inside the output directory.
func (c *Context) OutputPath(name string) string { return filepath.Join(c.Root, OutputDir, name) }

// LogPath returns the path of name inside the logs directory ("run.log" when
// name is empty).
func (c *Context) LogPath(name string) string {
	if name == "" {
		name = "run.log"
	}
	return filepath.Join(c.Root, LogsDir, name)
}

// CachePath returns the cache file for key.
func (c *Context) CachePath(key string) string {
	return filepath.Join(c.Root, CacheDir, key+".cache")
}

// Setup creates the directory layout and the metadata descriptor. Calling it
// again is harmless; the original creation time is kept.
func (c *Context) Setup() (string, error) {
	for _, dir := range layout {
		if err := os.MkdirAll(filepath.Join(c.Root, dir), 0o755); err != nil {
			return "", fmt.Errorf("create %s directory: %w", dir, err)
		}
	}

	meta := Metadata{ID: c.ID, Created: time.Now().UTC(), Config: c.Config.clone()}
	if prev, err := LoadMetadata(c.Root); err == nil && !prev.Created.IsZero() {
		meta.Created = prev.Created
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal isolation metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(c.Root, MetadataFile), data, 0o644); err != nil {
		return "", fmt.Errorf("write isolation metadata: %w", err)
	}

	c.logger.Debug("isolation context ready", "root", c.Root)
	return c.Root, nil
}

// LoadMetadata reads isolation.json under root.
func LoadMetadata(root string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(root, MetadataFile))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode %s: %w", MetadataFile, err)
	}
	if meta.ID == "" {
		return Metadata{}, fmt.Errorf("%s has no id", MetadataFile)
	}
	return meta, nil
}

// Enter returns the session tools must run in. The process working
// directory and environment are left alone, so any number of contexts may
// be entered at once. With isolation disabled the session points at the
// current directory and carries no variables.
func (c *Context) Enter() (Session, error) {
	if !c.Config.Enabled {
		cwd, err := os.Getwd()
		if err != nil {
			return Session{}, fmt.Errorf("resolve working directory: %w", err)
		}
		return Session{Dir: cwd}, nil
	}

	dir := c.WorkspacePath()
	info, err := os.Stat(dir)
	if err != nil {
		return Session{}, fmt.Errorf("enter isolation context %q: %w", c.ID, err)
	}
	if !info.IsDir() {
		return Session{}, fmt.Errorf("enter isolation context %q: %s is not a directory", c.ID, dir)
	}

	c.mu.Lock()
	c.entered = true
	c.mu.Unlock()

	return Session{
		Dir: dir,
		Env: map[string]string{
			EnvWorkspaceID:   c.ID,
			EnvWorkspaceRoot: c.Root,
			EnvIsolated:      "1",
		},
	}, nil
}

// Exit marks the context as no longer entered. It never fails.
func (c *Context) Exit() {
	c.mu.Lock()
	c.entered = false
	c.mu.Unlock()
}

// Active reports whether the context is between Enter and Exit.
func (c *Context) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entered
}

// Cleanup removes the root subtree unless PreserveOnExit is set. Errors are
// logged and swallowed.
func (c *Context) Cleanup() {
	if c.Config.PreserveOnExit {
		c.logger.Debug("isolation root preserved", "root", c.Root)
		return
	}
	c.Remove()
}

// Remove deletes the root subtree regardless of PreserveOnExit. Errors are
// logged and swallowed.
func (c *Context) Remove() {
	if err := os.RemoveAll(c.Root); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("isolation cleanup failed", "root", c.Root, "error", err)
		return
	}
	c.logger.Debug("isolation root removed", "root", c.Root)
}

// Isolated runs fn inside an entered session and always exits and cleans
// up afterwards, whether fn succeeds or not.
func (c *Context) Isolated(ctx context.Context, fn func(context.Context, Session) error) error {
	session, err := c.Enter()
	if err != nil {
		return err
	}
	defer c.Cleanup()
	defer c.Exit()

	return fn(ctx, session)
}
