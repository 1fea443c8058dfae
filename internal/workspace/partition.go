package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mattjoyce/lantrn/internal/fsutil"
)

// Partition is a named slice of a workspace with its own data, cache and
// log directories, for work that should not share the isolated working
// directory.
type Partition struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Root        string `json:"root"`
}

func (p *Partition) DataDir() string  { return filepath.Join(p.Root, "data") }
func (p *Partition) CacheDir() string { return filepath.Join(p.Root, "cache") }
func (p *Partition) LogsDir() string  { return filepath.Join(p.Root, "logs") }

// PartitionManager creates partitions inside the manager's workspaces.
type PartitionManager struct {
	m *Manager

	mu         sync.Mutex
	partitions map[string]map[string]*Partition
}

func NewPartitionManager(m *Manager) *PartitionManager {
	return &PartitionManager{m: m, partitions: make(map[string]map[string]*Partition)}
}

// CreatePartition creates (or returns the existing) partition pid in
// workspace wsID. It returns nil, nil when the workspace is unknown.
func (pm *PartitionManager) CreatePartition(wsID, pid string) (*Partition, error) {
	ictx := pm.m.GetWorkspace(wsID)
	if ictx == nil {
		return nil, nil
	}
	if err := fsutil.ValidateName("partition id", pid); err != nil {
		return nil, err
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if p, ok := pm.partitions[wsID][pid]; ok && fsutil.Exists(p.Root) {
		return p, nil
	}

	p := &Partition{ID: pid, WorkspaceID: wsID, Root: filepath.Join(ictx.Root, PartitionsDir, pid)}
	for _, dir := range []string{p.DataDir(), p.CacheDir(), p.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create partition %q: %w", pid, err)
		}
	}
	if pm.partitions[wsID] == nil {
		pm.partitions[wsID] = make(map[string]*Partition)
	}
	pm.partitions[wsID][pid] = p
	pm.m.logger.Debug("partition created", "workspace_id", wsID, "partition_id", pid)
	return p, nil
}

// GetPartition returns partition pid if it exists on disk, or nil.
func (pm *PartitionManager) GetPartition(wsID, pid string) *Partition {
	ictx := pm.m.GetWorkspace(wsID)
	if ictx == nil || fsutil.ValidateName("partition id", pid) != nil {
		return nil
	}
	root := filepath.Join(ictx.Root, PartitionsDir, pid)
	if !fsutil.Exists(root) {
		return nil
	}
	return &Partition{ID: pid, WorkspaceID: wsID, Root: root}
}

// ListPartitions returns the partition ids present on disk, sorted.
func (pm *PartitionManager) ListPartitions(wsID string) ([]string, error) {
	ictx := pm.m.GetWorkspace(wsID)
	if ictx == nil {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(ictx.Root, PartitionsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
