package diff

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattjoyce/lantrn/internal/fsutil"
	"github.com/zeebo/blake3"
)

// ChangeSet is an immutable, timestamped collection of file diffs.
type ChangeSet struct {
	ID          string
	CreatedAt   time.Time
	Description string
	Diffs       []FileDiff
}

// Summary counts changes by type.
type Summary struct {
	Created  int `json:"created"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

func newChangeSet(description string, diffs []FileDiff) *ChangeSet {
	createdAt := nowFunc().UTC()
	return &ChangeSet{
		ID:          newChangeSetID(createdAt, description),
		CreatedAt:   createdAt,
		Description: description,
		Diffs:       diffs,
	}
}

// newChangeSetID hashes creation time and description, truncated to 12 hex
// characters. Collisions are not checked.
func newChangeSetID(createdAt time.Time, description string) string {
	sum := blake3.Sum256([]byte(createdAt.Format(time.RFC3339Nano) + ":" + description))
	return hex.EncodeToString(sum[:])[:12]
}

func (cs *ChangeSet) pathsOf(ct ChangeType) []string {
	var out []string
	for _, d := range cs.Diffs {
		if d.ChangeType == ct {
			out = append(out, d.Path)
		}
	}
	return out
}

// FilesCreated lists paths whose change type is created.
func (cs *ChangeSet) FilesCreated() []string { return cs.pathsOf(ChangeCreated) }

// FilesModified lists paths whose change type is modified.
func (cs *ChangeSet) FilesModified() []string { return cs.pathsOf(ChangeModified) }

// FilesDeleted lists paths whose change type is deleted.
func (cs *ChangeSet) FilesDeleted() []string { return cs.pathsOf(ChangeDeleted) }

// HasChanges reports whether any diff is not unchanged.
func (cs *ChangeSet) HasChanges() bool {
	for _, d := range cs.Diffs {
		if d.ChangeType != ChangeUnchanged {
			return true
		}
	}
	return false
}

// Summary returns created/modified/deleted counts.
func (cs *ChangeSet) Summary() Summary {
	return Summary{
		Created:  len(cs.FilesCreated()),
		Modified: len(cs.FilesModified()),
		Deleted:  len(cs.FilesDeleted()),
	}
}

type changeSetJSON struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Description string         `json:"description"`
	Summary     Summary        `json:"summary"`
	Diffs       []fileDiffJSON `json:"diffs"`
}

type fileDiffJSON struct {
	Path       string     `json:"path"`
	ChangeType ChangeType `json:"change_type"`
	OldHash    *string    `json:"old_hash"`
	NewHash    *string    `json:"new_hash"`
	DiffLines  []string   `json:"diff_lines"`
}

// MarshalJSON emits the persisted change-set shape: diffs carry only the
// old/new content hashes, not full snapshots.
func (cs *ChangeSet) MarshalJSON() ([]byte, error) {
	out := changeSetJSON{
		ID:          cs.ID,
		CreatedAt:   cs.CreatedAt,
		Description: cs.Description,
		Summary:     cs.Summary(),
		Diffs:       make([]fileDiffJSON, 0, len(cs.Diffs)),
	}
	for _, d := range cs.Diffs {
		fd := fileDiffJSON{
			Path:       d.Path,
			ChangeType: d.ChangeType,
			DiffLines:  d.Lines,
		}
		if fd.DiffLines == nil {
			fd.DiffLines = []string{}
		}
		if d.Old != nil {
			h := d.Old.ContentHash
			fd.OldHash = &h
		}
		if d.New != nil {
			h := d.New.ContentHash
			fd.NewHash = &h
		}
		out.Diffs = append(out.Diffs, fd)
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a change set from its persisted shape. Snapshots
// are reconstructed from hashes only; an empty hash means the file did not
// exist.
func (cs *ChangeSet) UnmarshalJSON(data []byte) error {
	var in changeSetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.ID == "" {
		return fmt.Errorf("change set has no id")
	}

	diffs := make([]FileDiff, 0, len(in.Diffs))
	for i, fd := range in.Diffs {
		switch fd.ChangeType {
		case ChangeCreated, ChangeModified, ChangeDeleted, ChangeUnchanged:
		default:
			return fmt.Errorf("diff[%d]: unknown change_type %q", i, fd.ChangeType)
		}
		diffs = append(diffs, FileDiff{
			Path:       fd.Path,
			Old:        hashSnapshot(fd.Path, fd.OldHash),
			New:        hashSnapshot(fd.Path, fd.NewHash),
			ChangeType: fd.ChangeType,
			Lines:      fd.DiffLines,
		})
	}

	*cs = ChangeSet{
		ID:          in.ID,
		CreatedAt:   in.CreatedAt,
		Description: in.Description,
		Diffs:       diffs,
	}
	return nil
}

func hashSnapshot(path string, hash *string) *Snapshot {
	if hash == nil {
		return nil
	}
	return &Snapshot{Path: path, ContentHash: *hash, Exists: *hash != ""}
}

// SaveChangeSet writes cs as indented JSON to path, creating parent
// directories. The file is replaced atomically.
func SaveChangeSet(cs *ChangeSet, path string) error {
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal change set: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// LoadChangeSet reads a change set written by SaveChangeSet.
func LoadChangeSet(path string) (*ChangeSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cs ChangeSet
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("decode change set %s: %w", filepath.Base(path), err)
	}
	return &cs, nil
}
