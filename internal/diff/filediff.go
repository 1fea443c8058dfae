package diff

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// ChangeType classifies what happened to a path between two snapshots.
type ChangeType string

const (
	ChangeCreated   ChangeType = "created"
	ChangeModified  ChangeType = "modified"
	ChangeDeleted   ChangeType = "deleted"
	ChangeUnchanged ChangeType = "unchanged"
)

// FileDiff is the comparison of one path's before and after snapshots.
// Lines holds a unified diff and is only populated for created or modified
// text content.
type FileDiff struct {
	Path       string
	Old        *Snapshot
	New        *Snapshot
	ChangeType ChangeType
	Lines      []string
}

// Classify derives the change type from snapshot existence and hash
// equality. A nil snapshot counts as not existing.
func Classify(old, new *Snapshot) ChangeType {
	oldExists := old != nil && old.Exists
	newExists := new != nil && new.Exists

	switch {
	case !oldExists && newExists:
		return ChangeCreated
	case !oldExists:
		return ChangeUnchanged
	case !newExists:
		return ChangeDeleted
	case old.ContentHash != new.ContentHash:
		return ChangeModified
	default:
		return ChangeUnchanged
	}
}

// UnifiedLines returns a unified diff of before against after with
// a/<name> and b/<name> headers and three lines of context. Lines carry no
// trailing newline. Identical inputs produce nil.
func UnifiedLines(name, before, after string) ([]string, error) {
	ud := difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), nil
}

// NoNewlineMarker follows a diff line whose content had no trailing newline.
const NoNewlineMarker = `\ No newline at end of file`

// splitLines splits s after each newline. Unlike difflib.SplitLines it does
// not invent an empty trailing line. A final unterminated line carries the
// no-newline marker as its own output line, so "a" and "a\n" differ and the
// unified output stays line-aligned.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	lines[last] += "\n" + NoNewlineMarker + "\n"
	return lines
}

func isText(b []byte) bool {
	return bytes.IndexByte(b, 0) < 0 && utf8.Valid(b)
}

func diffName(path string) string {
	return filepath.Base(path)
}
