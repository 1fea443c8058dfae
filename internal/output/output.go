// Package output renders CLI messages and tables.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/mattjoyce/lantrn/internal/diff"
	"github.com/mattjoyce/lantrn/internal/manifest"
)

// UI writes human-facing output, or JSON when JSON is set.
type UI struct {
	JSON   bool
	Out    io.Writer
	ErrOut io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{Out: os.Stdout, ErrOut: os.Stderr}
}

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	headingStyle = lipgloss.NewStyle().Bold(true)

	statusStyles = map[manifest.Status]lipgloss.Style{
		manifest.StatusPending:   mutedStyle,
		manifest.StatusRunning:   warningStyle,
		manifest.StatusCompleted: successStyle,
		manifest.StatusFailed:    errorStyle,
		manifest.StatusCancelled: mutedStyle,
	}
	changeStyles = map[diff.ChangeType]lipgloss.Style{
		diff.ChangeCreated:  successStyle,
		diff.ChangeModified: warningStyle,
		diff.ChangeDeleted:  errorStyle,
	}
)

// Status renders a run status in its color.
func Status(s manifest.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

// Change renders a change type in its color.
func Change(ct diff.ChangeType) string {
	if style, ok := changeStyles[ct]; ok {
		return style.Render(string(ct))
	}
	return string(ct)
}

// Heading renders s in bold.
func Heading(s string) string { return headingStyle.Render(s) }

// Muted renders s dimmed.
func Muted(s string) string { return mutedStyle.Render(s) }

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoStyle.Render("i"), fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successStyle.Render("✓"), fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningStyle.Render("⚠"), fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorStyle.Render("✗"), fmt.Sprintf(format, a...))
}

// PrintJSON writes v as indented JSON.
func (u *UI) PrintJSON(v any) error {
	enc := json.NewEncoder(u.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// ChangeSet prints a change set's files, one per line, followed by the
// unified diff lines when showDiff is set.
func (u *UI) ChangeSet(cs *diff.ChangeSet, showDiff bool) {
	if cs == nil || !cs.HasChanges() {
		u.Info("no changes")
		return
	}
	for _, d := range cs.Diffs {
		if d.ChangeType == diff.ChangeUnchanged {
			continue
		}
		fmt.Fprintf(u.Out, "%-10s %s\n", Change(d.ChangeType), d.Path)
		if showDiff {
			for _, line := range d.Lines {
				fmt.Fprintf(u.Out, "    %s\n", line)
			}
		}
	}
	sum := cs.Summary()
	fmt.Fprintf(u.Out, "%s\n", Muted(fmt.Sprintf("%d created, %d modified, %d deleted", sum.Created, sum.Modified, sum.Deleted)))
}
