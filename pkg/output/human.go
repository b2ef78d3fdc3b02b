package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/reconcile"
)

const dateLayout = "2006-01-02 15:04:05"

// HumanFormatter formats output in human-readable format
type HumanFormatter struct {
	conflict *color.Color
	header   *color.Color
	action   *color.Color
	warn     *color.Color
}

// NewHumanFormatter creates a new human-readable formatter. Colors are
// only emitted when useColor is true.
func NewHumanFormatter(useColor bool) *HumanFormatter {
	f := &HumanFormatter{
		conflict: color.New(color.FgRed, color.Bold),
		header:   color.New(color.Bold),
		action:   color.New(color.FgCyan),
		warn:     color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{f.conflict, f.header, f.action, f.warn} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

var categoryOrder = []reconcile.Category{
	reconcile.CategoryNew,
	reconcile.CategoryDeleted,
	reconcile.CategoryChanged,
}

var categoryLabels = map[reconcile.Category]string{
	reconcile.CategoryNew:     "New",
	reconcile.CategoryDeleted: "Deleted",
	reconcile.CategoryChanged: "Changed",
}

var operationLabels = map[models.FileOperation]string{
	models.OpNoOp:         "skip",
	models.OpUseRepo:      "repository -> source",
	models.OpUseSource:    "source -> repository",
	models.OpDeleteRepo:   "delete from repository",
	models.OpDeleteSource: "delete from source",
}

// Plan renders the change set grouped by category
func (f *HumanFormatter) Plan(w io.Writer, plan *Plan) error {
	fmt.Fprintf(w, "Repository: %s (%d files, %s)\n",
		plan.RepoPath, len(plan.Repo), humanize.Bytes(uint64(plan.Repo.TotalSize())))
	fmt.Fprintf(w, "Source:     %s (%d files, %s)\n",
		plan.SourcePath, len(plan.Source), humanize.Bytes(uint64(plan.Source.TotalSize())))
	fmt.Fprintf(w, "Machine:    %s\n", plan.Machine)

	if plan.Bootstrapped {
		fmt.Fprintf(w, "\nNo sync state found: the current trees were recorded as synchronized.\n")
	}
	if !plan.KnownMachine {
		f.warn.Fprintf(w, "\nThis machine never synchronized with the repository: its files are compared as new against the repository records.\n")
	}

	visible := plan.Visible()
	byCategory := make(map[reconcile.Category][]reconcile.Elem)
	for _, e := range visible {
		byCategory[e.Category()] = append(byCategory[e.Category()], e)
	}

	for _, cat := range categoryOrder {
		elems := byCategory[cat]
		if len(elems) == 0 {
			continue
		}

		label := fmt.Sprintf("%s (%d files)", categoryLabels[cat], len(elems))
		fmt.Fprintf(w, "\n")
		f.header.Fprintf(w, "%s\n", label)
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", len(label)))

		for _, e := range elems {
			f.writeElem(w, e)
		}
	}

	if len(visible) == 0 {
		fmt.Fprintf(w, "\nNo changes since the last synchronization.\n")
	}

	if plan.ChangeSet != nil {
		f.writeStats(w, plan.ChangeSet.Stats())
	}
	return nil
}

func (f *HumanFormatter) writeElem(w io.Writer, e reconcile.Elem) {
	op := f.action.Sprintf("%-12s", e.Operation)
	if e.IsConflict() && e.Operation == models.OpNoOp {
		op = f.conflict.Sprintf("%-12s", "CONFLICT")
	}

	edited := ""
	if e.Edited() {
		edited = " (edited)"
	}

	fmt.Fprintf(w, "  %s %s%s\n", op, e.Path, edited)
	fmt.Fprintf(w, "      repository: %-9s %s\n", e.RepoChange, formatDate(e.RepoDate))
	fmt.Fprintf(w, "      source:     %-9s %s\n", e.SourceChange, formatDate(e.SourceDate))

	if e.IsConflict() {
		f.conflict.Fprintf(w, "      conflict: %s\n", e.ConflictType.Description())
	} else if e.Operation != models.OpNoOp {
		fmt.Fprintf(w, "      action:   %s\n", operationLabels[e.Operation])
	}
}

func (f *HumanFormatter) writeStats(w io.Writer, s reconcile.Stats) {
	fmt.Fprintf(w, "\nSummary:\n")
	for _, op := range models.AllOperations {
		fmt.Fprintf(w, "  %-14s %d\n", op, s.Count(op))
	}
	if s.Conflicts > 0 {
		f.conflict.Fprintf(w, "  %-14s %d (%d unresolved)\n", "Conflicts", s.Conflicts, s.Unresolved)
	}
	if s.Actions() == 0 {
		fmt.Fprintf(w, "\nNo actions to take\n")
	} else {
		fmt.Fprintf(w, "\n%d actions to take\n", s.Actions())
	}
}

// Report renders the outcome of a run
func (f *HumanFormatter) Report(w io.Writer, report *models.ExecutionReport) error {
	fmt.Fprintf(w, "\n")
	if report.Nothing() {
		fmt.Fprintf(w, "%s\n", report.Summary())
		return nil
	}

	fmt.Fprintf(w, "Sync finished in %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Summary: %s\n", report.Summary())
	fmt.Fprintf(w, "  Copied:        %d of %d (%s)\n", report.FilesCopied, report.CopiesPlanned, humanize.Bytes(uint64(report.BytesCopied)))
	fmt.Fprintf(w, "  Deleted:       %d of %d\n", report.FilesDeleted, report.DeletesPlanned)
	fmt.Fprintf(w, "  Dirs removed:  %d\n", report.DirsRemoved)

	if report.Duration.Seconds() > 0 && report.BytesCopied > 0 {
		avgSpeed := float64(report.BytesCopied) / report.Duration.Seconds()
		fmt.Fprintf(w, "  Average speed: %s/s\n", humanize.Bytes(uint64(avgSpeed)))
	}

	if report.StateSaved {
		fmt.Fprintf(w, "  Sync state:    saved\n")
	} else {
		fmt.Fprintf(w, "  Sync state:    unchanged\n")
	}

	fmt.Fprintf(w, "\n")
	status := string(report.Status)
	if report.Status != models.StatusSuccess {
		status = f.conflict.Sprint(status)
	}
	fmt.Fprintf(w, "Status: %s\n", status)

	if len(report.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors:\n")
		for _, e := range report.Errors {
			fmt.Fprintf(w, "  %s (%s): %s\n", e.FilePath, e.Operation, e.Error)
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, msg := range report.Warnings {
			f.warn.Fprintf(w, "  %s\n", msg)
		}
	}

	return nil
}

// Error reports an error
func (f *HumanFormatter) Error(w io.Writer, err error) error {
	f.conflict.Fprintf(w, "Error: %v\n", err)
	return nil
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "(absent)"
	}
	return t.Local().Format(dateLayout)
}
