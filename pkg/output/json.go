package output

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/reconcile"
)

// JSONFormatter formats output as JSON for automation and scripting
type JSONFormatter struct{}

// JSONPlan is the JSON rendering of an inspection
type JSONPlan struct {
	RepoPath     string          `json:"repo_path"`
	SourcePath   string          `json:"source_path"`
	Machine      string          `json:"machine"`
	Bootstrapped bool            `json:"bootstrapped"`
	KnownMachine bool            `json:"known_machine"`
	RepoFiles    int             `json:"repo_files"`
	SourceFiles  int             `json:"source_files"`
	Stats        reconcile.Stats `json:"stats"`
	Changes      []JSONElem      `json:"changes"`
}

// JSONElem represents one changed path
type JSONElem struct {
	Path         string               `json:"path"`
	Category     reconcile.Category   `json:"category"`
	Operation    models.FileOperation `json:"operation"`
	Edited       bool                 `json:"edited,omitempty"`
	RepoChange   reconcile.ChangeType `json:"repo_change"`
	SourceChange reconcile.ChangeType `json:"source_change"`
	RepoDate     *time.Time           `json:"repo_date,omitempty"`
	SourceDate   *time.Time           `json:"source_date,omitempty"`
	Conflict     bool                 `json:"conflict,omitempty"`
	ConflictType models.ConflictType  `json:"conflict_type,omitempty"`
}

// JSONReport wraps the execution report with its summary line
type JSONReport struct {
	*models.ExecutionReport
	Summary    string `json:"summary"`
	DurationMs int64  `json:"duration_ms"`
}

// JSONError represents a fatal error
type JSONError struct {
	Error string `json:"error"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Plan writes the inspection as one JSON document
func (f *JSONFormatter) Plan(w io.Writer, plan *Plan) error {
	out := JSONPlan{
		RepoPath:     plan.RepoPath,
		SourcePath:   plan.SourcePath,
		Machine:      plan.Machine,
		Bootstrapped: plan.Bootstrapped,
		KnownMachine: plan.KnownMachine,
		RepoFiles:    len(plan.Repo),
		SourceFiles:  len(plan.Source),
		Changes:      []JSONElem{},
	}
	if plan.ChangeSet != nil {
		out.Stats = plan.ChangeSet.Stats()
	}

	for _, e := range plan.Visible() {
		out.Changes = append(out.Changes, JSONElem{
			Path:         e.Path,
			Category:     e.Category(),
			Operation:    e.Operation,
			Edited:       e.Edited(),
			RepoChange:   e.RepoChange,
			SourceChange: e.SourceChange,
			RepoDate:     e.RepoDate,
			SourceDate:   e.SourceDate,
			Conflict:     e.IsConflict(),
			ConflictType: e.ConflictType,
		})
	}

	return encode(w, out)
}

// Report writes the execution report
func (f *JSONFormatter) Report(w io.Writer, report *models.ExecutionReport) error {
	return encode(w, JSONReport{
		ExecutionReport: report,
		Summary:         report.Summary(),
		DurationMs:      report.Duration.Milliseconds(),
	})
}

// Error writes the error as a JSON object
func (f *JSONFormatter) Error(w io.Writer, err error) error {
	return encode(w, JSONError{Error: err.Error()})
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}

func encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
