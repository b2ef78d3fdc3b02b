package output

import (
	"fmt"
	"io"

	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/reconcile"
)

// Plan is what an inspection shows the user before anything is applied
type Plan struct {
	RepoPath   string
	SourcePath string
	Machine    string

	// Bootstrapped marks a first run that recorded the current trees
	Bootstrapped bool

	// KnownMachine is false when the machine never synchronized before
	KnownMachine bool

	Repo      models.Snapshot
	Source    models.Snapshot
	ChangeSet *reconcile.ChangeSet
}

// Visible returns the elements worth showing: changed paths and paths
// carrying an operation, in path order
func (p *Plan) Visible() []reconcile.Elem {
	if p.ChangeSet == nil {
		return nil
	}
	var out []reconcile.Elem
	for _, e := range p.ChangeSet.Elems() {
		if e.RepoDate == nil && e.SourceDate == nil && !e.Edited() {
			continue
		}
		if e.Changed() || e.Operation != models.OpNoOp || e.Edited() {
			out = append(out, e)
		}
	}
	return out
}

// Formatter defines the interface for output formatting
// Implementations include human-readable and JSON formatters
type Formatter interface {
	// Plan renders an inspection
	Plan(w io.Writer, plan *Plan) error

	// Report renders the outcome of applying a change set
	Report(w io.Writer, report *models.ExecutionReport) error

	// Error reports a fatal error
	Error(w io.Writer, err error) error

	// Name returns the formatter name
	Name() string
}

// New returns the formatter for format ("human" or "json")
func New(format string, color bool) (Formatter, error) {
	switch format {
	case "", "human":
		return NewHumanFormatter(color), nil
	case "json":
		return NewJSONFormatter(), nil
	default:
		return nil, &models.ValidationError{
			Field:   "output",
			Message: fmt.Sprintf("unknown format %q, must be 'human' or 'json'", format),
		}
	}
}
