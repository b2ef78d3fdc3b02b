// Package sync ties the scanner, the state store, the reconciliation engine
// and the executor together for one repository directory and one machine.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/reposync/pkg/exclude"
	"github.com/sdejongh/reposync/pkg/executor"
	"github.com/sdejongh/reposync/pkg/logging"
	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/progress"
	"github.com/sdejongh/reposync/pkg/reconcile"
	"github.com/sdejongh/reposync/pkg/scan"
	"github.com/sdejongh/reposync/pkg/state"
	"github.com/sdejongh/reposync/pkg/storage"
)

// Options configure an Engine
type Options struct {
	RepoPath   string
	SourcePath string

	// Machine names the source side in the sync state
	Machine string

	// Rules apply to both trees; the files reposync keeps in the
	// repository root are always excluded
	Rules *exclude.Rules

	// Progress callbacks per phase, any of them may be nil
	RepoScanProgress   progress.Func
	SourceScanProgress progress.Func
	InspectProgress    progress.Func
	ApplyProgress      progress.Func
	Interval           time.Duration

	// BandwidthLimit caps copy throughput in bytes per second, 0 = unlimited
	BandwidthLimit int64

	Logger logging.Logger

	// Fs is the filesystem both trees live on, nil for the OS filesystem
	Fs afero.Fs
}

// Inspection is the result of scanning and reconciling both trees. The
// change set may be edited before it is handed to Apply.
type Inspection struct {
	ChangeSet *reconcile.ChangeSet
	State     *state.SyncState
	Repo      models.Snapshot
	Source    models.Snapshot

	// Bootstrapped is true when no state existed and one was created from
	// the current trees
	Bootstrapped bool

	// KnownMachine is false when the machine had no side in the state
	KnownMachine bool
}

// Engine runs inspections and applies them
type Engine struct {
	opts   Options
	repo   *storage.Local
	source *storage.Local
	store  *state.Store
	rules  *exclude.Rules
	logger logging.Logger
}

// NewEngine validates the options and opens both trees
func NewEngine(opts Options) (*Engine, error) {
	if opts.Machine == "" {
		return nil, &models.ValidationError{Field: "machine", Message: "machine name is required"}
	}
	if opts.RepoPath == "" {
		return nil, &models.ValidationError{Field: "repository", Message: "repository path is required"}
	}
	if opts.SourcePath == "" {
		return nil, &models.ValidationError{Field: "source", Message: "source path is required"}
	}

	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	repo, err := storage.NewLocalFs(fsys, opts.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("invalid repository: %w", err)
	}
	source, err := storage.NewLocalFs(fsys, opts.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	rules := opts.Rules
	if rules == nil {
		rules = exclude.MustNew(nil, nil)
	}

	return &Engine{
		opts:   opts,
		repo:   repo,
		source: source,
		store:  state.NewStore(fsys),
		rules:  rules.Reserve(state.FileName, state.TempFileName, state.LockFileName),
		logger: logger.WithFields(logging.Fields{"machine": opts.Machine}),
	}, nil
}

// Excluded reports whether path, or one of its parent directories, is left
// out of both scans
func (e *Engine) Excluded(path string) bool {
	return e.rules.Match(path, false)
}

// StatePath returns the location of the sync state file
func (e *Engine) StatePath() string {
	return state.Path(e.repo.Root())
}

// Inspect scans both trees concurrently, loads the sync state and
// reconciles them. When no state exists yet one is bootstrapped from the
// current trees and saved, so a first run has nothing to do.
func (e *Engine) Inspect(ctx context.Context) (*Inspection, error) {
	ins := &Inspection{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := scan.Scan(gctx, e.repo, scan.Options{
			Rules:    e.rules,
			Progress: e.opts.RepoScanProgress,
			Interval: e.opts.Interval,
		})
		ins.Repo = snap
		return err
	})
	g.Go(func() error {
		snap, err := scan.Scan(gctx, e.source, scan.Options{
			Rules:    e.rules,
			Progress: e.opts.SourceScanProgress,
			Interval: e.opts.Interval,
		})
		ins.Source = snap
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug(ctx, "trees scanned", logging.Fields{
		"repo_files":   len(ins.Repo),
		"source_files": len(ins.Source),
	})

	st, err := e.store.Load(e.StatePath())
	switch {
	case errors.Is(err, models.ErrStateNotFound):
		st = state.Bootstrap(ins.Repo, ins.Source, e.opts.Machine)
		if err := e.store.Save(st, e.StatePath()); err != nil {
			return nil, fmt.Errorf("failed to create sync state: %w", err)
		}
		ins.Bootstrapped = true
		e.logger.Info(ctx, "no sync state found, recorded current trees", logging.Fields{"path": e.StatePath()})
	case err != nil:
		return nil, err
	}
	ins.State = st

	base := reconcile.NewBaseline(st, e.opts.Machine)
	ins.KnownMachine = base.Known
	if !base.Known {
		e.logger.Warn(ctx, "machine has never synchronized with this repository, its files are compared as new", nil)
	}

	cs, err := reconcile.Inspect(ctx, base, ins.Repo, ins.Source, reconcile.Options{
		Progress: e.opts.InspectProgress,
		Interval: e.opts.Interval,
	})
	if err != nil {
		return nil, err
	}
	ins.ChangeSet = cs

	stats := cs.Stats()
	e.logger.Info(ctx, "inspection complete", logging.Fields{
		"actions":   stats.Actions(),
		"conflicts": stats.Conflicts,
	})
	return ins, nil
}

// Apply executes an inspection, possibly edited by the user
func (e *Engine) Apply(ctx context.Context, ins *Inspection) (*models.ExecutionReport, error) {
	if ins == nil || ins.ChangeSet == nil {
		return nil, errors.New("nothing inspected")
	}

	x := executor.New(e.repo, e.source, executor.Options{
		Machine:        e.opts.Machine,
		StatePath:      e.StatePath(),
		Store:          e.store,
		BandwidthLimit: e.opts.BandwidthLimit,
		Progress:       e.opts.ApplyProgress,
		Interval:       e.opts.Interval,
		Logger:         e.logger,
	})
	return x.Apply(ctx, ins.ChangeSet, ins.State)
}

// ResetState removes the persisted sync state. The next inspection will
// bootstrap a new one.
func (e *Engine) ResetState() error {
	return e.store.Clear(e.StatePath())
}

// LoadState reads the persisted sync state
func (e *Engine) LoadState() (*state.SyncState, error) {
	return e.store.Load(e.StatePath())
}

// Lock returns the advisory lock of the repository root
func (e *Engine) Lock() *state.Lock {
	return state.NewLock(e.repo.Root())
}
