// Package executor applies a reviewed change set to the repository and
// source trees and records the resulting sync state.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdejongh/reposync/pkg/logging"
	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/progress"
	"github.com/sdejongh/reposync/pkg/ratelimit"
	"github.com/sdejongh/reposync/pkg/reconcile"
	"github.com/sdejongh/reposync/pkg/state"
	"github.com/sdejongh/reposync/pkg/storage"
)

// Options configure an Executor
type Options struct {
	// Machine is the side name of the source tree in the sync state
	Machine string

	// StatePath is where the state is written after a complete run
	StatePath string

	// Store writes the state; nil uses the local filesystem
	Store *state.Store

	// BandwidthLimit caps copy throughput in bytes per second, 0 = unlimited
	BandwidthLimit int64

	// Progress receives (done, total, path) for copies and deletes
	Progress progress.Func
	Interval time.Duration

	Logger logging.Logger
}

// Executor runs the copy and delete batches of a change set
type Executor struct {
	repo    storage.Backend
	source  storage.Backend
	opts    Options
	store   *state.Store
	limiter *ratelimit.Limiter
	logger  logging.Logger
}

// New creates an executor between a repository and a source backend
func New(repo, source storage.Backend, opts Options) *Executor {
	store := opts.Store
	if store == nil {
		store = state.DefaultStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Executor{
		repo:    repo,
		source:  source,
		opts:    opts,
		store:   store,
		limiter: ratelimit.NewLimiter(opts.BandwidthLimit),
		logger:  logger,
	}
}

type copyTask struct {
	path string
	op   models.FileOperation
	from storage.Backend
	to   storage.Backend
}

type deleteTask struct {
	path   string
	op     models.FileOperation
	target storage.Backend
}

// plan partitions the change set into copies and deletes. NoOp elements,
// including unresolved conflicts, are skipped.
func (x *Executor) plan(cs *reconcile.ChangeSet) ([]copyTask, []deleteTask) {
	var copies []copyTask
	var deletes []deleteTask

	for _, e := range cs.Elems() {
		switch e.Operation {
		case models.OpUseRepo:
			copies = append(copies, copyTask{path: e.Path, op: e.Operation, from: x.repo, to: x.source})
		case models.OpUseSource:
			copies = append(copies, copyTask{path: e.Path, op: e.Operation, from: x.source, to: x.repo})
		case models.OpDeleteRepo:
			deletes = append(deletes, deleteTask{path: e.Path, op: e.Operation, target: x.repo})
		case models.OpDeleteSource:
			deletes = append(deletes, deleteTask{path: e.Path, op: e.Operation, target: x.source})
		}
	}

	return copies, deletes
}

// Apply executes the change set. Copies run first as one batch that stops
// at its first failure; deletes run only if every copy completed, under the
// same rule; emptied directories are then removed. The sync state is
// rewritten only when every copy and delete succeeded.
//
// A partial run is reported through the report, not as an error. An error
// is returned when the outcome cannot be determined, for instance when the
// state cannot be saved.
func (x *Executor) Apply(ctx context.Context, cs *reconcile.ChangeSet, prior *state.SyncState) (*models.ExecutionReport, error) {
	report := &models.ExecutionReport{
		ID:           uuid.New().String(),
		RepoPath:     x.repo.Root(),
		SourcePath:   x.source.Root(),
		Machine:      x.opts.Machine,
		StartTime:    time.Now(),
		AllCompleted: true,
		Status:       models.StatusSuccess,
	}
	defer func() {
		report.EndTime = time.Now()
		report.Duration = report.EndTime.Sub(report.StartTime)
	}()

	logger := x.logger.WithFields(logging.Fields{"run": report.ID})

	copies, deletes := x.plan(cs)
	report.CopiesPlanned = len(copies)
	report.DeletesPlanned = len(deletes)

	if report.Nothing() {
		logger.Info(ctx, "no actions to take", nil)
		return report, nil
	}

	throttle := progress.NewThrottle(x.opts.Progress, x.opts.Interval)
	total := len(copies) + len(deletes)

	logger.Info(ctx, "applying change set", logging.Fields{
		"copies":  len(copies),
		"deletes": len(deletes),
	})

	done, err := x.runCopies(ctx, copies, throttle, total, report, logger)
	if err != nil {
		report.Status = models.StatusFailed
		return report, err
	}

	if report.AllCompleted {
		x.runDeletes(ctx, deletes, throttle, total, report, logger)
	}

	if !report.AllCompleted {
		if report.Status == models.StatusSuccess {
			report.Status = models.StatusPartial
		}
		logger.Warn(ctx, "change set partially applied, sync state left unchanged", logging.Fields{
			"copied":  report.FilesCopied,
			"deleted": report.FilesDeleted,
		})
		return report, nil
	}

	throttle.Done(total, total, "")

	next := x.nextState(cs, prior, done)
	if err := x.store.Save(next, x.opts.StatePath); err != nil {
		report.Status = models.StatusFailed
		logger.Error(ctx, "failed to save sync state", err, logging.Fields{"path": x.opts.StatePath})
		return report, fmt.Errorf("failed to save sync state: %w", err)
	}
	report.StateSaved = true

	logger.Info(ctx, report.Summary(), logging.Fields{
		"bytes":        report.BytesCopied,
		"dirs_removed": report.DirsRemoved,
	})
	return report, nil
}

// copyResults maps a path to the repository and source timestamps observed
// after its copy
type copyResults map[string][2]time.Time

func (x *Executor) runCopies(ctx context.Context, copies []copyTask, throttle *progress.Throttle, total int, report *models.ExecutionReport, logger logging.Logger) (copyResults, error) {
	done := make(copyResults, len(copies))

	for i, task := range copies {
		if err := throttle.Report(ctx, i, total, task.path); err != nil {
			x.cancel(report)
			return done, nil
		}

		size, err := x.copyFile(ctx, task)
		if err != nil {
			x.fail(ctx, report, logger, task.path, task.op, err)
			return done, nil
		}

		report.FilesCopied++
		report.BytesCopied += size

		fromInfo, err := task.from.Stat(ctx, task.path)
		if err != nil {
			return done, fmt.Errorf("failed to stat %s after copy: %w", task.path, err)
		}
		toInfo, err := task.to.Stat(ctx, task.path)
		if err != nil {
			return done, fmt.Errorf("failed to stat %s after copy: %w", task.path, err)
		}

		if task.op == models.OpUseRepo {
			done[task.path] = [2]time.Time{fromInfo.ModTime, toInfo.ModTime}
		} else {
			done[task.path] = [2]time.Time{toInfo.ModTime, fromInfo.ModTime}
		}

		logger.Debug(ctx, "copied", logging.Fields{"path": task.path, "op": task.op, "size": size})
	}

	return done, nil
}

// copyFile copies one file, preserving its modification time
func (x *Executor) copyFile(ctx context.Context, task copyTask) (int64, error) {
	info, err := task.from.Stat(ctx, task.path)
	if err != nil {
		return 0, err
	}

	reader, err := task.from.Read(ctx, task.path)
	if err != nil {
		return 0, err
	}
	limited := ratelimit.NewReadCloser(ctx, reader, x.limiter)
	defer limited.Close()

	meta := &storage.FileInfo{
		Size:        info.Size,
		ModTime:     info.ModTime,
		Permissions: info.Permissions,
	}

	if err := task.to.Write(ctx, task.path, limited, info.Size, meta); err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (x *Executor) runDeletes(ctx context.Context, deletes []deleteTask, throttle *progress.Throttle, total int, report *models.ExecutionReport, logger logging.Logger) {
	for i, task := range deletes {
		if err := throttle.Report(ctx, report.FilesCopied+i, total, task.path); err != nil {
			x.cancel(report)
			return
		}

		exists, err := task.target.Exists(ctx, task.path)
		if err != nil {
			x.fail(ctx, report, logger, task.path, task.op, err)
			return
		}
		if !exists {
			// removed behind our back; the outcome is the one planned
			report.FilesDeleted++
			logger.Debug(ctx, "already deleted", logging.Fields{"path": task.path, "op": task.op})
			continue
		}

		if err := task.target.Delete(ctx, task.path); err != nil {
			x.fail(ctx, report, logger, task.path, task.op, err)
			return
		}
		report.FilesDeleted++
		logger.Debug(ctx, "deleted", logging.Fields{"path": task.path, "op": task.op})
	}

	for _, task := range deletes {
		n, err := task.target.RemoveEmptyParents(ctx, task.path)
		report.DirsRemoved += n
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("could not remove empty directories above %s: %v", task.path, err))
			logger.Warn(ctx, "empty directory cleanup failed", logging.Fields{"path": task.path, "error": err})
		}
	}
}

func (x *Executor) fail(ctx context.Context, report *models.ExecutionReport, logger logging.Logger, path string, op models.FileOperation, err error) {
	report.AllCompleted = false
	if ctx.Err() != nil {
		report.Status = models.StatusCancelled
	}
	report.Errors = append(report.Errors, models.ExecError{
		FilePath:  path,
		Operation: op,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
	logger.Error(ctx, "operation failed, stopping batch", err, logging.Fields{"path": path, "op": op})
}

func (x *Executor) cancel(report *models.ExecutionReport) {
	report.AllCompleted = false
	report.Status = models.StatusCancelled
}

// nextState derives the state recorded after a complete run. It starts from
// the prior sides so records outside the change set survive for the other
// machines. Copied paths get the timestamps observed after the copy.
// Conflicts left unresolved and paths the user chose to skip keep their
// previous record so they show up again next time. Every other path
// records what is on disk now. A repository record for a path gone from the
// repository is kept while another machine still records the path.
//
// A machine without a side in the prior state only gets one once nothing
// was held back; until then its files keep being compared as new.
func (x *Executor) nextState(cs *reconcile.ChangeSet, prior *state.SyncState, done copyResults) *state.SyncState {
	var next *state.SyncState
	if prior != nil {
		next = prior.Clone()
	} else {
		next = state.New()
	}

	_, known := next.Sides[x.opts.Machine]
	joining := prior != nil && !known

	repo := cloneSide(next.Sides[state.RepositorySide])
	source := cloneSide(next.Sides[x.opts.Machine])
	put := func(side state.Side, path string, t *time.Time) {
		if t != nil {
			side[path] = *t
		} else {
			delete(side, path)
		}
	}

	heldBack := false
	for _, e := range cs.Elems() {
		switch {
		case e.Operation.IsCopy():
			ts := done[e.Path]
			repo[e.Path] = ts[0]
			source[e.Path] = ts[1]

		case e.Operation == models.OpDeleteRepo:
			delete(repo, e.Path)
			put(source, e.Path, e.SourceDate)

		case e.Operation == models.OpDeleteSource:
			put(repo, e.Path, e.RepoDate)
			delete(source, e.Path)

		case e.IsConflict() || e.Edited():
			heldBack = true
			put(repo, e.Path, e.RepoRecorded)
			put(source, e.Path, e.SourceRecorded)

		default:
			put(repo, e.Path, e.RepoDate)
			put(source, e.Path, e.SourceDate)
		}
	}

	// Another machine still holding a path needs the repository record to
	// see that it was deleted
	for path, t := range next.Sides[state.RepositorySide] {
		if _, ok := repo[path]; !ok && recordedElsewhere(next, x.opts.Machine, path) {
			repo[path] = t
		}
	}

	next.SetSide(state.RepositorySide, repo)
	if joining && heldBack {
		return next
	}
	next.SetSide(x.opts.Machine, source)
	return next
}

func recordedElsewhere(st *state.SyncState, machine, path string) bool {
	for name, side := range st.Sides {
		if name == state.RepositorySide || name == machine {
			continue
		}
		if _, ok := side[path]; ok {
			return true
		}
	}
	return false
}

func cloneSide(side state.Side) state.Side {
	out := make(state.Side, len(side))
	for path, t := range side {
		out[path] = t
	}
	return out
}
