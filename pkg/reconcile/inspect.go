// Package reconcile compares two snapshots against the state recorded at
// the last synchronization and plans an operation for every path.
package reconcile

import (
	"context"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/progress"
	"github.com/sdejongh/reposync/pkg/state"
)

// Baseline is the recorded state of both sides for one machine
type Baseline struct {
	Repo   state.Side
	Source state.Side

	// Known is false when the machine never synchronized with the repository
	Known bool
}

// NewBaseline extracts the baseline of machine from a sync state
func NewBaseline(st *state.SyncState, machine string) Baseline {
	if st == nil {
		return Baseline{Repo: state.Side{}, Source: state.Side{}}
	}
	repo, source, known := st.Baseline(machine)
	return Baseline{Repo: repo, Source: source, Known: known}
}

// Options tune an inspection
type Options struct {
	// Progress receives (compared, total, path)
	Progress progress.Func

	// Interval between progress callbacks, 0 for progress.DefaultInterval
	Interval time.Duration
}

// Inspect classifies every path in the union of both snapshots and both
// recorded sides, then assigns default operations. The result only depends
// on its inputs. A cancelled context or a progress callback answering false
// yields models.ErrCancelled and no change set.
func Inspect(ctx context.Context, base Baseline, repo, source models.Snapshot, opts Options) (*ChangeSet, error) {
	all := mapset.NewThreadUnsafeSet[string]()
	for path := range repo {
		all.Add(path)
	}
	for path := range source {
		all.Add(path)
	}
	for path := range base.Repo {
		all.Add(path)
	}
	for path := range base.Source {
		all.Add(path)
	}

	paths := all.ToSlice()
	sort.Strings(paths)

	throttle := progress.NewThrottle(opts.Progress, opts.Interval)
	cs := NewChangeSet()

	for i, path := range paths {
		if err := throttle.Report(ctx, i, len(paths), path); err != nil {
			return nil, err
		}

		e := Elem{
			Path:           path,
			RepoDate:       repo.Lookup(path),
			SourceDate:     source.Lookup(path),
			RepoRecorded:   lookup(base.Repo, path),
			SourceRecorded: lookup(base.Source, path),
		}
		e.RepoChange = detectChange(e.RepoDate, e.RepoRecorded)
		e.SourceChange = detectChange(e.SourceDate, e.SourceRecorded)
		// A machine joining the repository never received its files
		if !base.Known && e.RepoDate != nil && e.RepoChange == ChangeNone {
			e.RepoChange = ChangeCreated
		}
		cs.add(e)
	}

	cs.SetDefaultActions()
	throttle.Done(len(paths), len(paths), "")
	return cs, nil
}

func lookup(side state.Side, path string) *time.Time {
	t, ok := side[path]
	if !ok {
		return nil
	}
	return &t
}
